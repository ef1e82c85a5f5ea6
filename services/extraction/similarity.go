// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extraction

import (
	"context"
	"fmt"

	"github.com/AleutianAI/PatentScout/services/llm"
	"github.com/AleutianAI/PatentScout/services/pipeline"
)

// Similarity is the pair of relevance judgments for one document.
type Similarity struct {
	ScenarioScore float64 `json:"scenario_score"`
	ProblemScore  float64 `json:"problem_score"`
}

// ScoreSimilarity judges a patent text against a query text with the
// same two prompts the scoring stage uses, outside any run. A judgment
// whose response cannot be parsed scores zero; a generation failure is
// an error, since there is no batch to degrade within.
func ScoreSimilarity(ctx context.Context, gen llm.Generator, queryText, patentText string) (Similarity, error) {
	if gen == nil {
		return Similarity{}, fmt.Errorf("no generation backend configured")
	}
	if queryText == "" || patentText == "" {
		return Similarity{}, fmt.Errorf("%w: query and patent text required", pipeline.ErrInvalidInput)
	}

	excerpt := documentExcerpt(patentText)

	scenarioResp, err := gen.Generate(ctx, scenarioScorePrompt(queryText, excerpt), llm.GenerationParams{})
	if err != nil {
		return Similarity{}, fmt.Errorf("scenario judgment failed: %w", err)
	}
	problemResp, err := gen.Generate(ctx, problemScorePrompt(queryText, excerpt), llm.GenerationParams{})
	if err != nil {
		return Similarity{}, fmt.Errorf("problem judgment failed: %w", err)
	}

	var sim Similarity
	if v, err := parseScoreResponse(scenarioResp); err == nil {
		sim.ScenarioScore = v
	}
	if v, err := parseScoreResponse(problemResp); err == nil {
		sim.ProblemScore = v
	}
	return sim, nil
}
