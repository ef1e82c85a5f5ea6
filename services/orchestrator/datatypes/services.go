// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "github.com/AleutianAI/PatentScout/services/orchestrator/archive"

// SimilarityRequest asks for relevance scores of a patent text against
// a query text, outside any run.
type SimilarityRequest struct {
	QueryText  string `json:"query_text" validate:"required,min=10,max=50000"`
	PatentText string `json:"patent_text" validate:"required,min=10,max=200000"`
}

// Validate checks the request against its declared constraints.
func (r *SimilarityRequest) Validate() error {
	return validate.Struct(r)
}

// SimilarityResponse carries the two relevance judgments.
type SimilarityResponse struct {
	ScenarioScore float64 `json:"scenario_score"`
	ProblemScore  float64 `json:"problem_score"`
}

// ArchiveSearchResponse lists archived runs matching a text query.
type ArchiveSearchResponse struct {
	Query string           `json:"query"`
	Runs  []archive.RunHit `json:"runs"`
}
