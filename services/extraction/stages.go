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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/PatentScout/services/llm"
	"github.com/AleutianAI/PatentScout/services/patents"
	"github.com/AleutianAI/PatentScout/services/pipeline"
	"github.com/AleutianAI/PatentScout/services/search"
)

// Collaborators are the external services the stages call. Generator is
// required; the others may be nil, in which case the dependent stages
// degrade (empty expansions, static classifications, no candidates).
type Collaborators struct {
	Generator  llm.Generator
	Search     search.Client
	Fetcher    patents.Fetcher
	Classifier patents.Classifier
}

// Options tune the workflow's fan-out and output sizes. Zero values get
// defaults from withDefaults.
type Options struct {
	// MaxQueries caps the boolean queries produced by build_queries.
	MaxQueries int

	// SnippetsPerKeyword is the web-search result count fetched per
	// keyword during expansion.
	SnippetsPerKeyword int

	// ResultsPerQuery is the document count fetched per boolean query.
	ResultsPerQuery int

	// ExpandWorkers and ScoreWorkers bound the respective fan-out
	// concurrency.
	ExpandWorkers int
	ScoreWorkers  int

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxQueries <= 0 {
		o.MaxQueries = 6
	}
	if o.SnippetsPerKeyword <= 0 {
		o.SnippetsPerKeyword = 3
	}
	if o.ResultsPerQuery <= 0 {
		o.ResultsPerQuery = 5
	}
	if o.ExpandWorkers <= 0 {
		o.ExpandWorkers = 4
	}
	if o.ScoreWorkers <= 0 {
		o.ScoreWorkers = 2
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// stageSet builds the workflow's stages over a fixed collaborator set.
type stageSet struct {
	co   Collaborators
	opts Options
}

// generate is the shared call into the generation backend with the
// workflow's sampling defaults.
func (ss *stageSet) generate(ctx context.Context, prompt string) (string, error) {
	if ss.co.Generator == nil {
		return "", fmt.Errorf("no generation backend configured")
	}
	return ss.co.Generator.Generate(ctx, prompt, llm.GenerationParams{})
}

// normalize restates the raw input as a problem statement plus technical
// context. Failures degrade to the sentinel so the run continues; fields
// already present (a resumed snapshot) are left alone.
func (ss *stageSet) normalize() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageNormalize, nil,
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			if s.Problem != "" && s.Technical != "" {
				return nil, nil
			}

			problem, technical := FallbackSentinel, FallbackSentinel
			response, err := ss.generate(ctx, normalizationPrompt(s.InputText))
			if err != nil {
				ss.opts.Logger.Warn("normalization degraded",
					slog.String("error", err.Error()))
			} else if jsonStr, jerr := extractJSON(response); jerr == nil {
				var parsed struct {
					Problem   string `json:"problem"`
					Technical string `json:"technical"`
				}
				if uerr := json.Unmarshal([]byte(jsonStr), &parsed); uerr == nil {
					if strings.TrimSpace(parsed.Problem) != "" {
						problem = strings.TrimSpace(parsed.Problem)
					}
					if strings.TrimSpace(parsed.Technical) != "" {
						technical = strings.TrimSpace(parsed.Technical)
					}
				}
			}

			return func(s *State) {
				if s.Problem == "" {
					s.Problem = problem
				}
				if s.Technical == "" {
					s.Technical = technical
				}
			}, nil
		})
}

// extractConcepts fills the three-axis concept matrix. Reject feedback,
// when present, is folded into the prompt so a retried extraction can
// address it.
func (ss *stageSet) extractConcepts() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageExtractConcepts, []string{StageNormalize},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			if s.ConceptMatrix != nil {
				return nil, nil
			}

			matrix := &ConceptMatrix{
				ProblemPurpose:   FallbackSentinel,
				ObjectSystem:     FallbackSentinel,
				EnvironmentField: FallbackSentinel,
			}
			response, err := ss.generate(ctx, conceptPrompt(s))
			if err != nil {
				ss.opts.Logger.Warn("concept extraction degraded",
					slog.String("error", err.Error()))
			} else if parsed, perr := parseConceptResponse(response); perr == nil {
				matrix = parsed
			} else {
				ss.opts.Logger.Warn("concept response unparseable",
					slog.String("error", perr.Error()))
			}

			return func(s *State) {
				if s.ConceptMatrix == nil {
					s.ConceptMatrix = matrix
				}
			}, nil
		})
}

// generateKeywords produces seed keyword lists per concept category. On
// backend failure it derives keywords directly from the matrix text.
func (ss *stageSet) generateKeywords() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageGenerateKeywords, []string{StageExtractConcepts},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			if s.SeedKeywords != nil {
				return nil, nil
			}

			var keywords *SeedKeywords
			response, err := ss.generate(ctx, keywordPrompt(s))
			if err == nil {
				keywords, err = parseKeywordResponse(response)
			}
			if err != nil {
				ss.opts.Logger.Warn("keyword generation degraded to matrix tokens",
					slog.String("error", err.Error()))
				keywords = keywordsFromMatrix(s.ConceptMatrix)
			}

			return func(s *State) {
				if s.SeedKeywords == nil {
					s.SeedKeywords = keywords
				}
			}, nil
		})
}

// summarize writes a short classification-ready summary. Runs on the
// classification branch, concurrent with concept extraction.
func (ss *stageSet) summarize() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageSummarize, []string{StageNormalize},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			if s.SummaryText != "" {
				return nil, nil
			}

			summary := FallbackSentinel
			response, err := ss.generate(ctx, summaryPrompt(s.InputText))
			if err != nil {
				ss.opts.Logger.Warn("summarization degraded",
					slog.String("error", err.Error()))
			} else if trimmed := strings.TrimSpace(response); trimmed != "" {
				summary = trimmed
			}

			return func(s *State) {
				if s.SummaryText == "" {
					s.SummaryText = summary
				}
			}, nil
		})
}

// classify predicts IPC codes from the summary. A failed or missing
// classifier degrades to the static prediction table rather than an
// empty branch, keeping query building exercised.
func (ss *stageSet) classify() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageClassify, []string{StageSummarize},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			if len(s.IPCCodes) > 0 {
				return nil, nil
			}

			text := s.SummaryText
			if text == FallbackSentinel {
				text = s.InputText
			}

			var codes []patents.IPCCode
			if ss.co.Classifier == nil {
				codes = patents.StaticPredictions()
			} else {
				var err error
				codes, err = ss.co.Classifier.ClassifyIPC(ctx, text)
				if err != nil {
					ss.opts.Logger.Warn("classification degraded to static predictions",
						slog.String("error", err.Error()))
					codes = patents.StaticPredictions()
				}
			}

			return func(s *State) {
				if len(s.IPCCodes) == 0 {
					s.IPCCodes = codes
				}
			}, nil
		})
}

// applyEdit substitutes the reviewer's edited keyword lists for the
// generated ones. The router has already validated the lists.
func (ss *stageSet) applyEdit() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageApplyEdit, []string{StageAwaitDecision},
		func(_ context.Context, s *State) (pipeline.Update[*State], error) {
			if s.Decision == nil || s.Decision.EditedKeywords == nil {
				return nil, fmt.Errorf("edit stage reached without edited keywords")
			}
			edited := *s.Decision.EditedKeywords
			return func(s *State) {
				s.SeedKeywords = &edited
			}, nil
		})
}

// buildQueries composes boolean search expressions from the expanded
// keywords, IPC codes, and problem statement. A failed backend falls
// back to deterministic composition so discovery always has input.
func (ss *stageSet) buildQueries() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageBuildQueries, []string{StageExpandKeywords, StageClassify},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			if len(s.Queries) > 0 {
				return nil, nil
			}

			var queries []string
			response, err := ss.generate(ctx, queriesPrompt(s, ss.opts.MaxQueries))
			if err == nil {
				queries, err = parseQueriesResponse(response)
			}
			if err != nil {
				ss.opts.Logger.Warn("query generation degraded to composed queries",
					slog.String("error", err.Error()))
				queries = composeQueries(s)
			}
			if len(queries) > ss.opts.MaxQueries {
				queries = queries[:ss.opts.MaxQueries]
			}

			return func(s *State) {
				if len(s.Queries) == 0 {
					s.Queries = queries
				}
			}, nil
		})
}

// composeQueries builds boolean queries without a model: one query
// AND-ing the OR-group of each category's terms, plus one variant per
// IPC code.
func composeQueries(s *State) []string {
	groups := make([]string, 0, 3)
	for _, category := range s.ConceptMatrix.Categories() {
		terms := categoryTerms(s, category)
		if len(terms) == 0 {
			continue
		}
		if len(terms) > 4 {
			terms = terms[:4]
		}
		groups = append(groups, "("+strings.Join(terms, " OR ")+")")
	}
	if len(groups) == 0 {
		return nil
	}

	base := strings.Join(groups, " AND ")
	queries := []string{base}
	for _, code := range s.IPCCodes {
		queries = append(queries, base+" AND \""+code.Category+"\"")
	}
	return queries
}

// doneStage is the join barrier both branches feed into. It carries no
// work of its own; completing it is what marks the run finished.
func doneStage() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageDone, []string{StageScoreDocuments, StageClassify},
		func(_ context.Context, _ *State) (pipeline.Update[*State], error) {
			return nil, nil
		})
}
