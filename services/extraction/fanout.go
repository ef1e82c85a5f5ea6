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
	"log/slog"
	"sort"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/PatentScout/services/pipeline"
	"github.com/AleutianAI/PatentScout/services/search"
)

// Fan-out stages. Each dispatches one worker per item under a bounded
// errgroup, collects into an index-addressed slice so no worker touches
// a peer's slot, and aggregates after the join. Per-item failures
// degrade to empty results; only context cancellation aborts a batch.

// expandKeywords grows each distinct seed keyword into synonyms and
// related terms, grounded in web snippets. A keyword with zero snippets
// skips the generation call and records an empty expansion, so every
// dispatched keyword still gets exactly one entry in the map.
func (ss *stageSet) expandKeywords() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageExpandKeywords, []string{StageAwaitDecision},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			keywords := s.SeedKeywords.Distinct()
			expansions := make([][]string, len(keywords))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(ss.opts.ExpandWorkers)
			for i, keyword := range keywords {
				g.Go(func() error {
					expansions[i] = ss.expandOne(gctx, s, keyword)
					return gctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			expanded := make(map[string][]string, len(keywords))
			for i, keyword := range keywords {
				expanded[keyword] = expansions[i]
			}
			return func(s *State) {
				s.ExpandedKeywords = expanded
			}, nil
		}).WithTimeout(5 * pipeline.DefaultStageTimeout)
}

// expandOne performs the search-then-generate round for one keyword.
// Every failure path returns an empty list.
func (ss *stageSet) expandOne(ctx context.Context, s *State, keyword string) []string {
	snippets := ss.searchSnippets(ctx, keyword)
	if len(snippets) == 0 {
		return []string{}
	}

	prompt := synonymPrompt(keyword, s.ConceptMatrix.ObjectSystem, snippets)
	response, err := ss.generate(ctx, prompt)
	if err != nil {
		ss.opts.Logger.Warn("keyword expansion degraded",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()))
		return []string{}
	}

	terms, err := parseTermsResponse(response)
	if err != nil {
		ss.opts.Logger.Warn("expansion response unparseable",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()))
		return []string{}
	}
	return terms
}

// searchSnippets fetches up to SnippetsPerKeyword web snippets for a
// keyword. No backend, or a failing one, means no snippets.
func (ss *stageSet) searchSnippets(ctx context.Context, keyword string) []string {
	if ss.co.Search == nil {
		return nil
	}
	results, err := ss.co.Search.Search(ctx, keyword, ss.opts.SnippetsPerKeyword)
	if err != nil {
		ss.opts.Logger.Warn("snippet search failed",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()))
		return nil
	}
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		if r.Content != "" {
			snippets = append(snippets, r.Content)
		}
	}
	return snippets
}

// discoverDocuments runs every boolean query against the search backend
// and aggregates candidate URLs, unique, in query order then result
// order. A URL surfaced by several queries is kept once, at its first
// position.
func (ss *stageSet) discoverDocuments() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageDiscoverDocuments, []string{StageBuildQueries},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			perQuery := make([][]search.Result, len(s.Queries))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(ss.opts.ExpandWorkers)
			for i, query := range s.Queries {
				g.Go(func() error {
					if ss.co.Search == nil {
						return gctx.Err()
					}
					results, err := ss.co.Search.Search(gctx, query, ss.opts.ResultsPerQuery)
					if err != nil {
						ss.opts.Logger.Warn("document query failed",
							slog.String("query", query),
							slog.String("error", err.Error()))
						return gctx.Err()
					}
					perQuery[i] = results
					return gctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			seen := make(map[string]bool)
			urls := make([]string, 0)
			for _, results := range perQuery {
				for _, r := range results {
					if r.URL == "" || seen[r.URL] {
						continue
					}
					seen[r.URL] = true
					urls = append(urls, r.URL)
				}
			}
			return func(s *State) {
				s.DiscoveredURLs = urls
			}, nil
		}).WithTimeout(5 * pipeline.DefaultStageTimeout)
}

// scoreDocuments fetches each discovered document and judges it against
// the usage scenario and the technical problem. Every discovered URL
// yields exactly one candidate: a document whose fetch or judgments
// fail keeps its slot with zero scores. Results are ordered by combined
// score, descending, ties by discovery order.
func (ss *stageSet) scoreDocuments() pipeline.Stage[*State] {
	return pipeline.NewFuncStage(StageScoreDocuments, []string{StageDiscoverDocuments},
		func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
			docs := make([]ScoredDocument, len(s.DiscoveredURLs))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(ss.opts.ScoreWorkers)
			for i, url := range s.DiscoveredURLs {
				g.Go(func() error {
					docs[i] = ss.scoreOne(gctx, s, url)
					return gctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			sort.SliceStable(docs, func(a, b int) bool {
				return docs[a].ScenarioScore+docs[a].ProblemScore >
					docs[b].ScenarioScore+docs[b].ProblemScore
			})
			return func(s *State) {
				s.CandidateDocuments = docs
			}, nil
		}).WithTimeout(10 * pipeline.DefaultStageTimeout)
}

// scoreOne fetches and judges one document. A missing fetcher or a
// failed fetch keeps the candidate with zero scores so one dead URL
// never shrinks the batch.
func (ss *stageSet) scoreOne(ctx context.Context, s *State, url string) ScoredDocument {
	if ss.co.Fetcher == nil {
		return ScoredDocument{URL: url}
	}
	doc, err := ss.co.Fetcher.Fetch(ctx, url)
	if err != nil {
		ss.opts.Logger.Warn("document fetch failed, scoring zero",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return ScoredDocument{URL: url}
	}

	excerpt := documentExcerpt(doc.Abstract + "\n" + doc.Claims + "\n" + doc.Description)
	scenario := ss.judge(ctx, scenarioScorePrompt(s.InputText, excerpt), url, "scenario")
	problem := ss.judge(ctx, problemScorePrompt(s.Problem, excerpt), url, "problem")

	return ScoredDocument{URL: url, ScenarioScore: scenario, ProblemScore: problem}
}

// judge runs one relevance prompt and parses the score. Failures score
// zero so a flaky backend only deflates, never aborts.
func (ss *stageSet) judge(ctx context.Context, prompt, url, kind string) float64 {
	response, err := ss.generate(ctx, prompt)
	if err != nil {
		ss.opts.Logger.Warn("relevance judgment degraded",
			slog.String("url", url),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
		return 0
	}
	score, err := parseScoreResponse(response)
	if err != nil {
		return 0
	}
	return score
}

// documentExcerpt bounds a fetched document to one prompt-sized chunk.
// The abstract and claims lead the concatenation, so the first chunk is
// the most judgment-relevant slice of the document.
func documentExcerpt(text string) string {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(4000),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		if len(text) > 4000 {
			return text[:4000]
		}
		return text
	}
	return chunks[0]
}
