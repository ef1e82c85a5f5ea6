// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extraction implements the patent concept-extraction workflow:
// the pipeline state, the twelve stages, the human checkpoint, and the
// orchestrator facade over the generic pipeline engine.
package extraction

import (
	"fmt"

	"github.com/AleutianAI/PatentScout/services/patents"
)

// Stage names. These are the external status-API contract, so they are
// stable snake_case identifiers rather than Go names.
const (
	StageNormalize         = "normalize"
	StageExtractConcepts   = "extract_concepts"
	StageGenerateKeywords  = "generate_keywords"
	StageSummarize         = "summarize"
	StageClassify          = "classify"
	StageAwaitDecision     = "await_decision"
	StageApplyEdit         = "apply_edit"
	StageExpandKeywords    = "expand_keywords"
	StageBuildQueries      = "build_queries"
	StageDiscoverDocuments = "discover_documents"
	StageScoreDocuments    = "score_documents"
	StageDone              = "done"
)

// StageCount is the number of stages in the workflow graph.
const StageCount = 12

// FallbackSentinel marks a field whose collaborator call failed and was
// degraded rather than aborted.
const FallbackSentinel = "Not mentioned."

// ConceptMatrix is the three-axis decomposition of an invention.
type ConceptMatrix struct {
	// ProblemPurpose is the technical problem the invention solves or
	// its primary objective.
	ProblemPurpose string `json:"problem_purpose"`

	// ObjectSystem is the main object, device, system, material, or
	// process that is the subject of the invention.
	ObjectSystem string `json:"object_system"`

	// EnvironmentField is the application domain, industry sector, or
	// operational context.
	EnvironmentField string `json:"environment_field"`
}

// SeedKeywords holds keyword lists keyed identically to ConceptMatrix.
// Lists may be empty but never nil.
type SeedKeywords struct {
	ProblemPurpose   []string `json:"problem_purpose"`
	ObjectSystem     []string `json:"object_system"`
	EnvironmentField []string `json:"environment_field"`
}

// Categories returns the category names in their canonical order.
func (ConceptMatrix) Categories() []string {
	return []string{"problem_purpose", "object_system", "environment_field"}
}

// Field returns the matrix field for a category name.
func (m ConceptMatrix) Field(category string) string {
	switch category {
	case "problem_purpose":
		return m.ProblemPurpose
	case "object_system":
		return m.ObjectSystem
	case "environment_field":
		return m.EnvironmentField
	}
	return ""
}

// List returns the keyword list for a category name.
func (k SeedKeywords) List(category string) []string {
	switch category {
	case "problem_purpose":
		return k.ProblemPurpose
	case "object_system":
		return k.ObjectSystem
	case "environment_field":
		return k.EnvironmentField
	}
	return nil
}

// Distinct returns every keyword across all categories exactly once, in
// category order then first-seen order. This is the fan-out dispatch
// list: a keyword appearing in two categories is expanded once.
func (k SeedKeywords) Distinct() []string {
	seen := make(map[string]bool)
	distinct := make([]string, 0)
	for _, category := range (ConceptMatrix{}).Categories() {
		for _, kw := range k.List(category) {
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			distinct = append(distinct, kw)
		}
	}
	return distinct
}

// wellFormed reports whether all three lists are non-nil.
func (k *SeedKeywords) wellFormed() bool {
	return k != nil &&
		k.ProblemPurpose != nil &&
		k.ObjectSystem != nil &&
		k.EnvironmentField != nil
}

// ScoredDocument is one candidate prior-art document with its two
// relevance judgments, each in [0, 1].
type ScoredDocument struct {
	URL           string  `json:"url"`
	ScenarioScore float64 `json:"scenario_score"`
	ProblemScore  float64 `json:"problem_score"`
}

// State is the pipeline state threaded through all stages.
//
// Description:
//
//	One State exists per extraction run. Stages read the fields their
//	position in the graph guarantees and return updates covering only
//	the fields they own: set-only-if-absent for single-owner scalars,
//	full replacement for the fan-out collections. Validate is run by
//	the engine after every merge.
type State struct {
	// InputText is the raw invention description, immutable once set.
	InputText string `json:"input_text"`

	// Problem and Technical are the normalized restatement of the
	// input, set once by the normalize stage.
	Problem   string `json:"problem,omitempty"`
	Technical string `json:"technical,omitempty"`

	// ConceptMatrix is set by extract_concepts.
	ConceptMatrix *ConceptMatrix `json:"concept_matrix,omitempty"`

	// SeedKeywords is set by generate_keywords (or apply_edit).
	SeedKeywords *SeedKeywords `json:"seed_keywords,omitempty"`

	// Decision is the checkpoint outcome, nil until the gate routes one.
	Decision *Decision `json:"validation_decision,omitempty"`

	// ExpandedKeywords maps each distinct seed keyword to its
	// synonym/related-term list. Fully replaced by expand_keywords and
	// cleared on reject so stale keys never leak into a retried set.
	ExpandedKeywords map[string][]string `json:"expanded_keywords,omitempty"`

	// SummaryText is produced by the summarize branch.
	SummaryText string `json:"summary_text,omitempty"`

	// IPCCodes are ranked classification predictions, score descending.
	IPCCodes []patents.IPCCode `json:"ipc_codes,omitempty"`

	// Queries are the boolean search expressions.
	Queries []string `json:"queries,omitempty"`

	// DiscoveredURLs are candidate document locations, unique, in
	// query order then result order. Fully replaced by
	// discover_documents.
	DiscoveredURLs []string `json:"discovered_urls,omitempty"`

	// CandidateDocuments are scored prior-art candidates, unique by URL,
	// populated only after an accepting decision.
	CandidateDocuments []ScoredDocument `json:"candidate_documents,omitempty"`

	// Feedback accumulates reject feedback strings, newest last.
	Feedback []string `json:"feedback,omitempty"`
}

// NewState creates the initial state for an extraction request.
func NewState(inputText string) *State {
	return &State{InputText: inputText}
}

// LatestFeedback returns the most recent reject feedback, empty if none.
func (s *State) LatestFeedback() string {
	if len(s.Feedback) == 0 {
		return ""
	}
	return s.Feedback[len(s.Feedback)-1]
}

// accepted reports whether the decision resolved to an accepting path.
func (s *State) accepted() bool {
	return s.Decision != nil &&
		(s.Decision.Action == ActionApprove || s.Decision.Action == ActionEdit)
}

// Validate checks the state invariants. A violation indicates a stage
// defect; the engine aborts the run with the returned diagnostic.
func (s *State) Validate() error {
	if s.Decision != nil {
		switch s.Decision.Action {
		case ActionApprove, ActionReject, ActionEdit:
		default:
			return fmt.Errorf("validation_decision has unknown action %q", s.Decision.Action)
		}
	}

	if s.ConceptMatrix != nil {
		for _, category := range s.ConceptMatrix.Categories() {
			if s.ConceptMatrix.Field(category) == "" {
				return fmt.Errorf("concept_matrix.%s is empty", category)
			}
		}
	}

	if s.SeedKeywords != nil && !s.SeedKeywords.wellFormed() {
		return fmt.Errorf("seed_keywords has a nil category list")
	}

	if len(s.ExpandedKeywords) > 0 {
		if s.SeedKeywords == nil {
			return fmt.Errorf("expanded_keywords present without seed_keywords")
		}
		seeds := make(map[string]bool)
		for _, kw := range s.SeedKeywords.Distinct() {
			seeds[kw] = true
		}
		for kw := range s.ExpandedKeywords {
			if !seeds[kw] {
				return fmt.Errorf("expanded_keywords key %q is not a current seed keyword", kw)
			}
		}
	}

	if len(s.CandidateDocuments) > 0 {
		if !s.accepted() {
			return fmt.Errorf("candidate_documents present without an accepting decision")
		}
		seen := make(map[string]bool)
		for _, doc := range s.CandidateDocuments {
			if seen[doc.URL] {
				return fmt.Errorf("candidate_documents contains duplicate url %q", doc.URL)
			}
			seen[doc.URL] = true
			if doc.ScenarioScore < 0 || doc.ScenarioScore > 1 {
				return fmt.Errorf("scenario_score %f for %s outside [0,1]", doc.ScenarioScore, doc.URL)
			}
			if doc.ProblemScore < 0 || doc.ProblemScore > 1 {
				return fmt.Errorf("problem_score %f for %s outside [0,1]", doc.ProblemScore, doc.URL)
			}
		}
	}

	return nil
}
