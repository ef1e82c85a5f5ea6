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
	"strings"

	"github.com/AleutianAI/PatentScout/services/pipeline"
)

// Action is the checkpoint decision kind.
type Action string

const (
	// ActionApprove continues with the generated keywords.
	ActionApprove Action = "approve"

	// ActionReject discards the keywords and retries extraction,
	// optionally carrying feedback forward.
	ActionReject Action = "reject"

	// ActionEdit substitutes user-supplied keywords and continues as an
	// approval.
	ActionEdit Action = "edit"
)

// Decision is the outcome of the human checkpoint.
type Decision struct {
	// Action selects the route out of the gate.
	Action Action `json:"action"`

	// Feedback is free text, meaningful only for reject. Absent
	// feedback is valid but degrades the retry.
	Feedback string `json:"feedback,omitempty"`

	// EditedKeywords is required for edit and ignored otherwise.
	EditedKeywords *SeedKeywords `json:"edited_keywords,omitempty"`
}

// ParseAction interprets the interactive decision forms:
// 1|approve|a, 2|reject|r, 3|edit|e.
func ParseAction(input string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "approve", "a":
		return ActionApprove, nil
	case "2", "reject", "r":
		return ActionReject, nil
	case "3", "edit", "e":
		return ActionEdit, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", pipeline.ErrInvalidDecision, input)
}

// Validate rejects malformed decisions at the gate boundary so they
// never propagate into the graph.
func (d Decision) Validate() error {
	switch d.Action {
	case ActionApprove, ActionReject:
		return nil
	case ActionEdit:
		if !d.EditedKeywords.wellFormed() {
			return fmt.Errorf("%w: edit requires all three keyword lists", pipeline.ErrInvalidDecision)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", pipeline.ErrInvalidDecision, d.Action)
}

// DecisionContext is what a decision provider sees when the pipeline
// suspends at the checkpoint.
type DecisionContext struct {
	// RunID is the suspended run's handle.
	RunID string

	// ConceptMatrix and SeedKeywords are the artifacts under review.
	ConceptMatrix ConceptMatrix
	SeedKeywords  SeedKeywords

	// Attempts is the number of rejects already consumed, MaxAttempts
	// the configured budget.
	Attempts    int
	MaxAttempts int
}

// DecisionProvider supplies checkpoint decisions. Implementations are
// either interactive (terminal form) or programmatic (HTTP resume,
// auto-approve); the pipeline is agnostic to which is wired in.
type DecisionProvider interface {
	Decide(ctx context.Context, dc DecisionContext) (Decision, error)
}

// AutoApprove is a DecisionProvider that approves every checkpoint.
// Used for automated flows and demos.
type AutoApprove struct{}

// Decide implements the DecisionProvider interface.
func (AutoApprove) Decide(_ context.Context, _ DecisionContext) (Decision, error) {
	return Decision{Action: ActionApprove}, nil
}

var _ DecisionProvider = AutoApprove{}
