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
	"fmt"

	"github.com/AleutianAI/PatentScout/services/pipeline"
)

// decisionRouter maps validated checkpoint decisions onto pipeline
// transitions. It is a pure function of (state, decision); all business
// consequences of a decision are expressed in the returned transition.
type decisionRouter struct{}

// Route implements pipeline.Router.
//
// Description:
//
//	approve records the decision and lets the downstream predicates
//	unlock expansion. edit does the same; the apply_edit stage performs
//	the substitution. reject records the decision, appends its feedback,
//	clears every artifact of the rejected iteration (concept matrix,
//	seed keywords, expanded keywords), and resets the extraction stages
//	plus the gate so the back-edge re-enters upstream and re-suspends.
func (decisionRouter) Route(_ *State, decision any) (*pipeline.Transition[*State], error) {
	var d Decision
	switch v := decision.(type) {
	case Decision:
		d = v
	case *Decision:
		if v == nil {
			return nil, fmt.Errorf("%w: nil decision", pipeline.ErrInvalidDecision)
		}
		d = *v
	default:
		return nil, fmt.Errorf("%w: unsupported decision type %T", pipeline.ErrInvalidDecision, decision)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	switch d.Action {
	case ActionApprove, ActionEdit:
		recorded := d
		return &pipeline.Transition[*State]{
			Apply: func(s *State) {
				s.Decision = &recorded
			},
		}, nil

	case ActionReject:
		recorded := d
		return &pipeline.Transition[*State]{
			Apply: func(s *State) {
				s.Decision = &recorded
				if recorded.Feedback != "" {
					s.Feedback = append(s.Feedback, recorded.Feedback)
				}
				// Discard the rejected iteration wholesale. Stale
				// expanded keys must never merge into the next set.
				s.ConceptMatrix = nil
				s.SeedKeywords = nil
				s.ExpandedKeywords = nil
			},
			Resets: []string{
				StageExtractConcepts,
				StageGenerateKeywords,
				StageAwaitDecision,
			},
			Retry: true,
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown action %q", pipeline.ErrInvalidDecision, d.Action)
}

var _ pipeline.Router[*State] = decisionRouter{}
