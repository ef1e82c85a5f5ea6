// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline provides a suspendable stage-graph executor.
//
// Description:
//
//	A Graph is a set of named stages connected by dependency edges, with
//	at most one gate: a stage at which execution suspends until an
//	external decision arrives. Stages whose dependencies are satisfied
//	run concurrently; each returns an Update that the executor applies to
//	the shared state under a single-writer barrier, so stages never see a
//	half-merged state and never write concurrently.
//
//	The gate's Router maps a decision to a Transition: a state update,
//	an optional set of completed stages to reset (the only legal
//	back-edge), and whether the decision consumes one retry attempt.
//	Dependency edges themselves must stay acyclic.
package pipeline

import (
	"context"
	"time"
)

// DefaultStageTimeout is applied to stages that do not declare a timeout.
const DefaultStageTimeout = 60 * time.Second

// Update mutates the shared state. Updates are produced by stages and
// applied by the executor after the stage returns; a stage must do all of
// its writing through the Update it returns, never directly in Run.
type Update[S any] func(state S)

// Predicate guards entry into a stage that is reachable only on some gate
// routes. The stage becomes eligible when its dependencies are complete
// AND the predicate reports true. completed answers whether a named stage
// has finished, for ordering that the state alone cannot express.
type Predicate[S any] func(state S, completed func(stage string) bool) bool

// Stage is one step of a pipeline.
//
// Description:
//
//	Run receives a read view of the shared state and returns an Update
//	covering only the fields the stage owns. Run must not retain state
//	beyond the call and must not mutate it directly. External-collaborator
//	failures should degrade inside Run (sentinel or zero values); an error
//	returned from Run is treated as structural and fails the run.
type Stage[S any] interface {
	// Name returns the stage's unique identifier.
	Name() string

	// Deps returns the names of stages that must complete first.
	Deps() []string

	// Timeout returns the maximum execution time, 0 for the default.
	Timeout() time.Duration

	// Run computes this stage's contribution to the state.
	Run(ctx context.Context, state S) (Update[S], error)
}

// BaseStage carries the descriptive half of Stage. Embed it and implement
// Run.
type BaseStage struct {
	StageName    string
	StageDeps    []string
	StageTimeout time.Duration
}

// Name returns the stage's unique identifier.
func (s *BaseStage) Name() string {
	return s.StageName
}

// Deps returns the names of stages that must complete first.
func (s *BaseStage) Deps() []string {
	if s.StageDeps == nil {
		return []string{}
	}
	return s.StageDeps
}

// Timeout returns the maximum execution time for this stage.
func (s *BaseStage) Timeout() time.Duration {
	if s.StageTimeout == 0 {
		return DefaultStageTimeout
	}
	return s.StageTimeout
}

// FuncStage wraps a function as a Stage for simple cases.
//
// Example:
//
//	st := pipeline.NewFuncStage("classify", []string{"summarize"},
//	    func(ctx context.Context, s *State) (pipeline.Update[*State], error) {
//	        codes := classifier.Classify(ctx, s.SummaryText)
//	        return func(s *State) { s.IPCCodes = codes }, nil
//	    })
type FuncStage[S any] struct {
	BaseStage
	fn func(context.Context, S) (Update[S], error)
}

// NewFuncStage creates a stage from a function.
func NewFuncStage[S any](
	name string,
	deps []string,
	fn func(context.Context, S) (Update[S], error),
) *FuncStage[S] {
	return &FuncStage[S]{
		BaseStage: BaseStage{
			StageName: name,
			StageDeps: deps,
		},
		fn: fn,
	}
}

// Run executes the wrapped function.
func (s *FuncStage[S]) Run(ctx context.Context, state S) (Update[S], error) {
	if s.fn == nil {
		return nil, ErrInvalidInput
	}
	return s.fn(ctx, state)
}

// WithTimeout sets the timeout for a FuncStage.
func (s *FuncStage[S]) WithTimeout(d time.Duration) *FuncStage[S] {
	s.StageTimeout = d
	return s
}

// gateStage marks the suspension point. It is scheduled like any other
// stage but never executed; the executor suspends instead.
type gateStage[S any] struct {
	BaseStage
}

// Run reports a wiring defect: the executor must suspend at the gate, not
// invoke it.
func (s *gateStage[S]) Run(_ context.Context, _ S) (Update[S], error) {
	return nil, ErrInvalidInput
}

// Transition is the outcome of routing a gate decision.
type Transition[S any] struct {
	// Apply is the state mutation carried by the decision (recording it,
	// substituting edited values, clearing stale fields). May be nil.
	Apply Update[S]

	// Resets names completed stages to unmark before continuing. A reset
	// of a stage upstream of the gate forms the back-edge; the gate itself
	// must be included so the run re-suspends there.
	Resets []string

	// Retry reports whether this decision consumes one attempt from the
	// retry budget.
	Retry bool
}

// Router interprets gate decisions for a particular graph.
//
// Description:
//
//	Route validates the decision against the current state and returns
//	the transition to perform. A malformed decision returns an error
//	wrapping ErrInvalidDecision; the executor then leaves the run
//	suspended so the caller can re-solicit.
type Router[S any] interface {
	Route(state S, decision any) (*Transition[S], error)
}
