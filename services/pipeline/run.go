// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	// StatusRunning means stages are executing or eligible to execute.
	StatusRunning Status = "running"

	// StatusAwaitingDecision means the run is suspended at the gate.
	StatusAwaitingDecision Status = "awaiting_decision"

	// StatusDone means the terminal stage completed.
	StatusDone Status = "done"

	// StatusFailed means a stage returned a structural error or a state
	// invariant was violated.
	StatusFailed Status = "failed"

	// StatusRetriesExhausted means the gate's retry budget was consumed
	// without reaching an accepting decision.
	StatusRetriesExhausted Status = "retries_exhausted"

	// StatusCancelled means the caller cancelled the run at a state
	// boundary.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further progress.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusRetriesExhausted, StatusCancelled:
		return true
	}
	return false
}

// Run is one execution of a Graph.
//
// Description:
//
//	Run carries the engine's bookkeeping (which stages completed, how
//	many retry attempts were consumed) alongside the domain state S.
//	A Run is owned by exactly one Executor call at a time; it is not
//	safe for concurrent mutation. Snapshot/Restore serialize a Run at
//	the suspension boundary so it can cross process restarts.
type Run[S any] struct {
	// ID is the opaque run handle returned to callers.
	ID string `json:"id"`

	// GraphName names the graph this run executes, checked on restore.
	GraphName string `json:"graph_name"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Attempts counts reject decisions consumed from the retry budget.
	Attempts int `json:"attempts"`

	// Completed marks stages that have finished and been merged.
	Completed map[string]bool `json:"completed"`

	// CurrentStages names the frontier being executed, empty when
	// suspended or terminal.
	CurrentStages []string `json:"current_stages,omitempty"`

	// FailedStage names the stage that failed, if any.
	FailedStage string `json:"failed_stage,omitempty"`

	// Error is the failure diagnostic, empty unless failed or cancelled.
	Error string `json:"error,omitempty"`

	// StartedAt is when the run was created (UTC).
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when the run last advanced (UTC).
	UpdatedAt time.Time `json:"updated_at"`

	// State is the domain state threaded through the stages.
	State S `json:"state"`
}

// NewRun creates a Run in StatusRunning with a fresh handle.
func NewRun[S any](graphName string, state S) *Run[S] {
	now := time.Now().UTC()
	return &Run[S]{
		ID:        uuid.NewString(),
		GraphName: graphName,
		Status:    StatusRunning,
		Completed: make(map[string]bool),
		StartedAt: now,
		UpdatedAt: now,
		State:     state,
	}
}

// IsCompleted reports whether the named stage has finished in this run.
func (r *Run[S]) IsCompleted(stage string) bool {
	return r.Completed[stage]
}

// CompletedCount returns the number of completed stages.
func (r *Run[S]) CompletedCount() int {
	return len(r.Completed)
}

// touch records forward progress.
func (r *Run[S]) touch() {
	r.UpdatedAt = time.Now().UTC()
}
