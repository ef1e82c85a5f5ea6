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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for pipeline construction and execution.
// Wrap with fmt.Errorf("%w: ...") to add context; check with errors.Is.
var (
	// ErrInvalidInput indicates a nil or malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilContext indicates a nil context was passed to an executor method.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilStage indicates a nil stage was added to a builder.
	ErrNilStage = errors.New("stage must not be nil")

	// ErrDuplicateStage indicates two stages share a name.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrStageNotFound indicates a dependency references an unknown stage.
	ErrStageNotFound = errors.New("stage not found")

	// ErrGateUnset indicates a graph operation required a gate but none
	// was declared.
	ErrGateUnset = errors.New("graph has no gate")

	// ErrNoProgress indicates no stage is ready, running, or suspended
	// while the terminal stage is incomplete. This is a graph wiring
	// defect, not a transient condition.
	ErrNoProgress = errors.New("no progress possible")

	// ErrStageTimeout indicates a stage exceeded its timeout.
	ErrStageTimeout = errors.New("stage timeout")

	// ErrInvalidDecision indicates a gate decision that cannot be routed.
	// The run remains suspended; the caller should re-solicit.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrNotAwaitingDecision indicates Resume was called on a run that is
	// not suspended at the gate.
	ErrNotAwaitingDecision = errors.New("run is not awaiting a decision")

	// ErrRetriesExhausted indicates the gate's retry budget was consumed.
	ErrRetriesExhausted = errors.New("retry limit exceeded")

	// ErrInvariant indicates the domain state violated one of its declared
	// invariants at a merge point. This is a stage defect; the run aborts.
	ErrInvariant = errors.New("state invariant violated")

	// ErrRunNotFound indicates the run store has no record for the handle.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished indicates an operation on a run in a terminal status.
	ErrRunFinished = errors.New("run already finished")

	// ErrCheckpointCorrupt indicates a snapshot failed checksum verification.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	// ErrCheckpointVersionMismatch indicates a snapshot from an
	// incompatible format version.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// StageError wraps an error with the name of the stage that produced it.
type StageError struct {
	StageName string
	Err       error
}

// NewStageError creates a StageError.
func NewStageError(stage string, err error) *StageError {
	return &StageError{StageName: stage, Err: err}
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.StageName, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// CycleError reports a dependency cycle found during graph construction.
type CycleError struct {
	Path []string
}

// NewCycleError creates a CycleError from the offending path.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}
