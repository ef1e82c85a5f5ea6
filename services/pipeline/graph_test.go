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
	"context"
	"errors"
	"testing"
)

type countState struct {
	Ran []string `json:"ran"`
}

func noopStage(name string, deps ...string) Stage[*countState] {
	return NewFuncStage(name, deps,
		func(_ context.Context, _ *countState) (Update[*countState], error) {
			return func(s *countState) { s.Ran = append(s.Ran, name) }, nil
		})
}

type approveAllRouter struct{}

func (approveAllRouter) Route(_ *countState, _ any) (*Transition[*countState], error) {
	return &Transition[*countState]{}, nil
}

func TestBuilderLinearGraph(t *testing.T) {
	g, err := NewBuilder[*countState]("linear").
		AddStage(noopStage("a")).
		AddStage(noopStage("b", "a")).
		AddStage(noopStage("c", "b")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.StageCount() != 3 {
		t.Errorf("StageCount = %d, want 3", g.StageCount())
	}
	if g.Terminal() != "c" {
		t.Errorf("Terminal = %q, want c", g.Terminal())
	}
	if g.Gate() != "" {
		t.Errorf("Gate = %q, want empty", g.Gate())
	}
}

func TestBuilderExplicitTerminal(t *testing.T) {
	// Two sinks: "side" is predicate-guarded and must not be inferred
	// as the terminal.
	g, err := NewBuilder[*countState]("two-sinks").
		AddStage(noopStage("a")).
		AddStage(noopStage("side", "a")).
		AddStage(noopStage("end", "a")).
		Terminal("end").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Terminal() != "end" {
		t.Errorf("Terminal = %q, want end", g.Terminal())
	}
}

func TestBuilderUnknownTerminal(t *testing.T) {
	_, err := NewBuilder[*countState]("bad-terminal").
		AddStage(noopStage("a")).
		Terminal("nope").
		Build()
	if !errors.Is(err, ErrStageNotFound) {
		t.Errorf("err = %v, want ErrStageNotFound", err)
	}
}

func TestBuilderDetectsCycle(t *testing.T) {
	_, err := NewBuilder[*countState]("cyclic").
		AddStage(noopStage("a", "c")).
		AddStage(noopStage("b", "a")).
		AddStage(noopStage("c", "b")).
		Build()
	if err == nil {
		t.Fatal("Build succeeded on a cyclic graph")
	}
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Errorf("err = %v, want CycleError", err)
	}
}

func TestBuilderUnknownDependency(t *testing.T) {
	_, err := NewBuilder[*countState]("dangling").
		AddStage(noopStage("a", "ghost")).
		Build()
	if !errors.Is(err, ErrStageNotFound) {
		t.Errorf("err = %v, want ErrStageNotFound", err)
	}
}

func TestBuilderDuplicateStage(t *testing.T) {
	_, err := NewBuilder[*countState]("dup").
		AddStage(noopStage("a")).
		AddStage(noopStage("a")).
		Build()
	if !errors.Is(err, ErrDuplicateStage) {
		t.Errorf("err = %v, want ErrDuplicateStage", err)
	}
}

func TestBuilderSecondGateRejected(t *testing.T) {
	_, err := NewBuilder[*countState]("two-gates").
		AddStage(noopStage("a")).
		Gate("g1", []string{"a"}, approveAllRouter{}).
		Gate("g2", []string{"a"}, approveAllRouter{}).
		Build()
	if err == nil {
		t.Fatal("Build accepted two gates")
	}
}

func TestBuilderGateRequiresRouter(t *testing.T) {
	_, err := NewBuilder[*countState]("no-router").
		AddStage(noopStage("a")).
		Gate("g", []string{"a"}, nil).
		Build()
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuilderPredicateOnUnknownStage(t *testing.T) {
	_, err := NewBuilder[*countState]("bad-pred").
		AddStage(noopStage("a")).
		When("ghost", func(_ *countState, _ func(string) bool) bool { return true }).
		Build()
	if !errors.Is(err, ErrStageNotFound) {
		t.Errorf("err = %v, want ErrStageNotFound", err)
	}
}
