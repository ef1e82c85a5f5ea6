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
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// gateState is a minimal domain state for gate tests: the work stage
// appends to Ran, and the decision records itself.
type gateState struct {
	Ran      []string `json:"ran"`
	Decision string   `json:"decision,omitempty"`
	Rejects  int      `json:"rejects"`
}

// gateTestRouter accepts "approve" and "reject" strings; reject resets
// the work stage and the gate and consumes a retry.
type gateTestRouter struct{}

func (gateTestRouter) Route(_ *gateState, decision any) (*Transition[*gateState], error) {
	d, ok := decision.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidDecision, decision)
	}
	switch d {
	case "approve":
		return &Transition[*gateState]{
			Apply: func(s *gateState) { s.Decision = "approve" },
		}, nil
	case "reject":
		return &Transition[*gateState]{
			Apply: func(s *gateState) {
				s.Rejects++
				s.Decision = ""
			},
			Resets: []string{"work", "gate"},
			Retry:  true,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidDecision, d)
}

// gatedGraph builds: prep -> work -> gate -> after -> final, with a
// sidecar branch prep -> sidecar that joins at final.
func gatedGraph(t *testing.T) *Graph[*gateState] {
	t.Helper()
	record := func(name string, deps ...string) Stage[*gateState] {
		return NewFuncStage(name, deps,
			func(_ context.Context, _ *gateState) (Update[*gateState], error) {
				return func(s *gateState) { s.Ran = append(s.Ran, name) }, nil
			})
	}

	g, err := NewBuilder[*gateState]("gated").
		AddStage(record("prep")).
		AddStage(record("work", "prep")).
		AddStage(record("sidecar", "prep")).
		Gate("gate", []string{"work"}, gateTestRouter{}).
		AddStage(record("after", "gate")).
		AddStage(record("final", "after", "sidecar")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func newTestExecutor(t *testing.T, g *Graph[*gateState], maxAttempts int) *Executor[*gateState] {
	t.Helper()
	exec, err := NewExecutor(g, Config[*gateState]{MaxAttempts: maxAttempts})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	return exec
}

func TestStartRunsToCompletionWithoutGate(t *testing.T) {
	g, err := NewBuilder[*countState]("plain").
		AddStage(noopStage("a")).
		AddStage(noopStage("b", "a")).
		AddStage(noopStage("c", "b")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	exec, err := NewExecutor(g, Config[*countState]{})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	run, err := exec.Start(context.Background(), &countState{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != StatusDone {
		t.Errorf("Status = %s, want done", run.Status)
	}
	want := []string{"a", "b", "c"}
	if len(run.State.Ran) != len(want) {
		t.Fatalf("Ran = %v, want %v", run.State.Ran, want)
	}
	for i, name := range want {
		if run.State.Ran[i] != name {
			t.Errorf("Ran[%d] = %s, want %s", i, run.State.Ran[i], name)
		}
	}
}

func TestStartSuspendsAtGateAfterSiblingBranch(t *testing.T) {
	exec := newTestExecutor(t, gatedGraph(t), 3)

	run, err := exec.Start(context.Background(), &gateState{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != StatusAwaitingDecision {
		t.Fatalf("Status = %s, want awaiting_decision", run.Status)
	}
	// The sidecar branch must drain before the run suspends.
	if !run.IsCompleted("sidecar") {
		t.Error("sidecar not completed before suspension")
	}
	if run.IsCompleted("gate") {
		t.Error("gate marked completed while suspended")
	}
	if run.IsCompleted("after") {
		t.Error("post-gate stage ran before decision")
	}
}

func TestResumeApproveRunsToDone(t *testing.T) {
	exec := newTestExecutor(t, gatedGraph(t), 3)
	run, _ := exec.Start(context.Background(), &gateState{})

	if err := exec.Resume(context.Background(), run, "approve"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if run.Status != StatusDone {
		t.Errorf("Status = %s, want done", run.Status)
	}
	if run.State.Decision != "approve" {
		t.Errorf("Decision = %q, want approve", run.State.Decision)
	}
	if !run.IsCompleted("after") || !run.IsCompleted("final") {
		t.Error("post-gate stages incomplete after approve")
	}
}

func TestResumeInvalidDecisionLeavesRunSuspended(t *testing.T) {
	exec := newTestExecutor(t, gatedGraph(t), 3)
	run, _ := exec.Start(context.Background(), &gateState{})

	err := exec.Resume(context.Background(), run, "maybe")
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("err = %v, want ErrInvalidDecision", err)
	}
	if run.Status != StatusAwaitingDecision {
		t.Errorf("Status = %s, want awaiting_decision", run.Status)
	}
	if run.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", run.Attempts)
	}

	// A subsequent valid decision still works.
	if err := exec.Resume(context.Background(), run, "approve"); err != nil {
		t.Fatalf("Resume after invalid decision failed: %v", err)
	}
	if run.Status != StatusDone {
		t.Errorf("Status = %s, want done", run.Status)
	}
}

func TestRejectReentersAndResuspends(t *testing.T) {
	exec := newTestExecutor(t, gatedGraph(t), 3)
	run, _ := exec.Start(context.Background(), &gateState{})

	if err := exec.Resume(context.Background(), run, "reject"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if run.Status != StatusAwaitingDecision {
		t.Errorf("Status = %s, want awaiting_decision", run.Status)
	}
	if run.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", run.Attempts)
	}
	if run.State.Rejects != 1 {
		t.Errorf("Rejects = %d, want 1", run.State.Rejects)
	}

	// work ran again; prep and sidecar did not.
	workRuns, prepRuns := 0, 0
	for _, name := range run.State.Ran {
		switch name {
		case "work":
			workRuns++
		case "prep":
			prepRuns++
		}
	}
	if workRuns != 2 {
		t.Errorf("work ran %d times, want 2", workRuns)
	}
	if prepRuns != 1 {
		t.Errorf("prep ran %d times, want 1", prepRuns)
	}
}

func TestRejectBudgetExhaustion(t *testing.T) {
	exec := newTestExecutor(t, gatedGraph(t), 2)
	run, _ := exec.Start(context.Background(), &gateState{})

	if err := exec.Resume(context.Background(), run, "reject"); err != nil {
		t.Fatalf("first reject failed: %v", err)
	}
	if run.Status != StatusAwaitingDecision {
		t.Fatalf("Status = %s, want awaiting_decision", run.Status)
	}

	// The final reject terminates the run without error: exhaustion is
	// an outcome, not a fault.
	if err := exec.Resume(context.Background(), run, "reject"); err != nil {
		t.Fatalf("final reject returned error: %v", err)
	}
	if run.Status != StatusRetriesExhausted {
		t.Errorf("Status = %s, want retries_exhausted", run.Status)
	}
	if !run.Status.Terminal() {
		t.Error("retries_exhausted not terminal")
	}

	err := exec.Resume(context.Background(), run, "approve")
	if !errors.Is(err, ErrRunFinished) {
		t.Errorf("Resume on exhausted run: err = %v, want ErrRunFinished", err)
	}
}

func TestResumeOnRunningRun(t *testing.T) {
	exec := newTestExecutor(t, gatedGraph(t), 3)
	run := NewRun("gated", &gateState{})

	err := exec.Resume(context.Background(), run, "approve")
	if !errors.Is(err, ErrNotAwaitingDecision) {
		t.Errorf("err = %v, want ErrNotAwaitingDecision", err)
	}
}

func TestStageFailureFailsRun(t *testing.T) {
	boom := errors.New("collaborator exploded")
	g, err := NewBuilder[*countState]("failing").
		AddStage(noopStage("a")).
		AddStage(NewFuncStage("b", []string{"a"},
			func(_ context.Context, _ *countState) (Update[*countState], error) {
				return nil, boom
			})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	exec, _ := NewExecutor(g, Config[*countState]{})

	run, err := exec.Start(context.Background(), &countState{})
	if err == nil {
		t.Fatal("Start succeeded despite failing stage")
	}
	if run.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	if run.FailedStage != "b" {
		t.Errorf("FailedStage = %q, want b", run.FailedStage)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestStageTimeout(t *testing.T) {
	g, err := NewBuilder[*countState]("slow").
		AddStage(NewFuncStage("sleepy", nil,
			func(ctx context.Context, _ *countState) (Update[*countState], error) {
				select {
				case <-time.After(5 * time.Second):
					return nil, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}).WithTimeout(20 * time.Millisecond)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	exec, _ := NewExecutor(g, Config[*countState]{})

	run, err := exec.Start(context.Background(), &countState{})
	if !errors.Is(err, ErrStageTimeout) {
		t.Fatalf("err = %v, want ErrStageTimeout", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
}

func TestValidateFailureAbortsRun(t *testing.T) {
	g, err := NewBuilder[*countState]("invalid").
		AddStage(noopStage("a")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	exec, _ := NewExecutor(g, Config[*countState]{
		Validate: func(s *countState) error {
			if len(s.Ran) > 0 {
				return errors.New("ran list must stay empty")
			}
			return nil
		},
	})

	run, err := exec.Start(context.Background(), &countState{})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
}

func TestCancellationMarksRunCancelled(t *testing.T) {
	started := make(chan struct{})
	g, err := NewBuilder[*countState]("cancellable").
		AddStage(NewFuncStage("waiter", nil,
			func(ctx context.Context, _ *countState) (Update[*countState], error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}).WithTimeout(10 * time.Second)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	exec, _ := NewExecutor(g, Config[*countState]{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	run, err := exec.Start(ctx, &countState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if run.Status != StatusCancelled {
		t.Errorf("Status = %s, want cancelled", run.Status)
	}
}

func TestFrontierRunsBranchesConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	branch := func(name string) Stage[*countState] {
		return NewFuncStage(name, []string{"root"},
			func(_ context.Context, _ *countState) (Update[*countState], error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				inFlight.Add(-1)
				return func(s *countState) { s.Ran = append(s.Ran, name) }, nil
			})
	}

	g, err := NewBuilder[*countState]("diamond").
		AddStage(noopStage("root")).
		AddStage(branch("left")).
		AddStage(branch("right")).
		AddStage(noopStage("join", "left", "right")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	exec, _ := NewExecutor(g, Config[*countState]{})

	run, err := exec.Start(context.Background(), &countState{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != StatusDone {
		t.Errorf("Status = %s, want done", run.Status)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want >= 2", peak.Load())
	}
}
