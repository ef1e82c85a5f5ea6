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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/PatentScout/services/pipeline"
	"github.com/AleutianAI/PatentScout/services/pipeline/store"
)

// GraphName identifies the extraction workflow in snapshots and logs.
const GraphName = "patent_extraction"

// NewGraph assembles the extraction stage graph.
//
// Description:
//
//	Two branches leave normalize: the extraction branch
//	(extract_concepts -> generate_keywords -> await_decision) and the
//	classification branch (summarize -> classify). The checkpoint gate
//	sits on the extraction branch only; classification proceeds during
//	review. Past the gate, apply_edit runs only on edit decisions and
//	expand_keywords waits for it via predicate, then both branches join
//	at build_queries and again at done.
func NewGraph(co Collaborators, opts Options) (*pipeline.Graph[*State], error) {
	ss := &stageSet{co: co, opts: opts.withDefaults()}

	editChosen := func(s *State, _ func(string) bool) bool {
		return s.Decision != nil && s.Decision.Action == ActionEdit
	}
	readyToExpand := func(s *State, completed func(string) bool) bool {
		if !s.accepted() {
			return false
		}
		if s.Decision.Action == ActionEdit {
			return completed(StageApplyEdit)
		}
		return true
	}

	return pipeline.NewBuilder[*State](GraphName).
		AddStage(ss.normalize()).
		AddStage(ss.extractConcepts()).
		AddStage(ss.generateKeywords()).
		AddStage(ss.summarize()).
		AddStage(ss.classify()).
		Gate(StageAwaitDecision, []string{StageGenerateKeywords}, decisionRouter{}).
		AddStage(ss.applyEdit()).
		When(StageApplyEdit, editChosen).
		AddStage(ss.expandKeywords()).
		When(StageExpandKeywords, readyToExpand).
		AddStage(ss.buildQueries()).
		AddStage(ss.discoverDocuments()).
		AddStage(ss.scoreDocuments()).
		AddStage(doneStage()).
		Terminal(StageDone).
		Build()
}

// Config tunes an Orchestrator.
type Config struct {
	// MaxAttempts bounds the gate's reject back-edge.
	MaxAttempts int

	// Options tune the stages.
	Options Options

	// Logger for workflow logs. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnFinish, if set, is called after a run reaches a terminal
	// status and has been persisted. It runs on the caller's
	// goroutine, so it should return quickly or hand off.
	OnFinish func(*pipeline.Run[*State])
}

// Orchestrator is the public face of the extraction workflow: it runs
// the pipeline, persists suspended and finished runs, and resumes them
// across process restarts.
//
// Thread Safety:
//
//	Safe for concurrent use across distinct run IDs. Concurrent calls
//	against the same run ID race on the store record; the last write
//	wins.
type Orchestrator struct {
	exec     *pipeline.Executor[*State]
	runs     store.RunStore
	logger   *slog.Logger
	onFinish func(*pipeline.Run[*State])
}

// NewOrchestrator wires the workflow over a run store.
func NewOrchestrator(co Collaborators, runs store.RunStore, cfg Config) (*Orchestrator, error) {
	if runs == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Options.Logger = cfg.Logger

	graph, err := NewGraph(co, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("building extraction graph: %w", err)
	}

	exec, err := pipeline.NewExecutor(graph, pipeline.Config[*State]{
		MaxAttempts: cfg.MaxAttempts,
		Validate:    func(s *State) error { return s.Validate() },
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		exec:     exec,
		runs:     runs,
		logger:   cfg.Logger,
		onFinish: cfg.OnFinish,
	}, nil
}

// notifyFinish invokes the completion hook for terminal runs.
func (o *Orchestrator) notifyFinish(run *pipeline.Run[*State]) {
	if o.onFinish == nil || run == nil || !run.Status.Terminal() {
		return
	}
	o.onFinish(run)
}

// Start begins a new extraction run and drives it to the checkpoint (or
// a terminal status if it fails before reaching it). The returned run is
// already persisted.
func (o *Orchestrator) Start(ctx context.Context, inputText string) (*pipeline.Run[*State], error) {
	if inputText == "" {
		return nil, fmt.Errorf("%w: input text must not be empty", pipeline.ErrInvalidInput)
	}

	run, err := o.exec.Start(ctx, NewState(inputText))
	if run != nil {
		if perr := o.persist(ctx, run); perr != nil {
			o.logger.Error("failed to persist run",
				slog.String("run_id", run.ID),
				slog.String("error", perr.Error()))
		}
		o.notifyFinish(run)
	}
	return run, err
}

// Resume applies a checkpoint decision to a suspended run and drives it
// onward. An invalid decision leaves the run suspended and returns an
// error wrapping pipeline.ErrInvalidDecision.
func (o *Orchestrator) Resume(ctx context.Context, runID string, decision Decision) (*pipeline.Run[*State], error) {
	run, err := o.load(ctx, runID)
	if err != nil {
		return nil, err
	}

	resumeErr := o.exec.Resume(ctx, run, decision)
	if resumeErr != nil && errors.Is(resumeErr, pipeline.ErrInvalidDecision) {
		// Nothing moved; the stored snapshot is still current.
		return run, resumeErr
	}

	if perr := o.persist(ctx, run); perr != nil {
		o.logger.Error("failed to persist run",
			slog.String("run_id", run.ID),
			slog.String("error", perr.Error()))
	}
	o.notifyFinish(run)
	return run, resumeErr
}

// Status returns the persisted run.
func (o *Orchestrator) Status(ctx context.Context, runID string) (*pipeline.Run[*State], error) {
	return o.load(ctx, runID)
}

// Cancel marks a suspended run cancelled. Runs in a terminal status are
// left alone; a run actively driving can only be cancelled through its
// context.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) (*pipeline.Run[*State], error) {
	run, err := o.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, fmt.Errorf("%w: status %s", pipeline.ErrRunFinished, run.Status)
	}

	run.Status = pipeline.StatusCancelled
	run.Error = context.Canceled.Error()
	run.UpdatedAt = time.Now().UTC()
	if perr := o.persist(ctx, run); perr != nil {
		return run, perr
	}
	return run, nil
}

// Delete removes a run's record.
func (o *Orchestrator) Delete(ctx context.Context, runID string) error {
	err := o.runs.Delete(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", pipeline.ErrRunNotFound, runID)
	}
	return err
}

// List returns summaries of all persisted runs.
func (o *Orchestrator) List(ctx context.Context) ([]RunSummary, error) {
	records, err := o.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]RunSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, RunSummary{
			ID:        rec.ID,
			Status:    pipeline.Status(rec.Status),
			StartedAt: rec.StartedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return summaries, nil
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID        string          `json:"id"`
	Status    pipeline.Status `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Run drives one extraction end to end, soliciting checkpoint decisions
// from the provider until the run reaches a terminal status. This is the
// CLI's synchronous path; service callers use Start/Resume instead.
func (o *Orchestrator) Run(ctx context.Context, inputText string, provider DecisionProvider) (*pipeline.Run[*State], error) {
	run, err := o.Start(ctx, inputText)
	if err != nil {
		return run, err
	}

	for run.Status == pipeline.StatusAwaitingDecision {
		decision, err := provider.Decide(ctx, DecisionContext{
			RunID:         run.ID,
			ConceptMatrix: *run.State.ConceptMatrix,
			SeedKeywords:  *run.State.SeedKeywords,
			Attempts:      run.Attempts,
			MaxAttempts:   o.exec.MaxAttempts(),
		})
		if err != nil {
			return run, fmt.Errorf("checkpoint decision: %w", err)
		}

		run, err = o.Resume(ctx, run.ID, decision)
		if err != nil {
			if errors.Is(err, pipeline.ErrInvalidDecision) {
				o.logger.Warn("invalid decision, re-soliciting",
					slog.String("run_id", run.ID),
					slog.String("error", err.Error()))
				continue
			}
			return run, err
		}
	}
	return run, nil
}

// MaxAttempts returns the configured retry budget.
func (o *Orchestrator) MaxAttempts() int {
	return o.exec.MaxAttempts()
}

// persist snapshots the run into the store.
func (o *Orchestrator) persist(ctx context.Context, run *pipeline.Run[*State]) error {
	snapshot, err := pipeline.Snapshot(run)
	if err != nil {
		return err
	}
	return o.runs.Put(ctx, store.Record{
		ID:        run.ID,
		Status:    string(run.Status),
		StartedAt: run.StartedAt,
		UpdatedAt: run.UpdatedAt,
		Snapshot:  snapshot,
	})
}

// load restores the run from its stored snapshot. A missing record
// surfaces as pipeline.ErrRunNotFound, so callers never depend on the
// store's own sentinel.
func (o *Orchestrator) load(ctx context.Context, runID string) (*pipeline.Run[*State], error) {
	rec, err := o.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", pipeline.ErrRunNotFound, runID)
		}
		return nil, err
	}
	return pipeline.Restore[*State](rec.Snapshot, GraphName)
}
