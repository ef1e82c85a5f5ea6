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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("patentscout.pipeline")
	meter  = otel.Meter("patentscout.pipeline")
)

// DefaultMaxAttempts bounds the gate's reject back-edge.
const DefaultMaxAttempts = 3

// Config tunes an Executor.
type Config[S any] struct {
	// MaxAttempts is the number of retry-consuming gate decisions
	// accepted before the run terminates with StatusRetriesExhausted.
	// Default: DefaultMaxAttempts.
	MaxAttempts int

	// Validate, if non-nil, is run against the state after every merge.
	// A returned error is treated as an invariant violation and fails
	// the run.
	Validate func(state S) error

	// Logger for execution logs. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Executor drives a Graph with parallelism, suspension, and observability.
//
// Description:
//
//	Executor repeatedly finds the frontier of ready stages (dependencies
//	complete, entry predicate true), runs the frontier concurrently, and
//	merges the returned updates under a single-writer barrier. When the
//	gate is the only ready stage and nothing else can run, execution
//	suspends: the run's status becomes StatusAwaitingDecision and control
//	returns to the caller, who later calls Resume with a decision.
//
// Thread Safety:
//
//	Executor is safe for concurrent use across distinct runs. A single
//	Run must not be driven by two calls at once.
type Executor[S any] struct {
	graph  *Graph[S]
	cfg    Config[S]
	logger *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	stageLatency  metric.Float64Histogram
	stageFailures metric.Int64Counter
	runLatency    metric.Float64Histogram
	activeStages  metric.Int64UpDownCounter
}

// NewExecutor creates an executor for the given graph.
func NewExecutor[S any](graph *Graph[S], cfg Config[S]) (*Executor[S], error) {
	if graph == nil {
		return nil, ErrInvalidInput
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor[S]{
		graph:  graph,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// initMetrics lazily initializes metrics. Metric creation failures
// degrade observability but never execution.
func (e *Executor[S]) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.stageLatency, err = meter.Float64Histogram("pipeline_stage_duration_seconds",
			metric.WithDescription("Time spent executing each pipeline stage"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_latency: "+err.Error())
		}

		e.stageFailures, err = meter.Int64Counter("pipeline_stage_failure_total",
			metric.WithDescription("Number of failed stage executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_failures: "+err.Error())
		}

		e.runLatency, err = meter.Float64Histogram("pipeline_run_duration_seconds",
			metric.WithDescription("Wall time of one Start or Resume drive"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		e.activeStages, err = meter.Int64UpDownCounter("pipeline_active_stages",
			metric.WithDescription("Number of currently executing stages"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_stages: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Start begins a new run and drives it until it suspends at the gate,
// completes, or fails.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	state - The initial domain state.
//
// Outputs:
//
//	*Run[S] - The run, in StatusAwaitingDecision, StatusDone, or a
//	          failure status. Never nil when error is nil.
//	error - Non-nil on structural failure or cancellation.
func (e *Executor[S]) Start(ctx context.Context, state S) (*Run[S], error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	e.initMetrics()
	run := NewRun(e.graph.Name(), state)

	ctx, span := tracer.Start(ctx, "pipeline.Start",
		trace.WithAttributes(
			attribute.String("pipeline.graph", e.graph.Name()),
			attribute.String("pipeline.run_id", run.ID),
			attribute.Int("pipeline.stage_count", e.graph.StageCount()),
		),
	)
	defer span.End()

	e.logger.Info("run started",
		slog.String("graph", e.graph.Name()),
		slog.String("run_id", run.ID),
		slog.Int("stages", e.graph.StageCount()),
	)

	err := e.drive(ctx, run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return run, err
	}

	span.SetStatus(codes.Ok, "")
	return run, nil
}

// Resume supplies a gate decision to a suspended run and drives it
// until the next suspension point or a terminal status.
//
// Description:
//
//	The decision is interpreted by the graph's Router. A malformed
//	decision leaves the run untouched in StatusAwaitingDecision and
//	returns an error wrapping ErrInvalidDecision so the caller can
//	re-solicit. A retry-consuming decision beyond the attempt budget
//	moves the run to StatusRetriesExhausted without error: exhaustion
//	is a distinct terminal outcome, not a fault.
func (e *Executor[S]) Resume(ctx context.Context, run *Run[S], decision any) error {
	if ctx == nil {
		return ErrNilContext
	}
	if run == nil {
		return fmt.Errorf("%w: run must not be nil", ErrInvalidInput)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrRunFinished, run.Status)
	}
	if run.Status != StatusAwaitingDecision {
		return fmt.Errorf("%w: status %s", ErrNotAwaitingDecision, run.Status)
	}
	if e.graph.Gate() == "" {
		return ErrGateUnset
	}

	e.initMetrics()

	ctx, span := tracer.Start(ctx, "pipeline.Resume",
		trace.WithAttributes(
			attribute.String("pipeline.graph", e.graph.Name()),
			attribute.String("pipeline.run_id", run.ID),
			attribute.Int("pipeline.attempts", run.Attempts),
		),
	)
	defer span.End()

	transition, err := e.graph.Router().Route(run.State, decision)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("decision rejected at gate",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	if transition.Apply != nil {
		transition.Apply(run.State)
	}
	if err := e.validate(run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if transition.Retry {
		run.Attempts++
		span.SetAttributes(attribute.Int("pipeline.attempts", run.Attempts))
		if run.Attempts >= e.cfg.MaxAttempts {
			run.Status = StatusRetriesExhausted
			run.Error = ErrRetriesExhausted.Error()
			run.touch()
			span.SetStatus(codes.Ok, "retry budget exhausted")
			e.logger.Warn("run exhausted retry budget",
				slog.String("run_id", run.ID),
				slog.Int("attempts", run.Attempts),
			)
			return nil
		}
	}

	// The gate completes on every routed decision; a reset that names
	// the gate re-arms it so the back-edge suspends there again.
	run.Completed[e.graph.Gate()] = true
	for _, name := range transition.Resets {
		delete(run.Completed, name)
	}
	run.Status = StatusRunning
	run.touch()

	e.logger.Info("run resumed",
		slog.String("run_id", run.ID),
		slog.Int("resets", len(transition.Resets)),
		slog.Bool("retry", transition.Retry),
	)

	if err := e.drive(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// drive advances the run until it suspends, completes, or fails.
func (e *Executor[S]) drive(ctx context.Context, run *Run[S]) error {
	start := time.Now()
	defer func() {
		if e.runLatency != nil {
			e.runLatency.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("graph", e.graph.Name())),
			)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			run.Status = StatusCancelled
			run.Error = ctx.Err().Error()
			run.touch()
			return ctx.Err()
		default:
		}

		if run.IsCompleted(e.graph.Terminal()) {
			run.Status = StatusDone
			run.CurrentStages = nil
			run.touch()
			e.logger.Info("run completed",
				slog.String("run_id", run.ID),
				slog.Int("stages_executed", run.CompletedCount()),
				slog.Duration("duration", time.Since(start)),
			)
			return nil
		}

		ready, gateReady := e.findReady(run)
		if len(ready) == 0 {
			if gateReady {
				run.Status = StatusAwaitingDecision
				run.CurrentStages = nil
				run.touch()
				e.logger.Info("run suspended at gate",
					slog.String("run_id", run.ID),
					slog.String("gate", e.graph.Gate()),
				)
				return nil
			}
			run.Status = StatusFailed
			run.Error = ErrNoProgress.Error()
			run.touch()
			return ErrNoProgress
		}

		if err := e.runFrontier(ctx, run, ready); err != nil {
			if ctx.Err() != nil {
				run.Status = StatusCancelled
				run.Error = ctx.Err().Error()
				run.CurrentStages = nil
				run.touch()
				return ctx.Err()
			}
			run.Status = StatusFailed
			run.Error = err.Error()
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				run.FailedStage = stageErr.StageName
			}
			run.CurrentStages = nil
			run.touch()
			e.logger.Error("run failed",
				slog.String("run_id", run.ID),
				slog.String("failed_stage", run.FailedStage),
				slog.String("error", err.Error()),
			)
			return err
		}
	}
}

// findReady returns the non-gate stages eligible to run, and whether the
// gate itself is eligible. The gate never joins the frontier: it only
// suspends the run once every other eligible stage has drained.
func (e *Executor[S]) findReady(run *Run[S]) ([]Stage[S], bool) {
	completed := run.IsCompleted
	ready := make([]Stage[S], 0)
	gateReady := false

	for _, name := range e.graph.StageNames() {
		if run.IsCompleted(name) {
			continue
		}

		depsComplete := true
		for _, dep := range e.graph.Deps(name) {
			if !run.IsCompleted(dep) {
				depsComplete = false
				break
			}
		}
		if !depsComplete {
			continue
		}

		if pred := e.graph.Predicate(name); pred != nil && !pred(run.State, completed) {
			continue
		}

		if name == e.graph.Gate() {
			gateReady = true
			continue
		}

		stage, _ := e.graph.Stage(name)
		ready = append(ready, stage)
	}

	return ready, gateReady
}

// runFrontier executes the ready stages concurrently and merges their
// updates sequentially once all have returned. Merging after the join is
// the single-writer barrier: no stage ever observes a peer's half-applied
// update, and a failed frontier merges nothing past the failure.
func (e *Executor[S]) runFrontier(ctx context.Context, run *Run[S], stages []Stage[S]) error {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	run.CurrentStages = names
	run.touch()

	type outcome struct {
		stage    string
		update   Update[S]
		err      error
		duration time.Duration
	}

	var wg sync.WaitGroup
	results := make(chan outcome, len(stages))

	for _, stage := range stages {
		wg.Add(1)
		go func(st Stage[S]) {
			defer wg.Done()
			start := time.Now()
			update, err := e.executeStage(ctx, run, st)
			results <- outcome{
				stage:    st.Name(),
				update:   update,
				err:      err,
				duration: time.Since(start),
			}
		}(stage)
	}

	wg.Wait()
	close(results)

	// Deterministic merge order: collect, then apply by frontier order.
	byName := make(map[string]outcome, len(stages))
	for res := range results {
		byName[res.stage] = res
	}

	var firstErr error
	for _, name := range names {
		res := byName[name]
		if res.err != nil {
			if firstErr == nil {
				firstErr = NewStageError(name, res.err)
			}
			continue
		}
		if res.update != nil {
			res.update(run.State)
			if err := e.validate(run); err != nil {
				return NewStageError(name, err)
			}
		}
		run.Completed[name] = true
	}

	run.CurrentStages = nil
	run.touch()
	return firstErr
}

// executeStage runs a single stage with timeout and tracing.
func (e *Executor[S]) executeStage(ctx context.Context, run *Run[S], stage Stage[S]) (Update[S], error) {
	ctx, span := tracer.Start(ctx, "pipeline.stage."+stage.Name(),
		trace.WithAttributes(
			attribute.String("pipeline.stage", stage.Name()),
			attribute.StringSlice("pipeline.deps", stage.Deps()),
			attribute.String("pipeline.run_id", run.ID),
		),
	)
	defer span.End()

	if e.activeStages != nil {
		e.activeStages.Add(ctx, 1)
		defer e.activeStages.Add(ctx, -1)
	}

	e.logger.Debug("stage starting",
		slog.String("stage", stage.Name()),
		slog.String("run_id", run.ID),
	)

	timeout := stage.Timeout()
	if timeout == 0 {
		timeout = DefaultStageTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	update, err := stage.Run(stageCtx, run.State)
	duration := time.Since(start)

	if e.stageLatency != nil {
		e.stageLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("stage", stage.Name())),
		)
	}

	if err != nil {
		if stageCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %s", ErrStageTimeout, stage.Name())
		}
		if e.stageFailures != nil {
			e.stageFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("stage", stage.Name())),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("stage failed",
			slog.String("stage", stage.Name()),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	e.logger.Info("stage completed",
		slog.String("stage", stage.Name()),
		slog.Duration("duration", duration),
	)
	return update, nil
}

// validate applies the configured invariant check.
func (e *Executor[S]) validate(run *Run[S]) error {
	if e.cfg.Validate == nil {
		return nil
	}
	if err := e.cfg.Validate(run.State); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return nil
}

// MaxAttempts returns the configured retry budget.
func (e *Executor[S]) MaxAttempts() int {
	return e.cfg.MaxAttempts
}

// Graph returns the executor's graph.
func (e *Executor[S]) Graph() *Graph[S] {
	return e.graph
}
