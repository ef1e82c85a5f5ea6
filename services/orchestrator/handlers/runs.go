// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the orchestrator's HTTP endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/orchestrator/datatypes"
	"github.com/AleutianAI/PatentScout/services/orchestrator/observability"
	"github.com/AleutianAI/PatentScout/services/pipeline"
)

// runResponse converts a pipeline run to its API view. includeState
// controls whether the full domain state is attached.
func runResponse(run *pipeline.Run[*extraction.State], includeState bool) datatypes.RunResponse {
	resp := datatypes.RunResponse{
		ID:             run.ID,
		Status:         string(run.Status),
		Attempts:       run.Attempts,
		CompletedCount: run.CompletedCount(),
		FailedStage:    run.FailedStage,
		Error:          run.Error,
		StartedAt:      run.StartedAt,
		UpdatedAt:      run.UpdatedAt,
	}
	if includeState {
		resp.State = run.State
	}
	return resp
}

// StartRun begins a new extraction run. The request blocks until the run
// suspends at the checkpoint or reaches a terminal status.
func StartRun(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StartRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		if m := observability.Metrics(); m != nil {
			m.StartedTotal.Inc()
		}

		run, err := orch.Start(c.Request.Context(), req.InputText)
		if err != nil && run == nil {
			slog.Error("failed to start run", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to start run"})
			return
		}
		if m := observability.Metrics(); m != nil {
			observeStatus(m, run.Status)
		}

		slog.Info("run started", "run_id", run.ID, "status", string(run.Status))
		c.JSON(http.StatusCreated, runResponse(run, true))
	}
}

// GetRun returns the current state of a run.
func GetRun(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := orch.Status(c.Request.Context(), c.Param("runId"))
		if err != nil {
			respondLoadError(c, err)
			return
		}
		c.JSON(http.StatusOK, runResponse(run, true))
	}
}

// GetReview returns the artifacts a reviewer needs to decide a suspended
// run: the concept matrix, the seed keywords, and the retry position.
func GetReview(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := orch.Status(c.Request.Context(), c.Param("runId"))
		if err != nil {
			respondLoadError(c, err)
			return
		}
		if run.Status != pipeline.StatusAwaitingDecision {
			c.JSON(http.StatusConflict, datatypes.ErrorResponse{
				Error: "run is not awaiting a decision (status: " + string(run.Status) + ")",
			})
			return
		}

		c.JSON(http.StatusOK, datatypes.ReviewResponse{
			RunID:         run.ID,
			ConceptMatrix: run.State.ConceptMatrix,
			SeedKeywords:  run.State.SeedKeywords,
			Attempts:      run.Attempts,
			MaxAttempts:   orch.MaxAttempts(),
		})
	}
}

// PostDecision applies a checkpoint decision and drives the run onward.
// The request blocks until the run re-suspends or terminates.
func PostDecision(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.DecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			recordDecision("invalid")
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		var suspendedAt time.Time
		if before, err := orch.Status(c.Request.Context(), c.Param("runId")); err == nil {
			suspendedAt = before.UpdatedAt
		}

		run, err := orch.Resume(c.Request.Context(), c.Param("runId"), req.Decision())
		switch {
		case err == nil:
			recordDecision(req.Action)
			if m := observability.Metrics(); m != nil {
				// The run left the suspended state when the decision
				// was routed.
				m.SuspendedRuns.Dec()
				if !suspendedAt.IsZero() {
					m.ReviewLatencySeconds.Observe(time.Since(suspendedAt).Seconds())
				}
				observeStatus(m, run.Status)
			}
			slog.Info("decision applied",
				"run_id", run.ID,
				"action", req.Action,
				"status", string(run.Status))
			c.JSON(http.StatusOK, runResponse(run, true))

		case errors.Is(err, pipeline.ErrInvalidDecision):
			recordDecision("invalid")
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{Error: err.Error()})

		case errors.Is(err, pipeline.ErrRunFinished),
			errors.Is(err, pipeline.ErrNotAwaitingDecision):
			c.JSON(http.StatusConflict, datatypes.ErrorResponse{Error: err.Error()})

		case errors.Is(err, pipeline.ErrRunNotFound):
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "run not found"})

		default:
			slog.Error("resume failed", "run_id", c.Param("runId"), "error", err)
			if run != nil {
				c.JSON(http.StatusOK, runResponse(run, true))
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "resume failed"})
		}
	}
}

// CancelRun cancels a suspended run.
func CancelRun(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := orch.Cancel(c.Request.Context(), c.Param("runId"))
		if err != nil {
			if errors.Is(err, pipeline.ErrRunFinished) {
				c.JSON(http.StatusConflict, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
			respondLoadError(c, err)
			return
		}
		c.JSON(http.StatusOK, runResponse(run, false))
	}
}

// DeleteRun removes a run's record.
func DeleteRun(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := orch.Delete(c.Request.Context(), c.Param("runId")); err != nil {
			respondLoadError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "run_id": c.Param("runId")})
	}
}

// ListRuns lists all persisted runs.
func ListRuns(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := orch.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to list runs"})
			return
		}
		c.JSON(http.StatusOK, datatypes.RunListResponse{Runs: summaries})
	}
}

func respondLoadError(c *gin.Context, err error) {
	if errors.Is(err, pipeline.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "run not found"})
		return
	}
	slog.Error("failed to load run", "run_id", c.Param("runId"), "error", err)
	c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to load run"})
}

func recordDecision(action string) {
	if m := observability.Metrics(); m != nil {
		m.DecisionsTotal.WithLabelValues(action).Inc()
	}
}

func observeStatus(m *observability.RunMetrics, status pipeline.Status) {
	switch {
	case status == pipeline.StatusAwaitingDecision:
		m.SuspendedRuns.Inc()
	case status.Terminal():
		m.CompletedTotal.WithLabelValues(string(status)).Inc()
	}
}
