// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/llm"
	"github.com/AleutianAI/PatentScout/services/orchestrator/archive"
	"github.com/AleutianAI/PatentScout/services/orchestrator/handlers"
	"github.com/AleutianAI/PatentScout/services/orchestrator/settings"
	"github.com/AleutianAI/PatentScout/services/patents"
	"github.com/AleutianAI/PatentScout/services/search"
)

// Collaborators bundles the backends the standalone (non-run)
// endpoints reach past the orchestrator for.
type Collaborators struct {
	Generator  llm.Generator
	Classifier patents.Classifier
	Fetcher    patents.Fetcher
	Search     search.Client
	Archiver   *archive.Archiver
	Settings   *settings.Watcher
}

// SetupRoutes registers all HTTP and websocket endpoints on the router.
//
// Inputs:
//   - router: the gin engine to register routes on.
//   - orch: the extraction orchestrator backing the run endpoints.
//   - co: collaborator backends for the standalone endpoints.
func SetupRoutes(router *gin.Engine, orch *extraction.Orchestrator, co Collaborators) {

	router.GET("/health", handlers.Health(co.Search))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handlers.StartRun(orch))
			runs.GET("", handlers.ListRuns(orch))
			runs.GET("/:runId", handlers.GetRun(orch))
			runs.GET("/:runId/review", handlers.GetReview(orch))
			runs.POST("/:runId/decision", handlers.PostDecision(orch))
			runs.POST("/:runId/cancel", handlers.CancelRun(orch))
			runs.DELETE("/:runId", handlers.DeleteRun(orch))
			runs.GET("/:runId/watch", handlers.WatchRun(orch))
		}
		v1.POST("/ipc/predict", handlers.PredictIPC(co.Classifier))
		v1.POST("/patent/extract", handlers.ExtractPatent(co.Fetcher))
		v1.POST("/similarity/evaluate", handlers.EvaluateSimilarity(co.Generator))
		v1.GET("/archive/search", handlers.SearchArchive(co.Archiver))
		v1.GET("/settings", handlers.GetSettings(co.Settings))
		v1.PUT("/settings", handlers.UpdateSettings(co.Settings))
	}
}
