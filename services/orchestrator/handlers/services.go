// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/llm"
	"github.com/AleutianAI/PatentScout/services/orchestrator/archive"
	"github.com/AleutianAI/PatentScout/services/orchestrator/datatypes"
	"github.com/AleutianAI/PatentScout/services/patents"
	"github.com/AleutianAI/PatentScout/services/search"
)

// PredictIPC exposes the IPC classifier directly, outside any run.
func PredictIPC(classifier patents.Classifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IPCPredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		codes, err := classifier.ClassifyIPC(c.Request.Context(), req.Text)
		if err != nil {
			slog.Warn("classifier degraded to static predictions", "error", err)
			codes = patents.StaticPredictions()
		}
		c.JSON(http.StatusOK, datatypes.IPCPredictResponse{Codes: codes})
	}
}

// ExtractPatent fetches one patent document and returns its sections.
func ExtractPatent(fetcher patents.Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.PatentExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		doc, err := fetcher.Fetch(c.Request.Context(), req.URL)
		if err != nil {
			slog.Error("patent fetch failed", "url", req.URL, "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "failed to fetch patent document"})
			return
		}
		c.JSON(http.StatusOK, datatypes.PatentExtractResponse{
			URL:         req.URL,
			Abstract:    doc.Abstract,
			Description: doc.Description,
			Claims:      doc.Claims,
		})
	}
}

// EvaluateSimilarity scores a patent text against a query text with the
// run pipeline's relevance judges, outside any run.
func EvaluateSimilarity(gen llm.Generator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SimilarityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		sim, err := extraction.ScoreSimilarity(c.Request.Context(), gen, req.QueryText, req.PatentText)
		if err != nil {
			slog.Error("similarity evaluation failed", "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "similarity evaluation failed"})
			return
		}
		c.JSON(http.StatusOK, datatypes.SimilarityResponse{
			ScenarioScore: sim.ScenarioScore,
			ProblemScore:  sim.ProblemScore,
		})
	}
}

// SearchArchive queries archived runs by text. Without a configured
// archive backend the endpoint reports the feature unavailable.
func SearchArchive(archiver *archive.Archiver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !archiver.Enabled() {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "archive not configured"})
			return
		}
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "query parameter q is required"})
			return
		}

		hits, err := archiver.SearchRuns(c.Request.Context(), query, 10)
		if err != nil {
			slog.Error("archive search failed", "query", query, "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "archive search failed"})
			return
		}
		c.JSON(http.StatusOK, datatypes.ArchiveSearchResponse{Query: query, Runs: hits})
	}
}

// Health reports liveness plus the search breaker state when the search
// client carries one.
func Health(searchClient search.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if bc, ok := searchClient.(*search.BreakerClient); ok {
			resp["search_circuit"] = bc.State().String()
		}
		c.JSON(http.StatusOK, resp)
	}
}
