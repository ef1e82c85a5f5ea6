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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// watchPollInterval is how often the watcher re-reads the run store.
const watchPollInterval = 500 * time.Millisecond

// runEvent is one status update pushed to a watching client.
type runEvent struct {
	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	CompletedCount int    `json:"completed_count"`
	Error          string `json:"error,omitempty"`
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// WatchRun streams run status changes over a websocket until the run
// reaches a terminal status or the client disconnects. An event is sent
// immediately on connect and then on every observed change.
func WatchRun(orch *extraction.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("runId")

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("run watcher connected", "run_id", runID)

		// Reads are discarded; the read loop only detects disconnects.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()

		var last runEvent
		for {
			run, err := orch.Status(c.Request.Context(), runID)
			if err != nil {
				sendJSON(ws, gin.H{"error": "run not found", "run_id": runID})
				return
			}

			event := runEvent{
				RunID:          run.ID,
				Status:         string(run.Status),
				Attempts:       run.Attempts,
				CompletedCount: run.CompletedCount(),
				Error:          run.Error,
			}
			if event != last {
				if sendJSON(ws, event) != nil {
					return
				}
				last = event
			}
			if pipeline.Status(event.Status).Terminal() {
				slog.Info("run watcher finished", "run_id", runID, "status", event.Status)
				return
			}

			select {
			case <-ticker.C:
			case <-done:
				slog.Info("run watcher disconnected", "run_id", runID)
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}
