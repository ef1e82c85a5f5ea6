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
	"os"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/PatentScout/services/orchestrator/datatypes"
	"github.com/AleutianAI/PatentScout/services/orchestrator/settings"
)

// GetSettings returns the current tunables plus which backend
// credentials are present, never the credentials themselves.
func GetSettings(watcher *settings.Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, settingsResponse(watcher.Current()))
	}
}

// UpdateSettings merges a partial update into the current settings and
// persists them through the watcher, so the change survives a restart
// and the hot-reload consumers fire.
func UpdateSettings(watcher *settings.Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SettingsUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		updated, err := watcher.Update(req.Apply(watcher.Current()))
		if err != nil {
			slog.Error("settings update failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to persist settings"})
			return
		}
		slog.Info("settings updated via API")
		c.JSON(http.StatusOK, settingsResponse(updated))
	}
}

func settingsResponse(s settings.Settings) datatypes.SettingsResponse {
	return datatypes.SettingsFromCurrent(s,
		os.Getenv("TAVILY_API_KEY") != "",
		os.Getenv("BRAVE_API_KEY") != "",
		os.Getenv("OPENAI_API_KEY") != "")
}
