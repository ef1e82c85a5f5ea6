// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry records per-run measurements in InfluxDB for
// longer-horizon analysis than the Prometheus counters provide.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/pipeline"
)

// Recorder writes run telemetry points. A nil Recorder is a no-op, so
// callers never need to branch on whether telemetry is configured.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// Config names the InfluxDB target. Any empty field disables telemetry.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// New builds a Recorder, or nil when the config is incomplete.
func New(cfg Config) *Recorder {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		slog.Info("InfluxDB telemetry disabled, configuration incomplete")
		return nil
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Close releases the underlying client.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.client.Close()
}

// RecordRun writes one point summarizing a terminal run. Write errors
// are logged, never propagated; telemetry must not fail a run.
func (r *Recorder) RecordRun(ctx context.Context, run *pipeline.Run[*extraction.State]) {
	if r == nil || run == nil {
		return
	}

	state := run.State
	keywordCount := 0
	if state.SeedKeywords != nil {
		keywordCount = len(state.SeedKeywords.Distinct())
	}
	p := influxdb2.NewPoint(
		"extraction_runs",
		map[string]string{
			"status": string(run.Status),
		},
		map[string]interface{}{
			"run_id":           run.ID,
			"attempts":         run.Attempts,
			"stages_completed": run.CompletedCount(),
			"seed_keywords":    keywordCount,
			"queries":          len(state.Queries),
			"discovered_urls":  len(state.DiscoveredURLs),
			"candidates":       len(state.CandidateDocuments),
			"duration_seconds": run.UpdatedAt.Sub(run.StartedAt).Seconds(),
		},
		time.Now(),
	)
	if err := r.writeAPI.WritePoint(ctx, p); err != nil {
		slog.Warn("Failed to write run telemetry point", "run_id", run.ID, "error", err)
	}
}
