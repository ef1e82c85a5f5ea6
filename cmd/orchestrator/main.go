// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the PatentScout HTTP server.
//
// This is the main entry point for the containerized service. It reads
// configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - PATENTSCOUT_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, openai (default: ollama)
//   - SEARCH_BACKEND_TYPE: search provider - tavily, brave, none (default: tavily)
//   - IPC_CLASSIFIER_URL: IPC classifier service URL (optional)
//   - PATENT_FETCHER_URL: patent document fetcher service URL (optional)
//   - RUN_STORE_PATH: Badger directory for run persistence (optional)
//   - WEAVIATE_SERVICE_URL: Weaviate URL for run archiving (optional)
//   - INFLUXDB_URL / INFLUXDB_TOKEN / INFLUXDB_ORG / INFLUXDB_BUCKET:
//     telemetry target (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
//     (default: patentscout-otel-collector:4317)
//   - SETTINGS_PATH: watched YAML settings file (default: ./patentscout.yaml)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/PatentScout/services/orchestrator"
	"github.com/AleutianAI/PatentScout/services/orchestrator/telemetry"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	searchBackend := getEnvString("SEARCH_BACKEND_TYPE", "tavily")
	if searchBackend == "none" {
		searchBackend = ""
	}
	cfg := orchestrator.Config{
		Port:          getEnvInt("PATENTSCOUT_PORT", 12310),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "ollama"),
		SearchBackend: searchBackend,
		ClassifierURL: os.Getenv("IPC_CLASSIFIER_URL"),
		FetcherURL:    os.Getenv("PATENT_FETCHER_URL"),
		StorePath:     os.Getenv("RUN_STORE_PATH"),
		WeaviateURL:   os.Getenv("WEAVIATE_SERVICE_URL"),
		InfluxDB: telemetry.Config{
			URL:    os.Getenv("INFLUXDB_URL"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		},
		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "patentscout-otel-collector:4317"),
		SettingsPath: getEnvString("SETTINGS_PATH", "./patentscout.yaml"),
	}

	slog.Info("Starting PatentScout",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"search_backend", cfg.SearchBackend,
		"store_path", cfg.StorePath,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
