// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/llm"
	"github.com/AleutianAI/PatentScout/services/orchestrator/archive"
	"github.com/AleutianAI/PatentScout/services/orchestrator/settings"
	"github.com/AleutianAI/PatentScout/services/patents"
	"github.com/AleutianAI/PatentScout/services/pipeline/store"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockGenerator is a minimal mock for llm.Generator
type mockGenerator struct{}

func (m *mockGenerator) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return "mock response", nil
}

func newTestOrchestrator(t *testing.T) *extraction.Orchestrator {
	t.Helper()
	runs := store.NewMemoryStore()
	t.Cleanup(func() { runs.Close() })

	orch, err := extraction.NewOrchestrator(
		extraction.Collaborators{Generator: &mockGenerator{}},
		runs,
		extraction.Config{},
	)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return orch
}

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := gin.New()

	watcher, err := settings.NewWatcher(filepath.Join(t.TempDir(), "patentscout.yaml"), nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(func() { watcher.Close() })

	// Should not panic when search client and external services are nil
	SetupRoutes(router, newTestOrchestrator(t), Collaborators{
		Generator:  &mockGenerator{},
		Classifier: patents.NewHTTPClassifier(""),
		Fetcher:    patents.NewHTTPFetcher(""),
		Archiver:   archive.New(nil),
		Settings:   watcher,
	})

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/runs"},
		{"GET", "/v1/runs"},
		{"GET", "/v1/runs/:runId"},
		{"GET", "/v1/runs/:runId/review"},
		{"POST", "/v1/runs/:runId/decision"},
		{"POST", "/v1/runs/:runId/cancel"},
		{"DELETE", "/v1/runs/:runId"},
		{"GET", "/v1/runs/:runId/watch"},
		{"POST", "/v1/ipc/predict"},
		{"POST", "/v1/patent/extract"},
		{"POST", "/v1/similarity/evaluate"},
		{"GET", "/v1/archive/search"},
		{"GET", "/v1/settings"},
		{"PUT", "/v1/settings"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}
