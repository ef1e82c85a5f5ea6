// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/PatentScout/services/orchestrator/datatypes"
)

// newTestService builds a service with in-memory persistence and no
// search backend. The LLM endpoint is unreachable, so every generation
// degrades; runs still flow through the whole pipeline.
func newTestService(t *testing.T) *service {
	t.Helper()
	t.Setenv("OLLAMA_BASE_URL", "http://127.0.0.1:1")

	svc, err := New(Config{
		GinMode:       gin.TestMode,
		SearchBackend: "",
		SettingsPath:  filepath.Join(t.TempDir(), "patentscout.yaml"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s := svc.(*service)
	t.Cleanup(s.cleanup)
	return s
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServiceRunLifecycle(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	// Start a run. With degraded generation it should still reach the
	// review checkpoint.
	w := doJSON(t, router, http.MethodPost, "/v1/runs", datatypes.StartRunRequest{
		InputText: "A soil moisture driven irrigation controller that schedules watering cycles.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start run: status = %d, body = %s", w.Code, w.Body.String())
	}
	var started datatypes.RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}
	if started.Status != "awaiting_decision" {
		t.Fatalf("run status = %q, want awaiting_decision", started.Status)
	}

	// The review payload exposes the material under review.
	w = doJSON(t, router, http.MethodGet, "/v1/runs/"+started.ID+"/review", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get review: status = %d, body = %s", w.Code, w.Body.String())
	}
	var review datatypes.ReviewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &review); err != nil {
		t.Fatalf("decoding review response: %v", err)
	}
	if review.ConceptMatrix == nil || review.SeedKeywords == nil {
		t.Fatalf("review payload incomplete: %+v", review)
	}

	// An invalid decision leaves the run suspended.
	w = doJSON(t, router, http.MethodPost, "/v1/runs/"+started.ID+"/decision",
		map[string]string{"action": "escalate"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid decision: status = %d, want 400", w.Code)
	}

	// Approval drives the run to completion.
	w = doJSON(t, router, http.MethodPost, "/v1/runs/"+started.ID+"/decision",
		datatypes.DecisionRequest{Action: "approve"})
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d, body = %s", w.Code, w.Body.String())
	}
	var finished datatypes.RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &finished); err != nil {
		t.Fatalf("decoding decision response: %v", err)
	}
	if finished.Status != "done" {
		t.Fatalf("final status = %q, want done", finished.Status)
	}

	// The run remains queryable after completion.
	w = doJSON(t, router, http.MethodGet, "/v1/runs/"+started.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get run: status = %d", w.Code)
	}
}

func TestServiceRejectsShortInput(t *testing.T) {
	s := newTestService(t)

	w := doJSON(t, s.Router(), http.MethodPost, "/v1/runs", datatypes.StartRunRequest{
		InputText: "too short",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestServiceEditDecisionWithoutKeywords(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodPost, "/v1/runs", datatypes.StartRunRequest{
		InputText: "A soil moisture driven irrigation controller that schedules watering cycles.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start run: status = %d, body = %s", w.Code, w.Body.String())
	}
	var started datatypes.RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}

	// An edit with no keyword lists is malformed input, rejected before
	// the run is touched.
	w = doJSON(t, router, http.MethodPost, "/v1/runs/"+started.ID+"/decision",
		datatypes.DecisionRequest{Action: "edit"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("edit without keywords: status = %d, want 400, body = %s", w.Code, w.Body.String())
	}

	// The run is still suspended and decidable.
	w = doJSON(t, router, http.MethodGet, "/v1/runs/"+started.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get run: status = %d", w.Code)
	}
	var current datatypes.RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &current); err != nil {
		t.Fatalf("decoding run response: %v", err)
	}
	if current.Status != "awaiting_decision" {
		t.Fatalf("status after rejected edit = %q, want awaiting_decision", current.Status)
	}
}

func TestServiceGetUnknownRun(t *testing.T) {
	s := newTestService(t)

	w := doJSON(t, s.Router(), http.MethodGet, "/v1/runs/no-such-run", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestServiceDecisionOnUnknownRun(t *testing.T) {
	s := newTestService(t)

	w := doJSON(t, s.Router(), http.MethodPost, "/v1/runs/no-such-run/decision",
		datatypes.DecisionRequest{Action: "approve"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestServiceHealth(t *testing.T) {
	s := newTestService(t)

	w := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("health status = %v, want ok", resp["status"])
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})
	if cfg.Port != 12310 {
		t.Errorf("Port = %d, want 12310", cfg.Port)
	}
	if cfg.LLMBackend != "ollama" {
		t.Errorf("LLMBackend = %q, want ollama", cfg.LLMBackend)
	}
	if cfg.SearchBackend != "tavily" {
		t.Errorf("SearchBackend = %q, want tavily", cfg.SearchBackend)
	}
	if cfg.SettingsPath == "" || cfg.OTelEndpoint == "" {
		t.Error("expected settings path and OTel endpoint defaults")
	}

	custom := applyConfigDefaults(Config{Port: 9999, LLMBackend: "openai"})
	if custom.Port != 9999 || custom.LLMBackend != "openai" {
		t.Errorf("custom values overridden: %+v", custom)
	}
}

func TestServiceSettingsEndpoints(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodGet, "/v1/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get settings: status = %d", w.Code)
	}
	var current datatypes.SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &current); err != nil {
		t.Fatalf("decoding settings response: %v", err)
	}
	if current.MaxQueries != 6 || current.MaxAttempts != 3 {
		t.Fatalf("default settings = %+v", current)
	}

	maxQueries := 9
	retention := "2h"
	w = doJSON(t, router, http.MethodPut, "/v1/settings", datatypes.SettingsUpdateRequest{
		MaxQueries:   &maxQueries,
		RunRetention: &retention,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update settings: status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated datatypes.SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding update response: %v", err)
	}
	if updated.MaxQueries != 9 || updated.RunRetention != "2h0m0s" {
		t.Fatalf("updated settings = %+v", updated)
	}
	// Untouched fields keep their values.
	if updated.ScoreWorkers != current.ScoreWorkers {
		t.Errorf("ScoreWorkers changed: %d -> %d", current.ScoreWorkers, updated.ScoreWorkers)
	}

	// Out-of-range values are rejected.
	bad := -1
	w = doJSON(t, router, http.MethodPut, "/v1/settings", datatypes.SettingsUpdateRequest{
		MaxQueries: &bad,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid update: status = %d, want 400", w.Code)
	}
}

func TestServiceArchiveSearchUnconfigured(t *testing.T) {
	s := newTestService(t)

	w := doJSON(t, s.Router(), http.MethodGet, "/v1/archive/search?q=irrigation", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestServiceSimilarityWithDegradedBackend(t *testing.T) {
	s := newTestService(t)

	w := doJSON(t, s.Router(), http.MethodPost, "/v1/similarity/evaluate", datatypes.SimilarityRequest{
		QueryText:  "Drip irrigation scheduling from soil moisture readings.",
		PatentText: "A sprinkler controller adjusting run time from rainfall sensors.",
	})
	// The test service has no reachable LLM; the endpoint must fail
	// cleanly rather than fabricate scores.
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502, body = %s", w.Code, w.Body.String())
	}
}

func TestServiceListRuns(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/v1/runs", datatypes.StartRunRequest{
			InputText: fmt.Sprintf("Invention description number %d with enough detail to pass validation.", i),
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("start run %d: status = %d", i, w.Code)
		}
	}

	w := doJSON(t, router, http.MethodGet, "/v1/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list runs: status = %d", w.Code)
	}
	var list datatypes.RunListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if len(list.Runs) != 2 {
		t.Fatalf("len(Runs) = %d, want 2", len(list.Runs))
	}
}
