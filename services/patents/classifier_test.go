// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassifyIPCWithoutServiceUsesStaticTable(t *testing.T) {
	c := NewHTTPClassifier("")

	codes, err := c.ClassifyIPC(context.Background(), "smart irrigation controller")
	if err != nil {
		t.Fatalf("ClassifyIPC() error = %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("len(codes) = %d, want 3", len(codes))
	}
	if codes[0].Category != "A01G25/16" || codes[0].Rank != 1 {
		t.Errorf("codes[0] = %+v, want A01G25/16 rank 1", codes[0])
	}

	// Mutating the result must not leak into later calls.
	codes[0].Category = "mutated"
	again, _ := c.ClassifyIPC(context.Background(), "x")
	if again[0].Category != "A01G25/16" {
		t.Errorf("static table mutated through returned slice")
	}
}

func TestClassifyIPCParsesServiceResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ipc/predict" {
			t.Errorf("path = %s, want /v1/ipc/predict", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["text"] == "" {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"category": "G06F17/30", "score": 0.91},
			{"category": "H04W4/02", "score": 0.55},
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)
	codes, err := c.ClassifyIPC(context.Background(), "geo-indexed document retrieval")
	if err != nil {
		t.Fatalf("ClassifyIPC() error = %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("len(codes) = %d, want 2", len(codes))
	}
	if codes[0].Category != "G06F17/30" || codes[0].Score != 0.91 || codes[0].Rank != 1 {
		t.Errorf("codes[0] = %+v", codes[0])
	}
	if codes[1].Rank != 2 {
		t.Errorf("codes[1].Rank = %d, want 2", codes[1].Rank)
	}
}

func TestClassifyIPCServiceErrorIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)
	if _, err := c.ClassifyIPC(context.Background(), "x"); !errors.Is(err, ErrClassifyFailed) {
		t.Errorf("err = %v, want ErrClassifyFailed", err)
	}
}
