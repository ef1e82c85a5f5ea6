// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"testing"
	"time"
)

type countingClient struct {
	calls int
}

func (c *countingClient) Search(_ context.Context, _ string, _ int) ([]Result, error) {
	c.calls++
	return []Result{{URL: "https://example.com/doc"}}, nil
}

func TestRateLimitPassesThrough(t *testing.T) {
	inner := &countingClient{}
	limited := WithRateLimit(inner, 100, 10)

	results, err := limited.Search(context.Background(), "irrigation controller", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || inner.calls != 1 {
		t.Errorf("results = %d, inner calls = %d, want 1 and 1", len(results), inner.calls)
	}
}

func TestRateLimitHonorsContextCancellation(t *testing.T) {
	inner := &countingClient{}
	// Burst of 1 at a very slow refill: the second call must wait.
	limited := WithRateLimit(inner, 0.001, 1)

	if _, err := limited.Search(context.Background(), "q", 1); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Search(ctx, "q", 1); err == nil {
		t.Error("second Search() error = nil, want context error from limiter")
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestRateLimitDefaults(t *testing.T) {
	limited := WithRateLimit(&countingClient{}, 0, 0)
	if limited.limiter.Burst() != 5 {
		t.Errorf("Burst = %d, want 5", limited.limiter.Burst())
	}
}
