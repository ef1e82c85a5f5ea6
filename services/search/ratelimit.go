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
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles queries to an inner Client. Keyword
// expansion fans out concurrently, so without a limiter a single run
// can burst well past a search provider's request quota.
//
// Thread Safety:
//
//	Safe for concurrent use.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// WithRateLimit wraps a client with a token-bucket limiter allowing
// rps requests per second with the given burst. Non-positive values
// fall back to 5 rps / burst 5.
func WithRateLimit(inner Client, rps float64, burst int) *RateLimitedClient {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Search implements the Client interface. It blocks until a token is
// available or the context is cancelled.
func (r *RateLimitedClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return r.inner.Search(ctx, query, maxResults)
}

var _ Client = (*RateLimitedClient)(nil)
