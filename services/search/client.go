// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search provides web-search capability clients for the pipeline.
//
// Two HTTP backends are supported (Tavily and Brave), both behind a
// circuit breaker so a failing provider fails fast instead of stalling
// fan-out batches. API keys are held in memguard enclaves and only
// decrypted for the duration of one request.
package search

import (
	"context"
	"errors"
)

// ErrNoAPIKey indicates the backend's API key was not configured.
var ErrNoAPIKey = errors.New("search API key not configured")

// Result is one search hit.
type Result struct {
	// Content is the snippet or page excerpt returned by the provider.
	Content string `json:"content"`

	// URL is the result location.
	URL string `json:"url"`
}

// Client defines the standard interface for any search backend.
type Client interface {
	// Search runs a query and returns up to maxResults hits.
	// An empty result list is a valid outcome, not an error.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
