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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var braveTracer = otel.Tracer("patentscout.search.brave")

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// BraveClient queries the Brave web search API.
type BraveClient struct {
	httpClient *http.Client
	apiKey     *APIKey
	baseURL    string
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// NewBraveClient creates a Brave client. The key comes from the
// BRAVE_API_KEY environment variable (or the matching secrets file).
func NewBraveClient() (*BraveClient, error) {
	apiKey := APIKeyFromEnv("BRAVE_API_KEY")
	if !apiKey.IsSet() {
		return nil, fmt.Errorf("%w: BRAVE_API_KEY", ErrNoAPIKey)
	}
	slog.Info("Initializing Brave search client")
	return &BraveClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    defaultBraveURL,
	}, nil
}

// Search implements the Client interface.
func (b *BraveClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	ctx, span := braveTracer.Start(ctx, "BraveClient.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("search.max_results", maxResults))

	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))

	var results []Result
	err := b.apiKey.Use(func(key string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			b.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to create Brave request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", key)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("Brave API call failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read Brave response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("Brave returned status %d", resp.StatusCode)
		}

		var parsed braveResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to unmarshal Brave response: %w", err)
		}

		results = make([]Result, 0, len(parsed.Web.Results))
		for _, r := range parsed.Web.Results {
			results = append(results, Result{Content: r.Description, URL: r.URL})
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Brave search failed", "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.result_count", len(results)))
	return results, nil
}

var _ Client = (*BraveClient)(nil)
