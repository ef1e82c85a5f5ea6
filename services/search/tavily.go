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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tavilyTracer = otel.Tracer("patentscout.search.tavily")

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyClient queries the Tavily search API.
type TavilyClient struct {
	httpClient *http.Client
	apiKey     *APIKey
	baseURL    string
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// NewTavilyClient creates a Tavily client. The key comes from the
// TAVILY_API_KEY environment variable (or the matching secrets file).
func NewTavilyClient() (*TavilyClient, error) {
	apiKey := APIKeyFromEnv("TAVILY_API_KEY")
	if !apiKey.IsSet() {
		return nil, fmt.Errorf("%w: TAVILY_API_KEY", ErrNoAPIKey)
	}
	slog.Info("Initializing Tavily search client")
	return &TavilyClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    defaultTavilyURL,
	}, nil
}

// Search implements the Client interface.
func (t *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	ctx, span := tavilyTracer.Start(ctx, "TavilyClient.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("search.max_results", maxResults))

	if maxResults <= 0 {
		maxResults = 5
	}

	var results []Result
	err := t.apiKey.Use(func(key string) error {
		payload := tavilyRequest{
			APIKey:     key,
			Query:      query,
			MaxResults: maxResults,
		}
		reqBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal Tavily request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL,
			bytes.NewBuffer(reqBody))
		if err != nil {
			return fmt.Errorf("failed to create Tavily request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("Tavily API call failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read Tavily response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("Tavily returned status %d", resp.StatusCode)
		}

		var parsed tavilyResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to unmarshal Tavily response: %w", err)
		}

		results = make([]Result, 0, len(parsed.Results))
		for _, r := range parsed.Results {
			results = append(results, Result{Content: r.Content, URL: r.URL})
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Tavily search failed", "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.result_count", len(results)))
	return results, nil
}

var _ Client = (*TavilyClient)(nil)
