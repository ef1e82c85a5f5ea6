// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/orchestrator/datatypes"
)

// apiClient is a thin HTTP client for the orchestrator run API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// Post-decision drives the whole post-gate pipeline before
		// responding, so this needs generous headroom.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr datatypes.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

func (c *apiClient) startRun(ctx context.Context, inputText string) (*datatypes.RunResponse, error) {
	var run datatypes.RunResponse
	err := c.do(ctx, http.MethodPost, "/v1/runs",
		datatypes.StartRunRequest{InputText: inputText}, &run)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *apiClient) getRun(ctx context.Context, runID string) (*datatypes.RunResponse, error) {
	var run datatypes.RunResponse
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *apiClient) getReview(ctx context.Context, runID string) (*datatypes.ReviewResponse, error) {
	var review datatypes.ReviewResponse
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+runID+"/review", nil, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

func (c *apiClient) postDecision(ctx context.Context, runID string, decision extraction.Decision) (*datatypes.RunResponse, error) {
	req := datatypes.DecisionRequest{
		Action:         string(decision.Action),
		Feedback:       decision.Feedback,
		EditedKeywords: decision.EditedKeywords,
	}
	var run datatypes.RunResponse
	if err := c.do(ctx, http.MethodPost, "/v1/runs/"+runID+"/decision", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *apiClient) cancelRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/v1/runs/"+runID+"/cancel", nil, nil)
}

func (c *apiClient) deleteRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/runs/"+runID, nil, nil)
}

func (c *apiClient) listRuns(ctx context.Context) (*datatypes.RunListResponse, error) {
	var list datatypes.RunListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/runs", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
