// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// RunHit is one archived run matching a text query.
type RunHit struct {
	RunID          string   `json:"run_id"`
	Status         string   `json:"status"`
	InputText      string   `json:"input_text"`
	ProblemPurpose string   `json:"problem_purpose"`
	SeedKeywords   []string `json:"seed_keywords"`
	Attempts       int      `json:"attempts"`
}

// runQueryResponse mirrors the GraphQL Get shape for the PatentRun class.
type runQueryResponse struct {
	Get struct {
		PatentRun []RunHit `json:"PatentRun"`
	} `json:"Get"`
}

// SearchRuns finds archived runs whose text matches the query, scored
// by BM25 over the invention text, problem statement, and keywords.
func (a *Archiver) SearchRuns(ctx context.Context, query string, limit int) ([]RunHit, error) {
	if !a.Enabled() {
		return nil, fmt.Errorf("archive not configured")
	}
	if query == "" {
		return nil, fmt.Errorf("empty archive query")
	}
	if limit <= 0 {
		limit = 10
	}

	bm25 := (&graphql.BM25ArgumentBuilder{}).
		WithQuery(query).
		WithProperties("input_text", "problem_purpose", "seed_keywords")

	fields := []graphql.Field{
		{Name: "run_id"},
		{Name: "status"},
		{Name: "input_text"},
		{Name: "problem_purpose"},
		{Name: "seed_keywords"},
		{Name: "attempts"},
	}

	resp, err := a.client.GraphQL().Get().
		WithClassName("PatentRun").
		WithBM25(bm25).
		WithFields(fields...).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive query failed: %w", err)
	}

	parsed, err := parseGraphQLResponse[runQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive results: %w", err)
	}
	return parsed.Get.PatentRun, nil
}

// parseGraphQLResponse unmarshals a GraphQL response's Data payload into
// a typed result via a JSON round trip.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}
