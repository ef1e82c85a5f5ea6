// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// extractJSON finds the outermost JSON object in a model response.
// Models wrap payloads in prose and code fences often enough that
// unmarshaling the raw response directly is a losing game.
func extractJSON(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no valid JSON found in response")
	}
	return response[start : end+1], nil
}

// parseConceptResponse parses the concept extraction payload, falling
// back to line-based recovery when the JSON is malformed.
func parseConceptResponse(response string) (*ConceptMatrix, error) {
	if jsonStr, err := extractJSON(response); err == nil {
		var matrix ConceptMatrix
		if err := json.Unmarshal([]byte(jsonStr), &matrix); err == nil {
			if matrix.ProblemPurpose != "" && matrix.ObjectSystem != "" && matrix.EnvironmentField != "" {
				return &matrix, nil
			}
		}
	}

	// Line-based fallback: "Problem/Purpose: ..." style responses.
	matrix := ConceptMatrix{}
	for _, line := range strings.Split(response, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch {
		case strings.Contains(key, "problem") || strings.Contains(key, "purpose"):
			matrix.ProblemPurpose = value
		case strings.Contains(key, "object") || strings.Contains(key, "system"):
			matrix.ObjectSystem = value
		case strings.Contains(key, "environment") || strings.Contains(key, "field"):
			matrix.EnvironmentField = value
		}
	}

	if matrix.ProblemPurpose == "" || matrix.ObjectSystem == "" || matrix.EnvironmentField == "" {
		return nil, fmt.Errorf("could not recover a complete concept matrix from response")
	}
	return &matrix, nil
}

// parseKeywordResponse parses the keyword generation payload. A partial
// result is normalized so every list is non-nil.
func parseKeywordResponse(response string) (*SeedKeywords, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var keywords SeedKeywords
	if err := json.Unmarshal([]byte(jsonStr), &keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keyword JSON: %w", err)
	}

	if keywords.ProblemPurpose == nil {
		keywords.ProblemPurpose = []string{}
	}
	if keywords.ObjectSystem == nil {
		keywords.ObjectSystem = []string{}
	}
	if keywords.EnvironmentField == nil {
		keywords.EnvironmentField = []string{}
	}
	return &keywords, nil
}

// keywordsFromMatrix derives a degraded keyword set directly from the
// concept matrix when the generation backend's payload is unusable.
func keywordsFromMatrix(matrix *ConceptMatrix) *SeedKeywords {
	return &SeedKeywords{
		ProblemPurpose:   significantWords(matrix.ProblemPurpose),
		ObjectSystem:     significantWords(matrix.ObjectSystem),
		EnvironmentField: significantWords(matrix.EnvironmentField),
	}
}

// stopWords are skipped when deriving keywords from prose.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "by": true, "for": true,
	"from": true, "in": true, "is": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "through": true, "to": true,
	"using": true, "via": true, "while": true, "with": true,
}

// significantWords returns up to six lowercase content words.
func significantWords(text string) []string {
	words := make([]string, 0, 6)
	seen := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(field, ".,;:()[]\"'")
		if len(word) < 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
		if len(words) == 6 {
			break
		}
	}
	return words
}

// parseTermsResponse parses a synonym expansion payload.
func parseTermsResponse(response string) ([]string, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var result struct {
		Terms []string `json:"terms"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal terms JSON: %w", err)
	}

	terms := make([]string, 0, len(result.Terms))
	seen := make(map[string]bool)
	for _, t := range result.Terms {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms, nil
}

// parseQueriesResponse parses a query generation payload.
func parseQueriesResponse(response string) ([]string, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var result struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queries JSON: %w", err)
	}
	if len(result.Queries) == 0 {
		return nil, fmt.Errorf("no queries in response")
	}
	return result.Queries, nil
}

// parseScoreResponse parses a relevance judgment, clamped to [0, 1].
// Falls back to the first number in the response when the JSON shape is
// off, which small models produce regularly.
func parseScoreResponse(response string) (float64, error) {
	if jsonStr, err := extractJSON(response); err == nil {
		var result struct {
			Score float64 `json:"score"`
		}
		if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
			return clampScore(result.Score), nil
		}
	}

	for _, field := range strings.Fields(response) {
		field = strings.Trim(field, ".,;:()")
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return clampScore(v), nil
		}
	}
	return 0, fmt.Errorf("no score found in response")
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
