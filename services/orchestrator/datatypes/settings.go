// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/AleutianAI/PatentScout/services/orchestrator/settings"
)

// SettingsResponse is the API view of the runtime tunables, plus
// presence flags for the credentialed backends.
type SettingsResponse struct {
	MaxQueries         int    `json:"max_queries"`
	SnippetsPerKeyword int    `json:"snippets_per_keyword"`
	ResultsPerQuery    int    `json:"results_per_query"`
	ExpandWorkers      int    `json:"expand_workers"`
	ScoreWorkers       int    `json:"score_workers"`
	MaxAttempts        int    `json:"max_attempts"`
	RunRetention       string `json:"run_retention"`

	TavilyKeySet bool `json:"tavily_key_set"`
	BraveKeySet  bool `json:"brave_key_set"`
	OpenAIKeySet bool `json:"openai_key_set"`
}

// SettingsFromCurrent builds a response from loaded settings.
func SettingsFromCurrent(s settings.Settings, tavily, brave, openai bool) SettingsResponse {
	return SettingsResponse{
		MaxQueries:         s.MaxQueries,
		SnippetsPerKeyword: s.SnippetsPerKeyword,
		ResultsPerQuery:    s.ResultsPerQuery,
		ExpandWorkers:      s.ExpandWorkers,
		ScoreWorkers:       s.ScoreWorkers,
		MaxAttempts:        s.MaxAttempts,
		RunRetention:       s.RunRetention.String(),
		TavilyKeySet:       tavily,
		BraveKeySet:        brave,
		OpenAIKeySet:       openai,
	}
}

// SettingsUpdateRequest changes a subset of the tunables. Omitted
// fields keep their current values.
type SettingsUpdateRequest struct {
	MaxQueries         *int    `json:"max_queries,omitempty" validate:"omitempty,min=1,max=20"`
	SnippetsPerKeyword *int    `json:"snippets_per_keyword,omitempty" validate:"omitempty,min=1,max=10"`
	ResultsPerQuery    *int    `json:"results_per_query,omitempty" validate:"omitempty,min=1,max=50"`
	ExpandWorkers      *int    `json:"expand_workers,omitempty" validate:"omitempty,min=1,max=32"`
	ScoreWorkers       *int    `json:"score_workers,omitempty" validate:"omitempty,min=1,max=32"`
	MaxAttempts        *int    `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	RunRetention       *string `json:"run_retention,omitempty"`
}

// Validate checks the request against its declared constraints.
func (r *SettingsUpdateRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.RunRetention != nil {
		if _, err := time.ParseDuration(*r.RunRetention); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the update onto existing settings.
func (r *SettingsUpdateRequest) Apply(s settings.Settings) settings.Settings {
	if r.MaxQueries != nil {
		s.MaxQueries = *r.MaxQueries
	}
	if r.SnippetsPerKeyword != nil {
		s.SnippetsPerKeyword = *r.SnippetsPerKeyword
	}
	if r.ResultsPerQuery != nil {
		s.ResultsPerQuery = *r.ResultsPerQuery
	}
	if r.ExpandWorkers != nil {
		s.ExpandWorkers = *r.ExpandWorkers
	}
	if r.ScoreWorkers != nil {
		s.ScoreWorkers = *r.ScoreWorkers
	}
	if r.MaxAttempts != nil {
		s.MaxAttempts = *r.MaxAttempts
	}
	if r.RunRetention != nil {
		d, _ := time.ParseDuration(*r.RunRetention)
		s.RunRetention = d
	}
	return s
}
