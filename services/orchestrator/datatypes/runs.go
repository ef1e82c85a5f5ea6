// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire types of the orchestrator HTTP API.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/patents"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StartRunRequest begins a new extraction run.
type StartRunRequest struct {
	// InputText is the invention description to search prior art for.
	InputText string `json:"input_text" validate:"required,min=20,max=50000"`
}

// Validate checks the request against its declared constraints.
func (r *StartRunRequest) Validate() error {
	return validate.Struct(r)
}

// DecisionRequest carries a checkpoint decision for a suspended run.
type DecisionRequest struct {
	// Action is one of approve, reject, edit.
	Action string `json:"action" validate:"required,oneof=approve reject edit"`

	// Feedback is free text for reject decisions.
	Feedback string `json:"feedback,omitempty" validate:"max=4000"`

	// EditedKeywords replaces the generated keyword lists on edit.
	EditedKeywords *extraction.SeedKeywords `json:"edited_keywords,omitempty"`
}

// Validate checks the request against its declared constraints and the
// domain rules for each action, so a malformed decision (an edit without
// all three keyword lists) is rejected before the run is touched.
func (r *DecisionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	return r.Decision().Validate()
}

// Decision converts the wire request into a domain decision.
func (r *DecisionRequest) Decision() extraction.Decision {
	return extraction.Decision{
		Action:         extraction.Action(r.Action),
		Feedback:       r.Feedback,
		EditedKeywords: r.EditedKeywords,
	}
}

// RunResponse is the API view of one run.
type RunResponse struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	CompletedCount int       `json:"completed_count"`
	FailedStage    string    `json:"failed_stage,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	State *extraction.State `json:"state,omitempty"`
}

// RunListResponse lists run summaries.
type RunListResponse struct {
	Runs []extraction.RunSummary `json:"runs"`
}

// ReviewResponse is what a reviewer sees when a run awaits a decision.
type ReviewResponse struct {
	RunID         string                    `json:"run_id"`
	ConceptMatrix *extraction.ConceptMatrix `json:"concept_matrix"`
	SeedKeywords  *extraction.SeedKeywords  `json:"seed_keywords"`
	Attempts      int                       `json:"attempts"`
	MaxAttempts   int                       `json:"max_attempts"`
}

// IPCPredictRequest asks for IPC predictions for free text.
type IPCPredictRequest struct {
	Text string `json:"text" validate:"required,min=10,max=50000"`
}

// Validate checks the request against its declared constraints.
func (r *IPCPredictRequest) Validate() error {
	return validate.Struct(r)
}

// IPCPredictResponse carries ranked IPC predictions.
type IPCPredictResponse struct {
	Codes []patents.IPCCode `json:"codes"`
}

// PatentExtractRequest asks for sectioned text of one patent document.
type PatentExtractRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// Validate checks the request against its declared constraints.
func (r *PatentExtractRequest) Validate() error {
	return validate.Struct(r)
}

// PatentExtractResponse carries the fetched document sections.
type PatentExtractResponse struct {
	URL         string `json:"url"`
	Abstract    string `json:"abstract"`
	Description string `json:"description"`
	Claims      string `json:"claims"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
