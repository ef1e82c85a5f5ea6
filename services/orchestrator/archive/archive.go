// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive persists completed extraction runs to Weaviate so
// prior searches remain queryable after the run store sweeps them.
package archive

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/pipeline"
)

// GetPatentRunSchema returns the class definition for archived runs.
func GetPatentRunSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "PatentRun",
		Description: "A completed prior-art extraction run.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "run_id",
				DataType:        []string{"text"},
				Description:     "The pipeline run identifier.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "status",
				DataType:        []string{"text"},
				Description:     "Terminal status of the run.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "input_text",
				DataType:     []string{"text"},
				Description:  "The invention description the run started from.",
				Tokenization: "word",
			},
			{
				Name:         "problem_purpose",
				DataType:     []string{"text"},
				Description:  "Normalized problem statement.",
				Tokenization: "word",
			},
			{
				Name:         "technical_field",
				DataType:     []string{"text"},
				Description:  "Normalized technical field.",
				Tokenization: "word",
			},
			{
				Name:        "seed_keywords",
				DataType:    []string{"text[]"},
				Description: "Approved seed keywords across all categories.",
			},
			{
				Name:        "queries",
				DataType:    []string{"text[]"},
				Description: "Boolean queries composed for discovery.",
			},
			{
				Name:            "attempts",
				DataType:        []string{"int"},
				Description:     "How many reject cycles the review checkpoint saw.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "archived_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the run was archived.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetPriorArtSchema returns the class definition for scored candidates.
func GetPriorArtSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "PriorArtCandidate",
		Description: "A scored prior-art document from an extraction run.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "run_id",
				DataType:        []string{"text"},
				Description:     "The run this candidate was discovered by.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "url",
				DataType:        []string{"text"},
				Description:     "Source URL of the patent document.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "scenario_score",
				DataType:        []string{"number"},
				Description:     "Relevance of the document scenario to the invention.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "problem_score",
				DataType:        []string{"number"},
				Description:     "Relevance of the document to the stated problem.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the archive classes if they do not exist yet.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetPatentRunSchema,
		GetPriorArtSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			slog.Info("Archive schema already exists", "class", class.Class)
			continue
		}
		slog.Info("Archive schema not found, creating it", "class", class.Class)
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
		}
	}
	return nil
}

// Archiver writes finished runs into Weaviate. A nil Archiver (or one
// built over a nil client) disables archiving without error.
type Archiver struct {
	client *weaviate.Client
}

// New returns an Archiver over the given client. client may be nil.
func New(client *weaviate.Client) *Archiver {
	return &Archiver{client: client}
}

// Enabled reports whether archiving is active.
func (a *Archiver) Enabled() bool {
	return a != nil && a.client != nil
}

// ArchiveRun stores a terminal run and its candidates. Runs that are
// not terminal are rejected so partial state never lands in the index.
func (a *Archiver) ArchiveRun(ctx context.Context, run *pipeline.Run[*extraction.State]) error {
	if !a.Enabled() {
		return nil
	}
	if run == nil || !run.Status.Terminal() {
		return fmt.Errorf("refusing to archive non-terminal run")
	}
	state := run.State

	var keywords []string
	if state.SeedKeywords != nil {
		keywords = state.SeedKeywords.Distinct()
	}
	props := map[string]interface{}{
		"run_id":      run.ID,
		"status":      string(run.Status),
		"input_text":  state.InputText,
		"attempts":    run.Attempts,
		"archived_at": time.Now().UnixMilli(),
	}
	if state.ConceptMatrix != nil {
		props["problem_purpose"] = state.ConceptMatrix.ProblemPurpose
		props["technical_field"] = state.ConceptMatrix.EnvironmentField
	}
	if keywords != nil {
		props["seed_keywords"] = keywords
	}
	if state.Queries != nil {
		props["queries"] = state.Queries
	}

	_, err := a.client.Data().Creator().
		WithClassName("PatentRun").
		WithID(deterministicID(run.ID)).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to archive run %s: %w", run.ID, err)
	}

	if len(state.CandidateDocuments) == 0 {
		slog.Info("Archived run without candidates", "run_id", run.ID, "status", run.Status)
		return nil
	}

	objects := make([]*models.Object, 0, len(state.CandidateDocuments))
	for _, cand := range state.CandidateDocuments {
		objects = append(objects, &models.Object{
			Class: "PriorArtCandidate",
			ID:    strfmt.UUID(deterministicID(run.ID + "|" + cand.URL)),
			Properties: map[string]interface{}{
				"run_id":         run.ID,
				"url":            cand.URL,
				"scenario_score": cand.ScenarioScore,
				"problem_score":  cand.ProblemScore,
			},
		})
	}

	resp, err := a.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to archive candidates for run %s: %w", run.ID, err)
	}
	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
		} else if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in archive batch item", "run_id", run.ID, "error", errItem.Message)
			}
		}
	}
	slog.Info("Archived run", "run_id", run.ID, "status", run.Status,
		"candidates", stored, "of", len(objects))
	return nil
}

// deterministicID derives a stable UUID from a key so re-archiving a
// run overwrites its previous objects instead of duplicating them.
func deterministicID(key string) string {
	hash := sha256.Sum256([]byte(key))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}
