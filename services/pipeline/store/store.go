// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists pipeline run snapshots keyed by run handle.
//
// Description:
//
//	A RunStore is the explicit successor to an in-memory session map:
//	create/read/delete operations on serialized run records, owned by
//	whoever constructs it, never a process-wide singleton. Two
//	implementations are provided: an in-memory store for tests and
//	one-shot CLI runs, and a BadgerDB-backed store for deployments that
//	must survive process restarts while a run is suspended at the gate.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for run store operations.
var (
	// ErrNotFound indicates no record exists for the handle.
	ErrNotFound = errors.New("run record not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("run store closed")

	// ErrInvalidRecord indicates a record missing its ID or snapshot.
	ErrInvalidRecord = errors.New("invalid run record")
)

// Record is one persisted run.
//
// Description:
//
//	Snapshot holds the versioned, checksummed bytes produced by
//	pipeline.Snapshot. Status and the timestamps are duplicated out of
//	the snapshot so listing and TTL sweeping never need to deserialize
//	or verify the full state.
type Record struct {
	// ID is the run handle.
	ID string `json:"id"`

	// Status is the run's lifecycle state at last save.
	Status string `json:"status"`

	// StartedAt is when the run began (UTC).
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when the record was last saved (UTC).
	UpdatedAt time.Time `json:"updated_at"`

	// Snapshot is the serialized run (pipeline.Snapshot output).
	Snapshot []byte `json:"snapshot"`
}

// RunStore persists run records.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type RunStore interface {
	// Put creates or replaces the record for rec.ID.
	Put(ctx context.Context, rec Record) error

	// Get returns the record for the handle, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Delete removes the record. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, id string) error

	// List returns all records, snapshot bytes included, in unspecified
	// order.
	List(ctx context.Context) ([]Record, error)

	// Close releases store resources. The store is unusable afterwards.
	Close() error
}

// validateRecord rejects records that cannot be stored meaningfully.
func validateRecord(rec Record) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}
	if len(rec.Snapshot) == 0 {
		return ErrInvalidRecord
	}
	return nil
}
