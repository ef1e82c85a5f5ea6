// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process RunStore.
//
// Thread Safety:
//
//	Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Put creates or replaces a record.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Copy the snapshot so the caller's buffer cannot mutate the store.
	snapshot := make([]byte, len(rec.Snapshot))
	copy(snapshot, rec.Snapshot)
	rec.Snapshot = snapshot

	s.records[rec.ID] = rec
	return nil
}

// Get returns the record for the handle.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrClosed
	}

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}

	snapshot := make([]byte, len(rec.Snapshot))
	copy(snapshot, rec.Snapshot)
	rec.Snapshot = snapshot
	return rec, nil
}

// Delete removes the record if present.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// List returns all records.
func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		snapshot := make([]byte, len(rec.Snapshot))
		copy(snapshot, rec.Snapshot)
		rec.Snapshot = snapshot
		records = append(records, rec)
	}
	return records, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

var _ RunStore = (*MemoryStore)(nil)
