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
	"testing"
	"time"
)

func putRecord(t *testing.T, s RunStore, id, status string, updatedAt time.Time) {
	t.Helper()
	rec := Record{
		ID:        id,
		Status:    status,
		StartedAt: updatedAt.Add(-time.Minute),
		UpdatedAt: updatedAt,
		Snapshot:  []byte(`{"version":"1.0.0"}`),
	}
	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put(%s) error = %v", id, err)
	}
}

func TestSweepOnceRemovesExpiredFinishedRuns(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	old := time.Now().UTC().Add(-2 * time.Hour)
	putRecord(t, s, "run-done-old", "done", old)
	putRecord(t, s, "run-failed-old", "failed", old)
	putRecord(t, s, "run-done-fresh", "done", time.Now().UTC())
	putRecord(t, s, "run-waiting-old", "awaiting_decision", old)

	sw, err := NewSweeper(s, time.Hour, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	removed, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, err := s.Get(context.Background(), "run-done-old"); err != ErrNotFound {
		t.Errorf("expired done run still present, err = %v", err)
	}
	if _, err := s.Get(context.Background(), "run-done-fresh"); err != nil {
		t.Errorf("fresh run removed, err = %v", err)
	}
	if _, err := s.Get(context.Background(), "run-waiting-old"); err != nil {
		t.Errorf("suspended run removed, err = %v", err)
	}
}

func TestSweeperSetRetentionAppliesToNextSweep(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	putRecord(t, s, "run-1", "done", time.Now().UTC().Add(-10*time.Minute))

	sw, err := NewSweeper(s, 24*time.Hour, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	removed, err := sw.SweepOnce(context.Background())
	if err != nil || removed != 0 {
		t.Fatalf("SweepOnce() = %d, %v; want 0, nil", removed, err)
	}

	sw.SetRetention(time.Minute)
	removed, err = sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() after SetRetention error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	// Non-positive retention is ignored.
	sw.SetRetention(0)
	if got := time.Duration(sw.retention.Load()); got != time.Minute {
		t.Errorf("retention = %v, want %v", got, time.Minute)
	}
}

func TestNewSweeperRejectsBadArguments(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := NewSweeper(nil, time.Hour, time.Hour, nil); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := NewSweeper(s, 0, time.Hour, nil); err == nil {
		t.Error("zero retention accepted")
	}
	if _, err := NewSweeper(s, time.Hour, 0, nil); err == nil {
		t.Error("zero interval accepted")
	}
}
