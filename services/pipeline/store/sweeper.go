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
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// finishedStatuses are the run statuses eligible for TTL deletion.
// Suspended runs are never swept: a run waiting at the gate is waiting
// on a human, not abandoned.
var finishedStatuses = map[string]bool{
	"done":              true,
	"failed":            true,
	"retries_exhausted": true,
	"cancelled":         true,
}

// Sweeper deletes finished run records after a retention period.
//
// Thread Safety:
//
//	Safe for concurrent use. Start at most once.
type Sweeper struct {
	store     RunStore
	retention atomic.Int64 // nanoseconds
	interval  time.Duration
	logger    *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a TTL sweeper over a run store.
//
// Inputs:
//
//	store - The store to sweep. Must not be nil.
//	retention - How long finished runs are kept. Must be positive.
//	interval - How often to sweep. Must be positive.
//	logger - Logger for sweep events. If nil, slog.Default() is used.
func NewSweeper(store RunStore, retention, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, ErrInvalidRecord
	}
	if retention <= 0 || interval <= 0 {
		return nil, ErrInvalidRecord
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.retention.Store(int64(retention))
	return s, nil
}

// SetRetention changes the retention period for subsequent sweeps.
// Non-positive values are ignored.
func (s *Sweeper) SetRetention(retention time.Duration) {
	if retention <= 0 {
		return
	}
	s.retention.Store(int64(retention))
}

// Start begins periodic sweeping in a background goroutine.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				removed, err := s.SweepOnce(context.Background())
				if err != nil {
					s.logger.Warn("run store sweep failed",
						slog.String("error", err.Error()))
					continue
				}
				if removed > 0 {
					s.logger.Info("swept expired runs",
						slog.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop halts sweeping and waits for the goroutine to exit.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SweepOnce removes finished records older than the retention period and
// returns how many were deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-time.Duration(s.retention.Load()))
	removed := 0
	for _, rec := range records {
		if !finishedStatuses[rec.Status] {
			continue
		}
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}
