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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// runKeyPrefix namespaces run records inside the key space.
const runKeyPrefix = "run/"

// BadgerConfig holds configuration for a Badger-backed run store.
type BadgerConfig struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// A suspended run must survive a crash, so this defaults to true
	// for persistent databases.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set negative to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64

	// Logger for store and GC events. If nil, Badger's internal logging
	// is disabled and slog.Default() is used for store events.
	Logger *slog.Logger
}

// applyBadgerDefaults fills in missing configuration values.
func applyBadgerDefaults(cfg BadgerConfig) BadgerConfig {
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 5 * time.Minute
	}
	if cfg.GCDiscardRatio == 0 {
		cfg.GCDiscardRatio = 0.5
	}
	if !cfg.InMemory {
		cfg.SyncWrites = true
	}
	return cfg
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a RunStore backed by an embedded BadgerDB.
//
// Description:
//
//	Records are stored as JSON under "run/<id>" keys. The store owns the
//	database handle and a background value-log GC goroutine; Close stops
//	GC and closes the database.
//
// Thread Safety:
//
//	Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewBadgerStore opens (or creates) a Badger-backed run store.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	cfg = applyBadgerDefaults(cfg)

	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent run store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create run store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store database: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		logger: logger,
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	if !cfg.InMemory && cfg.GCInterval > 0 {
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	} else {
		close(s.gcDone)
	}

	return s, nil
}

// runGC periodically triggers value log garbage collection.
func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// worth collecting; that is the common case.
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("run store GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func runKey(id string) []byte {
	return []byte(runKeyPrefix + id)
}

// Put creates or replaces a record.
func (s *BadgerStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("put run record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for the handle.
func (s *BadgerStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get run record %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes the record if present.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(runKey(id))
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete run record %s: %w", id, err)
	}
	return nil
}

// List returns all records.
func (s *BadgerStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	return records, nil
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.gcStop)
		<-s.gcDone
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

var _ RunStore = (*BadgerStore)(nil)
