// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s != Defaults() {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patentscout.yaml")
	if err := os.WriteFile(path, []byte("max_queries: [not an int"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patentscout.yaml")
	content := "max_queries: 10\nrun_retention: 1h\nscore_workers: -1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.MaxQueries != 10 {
		t.Errorf("MaxQueries = %d, want 10", s.MaxQueries)
	}
	if s.RunRetention != time.Hour {
		t.Errorf("RunRetention = %v, want 1h", s.RunRetention)
	}
	if s.ScoreWorkers != Defaults().ScoreWorkers {
		t.Errorf("ScoreWorkers = %d, want default %d", s.ScoreWorkers, Defaults().ScoreWorkers)
	}
	if s.MaxAttempts != Defaults().MaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", s.MaxAttempts, Defaults().MaxAttempts)
	}
}

func TestWatcherReloadsOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patentscout.yaml")
	if err := os.WriteFile(path, []byte("max_queries: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Settings, 4)
	w, err := NewWatcher(path, func(s Settings) { changes <- s })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if got := w.Current().MaxQueries; got != 4 {
		t.Fatalf("initial MaxQueries = %d, want 4", got)
	}

	if err := os.WriteFile(path, []byte("max_queries: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-changes:
		if s.MaxQueries != 9 {
			t.Errorf("reloaded MaxQueries = %d, want 9", s.MaxQueries)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after rewrite")
	}

	if got := w.Current().MaxQueries; got != 9 {
		t.Errorf("Current().MaxQueries = %d, want 9", got)
	}
}

func TestWatcherKeepsPreviousOnBadRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patentscout.yaml")
	if err := os.WriteFile(path, []byte("max_queries: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("max_queries: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The reload is asynchronous; give the watcher a moment, then
	// confirm the previous values survived.
	time.Sleep(500 * time.Millisecond)
	if got := w.Current().MaxQueries; got != 4 {
		t.Errorf("Current().MaxQueries = %d, want previous value 4", got)
	}
}
