// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings loads runtime-tunable orchestrator settings from a
// YAML file and hot-reloads them when the file changes on disk.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Settings holds the tunables that operators may change without
// restarting the service. Zero values fall back to defaults on load.
type Settings struct {
	// MaxQueries caps how many boolean queries a run composes.
	MaxQueries int `yaml:"max_queries"`

	// SnippetsPerKeyword is how many search snippets feed each
	// keyword expansion prompt.
	SnippetsPerKeyword int `yaml:"snippets_per_keyword"`

	// ResultsPerQuery is how many results each discovery query keeps.
	ResultsPerQuery int `yaml:"results_per_query"`

	// ExpandWorkers bounds concurrent keyword expansions.
	ExpandWorkers int `yaml:"expand_workers"`

	// ScoreWorkers bounds concurrent document fetch-and-score workers.
	ScoreWorkers int `yaml:"score_workers"`

	// MaxAttempts is the reject budget for the review checkpoint.
	MaxAttempts int `yaml:"max_attempts"`

	// RunRetention is how long finished runs are kept before the
	// store sweeper removes them.
	RunRetention time.Duration `yaml:"run_retention"`
}

// settingsYAML is the on-disk shape. Retention is a duration string
// ("72h") rather than raw nanoseconds.
type settingsYAML struct {
	MaxQueries         int    `yaml:"max_queries"`
	SnippetsPerKeyword int    `yaml:"snippets_per_keyword"`
	ResultsPerQuery    int    `yaml:"results_per_query"`
	ExpandWorkers      int    `yaml:"expand_workers"`
	ScoreWorkers       int    `yaml:"score_workers"`
	MaxAttempts        int    `yaml:"max_attempts"`
	RunRetention       string `yaml:"run_retention"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	var raw settingsYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Settings{
		MaxQueries:         raw.MaxQueries,
		SnippetsPerKeyword: raw.SnippetsPerKeyword,
		ResultsPerQuery:    raw.ResultsPerQuery,
		ExpandWorkers:      raw.ExpandWorkers,
		ScoreWorkers:       raw.ScoreWorkers,
		MaxAttempts:        raw.MaxAttempts,
	}
	if raw.RunRetention != "" {
		d, err := time.ParseDuration(raw.RunRetention)
		if err != nil {
			return fmt.Errorf("invalid run_retention %q: %w", raw.RunRetention, err)
		}
		s.RunRetention = d
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Settings) MarshalYAML() (interface{}, error) {
	return settingsYAML{
		MaxQueries:         s.MaxQueries,
		SnippetsPerKeyword: s.SnippetsPerKeyword,
		ResultsPerQuery:    s.ResultsPerQuery,
		ExpandWorkers:      s.ExpandWorkers,
		ScoreWorkers:       s.ScoreWorkers,
		MaxAttempts:        s.MaxAttempts,
		RunRetention:       s.RunRetention.String(),
	}, nil
}

// Defaults returns the settings used when no file is present.
func Defaults() Settings {
	return Settings{
		MaxQueries:         6,
		SnippetsPerKeyword: 3,
		ResultsPerQuery:    5,
		ExpandWorkers:      4,
		ScoreWorkers:       2,
		MaxAttempts:        3,
		RunRetention:       72 * time.Hour,
	}
}

// normalize fills zero or negative fields from defaults.
func (s Settings) normalize() Settings {
	d := Defaults()
	if s.MaxQueries <= 0 {
		s.MaxQueries = d.MaxQueries
	}
	if s.SnippetsPerKeyword <= 0 {
		s.SnippetsPerKeyword = d.SnippetsPerKeyword
	}
	if s.ResultsPerQuery <= 0 {
		s.ResultsPerQuery = d.ResultsPerQuery
	}
	if s.ExpandWorkers <= 0 {
		s.ExpandWorkers = d.ExpandWorkers
	}
	if s.ScoreWorkers <= 0 {
		s.ScoreWorkers = d.ScoreWorkers
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.RunRetention <= 0 {
		s.RunRetention = d.RunRetention
	}
	return s
}

// Load reads settings from the given YAML file. A missing file yields
// the defaults without error; a malformed file is an error.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Settings{}, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return s.normalize(), nil
}

// ChangeHandler is called with the new settings after a reload.
type ChangeHandler func(Settings)

// Watcher serves the current settings and reloads them when the
// backing file is rewritten.
//
// # Thread Safety
//
// Safe for concurrent use. Current returns a copy; the handler is
// called from the watch goroutine.
type Watcher struct {
	path    string
	handler ChangeHandler

	fw       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	current Settings
}

// NewWatcher loads the file once and begins watching its directory.
// The handler may be nil.
func NewWatcher(path string, handler ChangeHandler) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create settings watcher: %w", err)
	}
	// Watch the directory rather than the file so atomic
	// rename-into-place rewrites are still observed.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch settings directory: %w", err)
	}

	w := &Watcher{
		path:    path,
		handler: handler,
		fw:      fw,
		done:    make(chan struct{}),
		current: initial,
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded settings.
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Update normalizes and persists new settings to the backing file,
// applying them immediately. The write goes through a temp file and
// rename so a concurrent reader never sees a partial file.
func (w *Watcher) Update(s Settings) (Settings, error) {
	s = s.normalize()

	data, err := yaml.Marshal(s)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to encode settings: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Settings{}, fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return Settings{}, fmt.Errorf("failed to replace settings file: %w", err)
	}

	w.mu.Lock()
	changed := s != w.current
	w.current = s
	w.mu.Unlock()

	if changed && w.handler != nil {
		w.handler(s)
	}
	return s, nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	return w.fw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("settings watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	loaded, err := Load(w.path)
	if err != nil {
		slog.Warn("settings reload failed, keeping previous values",
			"path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	changed := loaded != w.current
	w.current = loaded
	w.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("settings reloaded", "path", w.path)
	if w.handler != nil {
		w.handler(loaded)
	}
}
