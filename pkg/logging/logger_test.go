// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitForEntries polls the exporter until it holds at least n entries
// or the deadline passes. Export runs in a goroutine per entry, so
// tests cannot assert immediately after the log call.
func waitForEntries(t *testing.T, e *BufferedExporter, n int) []LogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries := e.Entries(); len(entries) >= n {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("exporter never received %d entries, have %d", n, len(e.Entries()))
	return nil
}

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels must be ordered Debug < Info < Warn < Error")
	}
}

// =============================================================================
// New Tests
// =============================================================================

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	if logger.slog == nil {
		t.Error("underlying slog logger not initialized")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNew_QuietWithoutFile_DoesNotPanic(t *testing.T) {
	logger := New(Config{Quiet: true})
	logger.Info("suppressed", "run_id", "r1")
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNew_LogDir_CreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "orchestrator",
		Quiet:   true,
	})
	logger.Info("run started", "run_id", "r1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := fmt.Sprintf("orchestrator_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, want))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("file log is not JSON: %v", err)
	}
	if record["msg"] != "run started" {
		t.Errorf("msg = %v, want 'run started'", record["msg"])
	}
	if record["run_id"] != "r1" {
		t.Errorf("run_id = %v, want r1", record["run_id"])
	}
	if record["service"] != "orchestrator" {
		t.Errorf("service = %v, want orchestrator", record["service"])
	}
}

func TestNew_LogDir_DefaultServiceName(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	logger.Info("hello")
	logger.Close()

	want := fmt.Sprintf("patentscout_%s.log", time.Now().Format("2006-01-02"))
	if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
		t.Errorf("expected log file %s: %v", want, err)
	}
}

func TestNew_LogDir_Unwritable_DropsFileDestination(t *testing.T) {
	// A path under a regular file cannot be created as a directory.
	bad := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(bad, []byte("x"), 0640); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: filepath.Join(bad, "logs"), Quiet: true})
	logger.Info("still works")
	if logger.file != nil {
		t.Error("file handle should be nil when the directory cannot be created")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNew_LevelFiltering_FileOutput(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "cli",
		Quiet:   true,
	})
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept", "attempt", 2)
	logger.Close()

	name := fmt.Sprintf("cli_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "dropped") {
		t.Errorf("filtered levels leaked into file: %s", content)
	}
	if !strings.Contains(content, "kept") {
		t.Errorf("warn entry missing from file: %s", content)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "patentscout" {
		t.Errorf("default service = %q, want patentscout", logger.config.Service)
	}
	logger.Close()
}

// =============================================================================
// Exporter Integration Tests
// =============================================================================

func TestLogger_ExportsEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "orchestrator",
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Info("checkpoint reached", "run_id", "r1", "stage", "await_decision")

	entries := waitForEntries(t, exporter, 1)
	entry := entries[0]
	if entry.Message != "checkpoint reached" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Level != LevelInfo {
		t.Errorf("level = %v, want LevelInfo", entry.Level)
	}
	if entry.Service != "orchestrator" {
		t.Errorf("service = %q", entry.Service)
	}
	if entry.Attrs["run_id"] != "r1" {
		t.Errorf("run_id attr = %v", entry.Attrs["run_id"])
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestLogger_ExportRespectsLevel(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Debug("below")
	logger.Info("below")
	logger.Error("above")

	entries := waitForEntries(t, exporter, 1)
	// Give stray goroutines a moment, then confirm nothing extra arrived.
	time.Sleep(50 * time.Millisecond)
	entries = exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 exported entry, got %d", len(entries))
	}
	if entries[0].Message != "above" {
		t.Errorf("exported message = %q, want 'above'", entries[0].Message)
	}
}

type failingExporter struct {
	flushErr error
	closeErr error
}

func (e *failingExporter) Export(ctx context.Context, entry LogEntry) error {
	return errors.New("export failed")
}
func (e *failingExporter) Flush(ctx context.Context) error { return e.flushErr }
func (e *failingExporter) Close() error                    { return e.closeErr }

func TestLogger_ExportFailureDoesNotSurface(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &failingExporter{}})
	logger.Info("still fine") // Must not panic or return anything.
	time.Sleep(50 * time.Millisecond)
	logger.Close()
}

func TestLogger_Close_ReportsFlushError(t *testing.T) {
	flushErr := errors.New("buffer stuck")
	logger := New(Config{Quiet: true, Exporter: &failingExporter{flushErr: flushErr}})
	err := logger.Close()
	if err == nil || !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("Close = %v, want flush exporter error", err)
	}
}

func TestLogger_Close_ReportsCloseError(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &failingExporter{closeErr: errors.New("conn lost")}})
	err := logger.Close()
	if err == nil || !strings.Contains(err.Error(), "close exporter") {
		t.Errorf("Close = %v, want close exporter error", err)
	}
}

// =============================================================================
// With / Slog Tests
// =============================================================================

func TestLogger_With_AddsAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "cli", Quiet: true})
	child := logger.With("run_id", "r42")
	child.Info("stage complete")
	logger.Close()

	name := fmt.Sprintf("cli_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "r42") {
		t.Errorf("child attribute missing from output: %s", data)
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})
	child := logger.With("run_id", "r1")

	if child.exporter != logger.exporter {
		t.Error("child should share the parent's exporter")
	}
	if child.file != logger.file {
		t.Error("child should share the parent's file handle")
	}
	logger.Close()
}

func TestLogger_Slog_ReturnsUnderlying(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()
	if logger.Slog() == nil {
		t.Fatal("Slog returned nil")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info("concurrent", "worker", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	waitForEntries(t, exporter, 200)
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}}
	logger := slog.New(h)
	logger.Info("both destinations")

	if !strings.Contains(a.String(), "both destinations") {
		t.Error("text handler missed the record")
	}
	if !strings.Contains(b.String(), "both destinations") {
		t.Error("json handler missed the record")
	}
}

func TestMultiHandler_RespectsPerHandlerLevel(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h)
	logger.Info("info only")

	if !strings.Contains(debugBuf.String(), "info only") {
		t.Error("debug-level handler should receive info records")
	}
	if warnBuf.Len() != 0 {
		t.Errorf("warn-level handler should filter info records, got %q", warnBuf.String())
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled when all handlers are warn+")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}

func TestMultiHandler_Empty(t *testing.T) {
	h := &multiHandler{}
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("empty handler set should report disabled")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{slog.NewJSONHandler(&buf, nil)}}
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "cli")}))
	logger.Info("tagged")

	if !strings.Contains(buf.String(), `"service":"cli"`) {
		t.Errorf("attribute missing: %s", buf.String())
	}
}

func TestMultiHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{slog.NewJSONHandler(&buf, nil)}}
	logger := slog.New(h.WithGroup("run"))
	logger.Info("grouped", "id", "r1")

	if !strings.Contains(buf.String(), `"run"`) {
		t.Errorf("group missing: %s", buf.String())
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in environment")
	}

	cases := []struct {
		in   string
		want string
	}{
		{"~/.patentscout/logs", filepath.Join(home, ".patentscout/logs")},
		{"/var/log/patentscout", "/var/log/patentscout"},
		{"relative/logs", "relative/logs"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := expandPath(tc.in); got != tc.want {
			t.Errorf("expandPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"run_id", "r1", "attempt", 2})
	if got["run_id"] != "r1" || got["attempt"] != 2 {
		t.Errorf("argsToMap = %v", got)
	}
}

func TestArgsToMap_OddArgs(t *testing.T) {
	got := argsToMap([]any{"key", "value", "dangling"})
	if len(got) != 1 || got["key"] != "value" {
		t.Errorf("dangling key should be dropped, got %v", got)
	}
}

func TestArgsToMap_NonStringKey(t *testing.T) {
	got := argsToMap([]any{42, "value", "ok", true})
	if len(got) != 1 || got["ok"] != true {
		t.Errorf("non-string key should be skipped, got %v", got)
	}
}

func TestArgsToMap_Empty(t *testing.T) {
	if got := argsToMap(nil); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	ctx := context.Background()
	if err := e.Export(ctx, LogEntry{Message: "discarded"}); err != nil {
		t.Errorf("Export: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBufferedExporter_CollectsInOrder(t *testing.T) {
	e := NewBufferedExporter()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.Export(ctx, LogEntry{Message: fmt.Sprintf("m%d", i)})
	}
	entries := e.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Message != fmt.Sprintf("m%d", i) {
			t.Errorf("entry %d = %q", i, entry.Message)
		}
	}
}

func TestBufferedExporter_EntriesReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	e.Export(context.Background(), LogEntry{Message: "original"})

	entries := e.Entries()
	entries[0].Message = "mutated"

	if e.Entries()[0].Message != "original" {
		t.Error("Entries must return a copy, not the internal slice")
	}
}

func TestBufferedExporter_ConcurrentAccess(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.Export(context.Background(), LogEntry{Message: "x"})
				_ = e.Entries()
			}
		}()
	}
	wg.Wait()
	if got := len(e.Entries()); got != 500 {
		t.Errorf("expected 500 entries, got %d", got)
	}
}

func TestWriterExporter_Format(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)
	entry := LogEntry{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Level:     LevelWarn,
		Message:   "keywords regenerated",
		Attrs:     map[string]any{"attempt": 2},
	}
	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "2025-06-01T12:00:00Z") {
		t.Errorf("timestamp missing: %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("level missing: %q", out)
	}
	if !strings.Contains(out, "keywords regenerated") {
		t.Errorf("message missing: %q", out)
	}
}

func TestWriterExporter_FlushAndClose(t *testing.T) {
	e := NewWriterExporter(&bytes.Buffer{})
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
