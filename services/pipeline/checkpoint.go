// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// CheckpointVersion is the current snapshot format version (semver).
const CheckpointVersion = "1.0.0"

// snapshotEnvelope is the serialized form of a Run plus integrity data.
// The checksum covers everything except itself.
type snapshotEnvelope struct {
	Run       json.RawMessage `json:"run"`
	GraphName string          `json:"graph_name"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Checksum  string          `json:"checksum"`
}

// computeChecksum calculates SHA-256 over the checksummed portion of the
// envelope in a deterministic layout.
func computeChecksum(run json.RawMessage, graphName string, timestamp time.Time) (string, error) {
	data := struct {
		Run       json.RawMessage `json:"run"`
		GraphName string          `json:"graph_name"`
		Timestamp time.Time       `json:"timestamp"`
		Version   string          `json:"version"`
	}{
		Run:       run,
		GraphName: graphName,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// Snapshot serializes a Run into a versioned, checksummed record.
//
// Description:
//
//	Produces the bytes persisted by a run store at suspension boundaries
//	(the gate, terminal statuses). The snapshot carries the run position
//	and the full domain state, so a restored run continues exactly where
//	it suspended. Only call at a state boundary; a Run mid-frontier is
//	not a consistent snapshot.
//
// Outputs:
//
//	[]byte - The serialized snapshot.
//	error - Non-nil if the run or its state cannot be marshaled.
func Snapshot[S any](run *Run[S]) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("%w: run must not be nil", ErrInvalidInput)
	}

	rawRun, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}

	timestamp := time.Now().UTC()
	checksum, err := computeChecksum(rawRun, run.GraphName, timestamp)
	if err != nil {
		return nil, fmt.Errorf("compute checksum: %w", err)
	}

	envelope := snapshotEnvelope{
		Run:       rawRun,
		GraphName: run.GraphName,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
		Checksum:  checksum,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Restore deserializes and verifies a snapshot produced by Snapshot.
//
// Description:
//
//	Verifies the format version and SHA-256 checksum before
//	deserializing. graphName, when non-empty, must match the snapshot's
//	graph; a mismatch means the snapshot belongs to a different workflow
//	and cannot be resumed here.
//
// Outputs:
//
//	*Run[S] - The restored run. Never nil on success.
//	error - ErrCheckpointVersionMismatch, ErrCheckpointCorrupt, or a
//	        wrapped parse error.
func Restore[S any](data []byte, graphName string) (*Run[S], error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrInvalidInput)
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if envelope.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: got %s, want %s",
			ErrCheckpointVersionMismatch, envelope.Version, CheckpointVersion)
	}

	expected, err := computeChecksum(envelope.Run, envelope.GraphName, envelope.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("compute checksum for verification: %w", err)
	}
	if envelope.Checksum != expected {
		return nil, ErrCheckpointCorrupt
	}

	if graphName != "" && envelope.GraphName != graphName {
		return nil, fmt.Errorf("%w: snapshot is for graph %q, want %q",
			ErrInvalidInput, envelope.GraphName, graphName)
	}

	var run Run[S]
	if err := json.Unmarshal(envelope.Run, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	if run.Completed == nil {
		run.Completed = make(map[string]bool)
	}
	return &run, nil
}
