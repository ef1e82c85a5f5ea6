// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command patentscout is the CLI for the PatentScout prior-art service.
//
// It talks to a running orchestrator over HTTP: starting extraction
// runs, reviewing generated keywords at the checkpoint, and exporting
// finished runs.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/PatentScout/pkg/logging"
	"github.com/AleutianAI/PatentScout/pkg/ux"
)

var (
	serverURL string

	rootCmd = &cobra.Command{
		Use:   "patentscout",
		Short: "A CLI for the PatentScout prior-art search service",
		Long: `PatentScout turns an invention description into reviewed search
keywords, boolean patent queries, and a scored list of prior-art candidates.`,
	}
)

func main() {
	// Piped output gets plain machine-readable lines; a TTY gets the
	// styled surface. PATENTSCOUT_PERSONALITY overrides either.
	ux.InitPersonality()

	// CLI output is the interface; keep logs quiet on the terminal but
	// preserve them on disk for debugging.
	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		LogDir:  "~/.patentscout/logs",
		Service: "cli",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultURL := os.Getenv("PATENTSCOUT_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:12310"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL,
		"PatentScout orchestrator base URL")
}
