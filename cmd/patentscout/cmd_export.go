// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/PatentScout/cmd/patentscout/gcs"
	"github.com/AleutianAI/PatentScout/pkg/ux"
)

var (
	exportOutput  string
	exportBucket  string
	exportSAKey   string
	exportGCSPath string

	exportCmd = &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a run's full state as JSON",
		Long: `Fetches a run and writes its full state, queries, and scored
candidates as a JSON report. The report can optionally be uploaded to a
Google Cloud Storage bucket.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "out", "o", "",
		"output file (default: <run-id>.json, '-' for stdout)")
	exportCmd.Flags().StringVar(&exportBucket, "gcs-bucket", "",
		"also upload the report to this GCS bucket")
	exportCmd.Flags().StringVar(&exportSAKey, "gcs-key", "",
		"service account key file for the GCS upload")
	exportCmd.Flags().StringVar(&exportGCSPath, "gcs-prefix", "patentscout-exports",
		"object prefix inside the GCS bucket")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	runID := args[0]
	client := newAPIClient(serverURL)

	run, err := client.getRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	report, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	outPath := exportOutput
	if outPath == "" {
		outPath = runID + ".json"
	}
	if outPath == "-" {
		fmt.Println(string(report))
	} else {
		if err := os.WriteFile(outPath, report, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		ux.Success("Report written to " + outPath)
	}

	if exportBucket == "" {
		return nil
	}
	if exportSAKey == "" {
		return fmt.Errorf("--gcs-key is required with --gcs-bucket")
	}

	gcsClient, err := gcs.NewClient(cmd.Context(), exportBucket, exportSAKey)
	if err != nil {
		return err
	}
	defer gcsClient.Close()

	objectPath := path.Join(exportGCSPath, runID+".json")
	if err := gcsClient.UploadJSON(cmd.Context(), objectPath, report); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Uploaded to gs://%s/%s", exportBucket, objectPath))
	return nil
}
