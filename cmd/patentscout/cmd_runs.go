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
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/PatentScout/pkg/ux"
	"github.com/AleutianAI/PatentScout/services/extraction"
)

var (
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage extraction runs",
	}
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all known runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(serverURL)
			list, err := client.listRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(list.Runs) == 0 {
				ux.Muted("No runs found.")
				return nil
			}
			fmt.Printf("%-36s  %-18s  %-20s  %s\n", "RUN ID", "STATUS", "STARTED", "UPDATED")
			for _, r := range list.Runs {
				fmt.Printf("%-36s  %-18s  %-20s  %s\n", r.ID, r.Status,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	runsStatusCmd = &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show a run's status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)
			run, err := client.getRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ux.Box("Run "+run.ID, fmt.Sprintf(
				"Status:   %s\nProgress: %s\nAttempts: %d",
				run.Status,
				ux.ProgressBar(run.CompletedCount, extraction.StageCount, 20),
				run.Attempts))
			if run.FailedStage != "" {
				ux.Error(fmt.Sprintf("Failed at %s: %s", run.FailedStage, run.Error))
			}
			if run.Status == "awaiting_decision" {
				ux.Info("Waiting for a review decision. Resume with: patentscout resume " + run.ID)
			}
			return nil
		},
	}
	runsCancelCmd = &cobra.Command{
		Use:   "cancel [run-id]",
		Short: "Cancel a suspended run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)
			if err := client.cancelRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			ux.Success("Run " + args[0] + " cancelled")
			return nil
		},
	}
	runsDeleteCmd = &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a run's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)
			if err := client.deleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			ux.Success("Run " + args[0] + " deleted")
			return nil
		},
	}

	runsWatchCmd = &cobra.Command{
		Use:   "watch [run-id]",
		Short: "Stream a run's status changes until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL := strings.TrimSuffix(serverURL, "/")
			wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
			wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
			wsURL += "/v1/runs/" + args[0] + "/watch"

			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", wsURL, err)
			}
			defer conn.Close()

			for {
				var event map[string]any
				if err := conn.ReadJSON(&event); err != nil {
					// Server closes the socket once the run is terminal.
					return nil
				}
				if errMsg, ok := event["error"].(string); ok && errMsg != "" {
					return fmt.Errorf("%s", errMsg)
				}
				count, _ := event["completed_count"].(float64)
				fmt.Printf("%-18v %s attempts=%v\n",
					event["status"],
					ux.ProgressBar(int(count), extraction.StageCount, 20),
					event["attempts"])
			}
		},
	}

	resumeCmd = &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Resume a suspended run at the review checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)
			ctx := cmd.Context()

			run, err := client.getRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run.Status != "awaiting_decision" {
				return fmt.Errorf("run %s is %s, not awaiting a decision", run.ID, run.Status)
			}

			for run.Status == "awaiting_decision" {
				review, err := client.getReview(ctx, run.ID)
				if err != nil {
					return err
				}
				renderReview(review)

				decision, err := promptDecision(review)
				if err != nil {
					return err
				}

				spinner := ux.NewSpinner("Searching for prior art...")
				spinner.Start()
				run, err = client.postDecision(ctx, run.ID, decision)
				spinner.Stop()
				if err != nil {
					ux.Error(err.Error())
					run, err = client.getRun(ctx, run.ID)
					if err != nil {
						return err
					}
				}
			}
			return renderOutcome(run)
		},
	}
)

func init() {
	runsCmd.AddCommand(runsListCmd, runsStatusCmd, runsCancelCmd, runsDeleteCmd, runsWatchCmd)
	rootCmd.AddCommand(runsCmd, resumeCmd)
}
