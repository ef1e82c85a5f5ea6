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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/PatentScout/pkg/ux"
	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/orchestrator/datatypes"
)

var (
	runInputFile string
	autoApprove  bool

	runCmd = &cobra.Command{
		Use:   "run [invention description]",
		Short: "Start an extraction run and review the keywords interactively",
		Long: `Starts a prior-art extraction run from an invention description and
walks it through the review checkpoint. The description is taken from the
argument, from --file, or from stdin.`,
		RunE: runExtraction,
	}
)

func init() {
	runCmd.Flags().StringVarP(&runInputFile, "file", "f", "",
		"read the invention description from a file ('-' for stdin)")
	runCmd.Flags().BoolVar(&autoApprove, "approve", false,
		"approve the generated keywords without prompting")
	rootCmd.AddCommand(runCmd)
}

func runExtraction(cmd *cobra.Command, args []string) error {
	inputText, err := readInventionText(args)
	if err != nil {
		return err
	}

	client := newAPIClient(serverURL)
	ctx := cmd.Context()

	ux.Title("PatentScout prior-art search")
	spinner := ux.NewSpinner("Extracting concepts and keywords...")
	spinner.Start()
	run, err := client.startRun(ctx, inputText)
	spinner.Stop()
	if err != nil {
		return err
	}
	ux.Info(fmt.Sprintf("Run %s started", run.ID))

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

		spinner = ux.NewSpinner("Searching for prior art...")
		spinner.Start()
		run, err = client.postDecision(ctx, run.ID, decision)
		spinner.Stop()
		if err != nil {
			ux.Error(err.Error())
			// Invalid decisions leave the run suspended; ask again.
			run, err = client.getRun(ctx, run.ID)
			if err != nil {
				return err
			}
			continue
		}
		if decision.Action == extraction.ActionReject && run.Status == "awaiting_decision" {
			ux.Warning(fmt.Sprintf("Keywords regenerated (attempt %d)", run.Attempts))
		}
	}

	return renderOutcome(run)
}

// readInventionText resolves the description from args, --file, or stdin.
func readInventionText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	switch runInputFile {
	case "":
		return "", fmt.Errorf("provide an invention description, --file, or '-' for stdin")
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		data, err := os.ReadFile(runInputFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", runInputFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// renderReview prints the checkpoint material under review.
func renderReview(review *datatypes.ReviewResponse) {
	if review.ConceptMatrix != nil {
		m := review.ConceptMatrix
		ux.Box("Concept matrix", fmt.Sprintf(
			"Problem/Purpose:   %s\nObject/System:     %s\nEnvironment/Field: %s",
			m.ProblemPurpose, m.ObjectSystem, m.EnvironmentField))
	}
	if review.SeedKeywords != nil {
		k := review.SeedKeywords
		ux.Box("Seed keywords", fmt.Sprintf(
			"Problem/Purpose:   %s\nObject/System:     %s\nEnvironment/Field: %s",
			strings.Join(k.ProblemPurpose, ", "),
			strings.Join(k.ObjectSystem, ", "),
			strings.Join(k.EnvironmentField, ", ")))
	}
	if review.Attempts > 0 {
		ux.Muted(fmt.Sprintf("Rejects used: %d of %d", review.Attempts, review.MaxAttempts))
	}
}

// promptDecision collects the checkpoint decision. On a TTY it uses an
// interactive form; otherwise it falls back to plain line prompts so
// the command stays scriptable.
func promptDecision(review *datatypes.ReviewResponse) (extraction.Decision, error) {
	if autoApprove {
		return extraction.Decision{Action: extraction.ActionApprove}, nil
	}
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return promptDecisionForm(review)
	}
	return promptDecisionPlain(review)
}

func promptDecisionForm(review *datatypes.ReviewResponse) (extraction.Decision, error) {
	var action string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Review the generated keywords").
			Options(
				huh.NewOption("Approve - search with these keywords", "approve"),
				huh.NewOption("Reject - regenerate with feedback", "reject"),
				huh.NewOption("Edit - supply my own keywords", "edit"),
			).
			Value(&action),
	))
	if err := form.Run(); err != nil {
		return extraction.Decision{}, err
	}

	switch extraction.Action(action) {
	case extraction.ActionReject:
		var feedback string
		err := huh.NewForm(huh.NewGroup(
			huh.NewText().
				Title("What should the extraction focus on instead?").
				Value(&feedback),
		)).Run()
		if err != nil {
			return extraction.Decision{}, err
		}
		return extraction.Decision{Action: extraction.ActionReject, Feedback: feedback}, nil

	case extraction.ActionEdit:
		edited := editedFromReview(review)
		var problem, object, environment string
		problem = strings.Join(edited.ProblemPurpose, ", ")
		object = strings.Join(edited.ObjectSystem, ", ")
		environment = strings.Join(edited.EnvironmentField, ", ")
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Problem/Purpose keywords (comma separated)").Value(&problem),
			huh.NewInput().Title("Object/System keywords (comma separated)").Value(&object),
			huh.NewInput().Title("Environment/Field keywords (comma separated)").Value(&environment),
		)).Run()
		if err != nil {
			return extraction.Decision{}, err
		}
		kw := &extraction.SeedKeywords{
			ProblemPurpose:   splitKeywordList(problem),
			ObjectSystem:     splitKeywordList(object),
			EnvironmentField: splitKeywordList(environment),
		}
		return extraction.Decision{Action: extraction.ActionEdit, EditedKeywords: kw}, nil
	}
	return extraction.Decision{Action: extraction.ActionApprove}, nil
}

func promptDecisionPlain(review *datatypes.ReviewResponse) (extraction.Decision, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Decision: [1] approve  [2] reject  [3] edit")
	fmt.Print("> ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return extraction.Decision{}, fmt.Errorf("reading decision: %w", err)
	}
	action, err := extraction.ParseAction(line)
	if err != nil {
		return extraction.Decision{}, err
	}

	switch action {
	case extraction.ActionReject:
		fmt.Print("Feedback (optional): ")
		feedback, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return extraction.Decision{}, fmt.Errorf("reading feedback: %w", err)
		}
		return extraction.Decision{
			Action:   extraction.ActionReject,
			Feedback: strings.TrimSpace(feedback),
		}, nil

	case extraction.ActionEdit:
		edited := editedFromReview(review)
		kw := &extraction.SeedKeywords{}
		prompts := []struct {
			label   string
			current []string
			target  *[]string
		}{
			{"Problem/Purpose", edited.ProblemPurpose, &kw.ProblemPurpose},
			{"Object/System", edited.ObjectSystem, &kw.ObjectSystem},
			{"Environment/Field", edited.EnvironmentField, &kw.EnvironmentField},
		}
		for _, p := range prompts {
			fmt.Printf("%s keywords [%s]: ", p.label, strings.Join(p.current, ", "))
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return extraction.Decision{}, fmt.Errorf("reading keywords: %w", err)
			}
			if strings.TrimSpace(line) == "" {
				*p.target = p.current
			} else {
				*p.target = splitKeywordList(line)
			}
		}
		return extraction.Decision{Action: extraction.ActionEdit, EditedKeywords: kw}, nil
	}
	return extraction.Decision{Action: extraction.ActionApprove}, nil
}

// editedFromReview seeds the edit prompts with the generated keywords.
func editedFromReview(review *datatypes.ReviewResponse) extraction.SeedKeywords {
	if review == nil || review.SeedKeywords == nil {
		return extraction.SeedKeywords{
			ProblemPurpose:   []string{},
			ObjectSystem:     []string{},
			EnvironmentField: []string{},
		}
	}
	return *review.SeedKeywords
}

func splitKeywordList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// renderOutcome prints the terminal result of a run.
func renderOutcome(run *datatypes.RunResponse) error {
	switch run.Status {
	case "done":
		ux.Success(fmt.Sprintf("Run %s complete", run.ID))
		if run.State == nil || len(run.State.CandidateDocuments) == 0 {
			ux.Muted("No prior-art candidates found.")
			return nil
		}
		ux.Title(fmt.Sprintf("Prior-art candidates (%d)", len(run.State.CandidateDocuments)))
		for _, cand := range run.State.CandidateDocuments {
			scores := fmt.Sprintf("%.2f/%.2f", cand.ScenarioScore, cand.ProblemScore)
			ux.CandidateStatus(cand.URL, ux.IconDocument, scores)
		}
		ux.Summary(len(run.State.CandidateDocuments), len(run.State.Queries), run.Attempts)
		return nil
	case "retries_exhausted":
		ux.Warning(fmt.Sprintf("Run %s stopped: reject budget exhausted after %d attempts",
			run.ID, run.Attempts))
		return nil
	default:
		ux.Error(fmt.Sprintf("Run %s ended with status %s: %s", run.ID, run.Status, run.Error))
		return fmt.Errorf("run %s: %s", run.ID, run.Status)
	}
}
