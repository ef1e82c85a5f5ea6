// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extraction

import (
	"fmt"
	"strings"
)

// Prompt builders for the generation backend. Every prompt asks for a
// strict JSON object so the brace-extraction parser can recover the
// payload even when the model wraps it in prose.

func normalizationPrompt(inputText string) string {
	return fmt.Sprintf(`You are normalizing an invention description for patent search.

Invention description:
%s

Restate it as JSON with exactly these fields:
{"problem": "<the technical problem or objective>", "technical": "<the technical content or context>"}

Return only the JSON object.`, inputText)
}

func conceptPrompt(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Extract the core patent search concepts from this invention.

Problem: %s
Technical context: %s
Original description: %s
`, s.Problem, s.Technical, s.InputText)

	if feedback := s.LatestFeedback(); feedback != "" {
		fmt.Fprintf(&b, `
A previous extraction was rejected by the reviewer with this feedback, which you must address:
%s
`, feedback)
	}

	b.WriteString(`
Return JSON with exactly these fields:
{"problem_purpose": "<the specific technical problem the invention solves or its primary objective>",
 "object_system": "<the main object, device, system, material, or process that is the subject of the invention>",
 "environment_field": "<the application domain, industry sector, or operational context>"}

Return only the JSON object.`)
	return b.String()
}

func keywordPrompt(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Generate distinctive patent search keywords for each concept.

Problem/purpose: %s
Object/system: %s
Environment/field: %s
`, s.ConceptMatrix.ProblemPurpose, s.ConceptMatrix.ObjectSystem, s.ConceptMatrix.EnvironmentField)

	if feedback := s.LatestFeedback(); feedback != "" {
		fmt.Fprintf(&b, `
A previous keyword set was rejected by the reviewer with this feedback, which you must address:
%s
`, feedback)
	}

	b.WriteString(`
Return JSON with exactly these fields, each a list of 3-6 short technical keywords:
{"problem_purpose": [...], "object_system": [...], "environment_field": [...]}

Return only the JSON object.`)
	return b.String()
}

func summaryPrompt(inputText string) string {
	return fmt.Sprintf(`Write a concise technical summary (2-4 sentences) of this invention, suitable for patent classification:

%s

Return only the summary text.`, inputText)
}

func synonymPrompt(keyword, context string, snippets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Generate synonyms and closely related technical terms for the patent search keyword %q.

Concept context: %s

Web snippets mentioning the keyword:
`, keyword, context)
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, snippet)
	}

	b.WriteString(`
Return JSON: {"terms": ["<synonym or related term>", ...]} with 3-6 entries.
Return only the JSON object.`)
	return b.String()
}

func queriesPrompt(s *State, maxQueries int) string {
	var b strings.Builder
	b.WriteString("Compose boolean patent search queries from these expanded keyword groups.\n\n")

	for _, category := range s.ConceptMatrix.Categories() {
		terms := categoryTerms(s, category)
		fmt.Fprintf(&b, "%s: %s\n", category, strings.Join(terms, ", "))
	}

	if len(s.IPCCodes) > 0 {
		codes := make([]string, 0, len(s.IPCCodes))
		for _, c := range s.IPCCodes {
			codes = append(codes, c.Category)
		}
		fmt.Fprintf(&b, "IPC codes: %s\n", strings.Join(codes, ", "))
	}
	fmt.Fprintf(&b, "Problem statement: %s\n", s.Problem)

	fmt.Fprintf(&b, `
Each query combines terms with AND/OR and parentheses, e.g.
(irrigation OR watering) AND (IoT OR sensor) AND (agriculture OR farming)

Return JSON: {"queries": ["<query>", ...]} with at most %d queries.
Return only the JSON object.`, maxQueries)
	return b.String()
}

// categoryTerms collects a category's seed keywords and their
// expansions, deduplicated, seed terms first.
func categoryTerms(s *State, category string) []string {
	seen := make(map[string]bool)
	terms := make([]string, 0)
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	if s.SeedKeywords == nil {
		return terms
	}
	for _, kw := range s.SeedKeywords.List(category) {
		add(kw)
		for _, expanded := range s.ExpandedKeywords[kw] {
			add(expanded)
		}
	}
	return terms
}

func scenarioScorePrompt(inputText string, doc string) string {
	return fmt.Sprintf(`Rate how closely this patent document matches the usage scenario of the invention below.

Invention:
%s

Patent document:
%s

Return JSON: {"score": <number between 0.0 and 1.0>}.
Return only the JSON object.`, inputText, doc)
}

func problemScorePrompt(problem string, doc string) string {
	return fmt.Sprintf(`Rate how closely this patent document addresses the technical problem below.

Technical problem:
%s

Patent document:
%s

Return JSON: {"score": <number between 0.0 and 1.0>}.
Return only the JSON object.`, problem, doc)
}
