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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFromProse(t *testing.T) {
	response := "Sure! Here is the result:\n```json\n{\"problem\": \"x\"}\n```\nHope that helps."
	jsonStr, err := extractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, `{"problem": "x"}`, jsonStr)
}

func TestExtractJSONRejectsNoBraces(t *testing.T) {
	_, err := extractJSON("no json here")
	assert.Error(t, err)
}

func TestParseConceptResponseJSON(t *testing.T) {
	matrix, err := parseConceptResponse(`The extraction:
		{"problem_purpose": "reduce waste", "object_system": "sensor grid", "environment_field": "farming"}`)
	require.NoError(t, err)
	assert.Equal(t, "reduce waste", matrix.ProblemPurpose)
	assert.Equal(t, "sensor grid", matrix.ObjectSystem)
	assert.Equal(t, "farming", matrix.EnvironmentField)
}

func TestParseConceptResponseLineFallback(t *testing.T) {
	matrix, err := parseConceptResponse(`Problem/Purpose: reduce water waste
Object/System: moisture sensor controller
Environment/Field: agriculture`)
	require.NoError(t, err)
	assert.Equal(t, "reduce water waste", matrix.ProblemPurpose)
	assert.Equal(t, "moisture sensor controller", matrix.ObjectSystem)
	assert.Equal(t, "agriculture", matrix.EnvironmentField)
}

func TestParseConceptResponseIncomplete(t *testing.T) {
	_, err := parseConceptResponse(`Problem: something`)
	assert.Error(t, err)
}

func TestParseKeywordResponseNormalizesNilLists(t *testing.T) {
	keywords, err := parseKeywordResponse(`{"problem_purpose": ["a", "b"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keywords.ProblemPurpose)
	assert.NotNil(t, keywords.ObjectSystem)
	assert.NotNil(t, keywords.EnvironmentField)
	assert.True(t, keywords.wellFormed())
}

func TestKeywordsFromMatrix(t *testing.T) {
	keywords := keywordsFromMatrix(&ConceptMatrix{
		ProblemPurpose:   "Reduce the water waste through scheduling",
		ObjectSystem:     "A soil moisture sensor with a controller",
		EnvironmentField: "agriculture",
	})
	assert.Equal(t, []string{"reduce", "water", "waste", "scheduling"}, keywords.ProblemPurpose)
	assert.Equal(t, []string{"soil", "moisture", "sensor", "controller"}, keywords.ObjectSystem)
	assert.Equal(t, []string{"agriculture"}, keywords.EnvironmentField)
}

func TestParseTermsResponseDeduplicates(t *testing.T) {
	terms, err := parseTermsResponse(`{"terms": ["drip control", " drip control ", "watering", ""]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"drip control", "watering"}, terms)
}

func TestParseQueriesResponseEmpty(t *testing.T) {
	_, err := parseQueriesResponse(`{"queries": []}`)
	assert.Error(t, err)
}

func TestParseScoreResponseClamps(t *testing.T) {
	for response, want := range map[string]float64{
		`{"score": 0.7}`:            0.7,
		`{"score": 1.4}`:            1.0,
		`{"score": -0.2}`:           0.0,
		`I would rate this 0.55 out of 1.`: 0.55,
	} {
		score, err := parseScoreResponse(response)
		require.NoError(t, err, response)
		assert.InDelta(t, want, score, 0.001, response)
	}
}

func TestParseScoreResponseNoNumber(t *testing.T) {
	_, err := parseScoreResponse("hard to say")
	assert.Error(t, err)
}

func TestDistinctKeepsCategoryOrder(t *testing.T) {
	k := SeedKeywords{
		ProblemPurpose:   []string{"alpha", "beta"},
		ObjectSystem:     []string{"beta", "gamma"},
		EnvironmentField: []string{"alpha", "delta"},
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, k.Distinct())
}

func TestParseActionForms(t *testing.T) {
	for input, want := range map[string]Action{
		"1": ActionApprove, "approve": ActionApprove, "a": ActionApprove, " A ": ActionApprove,
		"2": ActionReject, "reject": ActionReject, "r": ActionReject,
		"3": ActionEdit, "edit": ActionEdit, "e": ActionEdit,
	} {
		action, err := ParseAction(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, action, input)
	}

	_, err := ParseAction("yes please")
	assert.Error(t, err)
}

func TestStateValidate(t *testing.T) {
	base := func() *State {
		return &State{
			InputText:     "x",
			ConceptMatrix: &ConceptMatrix{ProblemPurpose: "p", ObjectSystem: "o", EnvironmentField: "e"},
			SeedKeywords: &SeedKeywords{
				ProblemPurpose:   []string{"p1"},
				ObjectSystem:     []string{"o1"},
				EnvironmentField: []string{"e1"},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("empty matrix field", func(t *testing.T) {
		s := base()
		s.ConceptMatrix.ObjectSystem = ""
		assert.Error(t, s.Validate())
	})

	t.Run("nil keyword list", func(t *testing.T) {
		s := base()
		s.SeedKeywords.EnvironmentField = nil
		assert.Error(t, s.Validate())
	})

	t.Run("expansion key outside seeds", func(t *testing.T) {
		s := base()
		s.ExpandedKeywords = map[string][]string{"stranger": {"x"}}
		assert.Error(t, s.Validate())
	})

	t.Run("candidates without decision", func(t *testing.T) {
		s := base()
		s.CandidateDocuments = []ScoredDocument{{URL: "u", ScenarioScore: 0.5, ProblemScore: 0.5}}
		assert.Error(t, s.Validate())
	})

	t.Run("candidates after reject", func(t *testing.T) {
		s := base()
		s.Decision = &Decision{Action: ActionReject}
		s.CandidateDocuments = []ScoredDocument{{URL: "u"}}
		assert.Error(t, s.Validate())
	})

	t.Run("duplicate candidate url", func(t *testing.T) {
		s := base()
		s.Decision = &Decision{Action: ActionApprove}
		s.CandidateDocuments = []ScoredDocument{{URL: "u"}, {URL: "u"}}
		assert.Error(t, s.Validate())
	})

	t.Run("score out of range", func(t *testing.T) {
		s := base()
		s.Decision = &Decision{Action: ActionApprove}
		s.CandidateDocuments = []ScoredDocument{{URL: "u", ScenarioScore: 1.1}}
		assert.Error(t, s.Validate())
	})

	t.Run("unknown decision action", func(t *testing.T) {
		s := base()
		s.Decision = &Decision{Action: Action("defer")}
		assert.Error(t, s.Validate())
	})
}
