package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebairos/supertask-pipeline/internal/preprocess"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

const filledTemplateResponse = `---
title: "Morning Momentum (Beginner)"
description: "Build a simple morning routine"
target_difficulty: beginner
dimension: physicalHealth
archetype: warrior
relation_type: GENERIC
relation_id: "HAB-001"
estimated_duration: 300
reward: 12
language: english
region: US
---

## Overview

Small morning routines compound into something remarkable over the years.

## Main Content

### Content Item 1

Start with one glass of water before anything else in the morning routine.

### Content Item 2

Lace up your shoes before checking your phone first thing in the morning.

### Content Item 3

Keep the first version of any new habit boringly small and easy to repeat.

## Quiz

Question: What should you do before checking your phone each morning?
A) Check email first
B) Drink a glass of water
C) Nothing at all
Correct Answer: B
Explanation: Anchoring the new habit to an existing morning trigger increases adherence substantially.

Question: How small should the first version of a habit be?
A) One tiny minute
B) One full hour
C) All day long
Correct Answer: A
Explanation: Small versions are dramatically easier to repeat consistently than ambitious ones.
`

type completionResponse struct {
	Text string `json:"text"`
}

func testRunner(t *testing.T, handler http.HandlerFunc) *Runner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRunner("../../configs", srv.URL, "test-key", nil, nil)
}

func TestPipelineRunsPreprocessThenGenerateEndToEnd(t *testing.T) {
	r := testRunner(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: filledTemplateResponse})
	})

	srcDir := t.TempDir()
	inputPath := filepath.Join(srcDir, "morning.md")
	require.NoError(t, os.WriteFile(inputPath, []byte("# Morning\n\nSome raw content about morning habits.\n"), 0o644))

	outDir := t.TempDir()
	var events []Event
	report, err := r.Pipeline(context.Background(), inputPath, outDir, []supertask.Difficulty{supertask.Beginner, supertask.Advanced}, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
		TargetAudience:   "general adult audience",
		ProgressSink:     func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, preprocess.StatusOK, report.Preprocess.Status)
	require.Len(t, report.Generate.Results, 2)

	var sawPreprocess, sawGenerate bool
	for _, ev := range events {
		if ev.Stage == "preprocess" {
			sawPreprocess = true
		}
		if ev.Stage == "generate" {
			sawGenerate = true
		}
	}
	assert.True(t, sawPreprocess)
	assert.True(t, sawGenerate)
}

func TestPipelineStopsAtPreprocessFailureWithoutCallingGenerate(t *testing.T) {
	r := testRunner(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "not a usable template"})
	})

	srcDir := t.TempDir()
	inputPath := filepath.Join(srcDir, "morning.md")
	require.NoError(t, os.WriteFile(inputPath, []byte("# Morning\n\nSome raw content.\n"), 0o644))

	outDir := t.TempDir()
	_, err := r.Pipeline(context.Background(), inputPath, outDir, []supertask.Difficulty{supertask.Beginner}, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
	})
	require.Error(t, err)
}
