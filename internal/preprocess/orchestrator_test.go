package preprocess

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

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/llm"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

type completionResponse struct {
	Text string `json:"text"`
}

const validFilledTemplate = `---
title: "Morning Momentum (Beginner)"
description: "Build a simple morning routine"
target_difficulty: beginner
dimension: physicalHealth
archetype: warrior
relation_type: GENERIC
estimated_duration: 300
reward: 50
language: english
region: US
---

## Overview

Small morning routines compound.

## Main Content

### Content Item 1

Start with one glass of water before anything else.

### Content Item 2

Lace up your shoes before checking your phone.

### Content Item 3

Keep the routine boringly simple for the first week.

## Quiz

Question: What should you do first each morning?
A) Check email
B) Drink water
C) Nothing
Correct Answer: B
Explanation: Anchoring the new habit to an existing trigger increases adherence.

Question: How long should the first version of a habit be?
A) One minute
B) One hour
C) All day
Correct Answer: A
Explanation: Small versions are easier to repeat consistently.
`

const invalidFilledTemplate = `---
title: "Missing Suffix"
description: "No suffix and too few sections"
target_difficulty: beginner
dimension: physicalHealth
archetype: warrior
relation_type: GENERIC
estimated_duration: 300
reward: 50
language: english
region: US
---

## Overview

Too short.

## Main Content

### Content Item 1

Only one item here.

## Quiz

Question: Is this enough?
A) Yes
B) No
Correct Answer: B
Explanation: Only one quiz item is present.
`

func testOrchestrator(t *testing.T, handler http.HandlerFunc) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := config.NewStore("../../configs")
	client := llm.NewClient(srv.URL, "test-key")
	return NewOrchestrator(store, client, nil)
}

func TestPreprocessWritesFilledTemplateOnFirstTrySuccess(t *testing.T) {
	o := testOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: validFilledTemplate})
	})

	outDir := t.TempDir()
	report, err := o.Preprocess(context.Background(), "../../testdata/extract/sample.md", outDir, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
		TargetAudience:   "general adult audience",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, report.Status)
	require.NotEmpty(t, report.OutputPath)

	raw, err := os.ReadFile(report.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Morning Momentum")
}

func TestPreprocessRepairsOnFirstFailureThenSucceeds(t *testing.T) {
	var calls int
	o := testOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(completionResponse{Text: invalidFilledTemplate})
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse{Text: validFilledTemplate})
	})

	outDir := t.TempDir()
	report, err := o.Preprocess(context.Background(), "../../testdata/extract/sample.md", outDir, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
		TargetAudience:   "general adult audience",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRepaired, report.Status)
	assert.Equal(t, 2, calls)
}

func TestPreprocessFailsWhenRepairAlsoInvalid(t *testing.T) {
	o := testOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: invalidFilledTemplate})
	})

	outDir := t.TempDir()
	_, err := o.Preprocess(context.Background(), "../../testdata/extract/sample.md", outDir, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
		TargetAudience:   "general adult audience",
	})
	require.Error(t, err)
}

func TestPreprocessDirBestEffortContinuesPastOneFailure(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.md"), []byte("# A\n\nSome content about morning habits.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.txt"), []byte("plain text body about routines.\n"), 0o644))

	var calls int
	o := testOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		// a.md is processed first: its first attempt and its one repair
		// retry both come back invalid, so it fails; b.txt then succeeds.
		if calls <= 2 {
			_ = json.NewEncoder(w).Encode(completionResponse{Text: invalidFilledTemplate})
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse{Text: validFilledTemplate})
	})

	outDir := t.TempDir()
	batch, err := o.PreprocessDir(context.Background(), srcDir, outDir, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
		TargetAudience:   "general adult audience",
	})
	require.NoError(t, err)
	require.Len(t, batch.Files, 2)

	var sawFailed, sawOther bool
	for _, f := range batch.Files {
		if f.Status == StatusFailed {
			sawFailed = true
		} else {
			sawOther = true
		}
	}
	assert.True(t, sawFailed, "expected at least one failure to be reported, not aborted")
	assert.True(t, sawOther, "expected the sibling file to still be processed")
}

func TestPreprocessDirParallelWorkersBestEffort(t *testing.T) {
	srcDir := t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), []byte("# Doc\n\nMorning routine content.\n"), 0o644))
	}

	o := testOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: validFilledTemplate})
	})

	outDir := t.TempDir()
	batch, err := o.PreprocessDir(context.Background(), srcDir, outDir, Options{
		Dimension:        supertask.DimensionPhysicalHealth,
		TargetDifficulty: supertask.Beginner,
		TargetAudience:   "general adult audience",
		ParallelWorkers:  2,
	})
	require.NoError(t, err)
	require.Len(t, batch.Files, 3)
	assert.True(t, batch.OK())
}
