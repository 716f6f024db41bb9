package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathsgpt/internal/domain"
)

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	assert.Contains(t, buf.String(), "No runs recorded yet.")

	buf.Reset()
	printRuns(&buf, []domain.RunRecord{{
		ID:        "0123456789abcdef",
		Question:  "What is the square root of 144?",
		Outcome:   domain.OutcomeSuccess,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "square root of 144")
}

func TestPrintRun_DecodesScratchpad(t *testing.T) {
	rec := &domain.RunRecord{
		ID:         "run-1",
		Question:   "2+2?",
		Outcome:    domain.OutcomeIterationLimit,
		Error:      "agent stopped after 1 iterations without a final answer",
		Iterations: 1,
		Scratchpad: `[{"kind":"thought","text":"use the calculator"},{"kind":"action","tool":"Calculator","input":"2+2"},{"kind":"observation","text":"4"}]`,
		CreatedAt:  time.Now(),
	}
	var buf bytes.Buffer
	require.NoError(t, printRun(&buf, rec))
	out := buf.String()
	assert.Contains(t, out, "Thought: use the calculator")
	assert.Contains(t, out, "Action: Calculator")
	assert.Contains(t, out, "Observation: 4")
	assert.Contains(t, out, "without a final answer")
}

func TestPrintRun_BadScratchpad(t *testing.T) {
	var buf bytes.Buffer
	err := printRun(&buf, &domain.RunRecord{ID: "x", Scratchpad: "not json"})
	assert.ErrorContains(t, err, "decode scratchpad")
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, map[domain.RunOutcome]int{
		domain.OutcomeSuccess:        3,
		domain.OutcomeIterationLimit: 1,
	})
	out := buf.String()
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "iteration_limit")
	assert.Contains(t, out, "4")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
