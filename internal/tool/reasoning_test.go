package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathsgpt/internal/domain"
	"mathsgpt/internal/oracletest"
)

func TestReasoning_UsesStepByStepTemplate(t *testing.T) {
	oracle := oracletest.Texts("  Step 1: 5 - 2 = 3 bananas.\nStep 2: 7 - 3 = 4 grapes.\nTotal: 7  ")
	r := NewReasoning(oracle, domain.CompletionOptions{MaxTokens: 512, Temperature: 0.2})

	got, err := r.Invoke(context.Background(), "How many fruits are left?")
	require.NoError(t, err)
	assert.Equal(t, "Step 1: 5 - 2 = 3 bananas.\nStep 2: 7 - 3 = 4 grapes.\nTotal: 7", got)

	calls := oracle.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "step-by-step solution")
	assert.Contains(t, calls[0].Prompt, "Question: How many fruits are left?\nAnswer:")
	assert.Equal(t, 512, calls[0].Options.MaxTokens)
}

func TestReasoning_OracleFailure(t *testing.T) {
	r := NewReasoning(oracletest.New(oracletest.Response{Err: errors.New("401 unauthorized")}), domain.CompletionOptions{})
	_, err := r.Invoke(context.Background(), "why?")
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}

func TestReasoning_EmptyReply(t *testing.T) {
	r := NewReasoning(oracletest.Texts("   "), domain.CompletionOptions{})
	_, err := r.Invoke(context.Background(), "why?")
	assert.True(t, IsKind(err, KindNoResults), "got %v", err)
}
