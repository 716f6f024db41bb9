package tool

import (
	"context"
	"strings"

	"mathsgpt/internal/domain"
)

const reasoningTemplate = `You are a helpful mathematical assistant.
Explain your reasoning clearly and provide a step-by-step solution.
Question: {question}
Answer:`

// Reasoning delegates a sub-question to the oracle with a step-by-step
// instruction and returns the raw explanation.
type Reasoning struct {
	oracle  domain.Oracle
	options domain.CompletionOptions
}

func NewReasoning(oracle domain.Oracle, opts domain.CompletionOptions) *Reasoning {
	return &Reasoning{oracle: oracle, options: opts}
}

func (r *Reasoning) Name() string { return "Reasoning" }
func (r *Reasoning) Description() string {
	return "Useful for word problems that require logical reasoning or multi-step math. Input should be the full sub-question."
}

func (r *Reasoning) Invoke(ctx context.Context, input string) (string, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return "", NewToolError(KindNoResults, "empty question")
	}

	prompt := strings.Replace(reasoningTemplate, "{question}", question, 1)
	reply, err := r.oracle.Complete(ctx, prompt, r.options)
	if err != nil {
		return "", &ToolError{Kind: KindUnavailable, Message: "reasoning call failed", Err: err}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", NewToolError(KindNoResults, "the model returned an empty explanation")
	}
	return reply, nil
}
