package domain

import "context"

// CompletionOptions tunes a single oracle call.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Oracle is an opaque text-completion service. The agent loop, the calculator
// and the reasoning tool only ever talk to the model through this interface.
type Oracle interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, prompt string, opts CompletionOptions) (string, error)

func (f OracleFunc) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return f(ctx, prompt, opts)
}
