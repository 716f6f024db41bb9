package provider

import (
	"context"
	"fmt"

	"mathsgpt/internal/domain"
)

// ChatOracle adapts a chat Provider to the single-prompt Oracle contract.
// The prompt travels as one user message.
type ChatOracle struct {
	provider domain.Provider
	model    string
}

// NewOracle wraps p. An empty model leaves the choice to the provider.
func NewOracle(p domain.Provider, model string) *ChatOracle {
	return &ChatOracle{provider: p, model: model}
}

func (o *ChatOracle) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	resp, err := o.provider.Chat(ctx, domain.ChatRequest{
		Messages:    []domain.Message{{Role: "user", Content: prompt}},
		Model:       o.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stop:        opts.Stop,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("%s returned no response", o.provider.Name())
	}
	return resp.Content, nil
}
