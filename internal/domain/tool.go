package domain

import "context"

// Tool is the interface for agent capabilities (calculator, lookup, reasoning).
// Invoke takes the raw "Action Input" text and returns the observation text.
// Failures are reported as *tool.ToolError values, never as panics.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input string) (string, error)
}

// ToolSpec is the name/description pair rendered into the prompt catalog.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
