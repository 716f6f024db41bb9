package agent

import (
	"strings"

	"mathsgpt/internal/domain"
)

// DefaultPrefix opens every agent prompt unless the configuration overrides it.
const DefaultPrefix = "Answer the following questions as best you can. You have access to the following tools:"

// formatInstructions is the line grammar the parser relies on. It is not
// configurable.
const formatInstructions = `Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question`

// PromptBuilder renders the oracle-facing prompt. Build is pure: the same
// question, scratchpad and catalog always give the same prompt.
type PromptBuilder struct {
	prefix string
}

func NewPromptBuilder(prefix string) *PromptBuilder {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &PromptBuilder{prefix: prefix}
}

// Build assembles prefix, tool catalog, format block, question and scratchpad,
// ending with an open "Thought:" for the oracle to continue.
func (p *PromptBuilder) Build(question string, scratchpad []ScratchpadEntry, catalog []domain.ToolSpec) string {
	var sb strings.Builder

	sb.WriteString(p.prefix)
	sb.WriteString("\n\n")

	names := make([]string, len(catalog))
	for i, spec := range catalog {
		names[i] = spec.Name
		sb.WriteString(spec.Name)
		sb.WriteString(": ")
		sb.WriteString(spec.Description)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(strings.Replace(formatInstructions, "{tool_names}", strings.Join(names, ", "), 1))
	sb.WriteString("\n\nBegin!\n\n")

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n")
	for _, e := range scratchpad {
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}
	sb.WriteString("Thought:")
	return sb.String()
}
