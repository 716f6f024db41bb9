package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"mathsgpt/internal/agent"
)

const greeting = "Hi, I'm MathsGPT! How can I help you with numbers today?"

var (
	thoughtStyle     = lipgloss.NewStyle().Faint(true).Italic(true)
	actionStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	observationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	passStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	headingStyle     = lipgloss.NewStyle().Bold(true)
)

// maxTraceObservation bounds how much of an observation the verbose trace prints.
const maxTraceObservation = 600

// formatEntry renders one scratchpad entry for the verbose trace.
func formatEntry(e agent.ScratchpadEntry) string {
	switch e.Kind {
	case agent.EntryThought:
		return thoughtStyle.Render("Thought: " + e.Text)
	case agent.EntryAction:
		return actionStyle.Render("Action: "+e.Tool) + "\n" + actionStyle.Render("Action Input: "+e.Input)
	default:
		text := e.Text
		if r := []rune(text); len(r) > maxTraceObservation {
			text = string(r[:maxTraceObservation]) + "…"
		}
		return observationStyle.Render("Observation: " + text)
	}
}

// renderAnswer renders markdown answers for the terminal. plain skips it.
func renderAnswer(answer string, plain bool) string {
	if plain {
		return answer
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return answer
	}
	out, err := r.Render(answer)
	if err != nil {
		return answer
	}
	return strings.TrimRight(out, "\n")
}

// friendlyError turns a fatal run error into a message for a person.
func friendlyError(err error) string {
	var agentErr *agent.AgentError
	switch {
	case errors.Is(err, agent.ErrIterationLimitExceeded):
		steps := 0
		if errors.As(err, &agentErr) {
			steps = agentErr.Iterations
		}
		return fmt.Sprintf("I couldn't reach an answer within %d reasoning steps. Try rephrasing the question or raise --max-iterations.", steps)
	case errors.Is(err, agent.ErrOracleUnavailable):
		cause := err
		if errors.As(err, &agentErr) && agentErr.Err != nil {
			cause = agentErr.Err
		}
		return fmt.Sprintf("The language model could not be reached (%v). Check the provider API key (for Groq, GROQ_API_KEY) and your network.", cause)
	case errors.Is(err, agent.ErrCancelled):
		return "Cancelled."
	default:
		return "Error: " + err.Error()
	}
}
