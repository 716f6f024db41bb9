package agent

import "strings"

// EntryKind tags a scratchpad entry.
type EntryKind string

const (
	EntryThought     EntryKind = "thought"
	EntryAction      EntryKind = "action"
	EntryObservation EntryKind = "observation"
)

// ScratchpadEntry is one Thought, Action or Observation recorded during a
// run. Text carries the thought or observation; Tool and Input carry the action.
type ScratchpadEntry struct {
	Kind  EntryKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Tool  string    `json:"tool,omitempty"`
	Input string    `json:"input,omitempty"`
}

func Thought(text string) ScratchpadEntry {
	return ScratchpadEntry{Kind: EntryThought, Text: text}
}

func Action(tool, input string) ScratchpadEntry {
	return ScratchpadEntry{Kind: EntryAction, Tool: tool, Input: input}
}

func Observation(text string) ScratchpadEntry {
	return ScratchpadEntry{Kind: EntryObservation, Text: text}
}

// String renders the entry in the prompt's line grammar.
func (e ScratchpadEntry) String() string {
	switch e.Kind {
	case EntryThought:
		return "Thought: " + e.Text
	case EntryAction:
		return "Action: " + e.Tool + "\nAction Input: " + e.Input
	case EntryObservation:
		return "Observation: " + e.Text
	}
	return ""
}

// State is the per-run agent state. It is created by Run, mutated only by
// the loop and discarded when the run ends.
type State struct {
	Question   string            `json:"question"`
	Scratchpad []ScratchpadEntry `json:"scratchpad"`
	// Iterations counts non-terminal passes: tool dispatches and format
	// corrections. A final-answer pass does not count.
	Iterations int `json:"iterations"`
}

// Transcript renders the scratchpad one entry per line.
func (s *State) Transcript() string {
	lines := make([]string, len(s.Scratchpad))
	for i, e := range s.Scratchpad {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Count returns how many entries of the given kind the scratchpad holds.
func (s *State) Count(kind EntryKind) int {
	n := 0
	for _, e := range s.Scratchpad {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
