package agent

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// InstructionKind tells the loop what the oracle asked for.
type InstructionKind int

const (
	InstructionToolCall InstructionKind = iota
	InstructionFinalAnswer
)

// Instruction is the parsed form of one oracle reply.
type Instruction struct {
	Kind    InstructionKind
	Thought string // reasoning before the markers, may be empty
	Tool    string // ToolCall only
	Input   string // ToolCall only
	Answer  string // FinalAnswer only
}

// MalformedOutputError is returned when the oracle reply does not follow the
// line grammar. The loop recovers by feeding Reason back as an observation.
type MalformedOutputError struct {
	Reason string
	Output string
}

func (e *MalformedOutputError) Error() string {
	return "malformed oracle output: " + e.Reason
}

const (
	markerThought     = "Thought:"
	markerAction      = "Action:"
	markerActionInput = "Action Input:"
	markerFinalAnswer = "Final Answer:"
	markerObservation = "Observation:"

	maxToolNameLen = 64
)

type section int

const (
	sectionThought section = iota
	sectionNone
	sectionInput
	sectionAnswer
)

// Parse turns an oracle reply into an Instruction.
//
// Everything from the first "Observation:" line onward is dropped: the
// oracle sometimes invents the tool result itself. Markers are matched at the
// start of a line, case-insensitively. The action input and the final answer
// may span several lines.
func Parse(output string) (Instruction, error) {
	lines := strings.Split(dropObservations(output), "\n")

	var (
		thought     []string
		inputLines  []string
		answerLines []string
		tool        string
		hasAction   bool
		hasInput    bool
		hasFinal    bool
		current     = sectionThought
	)

scan:
	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if rest, ok := cutMarker(line, markerFinalAnswer); ok {
			hasFinal = true
			current = sectionAnswer
			answerLines = append(answerLines, rest)
			continue
		}
		// Tolerate "... so the Final Answer: 7" in the middle of a line.
		if idx := indexFold(line, markerFinalAnswer); idx > 0 && current == sectionThought {
			before := line[:idx]
			if rest, ok := cutMarker(before, markerThought); ok {
				before = rest
			}
			thought = append(thought, strings.TrimSpace(before))
			hasFinal = true
			current = sectionAnswer
			answerLines = append(answerLines, strings.TrimSpace(line[idx+len(markerFinalAnswer):]))
			continue
		}
		if rest, ok := cutMarker(line, markerActionInput); ok {
			if hasInput {
				break scan
			}
			hasInput = true
			current = sectionInput
			inputLines = append(inputLines, rest)
			continue
		}
		if rest, ok := cutMarker(line, markerAction); ok {
			if hasAction {
				// A second action: only the first one is executed.
				break scan
			}
			hasAction = true
			tool = rest
			current = sectionNone
			continue
		}
		if rest, ok := cutMarker(line, markerThought); ok {
			if current == sectionThought {
				thought = append(thought, rest)
			} else {
				current = sectionNone
			}
			continue
		}

		switch current {
		case sectionThought:
			thought = append(thought, line)
		case sectionInput:
			inputLines = append(inputLines, raw)
		case sectionAnswer:
			answerLines = append(answerLines, raw)
		}
	}

	instr := Instruction{Thought: strings.TrimSpace(strings.Join(thought, "\n"))}
	malformed := func(reason string) (Instruction, error) {
		return Instruction{}, &MalformedOutputError{Reason: reason, Output: output}
	}

	switch {
	case hasFinal && (hasAction || hasInput):
		return malformed("both an action and a final answer were given")
	case hasFinal:
		instr.Kind = InstructionFinalAnswer
		instr.Answer = strings.TrimSpace(strings.Join(answerLines, "\n"))
		if instr.Answer == "" {
			return malformed("the final answer is empty")
		}
		return instr, nil
	case hasAction && !hasInput:
		return malformed(`"Action:" was given without "Action Input:"`)
	case hasInput && !hasAction:
		return malformed(`"Action Input:" was given without "Action:"`)
	case !hasAction:
		return malformed(`no "Action:" or "Final Answer:" marker was found`)
	}

	name := cleanToolName(tool)
	if !validToolName(name) {
		return malformed(fmt.Sprintf("%q is not a valid tool name", strings.TrimSpace(tool)))
	}
	instr.Kind = InstructionToolCall
	instr.Tool = name
	instr.Input = cleanInput(strings.Join(inputLines, "\n"))
	return instr, nil
}

// dropObservations cuts the text at the first line starting with "Observation:".
func dropObservations(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if _, ok := cutMarker(strings.TrimSpace(line), markerObservation); ok {
			return strings.Join(lines[:i], "\n")
		}
	}
	return s
}

func cutMarker(line, marker string) (string, bool) {
	if len(line) < len(marker) || !strings.EqualFold(line[:len(marker)], marker) {
		return "", false
	}
	return strings.TrimSpace(line[len(marker):]), true
}

// indexFold returns the byte offset in s of the first case-insensitive match
// of substr, or -1. Offsets always refer to s itself: lowercasing can change
// the byte length of some runes.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

// cleanToolName removes decoration models like to add around the name:
// brackets, quotes, backticks and a trailing period.
func cleanToolName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "[]`\"'*")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}

func validToolName(s string) bool {
	if s == "" || len(s) > maxToolNameLen {
		return false
	}
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSpace(s[3 : len(s)-3])
	}
	return strings.TrimSpace(strings.Trim(s, "\"'`"))
}
