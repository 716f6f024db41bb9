// Package oracletest provides a deterministic oracle for tests.
package oracletest

import (
	"context"
	"fmt"
	"sync"

	"mathsgpt/internal/domain"
)

// Response configures one oracle turn in a scripted sequence.
type Response struct {
	Text string
	Err  error
}

// Call records one Complete invocation.
type Call struct {
	Prompt  string
	Options domain.CompletionOptions
}

// Scripted replays responses in order and records every prompt it receives.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
	calls     []Call
	// Repeat makes the last response repeat forever once the script ends.
	Repeat bool
}

var _ domain.Oracle = (*Scripted)(nil)

func New(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{responses: cloned}
}

// Texts is shorthand for a script of successful replies.
func Texts(texts ...string) *Scripted {
	rs := make([]Response, len(texts))
	for i, t := range texts {
		rs[i] = Response{Text: t}
	}
	return New(rs...)
}

func (s *Scripted) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Prompt: prompt, Options: opts})
	if s.index >= len(s.responses) {
		if s.Repeat && len(s.responses) > 0 {
			last := s.responses[len(s.responses)-1]
			return last.Text, last.Err
		}
		return "", fmt.Errorf("script exhausted at step %d", s.index+1)
	}
	current := s.responses[s.index]
	s.index++
	return current.Text, current.Err
}

// Calls returns a copy of the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Prompts returns just the recorded prompts.
func (s *Scripted) Prompts() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Prompt
	}
	return out
}
