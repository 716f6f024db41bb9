package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fatal run failure.
type ErrorKind string

const (
	KindOracleUnavailable      ErrorKind = "OracleUnavailable"
	KindIterationLimitExceeded ErrorKind = "IterationLimitExceeded"
	KindCancelled              ErrorKind = "Cancelled"
)

var (
	ErrOracleUnavailable      = errors.New("oracle unavailable")
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	ErrCancelled              = errors.New("run cancelled")
)

// AgentError is the only error Run returns. It matches the sentinel for its
// kind with errors.Is and unwraps to the underlying cause.
type AgentError struct {
	Kind       ErrorKind
	Iterations int
	Err        error
}

func (e *AgentError) Error() string {
	switch e.Kind {
	case KindIterationLimitExceeded:
		return fmt.Sprintf("agent stopped after %d iterations without a final answer", e.Iterations)
	case KindOracleUnavailable:
		return fmt.Sprintf("oracle unavailable: %v", e.Err)
	case KindCancelled:
		return fmt.Sprintf("run cancelled: %v", e.Err)
	}
	return fmt.Sprintf("agent error %s: %v", e.Kind, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

func (e *AgentError) Is(target error) bool {
	switch target {
	case ErrOracleUnavailable:
		return e.Kind == KindOracleUnavailable
	case ErrIterationLimitExceeded:
		return e.Kind == KindIterationLimitExceeded
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}
