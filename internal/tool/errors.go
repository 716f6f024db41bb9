package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a tool failure.
type ErrorKind string

const (
	KindInvalidExpression ErrorKind = "InvalidExpression"
	KindNoResults         ErrorKind = "NoResults"
	KindUnavailable       ErrorKind = "Unavailable"
	KindInternal          ErrorKind = "Internal"
)

// ToolError is the only error type a tool hands back to the agent loop.
// It is recoverable: the loop turns it into an observation.
type ToolError struct {
	Tool    string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	if e.Tool == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Tool, e.Kind, msg)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError builds a ToolError with a formatted message.
func NewToolError(kind ErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a ToolError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Kind == kind
}

// ErrRegistryFrozen is returned by Register once the registry is in use.
var ErrRegistryFrozen = errors.New("tool registry is frozen")

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool: %q is already registered", e.Name)
}

// UnknownToolError is returned when a lookup names a tool that does not exist.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %q (available: %v)", e.Name, e.Available)
}
