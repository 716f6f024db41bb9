package domain

import (
	"context"
	"time"
)

type RunOutcome string

const (
	OutcomeSuccess           RunOutcome = "success"
	OutcomeOracleUnavailable RunOutcome = "oracle_unavailable"
	OutcomeIterationLimit    RunOutcome = "iteration_limit"
	OutcomeCancelled         RunOutcome = "cancelled"
)

// RunRecord is the audit entry written once an agent run terminates.
type RunRecord struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer,omitempty"`
	Outcome    RunOutcome `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	Iterations int        `json:"iterations"`
	Scratchpad string     `json:"scratchpad"` // JSON-encoded entries
	Model      string     `json:"model,omitempty"`
	LatencyMs  int64      `json:"latency_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RunStore persists finished runs for auditing.
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
