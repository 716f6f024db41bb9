// Package runlog keeps an SQLite audit trail of finished agent runs.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mathsgpt/internal/domain"
)

// SQLiteStore implements domain.RunStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.RunStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveRun inserts rec. Saving the same ID twice replaces the earlier row.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec domain.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Scratchpad == "" {
		rec.Scratchpad = "[]"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, question, answer, outcome, error, iterations, scratchpad, model, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, rec.Answer, string(rec.Outcome), rec.Error, rec.Iterations,
		rec.Scratchpad, rec.Model, rec.LatencyMs, rec.CreatedAt.UTC(),
	)
	return err
}

const runColumns = `id, question, answer, outcome, error, iterations, scratchpad, model, latency_ms, created_at`

// GetRun returns the run with the given ID, or nil when there is none.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// OutcomeCounts returns how many stored runs ended with each outcome.
func (s *SQLiteStore) OutcomeCounts(ctx context.Context) (map[domain.RunOutcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RunOutcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[domain.RunOutcome(outcome)] = n
	}
	return counts, rows.Err()
}

// Purge deletes runs older than the retention window and reports how many
// rows went. A non-positive retention keeps everything.
func (s *SQLiteStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("purged old runs", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	var outcome string
	var answer, errText, scratchpad, model sql.NullString
	var latency sql.NullInt64
	if err := r.Scan(&rec.ID, &rec.Question, &answer, &outcome, &errText,
		&rec.Iterations, &scratchpad, &model, &latency, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Outcome = domain.RunOutcome(outcome)
	rec.Answer = answer.String
	rec.Error = errText.String
	rec.Scratchpad = scratchpad.String
	rec.Model = model.String
	rec.LatencyMs = latency.Int64
	return &rec, nil
}
