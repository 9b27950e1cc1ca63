// Package journal keeps an append-only log of processing outcomes in SQLite.
// Input text is never stored; each row carries a BLAKE3 fingerprint and the length instead.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

const (
	DefaultRecentLimit = 50
	maxRecentLimit     = 1000
	maxMessageBytes    = 4 * 1024

	// timeLayout is fixed width so created_at sorts and compares as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one finished processing call.
type Entry struct {
	ID          string
	Operation   string
	InputHash   string
	InputLen    int
	Outcome     Outcome
	FailureKind string
	Message     string
	Attempts    int
	Duration    time.Duration
	CreatedAt   time.Time
}

// Record is the input to Journal.Record.
type Record struct {
	Operation   string
	Input       string
	Outcome     Outcome
	FailureKind string
	Message     string
	Attempts    int
	Duration    time.Duration
}

type Journal struct {
	db *sql.DB
}

// New wraps a database bootstrapped by storage.OpenSQLite.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Fingerprint returns the hex BLAKE3 digest recorded for an input.
func Fingerprint(input string) string {
	sum := blake3.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Record appends an entry and returns its id.
func (j *Journal) Record(ctx context.Context, rec Record) (string, error) {
	if rec.Operation == "" {
		return "", fmt.Errorf("operation is empty")
	}
	if rec.Outcome != OutcomeSuccess && rec.Outcome != OutcomeFailure {
		return "", fmt.Errorf("invalid outcome: %q", rec.Outcome)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(timeLayout)

	var kind, message any
	if rec.FailureKind != "" {
		kind = rec.FailureKind
	}
	if rec.Message != "" {
		m := rec.Message
		if len(m) > maxMessageBytes {
			m = m[:maxMessageBytes]
		}
		message = m
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO process_log(
  id, operation, input_hash, input_len, outcome, failure_kind, message, attempts, duration_ms, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, rec.Operation, Fingerprint(rec.Input), len(rec.Input), string(rec.Outcome), kind, message,
		rec.Attempts, rec.Duration.Milliseconds(), now)
	if err != nil {
		return "", fmt.Errorf("insert process_log: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)

	rows, err := j.db.QueryContext(ctx, `
SELECT id, operation, input_hash, input_len, outcome, failure_kind, message, attempts, duration_ms, created_at
FROM process_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query process_log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			outcome    string
			kind       sql.NullString
			message    sql.NullString
			durationMS int64
			createdAtS string
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.InputHash, &e.InputLen, &outcome, &kind, &message,
			&e.Attempts, &durationMS, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan process_log: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.FailureKind = kind.String
		e.Message = message.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process_log: %w", err)
	}
	return entries, nil
}

// Prune deletes entries created before cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, "DELETE FROM process_log WHERE created_at < ?;", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune process_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune process_log: %w", err)
	}
	return n, nil
}
