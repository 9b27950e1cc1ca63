package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps preferences in the preferences table created by storage.BootstrapSQLite.
type SQLiteStore struct {
	db       *sql.DB
	maxBytes int
}

// NewSQLiteStore wraps an opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:       db,
		maxBytes: DefaultMaxValueBytes,
	}
}

// GetString returns the stored value, or ok=false if the key is missing.
func (s *SQLiteStore) GetString(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?;", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference: %w", err)
	}
	return raw, true, nil
}

// SetString upserts a value.
func (s *SQLiteStore) SetString(ctx context.Context, key, value string) error {
	if err := checkWrite(key, value, s.maxBytes); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO preferences(key, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, key, value, now)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE key = ?;", key); err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return nil
}

var _ Writer = (*SQLiteStore)(nil)
