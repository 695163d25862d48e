package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteOpener backs all runs with a single SQLite database. Suits the CLI's
// durable default: no directory tree, safe concurrent access via WAL.
type SQLiteOpener struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteOpener opens (or creates) the database and its schema.
func NewSQLiteOpener(dbPath string) (*SQLiteOpener, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS run_values (
		run_id     TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteOpener{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (o *SQLiteOpener) Close() error {
	return o.db.Close()
}

// Open returns a store scoped to the given run.
func (o *SQLiteOpener) Open(runID string) (Store, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	return &sqliteStore{db: o.db, runID: runID}, nil
}

// ListRuns returns the distinct run IDs present in the database.
func (o *SQLiteOpener) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM run_values ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan run ID: %w", err)
		}
		runs = append(runs, runID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type sqliteStore struct {
	db    *sql.DB
	runID string
}

func (s *sqliteStore) Save(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_values (run_id, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(run_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		s.runID, key, value)
	if err != nil {
		return fmt.Errorf("failed to save value: %w", err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM run_values WHERE run_id = ? AND key = ?`,
		s.runID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	return value, nil
}

func (s *sqliteStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM run_values WHERE run_id = ? AND key = ?`,
		s.runID, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM run_values WHERE run_id = ? AND key = ?`,
		s.runID, key)
	if err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM run_values
		WHERE run_id = ?
		  AND key LIKE ? ESCAPE '\'
		  AND key NOT LIKE ? ESCAPE '\'
		ORDER BY key`,
		s.runID, escapeLike(prefix)+"%", escapeLike(ReservedPrefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM run_values
		WHERE run_id = ? AND key NOT LIKE ? ESCAPE '\'`,
		s.runID, escapeLike(ReservedPrefix)+"%")
	if err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so prefixes match literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
