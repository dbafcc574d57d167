package reinforce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS signal_memory (
	symbol         TEXT PRIMARY KEY,
	last_signal_ms INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
)`

// SQLiteStore persists last-signal timestamps so reinforcement survives restarts
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer keeps Swap atomic without SQLITE_BUSY retries
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Swap(ctx context.Context, symbol string, ts time.Time) (time.Time, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var prevMs int64
	found := true
	err = tx.QueryRowContext(ctx, `SELECT last_signal_ms FROM signal_memory WHERE symbol = ?`, symbol).Scan(&prevMs)
	if errors.Is(err, sql.ErrNoRows) {
		found = false
	} else if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read signal memory: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO signal_memory (symbol, last_signal_ms, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET last_signal_ms = excluded.last_signal_ms, updated_at = excluded.updated_at`,
		symbol, ts.UnixMilli(), time.Now().UnixNano())
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to write signal memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to commit signal memory: %w", err)
	}

	if !found {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(prevMs), true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, symbol string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT last_signal_ms FROM signal_memory WHERE symbol = ?`, symbol).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read signal memory: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// Ping checks the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
