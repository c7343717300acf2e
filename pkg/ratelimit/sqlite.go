package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps drip history in a sqlite database so it survives
// restarts.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: open db: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases
	// shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ratelimit: wal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ratelimit: migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drips (
			key TEXT NOT NULL,
			at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drips_key_at ON drips(key, at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", stmt[:30], err)
		}
	}

	return nil
}

func (s *SQLiteStore) Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := now.Add(-window).UnixNano()
	if _, err := tx.ExecContext(ctx, `DELETE FROM drips WHERE key = ? AND at <= ?`, key, cutoff); err != nil {
		return fmt.Errorf("expire drips: %w", err)
	}

	var (
		count  int
		oldest sql.NullInt64
	)
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*), MIN(at) FROM drips WHERE key = ?`, key)
	if err := row.Scan(&count, &oldest); err != nil {
		return fmt.Errorf("count drips: %w", err)
	}

	if count >= limit {
		if err := tx.Commit(); err != nil {
			return err
		}

		return &LimitError{RetryAfter: retryAfter(time.Unix(0, oldest.Int64), now, window)}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO drips (key, at) VALUES (?, ?)`, key, now.UnixNano()); err != nil {
		return fmt.Errorf("record drip: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Release(ctx context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM drips WHERE rowid IN (SELECT rowid FROM drips WHERE key = ? AND at = ? LIMIT 1)`,
		key, at.UnixNano())
	if err != nil {
		return fmt.Errorf("release drip: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Prune(ctx context.Context, now time.Time, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM drips WHERE at <= ?`, now.Add(-window).UnixNano()); err != nil {
		return fmt.Errorf("prune drips: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
