package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AcquireLock takes the named lock for owner until ttl elapses. It returns
// false when another owner holds an unexpired lock. Re-acquiring a lock
// already held by owner extends it.
func (s *Store) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(owner) == "" {
		return false, errors.New("lock name and owner are required")
	}
	if ttl <= 0 {
		return false, errors.New("lock ttl must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin lock: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	var holder, expiresAt string
	err = tx.QueryRowContext(ctx, "SELECT owner, expires_at FROM locks WHERE name = ?", name).Scan(&holder, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("read lock %s: %w", name, err)
	default:
		exp, perr := parseTime(expiresAt)
		if perr != nil {
			return false, fmt.Errorf("parse lock expiry: %w", perr)
		}
		if holder != owner && now.Before(exp) {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
	`, name, owner, formatTime(now.Add(ttl))); err != nil {
		return false, fmt.Errorf("write lock %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lock %s: %w", name, err)
	}
	return true, nil
}

// ReleaseLock drops the lock if owner still holds it.
func (s *Store) ReleaseLock(ctx context.Context, name, owner string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM locks WHERE name = ? AND owner = ?", name, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
