package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const lockColumns = "id, scope, target_id, owner_agent, token, expires_at, created_at"

// InsertLock records a new lease row. Uniqueness violations on
// (scope, target_id) pass through for the lease manager to translate.
func (s *Store) InsertLock(ctx context.Context, lock *Lock) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`INSERT INTO queue_locks (scope, target_id, owner_agent, token, expires_at, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		lock.Scope,
		lock.TargetID,
		lock.Owner,
		lock.Token,
		formatTime(lock.ExpiresAt),
		formatTime(now),
	)
	if err != nil {
		return err
	}
	lock.ID, _ = res.LastInsertId()
	lock.CreatedAt = now
	return nil
}

// LockByToken returns the lease with the given token, or nil.
func (s *Store) LockByToken(ctx context.Context, token string) (*Lock, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+lockColumns+` FROM queue_locks WHERE token = ?`,
		token,
	)
	return lockFromRow(row)
}

// LockFor returns the lease row for (scope, target), expired or not, or nil.
func (s *Store) LockFor(ctx context.Context, scope LockScope, targetID int64) (*Lock, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+lockColumns+` FROM queue_locks WHERE scope = ? AND target_id = ?`,
		scope, targetID,
	)
	return lockFromRow(row)
}

// DeleteLock removes a lease row by id. Deleting an already-removed lease
// reports false without error.
func (s *Store) DeleteLock(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM queue_locks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lock rows affected: %w", err)
	}
	return affected > 0, nil
}

// ExpiredLocks returns every lease whose TTL passed before cutoff.
func (s *Store) ExpiredLocks(ctx context.Context, cutoff time.Time) ([]*Lock, error) {
	return s.lockQueryAll(
		ctx,
		`SELECT `+lockColumns+` FROM queue_locks WHERE expires_at <= ? ORDER BY expires_at`,
		formatTime(cutoff),
	)
}

// ListLocks returns every lease ordered by expiry.
func (s *Store) ListLocks(ctx context.Context) ([]*Lock, error) {
	return s.lockQueryAll(ctx, `SELECT `+lockColumns+` FROM queue_locks ORDER BY expires_at`)
}

// StampItemLock sets or clears the denormalized locked_until field so read
// paths see lease state without joining queue_locks.
func (s *Store) StampItemLock(ctx context.Context, itemID int64, until *time.Time) error {
	if err := retryOnBusy(ensureContext(ctx), func() error {
		_, err := s.db.ExecContext(
			ctx,
			`UPDATE queue_items SET locked_until = ? WHERE id = ?`,
			nullableTime(until), itemID,
		)
		return err
	}); err != nil {
		return fmt.Errorf("stamp item lock: %w", err)
	}
	return nil
}

func (s *Store) lockQueryAll(ctx context.Context, query string, args ...any) ([]*Lock, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()

	var locks []*Lock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

func lockFromRow(row *sql.Row) (*Lock, error) {
	lock, err := scanLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lock: %w", err)
	}
	return lock, nil
}

func scanLock(scanner interface{ Scan(dest ...any) error }) (*Lock, error) {
	var (
		lock       Lock
		scopeStr   string
		expiresRaw string
		createdRaw string
	)
	if err := scanner.Scan(&lock.ID, &scopeStr, &lock.TargetID, &lock.Owner, &lock.Token, &expiresRaw, &createdRaw); err != nil {
		return nil, err
	}
	lock.Scope = LockScope(scopeStr)
	if expires, err := parseTimeString(expiresRaw); err == nil {
		lock.ExpiresAt = expires
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		lock.CreatedAt = created
	}
	return &lock, nil
}
