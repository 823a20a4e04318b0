package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queueColumns = "id, segment, status, owner, created_at, updated_at"

// QueueBySegmentStatus returns the queue for (segment, status), or nil.
func (s *Store) QueueBySegmentStatus(ctx context.Context, segment string, status Status) (*Queue, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+queueColumns+` FROM queues WHERE segment = ? AND status = ?`,
		segment, status,
	)
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return q, nil
}

// QueueByID fetches a queue by identifier. Returns nil when absent.
func (s *Store) QueueByID(ctx context.Context, id int64) (*Queue, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+queueColumns+` FROM queues WHERE id = ?`,
		id,
	)
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return q, nil
}

// EnsureQueue resolves the queue for (segment, status), creating it when
// missing. A concurrent create racing the insert is absorbed by refetching.
func (s *Store) EnsureQueue(ctx context.Context, segment string, status Status, owner string) (*Queue, error) {
	ctx = ensureContext(ctx)
	if existing, err := s.QueueBySegmentStatus(ctx, segment, status); err != nil || existing != nil {
		return existing, err
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queues (segment, status, owner, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		segment, status, owner, formatTime(now), formatTime(now),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return s.QueueBySegmentStatus(ctx, segment, status)
		}
		return nil, fmt.Errorf("insert queue: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("queue insert id: %w", err)
	}
	return s.QueueByID(ctx, id)
}

// ListQueues returns every queue ordered by segment then status.
func (s *Store) ListQueues(ctx context.Context) ([]*Queue, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+queueColumns+` FROM queues ORDER BY segment, status`,
	)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []*Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, rows.Err()
}

func scanQueue(scanner interface{ Scan(dest ...any) error }) (*Queue, error) {
	var (
		q          Queue
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&q.ID, &q.Segment, &statusStr, &q.Owner, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	q.Status = Status(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		q.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		q.UpdatedAt = updated
	}
	return &q, nil
}
