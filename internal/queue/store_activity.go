package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendActivity writes one activity-log entry outside any transaction.
func (s *Store) AppendActivity(ctx context.Context, a *Activity) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`INSERT INTO activity_log (actor, entity_type, entity_id, event_type, payload, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		a.Actor, a.EntityType, a.EntityID, a.EventType, nullableString(a.Payload), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = now
	return nil
}

// RecentActivity returns the newest entries first, up to limit.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, actor, entity_type, entity_id, event_type, payload, created_at
         FROM activity_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var entries []*Activity
	for rows.Next() {
		var (
			entry      Activity
			payload    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.EntityType, &entry.EntityID, &entry.EventType, &payload, &createdRaw); err != nil {
			return nil, err
		}
		entry.Payload = payload.String
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
