package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "i.id, i.queue_id, q.segment, i.external_ref, i.title, i.priority, i.payload, i.created_by, i.assigned_to, i.due_at, i.locked_until, i.current_state_id, i.status_code, i.status_value_id, i.version, i.created_at, i.updated_at"

const itemFrom = " FROM queue_items i JOIN queues q ON q.id = i.queue_id"

// NewItem carries everything needed to create an item plus its initial
// history row in one transaction.
type NewItem struct {
	QueueID       int64
	ExternalRef   string
	Title         string
	Priority      int
	Payload       string
	CreatedBy     string
	DueAt         *time.Time
	Status        Status
	StatusValueID int64
	Actor         string
	Note          string
	StateMetadata string
}

// CreateItem inserts a queue item with version 0, its initial history row,
// and an activity entry, atomically. Uniqueness violations on external_ref
// pass through untranslated; callers map them to their typed conflict.
func (s *Store) CreateItem(ctx context.Context, n NewItem) (*Item, error) {
	ctx = ensureContext(ctx)
	tx, err := s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.tx.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            queue_id, external_ref, title, priority, payload, created_by,
            assigned_to, due_at, locked_until, current_state_id,
            status_code, status_value_id, version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, NULL, NULL, ?, ?, 0, ?, ?)`,
		n.QueueID,
		nullableString(n.ExternalRef),
		n.Title,
		n.Priority,
		nullableString(n.Payload),
		n.CreatedBy,
		nullableTime(n.DueAt),
		n.Status,
		n.StatusValueID,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, err
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	stateID, err := tx.InsertState(ctx, &ItemState{
		ItemID:        itemID,
		Actor:         n.Actor,
		Status:        n.Status,
		StatusValueID: n.StatusValueID,
		Note:          n.Note,
		Metadata:      n.StateMetadata,
	})
	if err != nil {
		return nil, err
	}

	if _, err := tx.tx.ExecContext(
		ctx,
		`UPDATE queue_items SET current_state_id = ? WHERE id = ?`,
		stateID, itemID,
	); err != nil {
		return nil, fmt.Errorf("point initial state: %w", err)
	}

	if err := tx.AppendActivity(ctx, &Activity{
		Actor:      n.Actor,
		EntityType: "queue_item",
		EntityID:   itemID,
		EventType:  "created",
		Payload:    n.StateMetadata,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create item: %w", err)
	}
	return s.ItemByID(ctx, itemID)
}

// ItemByID fetches a queue item by identifier. Returns nil when absent.
func (s *Store) ItemByID(ctx context.Context, id int64) (*Item, error) {
	return itemQueryRow(ctx, s.db, `SELECT `+itemColumns+itemFrom+` WHERE i.id = ?`, id)
}

// ItemByExternalRef fetches a queue item by its idempotency key. Returns nil when absent.
func (s *Store) ItemByExternalRef(ctx context.Context, ref string) (*Item, error) {
	if ref == "" {
		return nil, nil
	}
	return itemQueryRow(ctx, s.db, `SELECT `+itemColumns+itemFrom+` WHERE i.external_ref = ?`, ref)
}

// ActiveItemForAgent returns the agent's oldest-updated item whose status is
// in statuses, or nil when the agent has no in-flight work.
func (s *Store) ActiveItemForAgent(ctx context.Context, agentID string, statuses []Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + itemFrom +
		` WHERE i.assigned_to = ? AND i.status_code IN (` + makePlaceholders(len(statuses)) + `)
         ORDER BY i.updated_at ASC LIMIT 1`
	args := append([]any{agentID}, statusArgs(statuses)...)
	return itemQueryRow(ctx, s.db, query, args...)
}

// NextPickupItem returns the best claimable item in a segment: highest
// priority first, oldest first on ties. Items at or above priorityFloor only.
func (s *Store) NextPickupItem(ctx context.Context, segment string, statuses []Status, priorityFloor int) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + itemFrom +
		` WHERE q.segment = ? AND i.status_code IN (` + makePlaceholders(len(statuses)) + `)
           AND i.priority >= ? AND i.assigned_to IS NULL
         ORDER BY i.priority DESC, i.created_at ASC LIMIT 1`
	args := append([]any{segment}, statusArgs(statuses)...)
	args = append(args, priorityFloor)
	return itemQueryRow(ctx, s.db, query, args...)
}

// ItemsForSegment returns a segment's items, optionally filtered by status,
// ordered by priority then age.
func (s *Store) ItemsForSegment(ctx context.Context, segment string, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + itemFrom + ` WHERE q.segment = ?`
	args := []any{segment}
	if len(statuses) > 0 {
		query += ` AND i.status_code IN (` + makePlaceholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}
	query += ` ORDER BY i.priority DESC, i.created_at ASC`
	return itemQueryAll(ctx, s.db, query, args...)
}

// ListItems returns items filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (s *Store) ListItems(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + itemFrom
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE i.status_code IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY i.created_at`
	return itemQueryAll(ctx, s.db, query, args...)
}

// StatesForItem returns an item's full history, oldest first.
func (s *Store) StatesForItem(ctx context.Context, itemID int64) ([]*ItemState, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, actor, status_code, status_value_id, note, metadata, created_at
         FROM queue_item_states WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query item states: %w", err)
	}
	defer rows.Close()

	var states []*ItemState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Stats returns a count of items grouped by status code.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status_code, COUNT(1) FROM queue_items GROUP BY status_code`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates item counts for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusInProgress, StatusInReview:
			health.Active += count
		case StatusCompleted:
			health.Completed += count
		case StatusReturned:
			health.Returned += count
		case StatusBlocked:
			health.Blocked += count
		}
	}
	return health, nil
}

// InsertTemplate attaches reference material to an item.
func (s *Store) InsertTemplate(ctx context.Context, t *Template) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_item_templates (item_id, code, kind, uri, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ItemID, t.Code, t.Kind, t.URI, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	t.CreatedAt = now
	return nil
}

// TemplatesForItem returns an item's attached templates.
func (s *Store) TemplatesForItem(ctx context.Context, itemID int64) ([]*Template, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, code, kind, uri, created_at FROM queue_item_templates WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		var (
			t          Template
			createdRaw string
		)
		if err := rows.Scan(&t.ID, &t.ItemID, &t.Code, &t.Kind, &t.URI, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			t.CreatedAt = created
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// InsertArtifact records a submitted deliverable against an item.
func (s *Store) InsertArtifact(ctx context.Context, a *Artifact) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_item_artifacts (item_id, code, uri, submitted_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ItemID, a.Code, a.URI, a.SubmittedBy, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = now
	return nil
}

// ArtifactsForItem returns an item's submitted deliverables.
func (s *Store) ArtifactsForItem(ctx context.Context, itemID int64) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, code, uri, submitted_by, created_at FROM queue_item_artifacts WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		var (
			a          Artifact
			createdRaw string
		)
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Code, &a.URI, &a.SubmittedBy, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			a.CreatedAt = created
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

func itemQueryRow(ctx context.Context, q dbtx, query string, args ...any) (*Item, error) {
	item, err := scanItem(q.QueryRowContext(ensureContext(ctx), query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return item, nil
}

func itemQueryAll(ctx context.Context, q dbtx, query string, args ...any) ([]*Item, error) {
	rows, err := q.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id          int64
		queueID     int64
		segment     string
		externalRef sql.NullString
		title       string
		priority    int
		payload     sql.NullString
		createdBy   string
		assignedTo  sql.NullString
		dueRaw      sql.NullString
		lockedRaw   sql.NullString
		stateID     sql.NullInt64
		statusStr   string
		statusValue int64
		version     int64
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&queueID,
		&segment,
		&externalRef,
		&title,
		&priority,
		&payload,
		&createdBy,
		&assignedTo,
		&dueRaw,
		&lockedRaw,
		&stateID,
		&statusStr,
		&statusValue,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:             id,
		QueueID:        queueID,
		Segment:        segment,
		ExternalRef:    externalRef.String,
		Title:          title,
		Priority:       priority,
		Payload:        payload.String,
		CreatedBy:      createdBy,
		AssignedTo:     assignedTo.String,
		CurrentStateID: stateID.Int64,
		Status:         Status(statusStr),
		StatusValueID:  statusValue,
		Version:        version,
	}
	if dueRaw.Valid {
		if due, err := parseTimeString(dueRaw.String); err == nil {
			item.DueAt = &due
		}
	}
	if lockedRaw.Valid {
		if locked, err := parseTimeString(lockedRaw.String); err == nil {
			item.LockedUntil = &locked
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func scanState(scanner interface{ Scan(dest ...any) error }) (*ItemState, error) {
	var (
		state      ItemState
		statusStr  string
		note       sql.NullString
		metadata   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&state.ID,
		&state.ItemID,
		&state.Actor,
		&statusStr,
		&state.StatusValueID,
		&note,
		&metadata,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	state.Status = Status(statusStr)
	state.Note = note.String
	state.Metadata = metadata.String
	if created, err := parseTimeString(createdRaw); err == nil {
		state.CreatedAt = created
	}
	return &state, nil
}
