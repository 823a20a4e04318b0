package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx is a write transaction over the task store. BeginTx runs with
// _txlock=immediate, so holding a Tx means holding the database write lock:
// a row read through it cannot change under the caller before Commit.
type Tx struct {
	tx *sql.Tx
}

// Begin opens an immediate write transaction, retrying on busy.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	ctx = ensureContext(ctx)
	var tx *sql.Tx
	err := retryOnBusy(ctx, func() error {
		var beginErr error
		tx, beginErr = s.db.BeginTx(ctx, nil)
		return beginErr
	})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// ItemByID fetches an item inside the transaction. Returns nil when absent.
func (t *Tx) ItemByID(ctx context.Context, id int64) (*Item, error) {
	return itemQueryRow(ctx, t.tx, `SELECT `+itemColumns+itemFrom+` WHERE i.id = ?`, id)
}

// InsertState appends a history row and returns its id.
func (t *Tx) InsertState(ctx context.Context, state *ItemState) (int64, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO queue_item_states (item_id, actor, status_code, status_value_id, note, metadata, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		state.ItemID,
		state.Actor,
		state.Status,
		state.StatusValueID,
		state.Note,
		nullableString(state.Metadata),
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("insert state: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("state insert id: %w", err)
	}
	state.ID = id
	state.CreatedAt = now
	return id, nil
}

// ItemMutation describes one guarded write to a queue item.
type ItemMutation struct {
	ItemID          int64
	ExpectedVersion int64
	Status          Status
	StatusValueID   int64
	CurrentStateID  int64
	SetAssignee     bool
	Assignee        string // empty clears the assignment
	ReplacePayload  bool
	Payload         string
}

// ApplyItemMutation performs the guarded item update: status, state pointer,
// version bump, lock-field clear, and optional assignee/payload changes. The
// WHERE clause re-checks the expected version; zero affected rows means the
// caller's version was stale.
func (t *Tx) ApplyItemMutation(ctx context.Context, m ItemMutation) (int64, error) {
	query := `UPDATE queue_items
         SET status_code = ?, status_value_id = ?, current_state_id = ?,
             locked_until = NULL, version = version + 1, updated_at = ?`
	args := []any{m.Status, m.StatusValueID, m.CurrentStateID, formatTime(time.Now().UTC())}
	if m.SetAssignee {
		query += `, assigned_to = ?`
		args = append(args, nullableString(m.Assignee))
	}
	if m.ReplacePayload {
		query += `, payload = ?`
		args = append(args, nullableString(m.Payload))
	}
	query += ` WHERE id = ? AND version = ?`
	args = append(args, m.ItemID, m.ExpectedVersion)

	res, err := t.tx.ExecContext(ensureContext(ctx), query, args...)
	if err != nil {
		return 0, fmt.Errorf("apply item mutation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mutation rows affected: %w", err)
	}
	return affected, nil
}

// AppendActivity writes one activity-log entry inside the transaction.
func (t *Tx) AppendActivity(ctx context.Context, a *Activity) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO activity_log (actor, entity_type, entity_id, event_type, payload, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		a.Actor,
		a.EntityType,
		a.EntityID,
		a.EventType,
		nullableString(a.Payload),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = now
	return nil
}
