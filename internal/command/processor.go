// Package command applies guarded mutations to queue items. Every status
// transition in the system funnels through Processor.UpdateItem so the
// version check, history append, and activity log stay in one transaction.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"conveyor/internal/catalog"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Command describes one requested item mutation. ExpectedVersion must match
// the version the caller last observed; a mismatch is rejected, never merged.
type Command struct {
	ItemID          int64
	ExpectedVersion int64
	Status          queue.Status
	Actor           string
	Note            string
	Metadata        map[string]any

	// SetAssignee toggles whether Assignee is applied. An empty Assignee
	// with SetAssignee true clears the assignment.
	SetAssignee bool
	Assignee    string

	// ReplacePayload toggles whether Payload overwrites the stored payload.
	ReplacePayload bool
	Payload        string
}

// Processor is the optimistic command processor over the task store.
type Processor struct {
	store   *queue.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewProcessor(store *queue.Store, cat *catalog.Catalog, logger *slog.Logger) *Processor {
	return &Processor{
		store:   store,
		catalog: cat,
		logger:  logging.NewComponentLogger(logger, "command"),
	}
}

// UpdateItem performs one atomic item transition: status, optional assignee
// and payload changes, a history row, the current-state repoint, and an
// activity entry. The stored version must equal cmd.ExpectedVersion or the
// whole operation fails with ErrVersionConflict and no observable change.
func (p *Processor) UpdateItem(ctx context.Context, cmd Command) (*queue.Item, error) {
	if cmd.Actor == "" {
		return nil, services.FieldError("command", "update_item", "actor", "must not be blank")
	}
	ctx = services.WithItemID(ctx, cmd.ItemID)
	statusID, err := p.catalog.Resolve(ctx, cmd.Status)
	if err != nil {
		return nil, err
	}
	metadata, err := encodeMetadata(cmd.Metadata)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "encode metadata", err)
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "begin transaction", err)
	}
	defer tx.Rollback()

	item, err := tx.ItemByID(ctx, cmd.ItemID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "load item", err)
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "command", "update_item",
			fmt.Sprintf("item %d does not exist", cmd.ItemID), nil)
	}
	if item.Version != cmd.ExpectedVersion {
		return nil, services.Wrap(services.ErrVersionConflict, "command", "update_item",
			fmt.Sprintf("item %d is at version %d, caller expected %d", item.ID, item.Version, cmd.ExpectedVersion), nil)
	}

	stateID, err := tx.InsertState(ctx, &queue.ItemState{
		ItemID:        item.ID,
		Actor:         cmd.Actor,
		Status:        cmd.Status,
		StatusValueID: statusID,
		Note:          cmd.Note,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "append history", err)
	}

	affected, err := tx.ApplyItemMutation(ctx, queue.ItemMutation{
		ItemID:          item.ID,
		ExpectedVersion: cmd.ExpectedVersion,
		Status:          cmd.Status,
		StatusValueID:   statusID,
		CurrentStateID:  stateID,
		SetAssignee:     cmd.SetAssignee,
		Assignee:        cmd.Assignee,
		ReplacePayload:  cmd.ReplacePayload,
		Payload:         cmd.Payload,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "apply mutation", err)
	}
	if affected == 0 {
		// The in-tx read above should make this unreachable; the guard stays
		// as the correctness backstop.
		return nil, services.Wrap(services.ErrVersionConflict, "command", "update_item",
			fmt.Sprintf("item %d changed underneath the transaction", item.ID), nil)
	}

	err = tx.AppendActivity(ctx, &queue.Activity{
		Actor:      cmd.Actor,
		EntityType: "item",
		EntityID:   item.ID,
		EventType:  "status_changed",
		Payload:    fmt.Sprintf(`{"from":%q,"to":%q}`, item.Status, cmd.Status),
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "append activity", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "commit", err)
	}

	updated, err := p.store.ItemByID(ctx, item.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "command", "update_item", "reload item", err)
	}
	logging.WithContext(ctx, p.logger).Info("item updated",
		slog.String(logging.FieldStatus, string(cmd.Status)),
		slog.String("actor", cmd.Actor),
	)
	return updated, nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
