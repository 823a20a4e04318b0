// Package assign matches agents to queue items according to their stored
// routing preferences and turns matches into leased assignments.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conveyor/internal/command"
	"conveyor/internal/config"
	"conveyor/internal/lease"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Assignment pairs an accepted item with the lease advertising who holds it.
type Assignment struct {
	Item  *queue.Item
	Lease *queue.Lock
}

// ClaimOptions tunes a single claim attempt.
type ClaimOptions struct {
	// SegmentsOverride restricts the scan to these segments instead of the
	// agent's preference profile.
	SegmentsOverride []string
	// PriorityFloor skips items below this priority.
	PriorityFloor int
}

// Engine is the task assignment engine.
type Engine struct {
	store     *queue.Store
	processor *command.Processor
	leases    lease.Manager
	cfg       *config.Config
	logger    *slog.Logger
}

func NewEngine(store *queue.Store, processor *command.Processor, leases lease.Manager, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		processor: processor,
		leases:    leases,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "assign"),
	}
}

// FindNextTask reports what the agent should work on next without changing
// anything. An active assignment always wins over new pickup candidates.
// Returns nil with no error when nothing is available.
func (e *Engine) FindNextTask(ctx context.Context, agentID string) (*queue.Item, error) {
	pref, err := e.preferenceFor(ctx, agentID, "find_next_task")
	if err != nil {
		return nil, err
	}

	active, err := e.store.ActiveItemForAgent(ctx, agentID, pref.ActiveStatuses)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "assign", "find_next_task", "load active item", err)
	}
	if active != nil {
		return active, nil
	}

	segments := append(append([]string{}, pref.PrimarySegments...), pref.FallbackSegments...)
	return e.scanSegments(ctx, segments, pref.PickupStatuses, 0)
}

// AcceptTask assigns the item to the agent at its preferred accept status and
// takes the item lease. The expected version must match or nothing happens.
func (e *Engine) AcceptTask(ctx context.Context, agentID string, itemID, expectedVersion int64, note string) (*Assignment, error) {
	pref, err := e.preferenceFor(ctx, agentID, "accept_task")
	if err != nil {
		return nil, err
	}

	item, err := e.processor.UpdateItem(ctx, command.Command{
		ItemID:          itemID,
		ExpectedVersion: expectedVersion,
		Status:          pref.AcceptStatus,
		Actor:           agentID,
		Note:            note,
		SetAssignee:     true,
		Assignee:        agentID,
	})
	if err != nil {
		return nil, err
	}

	lock, err := e.leases.Acquire(ctx, queue.ScopeItem, item.ID, agentID, e.leaseTTL(pref))
	if err != nil {
		return nil, err
	}
	e.logger.Info("task accepted",
		slog.String(logging.FieldAgentID, agentID),
		slog.Int64(logging.FieldItemID, item.ID),
		slog.String(logging.FieldSegment, item.Segment),
	)
	return &Assignment{Item: item, Lease: lock}, nil
}

// ReleaseTask hands the item back to its pickup pool: return status, cleared
// assignee, and the agent's lease dropped if one exists.
func (e *Engine) ReleaseTask(ctx context.Context, agentID string, itemID, expectedVersion int64, note string) (*queue.Item, error) {
	pref, err := e.preferenceFor(ctx, agentID, "release_task")
	if err != nil {
		return nil, err
	}

	item, err := e.processor.UpdateItem(ctx, command.Command{
		ItemID:          itemID,
		ExpectedVersion: expectedVersion,
		Status:          pref.ReturnStatus,
		Actor:           agentID,
		Note:            note,
		SetAssignee:     true,
		Assignee:        "",
	})
	if err != nil {
		return nil, err
	}

	lock, err := e.store.LockFor(ctx, queue.ScopeItem, itemID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "assign", "release_task", "load item lease", err)
	}
	if lock != nil && lock.Owner == agentID {
		if err := e.leases.Release(ctx, lock.Token, agentID); err != nil && !errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
	}
	e.logger.Info("task released",
		slog.String(logging.FieldAgentID, agentID),
		slog.Int64(logging.FieldItemID, item.ID),
	)
	return item, nil
}

// ClaimTask finds the agent's best candidate and accepts it in one call. An
// agent already holding active work gets a conflict naming the blocking item;
// no candidate at all returns nil without error. A version race during accept
// is surfaced to the caller rather than retried.
func (e *Engine) ClaimTask(ctx context.Context, agentID string, opts ClaimOptions) (*Assignment, error) {
	ctx = services.WithAgentID(ctx, agentID)
	pref, err := e.preferenceFor(ctx, agentID, "claim_task")
	if err != nil {
		return nil, err
	}

	active, err := e.store.ActiveItemForAgent(ctx, agentID, pref.ActiveStatuses)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "assign", "claim_task", "load active item", err)
	}
	if active != nil {
		return nil, services.Wrap(services.ErrConflict, "assign", "claim_task",
			fmt.Sprintf("active_task_exists: agent %s already holds item %d", agentID, active.ID), nil)
	}

	segments := opts.SegmentsOverride
	if len(segments) == 0 {
		segments = append(append([]string{}, pref.PrimarySegments...), pref.FallbackSegments...)
	}
	candidate, err := e.scanSegments(ctx, segments, pref.PickupStatuses, opts.PriorityFloor)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, nil
	}
	return e.AcceptTask(ctx, agentID, candidate.ID, candidate.Version, "claimed")
}

// ReleaseExpiredLease force-returns abandoned work on behalf of the system
// actor and drops the dead lease. Used by the sweeper.
func (e *Engine) ReleaseExpiredLease(ctx context.Context, lock *queue.Lock) error {
	if lock.Scope != queue.ScopeItem {
		_, err := e.store.DeleteLock(ctx, lock.ID)
		if err != nil {
			return services.Wrap(services.ErrInternal, "assign", "release_expired_lease", "delete lease", err)
		}
		return nil
	}

	item, err := e.store.ItemByID(ctx, lock.TargetID)
	if err != nil {
		return services.Wrap(services.ErrInternal, "assign", "release_expired_lease", "load item", err)
	}
	if item != nil && item.AssignedTo == lock.Owner {
		returnStatus := queue.StatusReturned
		if pref, err := e.store.PreferenceFor(ctx, lock.Owner); err == nil && pref != nil && pref.ReturnStatus != "" {
			returnStatus = pref.ReturnStatus
		}
		_, err = e.processor.UpdateItem(ctx, command.Command{
			ItemID:          item.ID,
			ExpectedVersion: item.Version,
			Status:          returnStatus,
			Actor:           "system",
			Note:            fmt.Sprintf("lease held by %s expired", lock.Owner),
			SetAssignee:     true,
			Assignee:        "",
		})
		if err != nil {
			return err
		}
	}

	if _, err := e.store.DeleteLock(ctx, lock.ID); err != nil {
		return services.Wrap(services.ErrInternal, "assign", "release_expired_lease", "delete lease", err)
	}
	if err := e.store.StampItemLock(ctx, lock.TargetID, nil); err != nil {
		return services.Wrap(services.ErrInternal, "assign", "release_expired_lease", "clear lock stamp", err)
	}
	e.logger.Info("expired lease reclaimed",
		slog.Int64(logging.FieldItemID, lock.TargetID),
		slog.String("owner", lock.Owner),
	)
	return nil
}

func (e *Engine) scanSegments(ctx context.Context, segments []string, statuses []queue.Status, floor int) (*queue.Item, error) {
	for _, segment := range segments {
		item, err := e.store.NextPickupItem(ctx, segment, statuses, floor)
		if err != nil {
			return nil, services.Wrap(services.ErrInternal, "assign", "scan_segments",
				fmt.Sprintf("scan segment %s", segment), err)
		}
		if item == nil {
			continue
		}
		paused, err := e.queuePaused(ctx, item.QueueID)
		if err != nil {
			return nil, err
		}
		if paused {
			continue
		}
		return item, nil
	}
	return nil, nil
}

// queuePaused reports whether an admin holds a live queue-scope lease, which
// keeps the queue's items out of the pickup pool.
func (e *Engine) queuePaused(ctx context.Context, queueID int64) (bool, error) {
	lock, err := e.store.LockFor(ctx, queue.ScopeQueue, queueID)
	if err != nil {
		return false, services.Wrap(services.ErrInternal, "assign", "scan_segments", "check queue lease", err)
	}
	return lock != nil && !lock.Expired(time.Now().UTC()), nil
}

func (e *Engine) preferenceFor(ctx context.Context, agentID, operation string) (*queue.Preference, error) {
	agent, err := e.store.AgentByID(ctx, agentID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "assign", operation, "load agent", err)
	}
	if agent == nil || !agent.Active {
		return nil, services.Wrap(services.ErrNotFound, "assign", operation,
			fmt.Sprintf("no active agent %q", agentID), nil)
	}
	pref, err := e.store.PreferenceFor(ctx, agentID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "assign", operation, "load preference", err)
	}
	if pref == nil {
		return nil, services.Wrap(services.ErrNotFound, "assign", operation,
			fmt.Sprintf("agent %q has no routing preference", agentID), nil)
	}
	return pref, nil
}

func (e *Engine) leaseTTL(pref *queue.Preference) time.Duration {
	minutes := pref.MaxInProgressMinutes
	if minutes <= 0 {
		minutes = e.cfg.Leases.DefaultTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}
