// Package lease provides non-blocking TTL leases over the task store's lock
// table. Leases advertise intent; the command processor's version guard is
// what actually protects item state.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Manager hands out and reclaims leases. The row-backed implementation below
// is the only one today; the interface keeps callers decoupled from the
// storage choice.
type Manager interface {
	Acquire(ctx context.Context, scope queue.LockScope, targetID int64, owner string, ttl time.Duration) (*queue.Lock, error)
	Release(ctx context.Context, token, actor string) error
	CleanupExpired(ctx context.Context) (int, error)
}

type rowManager struct {
	store  *queue.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewManager builds the store-backed lease manager.
func NewManager(store *queue.Store, logger *slog.Logger) Manager {
	return &rowManager{
		store:  store,
		logger: logging.NewComponentLogger(logger, "lease"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Acquire grants a lease on the target, or renews it when the caller already
// holds it. A live lease held by someone else fails fast with
// ErrLockUnavailable; nothing ever blocks waiting for a lease.
func (m *rowManager) Acquire(ctx context.Context, scope queue.LockScope, targetID int64, owner string, ttl time.Duration) (*queue.Lock, error) {
	if owner == "" {
		return nil, services.FieldError("lease", "acquire", "owner", "must not be blank")
	}
	if ttl <= 0 {
		return nil, services.FieldError("lease", "acquire", "ttl", "must be positive")
	}

	now := m.now()
	existing, err := m.store.LockFor(ctx, scope, targetID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "lease", "acquire", "load current lease", err)
	}
	renewed := false
	if existing != nil {
		if !existing.Expired(now) && existing.Owner != owner {
			return nil, services.Wrap(services.ErrLockUnavailable, "lease", "acquire",
				fmt.Sprintf("%s %d is leased by %s until %s", scope, targetID, existing.Owner, existing.ExpiresAt.Format(time.RFC3339)), nil)
		}
		renewed = existing.Owner == owner && !existing.Expired(now)
		// Expired, or a renewal by the same owner. Either way the old row
		// goes and a fresh token is minted.
		if _, err := m.store.DeleteLock(ctx, existing.ID); err != nil {
			return nil, services.Wrap(services.ErrInternal, "lease", "acquire", "clear stale lease", err)
		}
	}

	lock := &queue.Lock{
		Scope:     scope,
		TargetID:  targetID,
		Owner:     owner,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}
	if err := m.store.InsertLock(ctx, lock); err != nil {
		if queue.IsUniqueViolation(err) {
			// Someone slipped in between our read and insert.
			return nil, services.Wrap(services.ErrLockUnavailable, "lease", "acquire",
				fmt.Sprintf("%s %d was leased concurrently", scope, targetID), nil)
		}
		return nil, services.Wrap(services.ErrInternal, "lease", "acquire", "insert lease", err)
	}
	if scope == queue.ScopeItem {
		if err := m.store.StampItemLock(ctx, targetID, &lock.ExpiresAt); err != nil {
			return nil, services.Wrap(services.ErrInternal, "lease", "acquire", "stamp item lock", err)
		}
	}
	m.logger.Debug("lease acquired",
		slog.String("scope", string(scope)),
		logging.Int64("target_id", targetID),
		slog.String("owner", owner),
		logging.Bool("renewed", renewed),
		slog.String(logging.FieldLockToken, lock.Token),
	)
	return lock, nil
}

// Release drops the lease identified by token. Only the recorded owner may
// release it.
func (m *rowManager) Release(ctx context.Context, token, actor string) error {
	lock, err := m.store.LockByToken(ctx, token)
	if err != nil {
		return services.Wrap(services.ErrInternal, "lease", "release", "load lease", err)
	}
	if lock == nil {
		return services.Wrap(services.ErrNotFound, "lease", "release",
			fmt.Sprintf("no lease with token %s", token), nil)
	}
	if lock.Owner != actor {
		return services.Wrap(services.ErrLockUnavailable, "lease", "release",
			fmt.Sprintf("lease is held by %s, not %s", lock.Owner, actor), nil)
	}
	if _, err := m.store.DeleteLock(ctx, lock.ID); err != nil {
		return services.Wrap(services.ErrInternal, "lease", "release", "delete lease", err)
	}
	if lock.Scope == queue.ScopeItem {
		if err := m.store.StampItemLock(ctx, lock.TargetID, nil); err != nil {
			return services.Wrap(services.ErrInternal, "lease", "release", "clear item lock", err)
		}
	}
	return nil
}

// CleanupExpired removes every lease past its TTL and returns how many went.
// Individual failures are logged and skipped so one bad row cannot wedge the
// sweep.
func (m *rowManager) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := m.store.ExpiredLocks(ctx, m.now())
	if err != nil {
		return 0, services.Wrap(services.ErrInternal, "lease", "cleanup", "list expired leases", err)
	}
	removed := 0
	for _, lock := range expired {
		gone, err := m.store.DeleteLock(ctx, lock.ID)
		if err != nil {
			m.logger.Warn("failed to delete expired lease",
				slog.String(logging.FieldLockToken, lock.Token),
				logging.Error(err),
			)
			continue
		}
		if !gone {
			// Another sweeper got there first.
			continue
		}
		if lock.Scope == queue.ScopeItem {
			if err := m.store.StampItemLock(ctx, lock.TargetID, nil); err != nil {
				m.logger.Warn("failed to clear item lock stamp",
					slog.Int64(logging.FieldItemID, lock.TargetID),
					logging.Error(err),
				)
			}
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("expired leases removed", slog.Int("count", removed))
	}
	return removed, nil
}
