// Package sweep reclaims abandoned work in the background. Expired item
// leases go back through the assignment engine so the item returns to its
// pickup pool; anything left over is cleared by the lease manager.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"conveyor/internal/assign"
	"conveyor/internal/lease"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

// Sweeper runs the periodic expiry pass.
type Sweeper struct {
	store    *queue.Store
	engine   *assign.Engine
	leases   lease.Manager
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func New(store *queue.Store, engine *assign.Engine, leases lease.Manager, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		store:    store,
		engine:   engine,
		leases:   leases,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "sweep"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs a single sweep: every expired item lease is handed to the
// assignment engine so the work is force-returned, then stray expired leases
// are cleaned up. Failures on individual leases are logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	expired, err := s.store.ExpiredLocks(ctx, s.now())
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, lock := range expired {
		if err := s.engine.ReleaseExpiredLease(ctx, lock); err != nil {
			s.logger.Warn("failed to reclaim expired lease",
				slog.String(logging.FieldLockToken, lock.Token),
				slog.Int64("target_id", lock.TargetID),
				logging.Error(err),
			)
			continue
		}
		reclaimed++
	}

	// Anything the engine pass missed, e.g. leases whose rows raced away.
	leftover, err := s.leases.CleanupExpired(ctx)
	if err != nil {
		s.logger.Warn("lease cleanup failed", logging.Error(err))
	} else {
		reclaimed += leftover
	}

	if reclaimed > 0 {
		s.logger.Info("sweep reclaimed leases", slog.Int("count", reclaimed))
	}
	return reclaimed, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", logging.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				// Per-pass failures are not fatal; the next tick retries.
				s.logger.Error("sweep pass failed", logging.Error(err))
			}
		}
	}
}
