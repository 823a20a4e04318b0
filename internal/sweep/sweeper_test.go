package sweep

import (
	"context"
	"testing"
	"time"

	"conveyor/internal/assign"
	"conveyor/internal/command"
	"conveyor/internal/lease"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func newTestSweeper(t *testing.T) (*Sweeper, *assign.Engine, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	logger := logging.NewNop()
	proc := command.NewProcessor(store, cat, logger)
	leases := lease.NewManager(store, logger)
	engine := assign.NewEngine(store, proc, leases, cfg, logger)
	s := New(store, engine, leases, time.Second, logger)
	return s, engine, store
}

func TestRunOnceReclaimsAbandonedWork(t *testing.T) {
	s, engine, store := newTestSweeper(t)
	ctx := context.Background()
	cat := testsupport.MustCatalog(t, store)

	testsupport.SeedAgent(t, store, "agent-a", "writing")
	item := testsupport.SeedItem(t, store, cat, "writing", "", "Walked away", queue.StatusQueued)
	if _, err := engine.AcceptTask(ctx, "agent-a", item.ID, item.Version, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Jump the sweeper past the lease TTL.
	s.now = func() time.Time { return time.Now().UTC().Add(6 * time.Hour) }

	reclaimed, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	reloaded, err := store.ItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != queue.StatusQueued || reloaded.AssignedTo != "" {
		t.Fatalf("item after sweep = %+v", reloaded)
	}

	locks, err := store.ListLocks(ctx)
	if err != nil {
		t.Fatalf("list locks: %v", err)
	}
	if len(locks) != 0 {
		t.Fatalf("lock rows after sweep = %d, want 0", len(locks))
	}

	// A second pass finds nothing.
	reclaimed, err = s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("second sweep reclaimed = %d, want 0", reclaimed)
	}
}

func TestRunOnceSkipsLiveLeases(t *testing.T) {
	s, engine, store := newTestSweeper(t)
	ctx := context.Background()
	cat := testsupport.MustCatalog(t, store)

	testsupport.SeedAgent(t, store, "agent-a", "writing")
	item := testsupport.SeedItem(t, store, cat, "writing", "", "Being worked", queue.StatusQueued)
	if _, err := engine.AcceptTask(ctx, "agent-a", item.ID, item.Version, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}

	reclaimed, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed = %d, want 0 for a live lease", reclaimed)
	}

	reloaded, err := store.ItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != queue.StatusInProgress || reloaded.AssignedTo != "agent-a" {
		t.Fatalf("live assignment disturbed: %+v", reloaded)
	}
}

func TestRunOnceClearsQueueScopeLeases(t *testing.T) {
	s, _, store := newTestSweeper(t)
	ctx := context.Background()

	expired := &queue.Lock{
		Scope:     queue.ScopeQueue,
		TargetID:  1,
		Owner:     "admin",
		Token:     "queue-tok",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := store.InsertLock(ctx, expired); err != nil {
		t.Fatalf("insert lock: %v", err)
	}

	reclaimed, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	locks, err := store.ListLocks(ctx)
	if err != nil {
		t.Fatalf("list locks: %v", err)
	}
	if len(locks) != 0 {
		t.Fatalf("lock rows = %d, want 0", len(locks))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := newTestSweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
