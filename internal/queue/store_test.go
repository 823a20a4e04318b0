package queue_test

import (
	"context"
	"testing"
	"time"

	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func TestCreateItemRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, cat, "writing", "art-100", "First draft", queue.StatusQueued)
	if item.ID == 0 {
		t.Fatal("expected item id to be assigned")
	}
	if item.Version != 0 {
		t.Fatalf("new item version = %d, want 0", item.Version)
	}

	got, err := store.ItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("item by id: %v", err)
	}
	if got == nil {
		t.Fatal("item not found after create")
	}
	if got.Segment != "writing" {
		t.Fatalf("segment = %q, want writing", got.Segment)
	}
	if got.Status != queue.StatusQueued {
		t.Fatalf("status = %q, want %q", got.Status, queue.StatusQueued)
	}
	if got.CurrentStateID == 0 {
		t.Fatal("expected current state pointer to be set")
	}

	states, err := store.StatesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("states for item: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("state count = %d, want 1", len(states))
	}
	if states[0].ID != got.CurrentStateID {
		t.Fatalf("current state pointer = %d, want %d", got.CurrentStateID, states[0].ID)
	}
}

func TestItemByExternalRef(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	ctx := context.Background()

	testsupport.SeedItem(t, store, cat, "writing", "art-7", "Tracked", queue.StatusQueued)

	got, err := store.ItemByExternalRef(ctx, "art-7")
	if err != nil {
		t.Fatalf("item by external ref: %v", err)
	}
	if got == nil || got.Title != "Tracked" {
		t.Fatalf("lookup returned %+v", got)
	}

	missing, err := store.ItemByExternalRef(ctx, "art-nope")
	if err != nil {
		t.Fatalf("missing lookup: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown external ref")
	}
}

func TestExternalRefUniqueness(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	ctx := context.Background()

	q, err := store.EnsureQueue(ctx, "writing", queue.StatusQueued, "test")
	if err != nil {
		t.Fatalf("ensure queue: %v", err)
	}
	statusID, err := cat.Resolve(ctx, queue.StatusQueued)
	if err != nil {
		t.Fatalf("resolve status: %v", err)
	}
	mk := func() error {
		_, err := store.CreateItem(ctx, queue.NewItem{
			QueueID:       q.ID,
			ExternalRef:   "dup-1",
			Title:         "Duplicate",
			CreatedBy:     "test",
			Status:        queue.StatusQueued,
			StatusValueID: statusID,
			Actor:         "test",
		})
		return err
	}
	if err := mk(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = mk()
	if err == nil {
		t.Fatal("expected unique violation on duplicate external ref")
	}
	if !queue.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestNextPickupItemOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	ctx := context.Background()

	q, err := store.EnsureQueue(ctx, "writing", queue.StatusQueued, "test")
	if err != nil {
		t.Fatalf("ensure queue: %v", err)
	}
	statusID, err := cat.Resolve(ctx, queue.StatusQueued)
	if err != nil {
		t.Fatalf("resolve status: %v", err)
	}
	mk := func(ref string, priority int) *queue.Item {
		item, err := store.CreateItem(ctx, queue.NewItem{
			QueueID:       q.ID,
			ExternalRef:   ref,
			Title:         ref,
			Priority:      priority,
			CreatedBy:     "test",
			Status:        queue.StatusQueued,
			StatusValueID: statusID,
			Actor:         "test",
		})
		if err != nil {
			t.Fatalf("create %s: %v", ref, err)
		}
		return item
	}
	older := mk("pick-low", 1)
	_ = older
	mk("pick-high", 5)
	mk("pick-low-2", 1)

	got, err := store.NextPickupItem(ctx, "writing", []queue.Status{queue.StatusQueued}, 0)
	if err != nil {
		t.Fatalf("next pickup: %v", err)
	}
	if got == nil || got.ExternalRef != "pick-high" {
		t.Fatalf("next pickup = %+v, want pick-high", got)
	}

	// A priority floor above every queued item yields no candidate.
	none, err := store.NextPickupItem(ctx, "writing", []queue.Status{queue.StatusQueued}, 10)
	if err != nil {
		t.Fatalf("next pickup with floor: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no candidate above floor, got %s", none.ExternalRef)
	}
}

func TestApplyItemMutationVersionGuard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, cat, "writing", "guard-1", "Guarded", queue.StatusQueued)
	progressID, err := cat.Resolve(ctx, queue.StatusInProgress)
	if err != nil {
		t.Fatalf("resolve status: %v", err)
	}

	apply := func(expected int64) int64 {
		tx, err := store.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback()
		stateID, err := tx.InsertState(ctx, &queue.ItemState{
			ItemID:        item.ID,
			Actor:         "test",
			Status:        queue.StatusInProgress,
			StatusValueID: progressID,
		})
		if err != nil {
			t.Fatalf("insert state: %v", err)
		}
		affected, err := tx.ApplyItemMutation(ctx, queue.ItemMutation{
			ItemID:          item.ID,
			ExpectedVersion: expected,
			Status:          queue.StatusInProgress,
			StatusValueID:   progressID,
			CurrentStateID:  stateID,
		})
		if err != nil {
			t.Fatalf("apply mutation: %v", err)
		}
		if affected > 0 {
			if err := tx.Commit(); err != nil {
				t.Fatalf("commit: %v", err)
			}
		}
		return affected
	}

	if got := apply(0); got != 1 {
		t.Fatalf("fresh mutation affected %d rows, want 1", got)
	}
	if got := apply(0); got != 0 {
		t.Fatalf("stale mutation affected %d rows, want 0", got)
	}

	refreshed, err := store.ItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if refreshed.Version != 1 {
		t.Fatalf("version after one mutation = %d, want 1", refreshed.Version)
	}
	if refreshed.Status != queue.StatusInProgress {
		t.Fatalf("status = %q, want %q", refreshed.Status, queue.StatusInProgress)
	}
}

func TestEnsureQueueIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, err := store.EnsureQueue(ctx, "qa", queue.StatusQueued, "test")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := store.EnsureQueue(ctx, "qa", queue.StatusQueued, "other")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ensure created a second queue: %d vs %d", first.ID, second.ID)
	}
}

func TestLockLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	lock := &queue.Lock{
		Scope:     queue.ScopeItem,
		TargetID:  42,
		Owner:     "agent-a",
		Token:     "tok-1",
		ExpiresAt: now.Add(time.Minute),
	}
	if err := store.InsertLock(ctx, lock); err != nil {
		t.Fatalf("insert lock: %v", err)
	}

	dup := &queue.Lock{
		Scope:     queue.ScopeItem,
		TargetID:  42,
		Owner:     "agent-b",
		Token:     "tok-2",
		ExpiresAt: now.Add(time.Minute),
	}
	err := store.InsertLock(ctx, dup)
	if err == nil || !queue.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for second lock on same target, got %v", err)
	}

	got, err := store.LockFor(ctx, queue.ScopeItem, 42)
	if err != nil {
		t.Fatalf("lock for: %v", err)
	}
	if got == nil || got.Token != "tok-1" {
		t.Fatalf("lock lookup = %+v", got)
	}

	expired, err := store.ExpiredLocks(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("expired locks: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired count = %d, want 1", len(expired))
	}

	removed, err := store.DeleteLock(ctx, got.ID)
	if err != nil {
		t.Fatalf("delete lock: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to report a removed row")
	}
	removed, err = store.DeleteLock(ctx, got.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if removed {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestAgentPreferencesRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedAgent(t, store, "agent-a", "writing", "qa")

	pref, err := store.PreferenceFor(ctx, "agent-a")
	if err != nil {
		t.Fatalf("preference for: %v", err)
	}
	if pref == nil {
		t.Fatal("expected stored preference")
	}
	if len(pref.PrimarySegments) != 2 || pref.PrimarySegments[0] != "writing" {
		t.Fatalf("primary segments = %v", pref.PrimarySegments)
	}
	if pref.AcceptStatus != queue.StatusInProgress {
		t.Fatalf("accept status = %q", pref.AcceptStatus)
	}
}

func TestHandoffRuleLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := queue.StatusCompleted
	testsupport.SeedRule(t, store, "writing", &done, "qa", "qa-checklist")
	testsupport.SeedRule(t, store, "writing", nil, "review")

	exact, err := store.RulesFor(ctx, "writing", queue.StatusCompleted)
	if err != nil {
		t.Fatalf("rules for: %v", err)
	}
	if len(exact) != 1 || exact[0].NextSegment != "qa" {
		t.Fatalf("exact rules = %+v", exact)
	}
	if len(exact[0].TemplateCodes) != 1 || exact[0].TemplateCodes[0] != "qa-checklist" {
		t.Fatalf("template codes = %v", exact[0].TemplateCodes)
	}

	wild, err := store.WildcardRulesFor(ctx, "writing")
	if err != nil {
		t.Fatalf("wildcard rules: %v", err)
	}
	if len(wild) != 1 || wild[0].NextSegment != "review" {
		t.Fatalf("wildcard rules = %+v", wild)
	}
}

func TestStatsAndActivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	ctx := context.Background()

	testsupport.SeedItem(t, store, cat, "writing", "", "One", queue.StatusQueued)
	testsupport.SeedItem(t, store, cat, "writing", "", "Two", queue.StatusQueued)
	testsupport.SeedItem(t, store, cat, "qa", "", "Three", queue.StatusInProgress)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[queue.StatusQueued] != 2 || stats[queue.StatusInProgress] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	recent, err := store.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("activity rows = %d, want 3", len(recent))
	}
}
