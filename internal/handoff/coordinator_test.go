package handoff_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"conveyor/internal/catalog"
	"conveyor/internal/handoff"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/testsupport"
)

type coordEnv struct {
	store *queue.Store
	cat   *catalog.Catalog
	coord *handoff.Coordinator
}

func newCoordEnv(t *testing.T) *coordEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	return &coordEnv{
		store: store,
		cat:   cat,
		coord: handoff.NewCoordinator(store, cat, logging.NewNop()),
	}
}

func completedItem(t *testing.T, env *coordEnv, ref string) *queue.Item {
	t.Helper()
	return testsupport.SeedItem(t, env.store, env.cat, "writing", ref, "Finished piece", queue.StatusCompleted)
}

func TestTriggerCreatesSuccessor(t *testing.T) {
	env := newCoordEnv(t)
	ctx := context.Background()
	done := queue.StatusCompleted
	testsupport.SeedRule(t, env.store, "writing", &done, "qa", "qa-checklist")

	item := completedItem(t, env, "art-1")
	successors, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(successors) != 1 {
		t.Fatalf("successor count = %d, want 1", len(successors))
	}
	got := successors[0]
	if got.Segment != "qa" {
		t.Fatalf("successor segment = %q, want qa", got.Segment)
	}
	if got.Status != queue.StatusQueued {
		t.Fatalf("successor status = %q", got.Status)
	}
	if got.ExternalRef != "art-1::qa" {
		t.Fatalf("successor key = %q", got.ExternalRef)
	}
	if got.Title != item.Title || got.Priority != item.Priority {
		t.Fatalf("successor did not carry source fields: %+v", got)
	}

	templates, err := env.store.TemplatesForItem(ctx, got.ID)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if len(templates) != 1 || templates[0].Code != "qa-checklist" {
		t.Fatalf("templates = %+v", templates)
	}
	// Rule-declared material is reference matter, same as ingest-attached refs.
	if templates[0].Kind != queue.TemplateReference {
		t.Fatalf("template kind = %q, want %q", templates[0].Kind, queue.TemplateReference)
	}

	states, err := env.store.StatesForItem(ctx, got.ID)
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	if len(states) != 1 || !strings.Contains(states[0].Metadata, `"source_segment":"writing"`) {
		t.Fatalf("initial state = %+v", states)
	}
}

func TestTriggerIsIdempotent(t *testing.T) {
	env := newCoordEnv(t)
	ctx := context.Background()
	done := queue.StatusCompleted
	testsupport.SeedRule(t, env.store, "writing", &done, "qa")

	item := completedItem(t, env, "art-2")
	first, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	second, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("successor counts = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("retrigger created a new successor: %d vs %d", first[0].ID, second[0].ID)
	}

	qaItems, err := env.store.ItemsForSegment(ctx, "qa")
	if err != nil {
		t.Fatalf("qa items: %v", err)
	}
	if len(qaItems) != 1 {
		t.Fatalf("qa item count = %d, want 1", len(qaItems))
	}
}

func TestTriggerWildcardFallback(t *testing.T) {
	env := newCoordEnv(t)
	ctx := context.Background()
	testsupport.SeedRule(t, env.store, "writing", nil, "review")

	item := completedItem(t, env, "art-3")
	successors, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(successors) != 1 || successors[0].Segment != "review" {
		t.Fatalf("successors = %+v, want one review item", successors)
	}
}

func TestTriggerExactRuleBeatsWildcard(t *testing.T) {
	env := newCoordEnv(t)
	ctx := context.Background()
	done := queue.StatusCompleted
	testsupport.SeedRule(t, env.store, "writing", &done, "qa")
	testsupport.SeedRule(t, env.store, "writing", nil, "review")

	item := completedItem(t, env, "art-4")
	successors, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(successors) != 1 || successors[0].Segment != "qa" {
		t.Fatalf("successors = %+v, want only the exact-match qa item", successors)
	}
}

func TestTriggerFansOutToMultipleSegments(t *testing.T) {
	env := newCoordEnv(t)
	ctx := context.Background()
	done := queue.StatusCompleted
	testsupport.SeedRule(t, env.store, "writing", &done, "qa")
	testsupport.SeedRule(t, env.store, "writing", &done, "publish")

	item := completedItem(t, env, "art-5")
	successors, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(successors) != 2 {
		t.Fatalf("successor count = %d, want 2", len(successors))
	}
	segments := map[string]bool{}
	for _, s := range successors {
		segments[s.Segment] = true
	}
	if !segments["qa"] || !segments["publish"] {
		t.Fatalf("fan-out segments = %v", segments)
	}
}

func TestTriggerNoRulesIsNoop(t *testing.T) {
	env := newCoordEnv(t)

	item := completedItem(t, env, "art-6")
	successors, err := env.coord.Trigger(context.Background(), item, "completed")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(successors) != 0 {
		t.Fatalf("successors = %+v, want none", successors)
	}
}

func TestTriggerBlankSegmentIsInternal(t *testing.T) {
	env := newCoordEnv(t)

	item := &queue.Item{ID: 1, Segment: "", Status: queue.StatusCompleted}
	_, err := env.coord.Trigger(context.Background(), item, "completed")
	if !errors.Is(err, services.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestTriggerBlankRefUsesRowID(t *testing.T) {
	env := newCoordEnv(t)
	ctx := context.Background()
	done := queue.StatusCompleted
	testsupport.SeedRule(t, env.store, "writing", &done, "qa")

	// Seed directly so the external ref stays empty.
	q, err := env.store.EnsureQueue(ctx, "writing", queue.StatusCompleted, "test")
	if err != nil {
		t.Fatalf("ensure queue: %v", err)
	}
	statusID, err := env.cat.Resolve(ctx, queue.StatusCompleted)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	item, err := env.store.CreateItem(ctx, queue.NewItem{
		QueueID:       q.ID,
		Title:         "No ref",
		CreatedBy:     "test",
		Status:        queue.StatusCompleted,
		StatusValueID: statusID,
		Actor:         "test",
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	successors, err := env.coord.Trigger(ctx, item, "completed")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(successors) != 1 {
		t.Fatalf("successor count = %d, want 1", len(successors))
	}
	if !strings.HasPrefix(successors[0].ExternalRef, "item-") || !strings.HasSuffix(successors[0].ExternalRef, "::qa") {
		t.Fatalf("successor key = %q", successors[0].ExternalRef)
	}
}
