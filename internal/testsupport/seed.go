package testsupport

import (
	"context"
	"fmt"
	"testing"

	"conveyor/internal/catalog"
	"conveyor/internal/queue"
)

// SeedAgent registers an active agent with a default preference profile.
func SeedAgent(t testing.TB, store *queue.Store, agentID string, segments ...string) {
	t.Helper()

	ctx := context.Background()
	if err := store.UpsertAgent(ctx, &queue.Agent{ID: agentID, Name: agentID, Active: true}); err != nil {
		t.Fatalf("upsert agent %s: %v", agentID, err)
	}
	if len(segments) == 0 {
		segments = []string{"writing"}
	}
	pref := &queue.Preference{
		AgentID:              agentID,
		PrimarySegments:      segments,
		PickupStatuses:       []queue.Status{queue.StatusQueued, queue.StatusReturned},
		ActiveStatuses:       []queue.Status{queue.StatusInProgress, queue.StatusInReview},
		AcceptStatus:         queue.StatusInProgress,
		ReturnStatus:         queue.StatusQueued,
		MaxInProgressMinutes: 120,
	}
	if err := store.SavePreference(ctx, pref); err != nil {
		t.Fatalf("save preference %s: %v", agentID, err)
	}
}

// SeedItem creates a queue item in the given segment and status, ensuring the
// backing queue row exists. The external ref is derived from the title unless
// one is supplied through the ref argument.
func SeedItem(t testing.TB, store *queue.Store, cat *catalog.Catalog, segment, ref, title string, status queue.Status) *queue.Item {
	t.Helper()

	ctx := context.Background()
	q, err := store.EnsureQueue(ctx, segment, status, "testsupport")
	if err != nil {
		t.Fatalf("ensure queue %s/%s: %v", segment, status, err)
	}
	statusID, err := cat.Resolve(ctx, status)
	if err != nil {
		t.Fatalf("resolve status %s: %v", status, err)
	}
	if ref == "" {
		ref = fmt.Sprintf("test-%s", title)
	}
	item, err := store.CreateItem(ctx, queue.NewItem{
		QueueID:       q.ID,
		ExternalRef:   ref,
		Title:         title,
		Priority:      0,
		CreatedBy:     "testsupport",
		Status:        status,
		StatusValueID: statusID,
		Actor:         "testsupport",
		Note:          "seeded",
	})
	if err != nil {
		t.Fatalf("create item %s: %v", title, err)
	}
	return item
}

// SeedRule installs a handoff rule. Pass nil status for a wildcard rule.
func SeedRule(t testing.TB, store *queue.Store, segment string, status *queue.Status, next string, templates ...string) {
	t.Helper()

	err := store.InsertRule(context.Background(), &queue.HandoffRule{
		CurrentSegment: segment,
		Status:         status,
		NextSegment:    next,
		TemplateCodes:  templates,
	})
	if err != nil {
		t.Fatalf("insert rule %s -> %s: %v", segment, next, err)
	}
}
