package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conveyor/internal/catalog"
	"conveyor/internal/config"
	"conveyor/internal/ingest"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/testsupport"
)

type gatewayEnv struct {
	cfg     *config.Config
	store   *queue.Store
	cat     *catalog.Catalog
	gateway *ingest.Gateway
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	return &gatewayEnv{
		cfg:     cfg,
		store:   store,
		cat:     cat,
		gateway: ingest.NewGateway(store, cat, cfg, logging.NewNop()),
	}
}

func validRequest() ingest.Request {
	return ingest.Request{
		SourceID: "cms-1001",
		Segment:  "intake",
		Title:    "New article brief",
		Priority: 2,
		Payload:  `{"brief":"write about conveyors"}`,
		Actor:    "cms",
	}
}

func TestIngestCreatesItem(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	req := validRequest()
	req.Templates = []ingest.TemplateSpec{
		{Code: "style-guide", Kind: queue.TemplatePrimary, URI: "https://docs.example.com/style"},
		{Code: "qa-checklist", Kind: queue.TemplateChecklist},
	}

	item, err := env.gateway.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if item.ExternalRef != "cms-1001" {
		t.Fatalf("external ref = %q", item.ExternalRef)
	}
	if item.Segment != "intake" || item.Status != queue.StatusQueued {
		t.Fatalf("item = %+v", item)
	}
	if item.Version != 0 {
		t.Fatalf("version = %d, want 0", item.Version)
	}

	templates, err := env.store.TemplatesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("template count = %d, want 2", len(templates))
	}

	states, err := env.store.StatesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	if len(states) != 1 || states[0].Actor != "cms" {
		t.Fatalf("initial history = %+v", states)
	}
}

func TestIngestBlankSource(t *testing.T) {
	env := newGatewayEnv(t)

	req := validRequest()
	req.SourceID = "   "
	_, err := env.gateway.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "source_id") {
		t.Fatalf("error should name source_id: %v", err)
	}
}

func TestIngestDuplicateSource(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	if _, err := env.gateway.Ingest(ctx, validRequest()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	_, err := env.gateway.Ingest(ctx, validRequest())
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestIngestRejectsUnknownSegment(t *testing.T) {
	env := newGatewayEnv(t)

	req := validRequest()
	req.Segment = "mystery"
	_, err := env.gateway.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mystery") || !strings.Contains(err.Error(), "intake") {
		t.Fatalf("error should name the segment and the allow-list: %v", err)
	}
}

func TestIngestRejectsUnknownPlanSegment(t *testing.T) {
	env := newGatewayEnv(t)

	req := validRequest()
	req.HandoffPlan = []ingest.PlanStep{
		{Segment: "qa", Status: queue.StatusQueued},
		{Segment: "warehouse", Status: queue.StatusQueued},
	}
	_, err := env.gateway.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "handoff_plan[1]") {
		t.Fatalf("error should name the offending plan step: %v", err)
	}
}

func TestIngestOutsideCreationSegmentIsForbidden(t *testing.T) {
	env := newGatewayEnv(t)

	req := validRequest()
	req.Segment = "qa" // allowed, but not the creation segment
	_, err := env.gateway.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if errors.Is(err, services.ErrValidation) {
		t.Fatal("forbidden must stay distinct from validation")
	}
}

func TestIngestRejectsUnknownStatus(t *testing.T) {
	env := newGatewayEnv(t)

	req := validRequest()
	req.InitialStatus = queue.Status("drafting")
	_, err := env.gateway.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	req = validRequest()
	req.SourceID = "cms-1002"
	req.HandoffPlan = []ingest.PlanStep{{Segment: "qa", Status: queue.Status("polishing")}}
	_, err = env.gateway.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for plan status, got %v", err)
	}
}

func TestIngestKnowledgeRefs(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	if err := os.MkdirAll(env.cfg.Paths.KnowledgeDir, 0o755); err != nil {
		t.Fatalf("mkdir knowledge: %v", err)
	}
	known := filepath.Join(env.cfg.Paths.KnowledgeDir, "house-style.md")
	if err := os.WriteFile(known, []byte("# style\n"), 0o644); err != nil {
		t.Fatalf("write knowledge file: %v", err)
	}

	req := validRequest()
	req.KnowledgeRefs = []string{
		"https://wiki.example.com/tone",
		"/api/glossary/v2",
		"house-style.md",
	}
	if _, err := env.gateway.Ingest(ctx, req); err != nil {
		t.Fatalf("ingest with valid refs: %v", err)
	}

	req = validRequest()
	req.SourceID = "cms-1002"
	req.KnowledgeRefs = []string{
		"ftp://old.example.com/doc",
		"missing.md",
		"https://wiki.example.com/ok",
	}
	_, err := env.gateway.Ingest(ctx, req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// Both bad refs must appear in the single aggregated error.
	if !strings.Contains(err.Error(), "ftp://old.example.com/doc") || !strings.Contains(err.Error(), "missing.md") {
		t.Fatalf("aggregated error should list every bad ref: %v", err)
	}
	if strings.Contains(err.Error(), "wiki.example.com/ok") {
		t.Fatalf("valid ref should not be reported: %v", err)
	}
}

func TestIngestKnowledgeRefTraversal(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	if err := os.MkdirAll(env.cfg.Paths.KnowledgeDir, 0o755); err != nil {
		t.Fatalf("mkdir knowledge: %v", err)
	}
	// The target exists one level above the root; a traversal ref must
	// still be rejected even though Join resolves it to a real file.
	outside := filepath.Join(filepath.Dir(env.cfg.Paths.KnowledgeDir), "secret.txt")
	if err := os.WriteFile(outside, []byte("keep out\n"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	for _, ref := range []string{
		"../secret.txt",
		"sub/../../secret.txt",
		outside,
	} {
		req := validRequest()
		req.SourceID = "cms-trav-" + ref
		req.KnowledgeRefs = []string{ref}
		_, err := env.gateway.Ingest(ctx, req)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ref %q escaped the knowledge root, got %v", ref, err)
		}
		if !strings.Contains(err.Error(), "secret.txt") {
			t.Fatalf("error should name the bad ref: %v", err)
		}
	}
}

func TestIngestKnowledgeAlias(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	aliasDir := t.TempDir()
	cfg.Routing.KnowledgePathAliases = []string{aliasDir}
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, store)
	gateway := ingest.NewGateway(store, cat, cfg, logging.NewNop())

	legacy := filepath.Join(aliasDir, "legacy-guide.md")
	if err := os.WriteFile(legacy, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("write alias file: %v", err)
	}

	req := validRequest()
	req.KnowledgeRefs = []string{legacy}
	if _, err := gateway.Ingest(context.Background(), req); err != nil {
		t.Fatalf("ingest with alias ref: %v", err)
	}
}
