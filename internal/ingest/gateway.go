// Package ingest admits new work into the pipeline. The gateway is the only
// path that creates brand-new items, and it enforces the deployment's segment
// policy before anything touches the store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conveyor/internal/catalog"
	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// PlanStep names a segment and status an item expects to pass through later.
// The gateway validates the plan up front so routing mistakes surface at
// ingestion time instead of mid-pipeline.
type PlanStep struct {
	Segment string
	Status  queue.Status
}

// TemplateSpec describes reference material to attach to the new item.
type TemplateSpec struct {
	Code string
	Kind queue.TemplateKind
	URI  string
}

// Request is one ingestion attempt.
type Request struct {
	// SourceID is the upstream identifier, stored as the item's external
	// ref and used for idempotency.
	SourceID string
	Segment  string
	Title    string
	Priority int
	Payload  string
	Actor    string
	Note     string
	DueAt    *time.Time

	// InitialStatus defaults to queued when blank.
	InitialStatus queue.Status

	HandoffPlan   []PlanStep
	KnowledgeRefs []string
	Templates     []TemplateSpec
}

// Gateway validates and admits ingestion requests.
type Gateway struct {
	store   *queue.Store
	catalog *catalog.Catalog
	cfg     *config.Config
	logger  *slog.Logger
}

func NewGateway(store *queue.Store, cat *catalog.Catalog, cfg *config.Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:   store,
		catalog: cat,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "ingest"),
	}
}

// Ingest validates the request and creates the item with its initial history
// row and template attachments. Validation runs in a fixed order so callers
// see the most fundamental problem first; knowledge reference problems are
// aggregated so every bad reference is reported at once.
func (g *Gateway) Ingest(ctx context.Context, req Request) (*queue.Item, error) {
	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return nil, services.FieldError("ingest", "ingest", "source_id", "must not be blank")
	}
	existing, err := g.store.ItemByExternalRef(ctx, sourceID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "ingest", "ingest", "check source id", err)
	}
	if existing != nil {
		return nil, g.duplicateErr(sourceID, existing.ID)
	}

	if err := g.checkSegments(req); err != nil {
		return nil, err
	}

	if req.Segment != g.cfg.Routing.CreationSegment {
		return nil, services.Wrap(services.ErrForbidden, "ingest", "ingest",
			fmt.Sprintf("segment %q cannot originate work; only %q can", req.Segment, g.cfg.Routing.CreationSegment), nil)
	}

	status := req.InitialStatus
	if status == "" {
		status = queue.StatusQueued
	}
	statusID, err := g.catalog.Resolve(ctx, status)
	if err != nil {
		return nil, err
	}
	for _, step := range req.HandoffPlan {
		if _, err := g.catalog.Resolve(ctx, step.Status); err != nil {
			return nil, err
		}
	}

	if err := g.checkKnowledgeRefs(req.KnowledgeRefs); err != nil {
		return nil, err
	}

	q, err := g.store.EnsureQueue(ctx, req.Segment, status, "ingest")
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "ingest", "ingest", "ensure queue", err)
	}

	actor := req.Actor
	if actor == "" {
		actor = "ingest"
	}
	item, err := g.store.CreateItem(ctx, queue.NewItem{
		QueueID:       q.ID,
		ExternalRef:   sourceID,
		Title:         req.Title,
		Priority:      req.Priority,
		Payload:       req.Payload,
		CreatedBy:     actor,
		DueAt:         req.DueAt,
		Status:        status,
		StatusValueID: statusID,
		Actor:         actor,
		Note:          req.Note,
	})
	if err != nil {
		if queue.IsUniqueViolation(err) {
			// Lost the insert race to a concurrent ingest of the same source.
			raced, lookupErr := g.store.ItemByExternalRef(ctx, sourceID)
			if lookupErr == nil && raced != nil {
				return nil, g.duplicateErr(sourceID, raced.ID)
			}
			return nil, g.duplicateErr(sourceID, 0)
		}
		return nil, services.Wrap(services.ErrInternal, "ingest", "ingest", "create item", err)
	}

	for _, spec := range req.Templates {
		kind := spec.Kind
		if kind == "" {
			kind = queue.TemplateReference
		}
		tpl := &queue.Template{ItemID: item.ID, Code: spec.Code, Kind: kind, URI: spec.URI}
		if err := g.store.InsertTemplate(ctx, tpl); err != nil {
			return nil, services.Wrap(services.ErrInternal, "ingest", "ingest", "attach template", err)
		}
	}

	g.logger.Info("item ingested",
		slog.Int64(logging.FieldItemID, item.ID),
		slog.String(logging.FieldSegment, item.Segment),
		slog.String("source_id", sourceID),
	)
	return item, nil
}

func (g *Gateway) duplicateErr(sourceID string, itemID int64) error {
	msg := fmt.Sprintf("source %q was already ingested", sourceID)
	if itemID > 0 {
		msg = fmt.Sprintf("source %q was already ingested as item %d", sourceID, itemID)
	}
	return services.Wrap(services.ErrConflict, "ingest", "ingest", msg, nil)
}

func (g *Gateway) checkSegments(req Request) error {
	allowed := strings.Join(g.cfg.Routing.AllowedSegments, ", ")
	if !g.cfg.SegmentAllowed(req.Segment) {
		return services.FieldError("ingest", "ingest", "segment",
			fmt.Sprintf("%q is not an allowed segment (allowed: %s)", req.Segment, allowed))
	}
	for i, step := range req.HandoffPlan {
		if !g.cfg.SegmentAllowed(step.Segment) {
			return services.FieldError("ingest", "ingest", fmt.Sprintf("handoff_plan[%d].segment", i),
				fmt.Sprintf("%q is not an allowed segment (allowed: %s)", step.Segment, allowed))
		}
	}
	return nil
}

// checkKnowledgeRefs accepts external URLs, internal API paths, and files
// that exist under a configured knowledge root. Every failure is collected
// so the caller can fix the whole batch in one pass.
func (g *Gateway) checkKnowledgeRefs(refs []string) error {
	var problems []string
	for _, ref := range refs {
		if g.knowledgeRefOK(ref) {
			continue
		}
		problems = append(problems, fmt.Sprintf("knowledge ref %q is not an http(s) URL, an /api/ path, or a file under a knowledge root", ref))
	}
	return services.AggregateValidation("ingest", "ingest", problems)
}

func (g *Gateway) knowledgeRefOK(ref string) bool {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		parsed, err := url.Parse(ref)
		return err == nil && parsed.Host != ""
	}
	if strings.HasPrefix(ref, "/api/") {
		return true
	}
	for _, root := range g.cfg.KnowledgeRoots() {
		candidate := ref
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, ref)
		}
		if !underRoot(root, candidate) {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// underRoot reports whether the cleaned candidate still sits inside root.
// Join collapses ".." segments, so a traversal ref resolves to a path
// outside the root and must fail even when that file exists.
func underRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(candidate))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
