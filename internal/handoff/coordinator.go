// Package handoff fans completed work out to successor pipeline segments
// according to stored routing rules. Successor creation is idempotent, so a
// retried or concurrent trigger never duplicates downstream items.
package handoff

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

// Coordinator creates successor items when an item reaches a qualifying
// state.
type Coordinator struct {
	store   *queue.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewCoordinator(store *queue.Store, cat *catalog.Catalog, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		catalog: cat,
		logger:  logging.NewComponentLogger(logger, "handoff"),
	}
}

// Trigger applies handoff rules to the item. Rules matching the item's
// segment and status win; when none match, wildcard rules for the segment
// apply instead. Each successor commits independently, so one failing rule
// does not roll back the others; the first failure is returned after the
// loop alongside whatever succeeded.
func (c *Coordinator) Trigger(ctx context.Context, item *queue.Item, event string) ([]*queue.Item, error) {
	if item.Segment == "" {
		return nil, services.Wrap(services.ErrInternal, "handoff", "trigger",
			fmt.Sprintf("item %d has no owning segment", item.ID), nil)
	}

	rules, err := c.store.RulesFor(ctx, item.Segment, item.Status)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "handoff", "trigger", "load rules", err)
	}
	if len(rules) == 0 {
		rules, err = c.store.WildcardRulesFor(ctx, item.Segment)
		if err != nil {
			return nil, services.Wrap(services.ErrInternal, "handoff", "trigger", "load wildcard rules", err)
		}
	}
	if len(rules) == 0 {
		return nil, nil
	}

	successors := make([]*queue.Item, 0, len(rules))
	var firstErr error
	for _, rule := range rules {
		successor, err := c.applyRule(ctx, item, rule, event)
		if err != nil {
			c.logger.Error("handoff rule failed",
				slog.Int64(logging.FieldItemID, item.ID),
				slog.String("next_segment", rule.NextSegment),
				logging.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		successors = append(successors, successor)
	}
	return successors, firstErr
}

func (c *Coordinator) applyRule(ctx context.Context, item *queue.Item, rule *queue.HandoffRule, event string) (*queue.Item, error) {
	if rule.NextSegment == "" {
		return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule",
			fmt.Sprintf("rule %d has no destination segment", rule.ID), nil)
	}
	key := successorKey(item, rule.NextSegment)

	existing, err := c.store.ItemByExternalRef(ctx, key)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule", "check successor key", err)
	}
	if existing != nil {
		return existing, nil
	}

	destQueue, err := c.store.EnsureQueue(ctx, rule.NextSegment, queue.StatusQueued, "handoff")
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule", "ensure destination queue", err)
	}
	statusID, err := c.catalog.Resolve(ctx, queue.StatusQueued)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]string{
		"source_segment": item.Segment,
		"target_segment": rule.NextSegment,
		"source_item":    fmt.Sprintf("%d", item.ID),
		"event":          event,
		"note":           rule.Note,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule", "encode metadata", err)
	}

	successor, err := c.store.CreateItem(ctx, queue.NewItem{
		QueueID:       destQueue.ID,
		ExternalRef:   key,
		Title:         item.Title,
		Priority:      item.Priority,
		Payload:       item.Payload,
		CreatedBy:     "handoff",
		Status:        queue.StatusQueued,
		StatusValueID: statusID,
		Actor:         "handoff",
		Note:          rule.Note,
		StateMetadata: string(metadata),
	})
	if err != nil {
		if queue.IsUniqueViolation(err) {
			// A concurrent trigger created the successor first.
			raced, lookupErr := c.store.ItemByExternalRef(ctx, key)
			if lookupErr != nil {
				return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule", "refetch raced successor", lookupErr)
			}
			if raced != nil {
				return raced, nil
			}
		}
		return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule", "create successor", err)
	}

	for _, code := range rule.TemplateCodes {
		tpl := &queue.Template{
			ItemID: successor.ID,
			Code:   code,
			Kind:   queue.TemplateReference,
		}
		if err := c.store.InsertTemplate(ctx, tpl); err != nil {
			return nil, services.Wrap(services.ErrInternal, "handoff", "apply_rule", "attach template", err)
		}
	}

	c.logger.Info("successor created",
		slog.Int64(logging.FieldItemID, item.ID),
		slog.Int64("successor_id", successor.ID),
		slog.String(logging.FieldSegment, rule.NextSegment),
	)
	return successor, nil
}

// successorKey is the idempotency key for a handoff. Items without an
// external ref fall back to their row id so retries still dedupe.
func successorKey(item *queue.Item, nextSegment string) string {
	ref := item.ExternalRef
	if ref == "" {
		ref = fmt.Sprintf("item-%d", item.ID)
	}
	return fmt.Sprintf("%s::%s", ref, nextSegment)
}
