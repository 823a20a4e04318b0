// Package catalog resolves human-readable status codes to their canonical
// identifiers. Resolution is memoized process-wide: status_values is static
// at runtime, so entries are cached on first lookup and never invalidated.
package catalog

import (
	"context"
	"sync"

	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Catalog is the single owner of the code-to-id memo. Safe for concurrent use.
type Catalog struct {
	store *queue.Store

	mu  sync.RWMutex
	ids map[queue.Status]int64
}

// New constructs a catalog over the task store.
func New(store *queue.Store) *Catalog {
	return &Catalog{
		store: store,
		ids:   make(map[queue.Status]int64),
	}
}

// Resolve returns the canonical identifier for a status code. Unknown codes
// fail with a validation error naming the code; nothing is cached for them,
// so a later seed makes them resolvable.
func (c *Catalog) Resolve(ctx context.Context, code queue.Status) (int64, error) {
	if code == "" {
		return 0, services.FieldError("catalog", "resolve", "status", "must not be blank")
	}

	c.mu.RLock()
	id, ok := c.ids[code]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, known, err := c.store.StatusValueID(ctx, code)
	if err != nil {
		return 0, services.Wrap(services.ErrInternal, "catalog", "resolve", string(code), err)
	}
	if !known {
		return 0, services.FieldError("catalog", "resolve", "status", "unknown code "+string(code))
	}

	c.mu.Lock()
	c.ids[code] = id
	c.mu.Unlock()
	return id, nil
}

// Seed ensures rows exist for the given codes and warms the memo with every
// known code in one read. The canonical lifecycle codes are seeded when none
// are provided.
func (c *Catalog) Seed(ctx context.Context, codes ...queue.Status) error {
	if len(codes) == 0 {
		codes = queue.AllStatuses()
	}
	if err := c.store.EnsureStatusValues(ctx, codes...); err != nil {
		return services.Wrap(services.ErrInternal, "catalog", "seed", "", err)
	}
	known, err := c.store.StatusValues(ctx)
	if err != nil {
		return services.Wrap(services.ErrInternal, "catalog", "seed", "warm memo", err)
	}
	c.mu.Lock()
	for code, id := range known {
		c.ids[code] = id
	}
	c.mu.Unlock()
	return nil
}
