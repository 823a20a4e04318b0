package testsupport

import (
	"context"
	"testing"

	"conveyor/internal/catalog"
	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// MustOpenStore opens a store against the config's database path and
// registers cleanup with the test.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustCatalog returns a status catalog with every built-in status seeded.
func MustCatalog(t testing.TB, store *queue.Store) *catalog.Catalog {
	t.Helper()

	cat := catalog.New(store)
	if err := cat.Seed(context.Background()); err != nil {
		t.Fatalf("seed status catalog: %v", err)
	}
	return cat
}
