package testsupport

import (
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.KnowledgeDir = filepath.Join(base, "knowledge")
	cfg.Routing.KnowledgePathAliases = nil
	cfg.Leases.SweepIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithSegments overrides the routing allow-list and creation segment.
func WithSegments(creation string, allowed ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Routing.AllowedSegments = allowed
		cfg.Routing.CreationSegment = creation
	}
}
