package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	KnowledgeDir string `toml:"knowledge_dir"`
}

// Routing contains the segment policy for ingestion and handoff.
type Routing struct {
	// AllowedSegments is the closed list of pipeline segments this
	// deployment accepts. Ingestion rejects anything outside it.
	AllowedSegments []string `toml:"allowed_segments"`
	// CreationSegment is the only segment allowed to originate brand-new
	// work through the ingestion gateway.
	CreationSegment string `toml:"creation_segment"`
	// KnowledgePathAliases lists historical roots that knowledge
	// references may still point into. Checked after KnowledgeDir.
	KnowledgePathAliases []string `toml:"knowledge_path_aliases"`
}

// Leases contains lease TTL and sweep timing.
type Leases struct {
	// DefaultTTLMinutes bounds how long an agent may sit on claimed work
	// when its preference record carries no max_in_progress_minutes.
	DefaultTTLMinutes int `toml:"default_ttl_minutes"`
	// SweepIntervalSeconds is how often the daemon reclaims expired leases.
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Conveyor.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and knowledge directories
//   - Routing: allowed segments, creation segment, knowledge path aliases
//   - Leases: TTL defaults and sweep interval
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Routing Routing `toml:"routing"`
	Leases  Leases  `toml:"leases"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conveyor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The bool reports
// whether a file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("conveyor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the store and logger need.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.KnowledgeDir) != "" {
		// Best-effort: knowledge may live on shared storage that is offline.
		_ = os.MkdirAll(c.Paths.KnowledgeDir, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the task store database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "conveyor.db")
}

// KnowledgeRoots returns every directory knowledge references may resolve
// under: the configured knowledge dir first, then historical aliases.
func (c *Config) KnowledgeRoots() []string {
	roots := make([]string, 0, 1+len(c.Routing.KnowledgePathAliases))
	if strings.TrimSpace(c.Paths.KnowledgeDir) != "" {
		roots = append(roots, c.Paths.KnowledgeDir)
	}
	roots = append(roots, c.Routing.KnowledgePathAliases...)
	return roots
}

// SegmentAllowed reports whether a segment is in the configured allow-list.
func (c *Config) SegmentAllowed(segment string) bool {
	for _, allowed := range c.Routing.AllowedSegments {
		if allowed == segment {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
