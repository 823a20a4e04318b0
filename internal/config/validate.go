package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRouting(); err != nil {
		return err
	}
	if err := c.validateLeases(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRouting() error {
	if len(c.Routing.AllowedSegments) == 0 {
		return errors.New("routing.allowed_segments must list at least one segment")
	}
	seen := make(map[string]struct{}, len(c.Routing.AllowedSegments))
	for _, segment := range c.Routing.AllowedSegments {
		if _, dup := seen[segment]; dup {
			return fmt.Errorf("routing.allowed_segments lists %q twice", segment)
		}
		seen[segment] = struct{}{}
	}
	if c.Routing.CreationSegment == "" {
		return errors.New("routing.creation_segment must be set")
	}
	if _, ok := seen[c.Routing.CreationSegment]; !ok {
		return fmt.Errorf("routing.creation_segment %q is not in routing.allowed_segments", c.Routing.CreationSegment)
	}
	return nil
}

func (c *Config) validateLeases() error {
	if c.Leases.DefaultTTLMinutes <= 0 {
		return errors.New("leases.default_ttl_minutes must be positive")
	}
	if c.Leases.SweepIntervalSeconds <= 0 {
		return errors.New("leases.sweep_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
