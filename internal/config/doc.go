// Package config loads, normalizes, and validates TOML configuration for
// the conveyor daemon and CLI. Path fields are tilde-expanded and made
// absolute at load time so downstream packages never deal with relative or
// home-anchored paths.
package config
