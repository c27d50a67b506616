package config

import (
	"fmt"

	"github.com/kilianp07/crowdsense/core/runlog"
)

// RunLogConfig defines settings for run log storage and rotation.
type RunLogConfig struct {
	// Backend selects the store type: "jsonl", "sqlite", "memory" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *RunLogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "runs.db"
		case "jsonl":
			c.Path = "runs.jsonl"
		}
	}
}

// Validate checks mandatory fields.
func (c RunLogConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must not be negative")
	}
	return nil
}

// Enabled reports whether runs are persisted at all.
func (c RunLogConfig) Enabled() bool { return c.Backend != "none" }

// Options converts the section to store options.
func (c RunLogConfig) Options() runlog.Options {
	return runlog.Options{
		Backend:    c.Backend,
		Path:       c.Path,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
