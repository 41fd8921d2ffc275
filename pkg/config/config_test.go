// ABOUTME: Tests for configuration defaults and validation
// ABOUTME: Exercises every bound Validate enforces

package config

import (
	"testing"
	"time"

	"github.com/nainya/docsync/pkg/index"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"lock timeout too short", func(c *Config) { c.LockTimeout = 100 * time.Millisecond }},
		{"zero retry attempts", func(c *Config) { c.RetryAttempts = 0 }},
		{"negative retry delay", func(c *Config) { c.RetryDelay = -time.Second }},
		{"unknown conflict strategy", func(c *Config) { c.ConflictStrategy = index.ConflictStrategy("MERGE") }},
		{"empty index key", func(c *Config) { c.MasterIndexKey = "" }},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation failure for %s", tc.name)
			}
		})
	}
}

func TestValidateAcceptsMinimums(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockTimeout = MinLockTimeout
	cfg.RetryAttempts = 1
	cfg.RetryDelay = 0
	cfg.CacheSize = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Minimum values rejected: %v", err)
	}
}
