// ABOUTME: Configuration surface for the coordinated document store
// ABOUTME: Defaults and validation for coordination, caching, and logging knobs

package config

import (
	"fmt"
	"time"

	"github.com/nainya/docsync/pkg/index"
)

// MinLockTimeout is the smallest usable virtual-lock lease. Anything shorter
// risks leases expiring underneath operations that are still running.
const MinLockTimeout = 500 * time.Millisecond

// Config holds all tunables for a Database
type Config struct {
	// CoordinationEnabled turns the locking/conflict protocol on. Disable
	// only for single-writer or test scenarios.
	CoordinationEnabled bool

	// LockTimeout is the virtual lock lease duration and the total budget
	// for one operation's lock acquisition.
	LockTimeout time.Duration

	// RetryAttempts bounds lock-acquisition and conflict-resolution retries
	RetryAttempts int

	// RetryDelay is the pause between retry attempts
	RetryDelay time.Duration

	// ConflictStrategy selects how detected conflicts are reconciled
	ConflictStrategy index.ConflictStrategy

	// MasterIndexKey is the key-value entry the shared index persists under
	MasterIndexKey string

	// CacheSize is the LRU capacity of the collection file cache
	CacheSize int

	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		CoordinationEnabled: true,
		LockTimeout:         30 * time.Second,
		RetryAttempts:       3,
		RetryDelay:          250 * time.Millisecond,
		ConflictStrategy:    index.LastWriteWins,
		MasterIndexKey:      index.DefaultKey,
		CacheSize:           32,
		LogLevel:            "info",
	}
}

// Validate checks the configuration against its required bounds
func (c Config) Validate() error {
	if c.LockTimeout < MinLockTimeout {
		return fmt.Errorf("config: lock timeout %v below minimum %v", c.LockTimeout, MinLockTimeout)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("config: retry attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("config: retry delay must not be negative, got %v", c.RetryDelay)
	}
	if c.ConflictStrategy != index.LastWriteWins {
		return fmt.Errorf("config: unknown conflict strategy %q", c.ConflictStrategy)
	}
	if c.MasterIndexKey == "" {
		return fmt.Errorf("config: master index key must not be empty")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("config: cache size must be at least 1, got %d", c.CacheSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
