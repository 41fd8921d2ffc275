// ABOUTME: Per-collection coordination of mutating operations
// ABOUTME: Lock acquisition with retry, staleness detection, conflict resolution, and publication

package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/docsync/internal/logger"
	"github.com/nainya/docsync/internal/metrics"
	"github.com/nainya/docsync/pkg/index"
)

// Config holds the coordination knobs one coordinator runs with
type Config struct {
	// Enabled turns the protocol on; when false Coordinate just runs the callback
	Enabled bool
	// LockTimeout bounds the total time spent acquiring the virtual lock
	LockTimeout time.Duration
	// RetryAttempts bounds lock retries and conflict-resolution rounds
	RetryAttempts int
	// RetryDelay is the pause between lock retries
	RetryDelay time.Duration
}

// Target is the collection state a coordinator refreshes and publishes.
// Implemented by store.Collection; kept narrow so tests can fake it.
type Target interface {
	// Name is the collection name used for locking and index lookups
	Name() string
	// ModificationToken returns the locally held version stamp
	ModificationToken() string
	// SetModificationToken adopts a freshly published version stamp
	SetModificationToken(token string)
	// DocumentCount returns the current in-memory document count
	DocumentCount() int
	// Reload refreshes local state from the backing file and the given
	// authoritative metadata (nil when the index no longer knows the name)
	Reload(meta *index.CollectionMetadata) error
}

// Coordinator wraps one collection's mutating operations in the full
// acquire -> detect -> resolve -> execute -> publish -> release protocol.
type Coordinator struct {
	target  Target
	idx     *index.MasterIndex
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics

	// sleep is swapped out by tests to avoid real delays
	sleep func(time.Duration)
}

// New creates a coordinator for target backed by the shared master index
func New(target Target, idx *index.MasterIndex, cfg Config, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Coordinator{
		target:  target,
		idx:     idx,
		cfg:     cfg,
		log:     log.CoordinatorLogger(target.Name()),
		metrics: m,
		sleep:   time.Sleep,
	}
}

// Coordinate runs fn under the coordination protocol. With coordination
// disabled it returns fn() directly, touching no locks or tokens.
//
// Lock-timeout and exhausted-conflict failures surface as
// index.ErrLockTimeout and index.ErrModificationConflict respectively.
// Errors from fn propagate unchanged; the lock is released on every path.
func (c *Coordinator) Coordinate(operation string, fn func() error) error {
	if !c.cfg.Enabled {
		return fn()
	}

	start := time.Now()
	operationID := uuid.NewString()
	conflicts := 0

	err := c.coordinate(operationID, &conflicts, fn)

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordOperation(operation, status, time.Since(start))
	}
	c.log.LogCoordinatedOp(c.target.Name(), operation, time.Since(start), conflicts, err)
	return err
}

func (c *Coordinator) coordinate(operationID string, conflicts *int, fn func() error) error {
	name := c.target.Name()

	if err := c.acquireLock(name, operationID); err != nil {
		return err
	}
	defer func() {
		released, err := c.idx.ReleaseLock(name, operationID)
		if err != nil {
			c.log.Warn("Lock release failed").Err(err).Send()
		} else if !released {
			// Lease expired and was reclaimed while we ran
			c.log.Warn("Lock no longer held at release").Str("operation_id", operationID).Send()
		}
	}()

	if err := c.ensureFresh(conflicts); err != nil {
		return err
	}

	if err := fn(); err != nil {
		return err
	}

	return c.publish()
}

// acquireLock retries the virtual lock up to RetryAttempts times within the
// LockTimeout budget. Exhaustion is a typed, caller-visible failure.
func (c *Coordinator) acquireLock(name, operationID string) error {
	start := time.Now()
	deadline := start.Add(c.cfg.LockTimeout)

	for attempt := 1; ; attempt++ {
		acquired, err := c.idx.AcquireLock(name, operationID)
		if err != nil {
			return err
		}
		if acquired {
			if c.metrics != nil {
				c.metrics.LockWaitDuration.Observe(time.Since(start).Seconds())
			}
			return nil
		}
		if attempt >= c.cfg.RetryAttempts || time.Now().After(deadline) {
			return fmt.Errorf("%w: collection %q still locked after %d attempts",
				index.ErrLockTimeout, name, attempt)
		}
		c.sleep(c.cfg.RetryDelay)
	}
}

// ensureFresh compares the local modification token against the index and
// reloads authoritative state until they agree, bounded by RetryAttempts.
func (c *Coordinator) ensureFresh(conflicts *int) error {
	name := c.target.Name()

	for attempt := 0; ; attempt++ {
		meta, err := c.idx.GetCollection(name)
		if err != nil {
			return err
		}
		remote := ""
		if meta != nil {
			remote = meta.ModificationToken
		}

		err = c.ValidateModificationToken(c.target.ModificationToken(), remote)
		if err == nil {
			return nil
		}
		if !errors.Is(err, index.ErrModificationConflict) {
			return err
		}

		*conflicts++
		if c.metrics != nil {
			c.metrics.ConflictsDetectedTotal.Inc()
		}
		if attempt >= c.cfg.RetryAttempts {
			return err
		}

		c.log.Debug("Stale view detected, reloading").
			Str("remote_token", remote).
			Str("local_token", c.target.ModificationToken()).
			Send()
		if err := c.target.Reload(meta); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.ConflictsResolvedTotal.Inc()
		}
	}
}

// publish writes the operation's outcome back into the master index: the new
// document count and a freshly minted modification token. Publication against
// a collection removed mid-operation is a silent no-op at the index.
func (c *Coordinator) publish() error {
	token := c.idx.GenerateModificationToken()
	count := c.target.DocumentCount()

	changes := index.MetadataChanges{
		DocumentCount:     &count,
		ModificationToken: &token,
	}
	if err := c.idx.UpdateCollectionMetadata(c.target.Name(), changes); err != nil {
		return err
	}
	c.target.SetModificationToken(token)
	return nil
}

// ValidateModificationToken is the strict staleness primitive: any mismatch
// between local and remote is index.ErrModificationConflict. Coordinate
// layers forgiving resolution on top of it; other call sites that want
// immediate propagation use it directly.
func (c *Coordinator) ValidateModificationToken(local, remote string) error {
	if local != remote {
		return fmt.Errorf("%w: collection %q holds %q, index holds %q",
			index.ErrModificationConflict, c.target.Name(), local, remote)
	}
	return nil
}
