// ABOUTME: Master index implementation over the shared key-value store
// ABOUTME: Collection metadata persistence, virtual lock leases, and conflict primitives

package index

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/docsync/internal/logger"
	"github.com/nainya/docsync/internal/metrics"
	"github.com/nainya/docsync/pkg/backend"
)

// DefaultKey is the key-value entry the master index persists under
const DefaultKey = "docsync_master_index"

// DefaultLockTimeout is the lease duration granted to virtual locks
const DefaultLockTimeout = 30 * time.Second

// DefaultMutexTimeout bounds each guarded read-modify-write cycle
const DefaultMutexTimeout = 10 * time.Second

// MasterIndex is the shared index of collection metadata and virtual locks.
// Every read-then-write sequence runs whole-document under the global mutex;
// pure reads load the current document without serialization.
type MasterIndex struct {
	kv    backend.KVStore
	mutex *GlobalMutex

	key          string
	lockTimeout  time.Duration
	mutexTimeout time.Duration

	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Options configures a MasterIndex. Zero values select defaults.
type Options struct {
	Key          string        // key-value entry name
	LockTimeout  time.Duration // virtual lock lease duration
	MutexTimeout time.Duration // budget for each guarded cycle
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
	Clock        func() time.Time // injected for deterministic expiry tests
}

// NewMasterIndex creates a master index over the given substrate
func NewMasterIndex(kv backend.KVStore, mu backend.Mutex, opts Options) *MasterIndex {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.MutexTimeout <= 0 {
		opts.MutexTimeout = DefaultMutexTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobalLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &MasterIndex{
		kv:           kv,
		mutex:        NewGlobalMutex(mu),
		key:          opts.Key,
		lockTimeout:  opts.LockTimeout,
		mutexTimeout: opts.MutexTimeout,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Clock,
	}
}

// Load reads the current index document, or a fresh empty one if none exists.
// Callers that will write back what they read must use the guarded path.
func (mi *MasterIndex) Load() (*IndexDocument, error) {
	start := time.Now()
	raw, ok, err := mi.kv.Get(mi.key)
	if err != nil {
		return nil, fmt.Errorf("index: load master index: %w", err)
	}
	if !ok {
		return NewIndexDocument(), nil
	}

	var doc IndexDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("index: decode master index: %w", err)
	}
	doc.normalize()

	if mi.metrics != nil {
		mi.metrics.IndexLoadDuration.Observe(time.Since(start).Seconds())
	}
	return &doc, nil
}

// Save serializes and writes the entire document, updating LastUpdated
func (mi *MasterIndex) Save(doc *IndexDocument) error {
	start := time.Now()
	doc.LastUpdated = mi.now()

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index: encode master index: %w", err)
	}
	if err := mi.kv.Set(mi.key, string(raw)); err != nil {
		return fmt.Errorf("index: save master index: %w", err)
	}

	if mi.metrics != nil {
		mi.metrics.IndexSaveDuration.Observe(time.Since(start).Seconds())
		mi.metrics.CollectionsTotal.Set(float64(len(doc.Collections)))
	}
	return nil
}

// withMutex runs one load-mutate-save cycle under the global mutex.
// fn returns whether the document changed and must be persisted.
func (mi *MasterIndex) withMutex(fn func(doc *IndexDocument) (bool, error)) error {
	h, err := mi.mutex.Acquire(mi.mutexTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := mi.mutex.Release(h); rerr != nil {
			mi.log.Warn("Global mutex release failed").Err(rerr).Send()
		}
	}()

	doc, err := mi.Load()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if changed {
		return mi.Save(doc)
	}
	return nil
}

// AddCollection inserts or overwrites a collection's metadata
func (mi *MasterIndex) AddCollection(name string, meta *CollectionMetadata) error {
	if name == "" || meta == nil {
		return fmt.Errorf("%w: collection name and metadata required", ErrInvalidArgument)
	}
	return mi.withMutex(func(doc *IndexDocument) (bool, error) {
		stored := meta.Clone()
		stored.Name = name
		if stored.Created.IsZero() {
			stored.Created = mi.now()
		}
		stored.LastUpdated = mi.now()
		doc.Collections[name] = stored
		return true, nil
	})
}

// GetCollection returns a copy of the collection's metadata, or nil if unknown
func (mi *MasterIndex) GetCollection(name string) (*CollectionMetadata, error) {
	doc, err := mi.Load()
	if err != nil {
		return nil, err
	}
	meta, ok := doc.Collections[name]
	if !ok {
		return nil, nil
	}
	return meta.Clone(), nil
}

// GetCollections returns copies of all collection metadata keyed by name
func (mi *MasterIndex) GetCollections() (map[string]*CollectionMetadata, error) {
	doc, err := mi.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*CollectionMetadata, len(doc.Collections))
	for name, meta := range doc.Collections {
		out[name] = meta.Clone()
	}
	return out, nil
}

// UpdateCollectionMetadata merges partial changes into the stored record,
// bumps LastUpdated, and appends a history snapshot. Unknown names are a
// silent no-op; callers that treat absence as an error check first.
func (mi *MasterIndex) UpdateCollectionMetadata(name string, changes MetadataChanges) error {
	return mi.withMutex(func(doc *IndexDocument) (bool, error) {
		meta, ok := doc.Collections[name]
		if !ok {
			return false, nil
		}
		applyChanges(meta, changes)
		meta.LastUpdated = mi.now()
		appendHistory(doc, name, meta)
		return true, nil
	})
}

// RemoveCollection removes a collection and its history.
// The result reports whether the collection existed.
func (mi *MasterIndex) RemoveCollection(name string) (bool, error) {
	existed := false
	err := mi.withMutex(func(doc *IndexDocument) (bool, error) {
		_, existed = doc.Collections[name]
		delete(doc.Collections, name)
		delete(doc.ModificationHistory, name)
		return true, nil
	})
	return existed, err
}

// AcquireLock establishes a virtual lock lease on the collection name for
// operationID. It reports false when another operation holds an unexpired
// lease. Acquisition is not fair and not queued; callers retry above.
func (mi *MasterIndex) AcquireLock(name, operationID string) (bool, error) {
	if name == "" || operationID == "" {
		return false, fmt.Errorf("%w: collection name and operation id required", ErrInvalidArgument)
	}

	acquired := false
	held := 0
	err := mi.withMutex(func(doc *IndexDocument) (bool, error) {
		defer func() { held = len(doc.Locks) }()
		now := mi.now()
		if existing, ok := doc.Locks[name]; ok && existing.IsLocked && !existing.ExpiredAt(now) {
			if existing.LockedBy != operationID {
				return false, nil
			}
			// Same operation already holds the lease
			acquired = true
			return false, nil
		}

		ls := &LockStatus{
			IsLocked:    true,
			LockedBy:    operationID,
			LockedAt:    now,
			LockTimeout: mi.lockTimeout.Milliseconds(),
		}
		doc.Locks[name] = ls
		if meta, ok := doc.Collections[name]; ok {
			meta.LockStatus = ls
		}
		acquired = true
		return true, nil
	})
	if err != nil {
		return false, err
	}

	if mi.metrics != nil {
		result := "acquired"
		if !acquired {
			result = "contended"
		}
		mi.metrics.LockAcquireTotal.WithLabelValues(result).Inc()
		mi.metrics.LocksHeld.Set(float64(held))
	}
	return acquired, nil
}

// IsLocked reports whether an unexpired lock lease exists for name
func (mi *MasterIndex) IsLocked(name string) (bool, error) {
	doc, err := mi.Load()
	if err != nil {
		return false, err
	}
	ls, ok := doc.Locks[name]
	return ok && ls.IsLocked && !ls.ExpiredAt(mi.now()), nil
}

// ReleaseLock removes the lease if operationID is its holder. A release by a
// non-holder reports false and leaves the lease intact, so a stale caller
// cannot unlock someone else's operation.
func (mi *MasterIndex) ReleaseLock(name, operationID string) (bool, error) {
	released := false
	held := 0
	err := mi.withMutex(func(doc *IndexDocument) (bool, error) {
		defer func() { held = len(doc.Locks) }()
		ls, ok := doc.Locks[name]
		if !ok || ls.LockedBy != operationID {
			return false, nil
		}
		delete(doc.Locks, name)
		if meta, ok := doc.Collections[name]; ok {
			meta.LockStatus = nil
		}
		released = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if mi.metrics != nil {
		mi.metrics.LocksHeld.Set(float64(held))
	}
	return released, nil
}

// CleanupExpiredLocks evicts every expired lease and reports whether any were
func (mi *MasterIndex) CleanupExpiredLocks() (bool, error) {
	start := time.Now()
	evicted := 0
	held := 0
	err := mi.withMutex(func(doc *IndexDocument) (bool, error) {
		defer func() { held = len(doc.Locks) }()
		now := mi.now()
		for name, ls := range doc.Locks {
			if ls.ExpiredAt(now) {
				delete(doc.Locks, name)
				if meta, ok := doc.Collections[name]; ok {
					meta.LockStatus = nil
				}
				evicted++
			}
		}
		return evicted > 0, nil
	})
	if err != nil {
		return false, err
	}

	if mi.metrics != nil {
		mi.metrics.RecordSweep(evicted)
		mi.metrics.LocksHeld.Set(float64(held))
	}
	mi.log.LogLockSweep(evicted, time.Since(start))
	return evicted > 0, nil
}

// GenerateModificationToken mints a version stamp unique among calls from
// this process: millisecond timestamp plus random entropy. It is an
// optimistic-lock fencing value, not a security token.
func (mi *MasterIndex) GenerateModificationToken() string {
	return fmt.Sprintf("%d-%s", mi.now().UnixMilli(), uuid.NewString())
}

// ValidateTokenFormat checks a token's shape without consulting stored state
func (mi *MasterIndex) ValidateTokenFormat(token string) bool {
	ms, rest, ok := strings.Cut(token, "-")
	if !ok || ms == "" || rest == "" {
		return false
	}
	for _, r := range ms {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HasConflict reports whether the collection's stored modification token
// differs from expectedToken. Unknown collections compare as an empty token.
func (mi *MasterIndex) HasConflict(name, expectedToken string) (bool, error) {
	meta, err := mi.GetCollection(name)
	if err != nil {
		return false, err
	}
	stored := ""
	if meta != nil {
		stored = meta.ModificationToken
	}
	return stored != expectedToken, nil
}

// ResolveConflict reconciles divergent metadata using the given strategy.
// LAST_WRITE_WINS merges the caller's changes over the stored record and
// mints a fresh modification token, which always differs from the token
// that was in conflict. The merged record is returned.
func (mi *MasterIndex) ResolveConflict(name string, changes MetadataChanges, strategy ConflictStrategy) (*CollectionMetadata, error) {
	if strategy != LastWriteWins {
		return nil, fmt.Errorf("%w: unknown conflict strategy %q", ErrInvalidArgument, strategy)
	}

	var merged *CollectionMetadata
	err := mi.withMutex(func(doc *IndexDocument) (bool, error) {
		meta, ok := doc.Collections[name]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
		}
		applyChanges(meta, changes)
		meta.ModificationToken = mi.GenerateModificationToken()
		meta.LastUpdated = mi.now()
		appendHistory(doc, name, meta)
		merged = meta.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if mi.metrics != nil {
		mi.metrics.ConflictsResolvedTotal.Inc()
	}
	mi.log.IndexLogger("resolve_conflict").Debug("Conflict resolved").
		Str("collection", name).
		Str("strategy", string(strategy)).
		Str("token", merged.ModificationToken).
		Send()
	return merged, nil
}

// GetModificationHistory returns past metadata snapshots, most recent last.
// Diagnostics only; never consulted on the control path.
func (mi *MasterIndex) GetModificationHistory(name string) ([]CollectionMetadata, error) {
	doc, err := mi.Load()
	if err != nil {
		return nil, err
	}
	history := doc.ModificationHistory[name]
	out := make([]CollectionMetadata, len(history))
	copy(out, history)
	return out, nil
}

// LockTimeout returns the lease duration granted to virtual locks
func (mi *MasterIndex) LockTimeout() time.Duration {
	return mi.lockTimeout
}

func applyChanges(meta *CollectionMetadata, changes MetadataChanges) {
	if changes.FileID != nil {
		meta.FileID = *changes.FileID
	}
	if changes.DocumentCount != nil {
		meta.DocumentCount = *changes.DocumentCount
	}
	if changes.ModificationToken != nil {
		meta.ModificationToken = *changes.ModificationToken
	}
}

func appendHistory(doc *IndexDocument, name string, meta *CollectionMetadata) {
	snapshot := *meta.Clone()
	snapshot.LockStatus = nil
	history := append(doc.ModificationHistory[name], snapshot)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	doc.ModificationHistory[name] = history
}
