// ABOUTME: Database handle wiring collections to the shared index and substrate
// ABOUTME: Collection creation/lookup, listing, and dropping

package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/docsync/internal/logger"
	"github.com/nainya/docsync/internal/metrics"
	"github.com/nainya/docsync/pkg/backend"
	"github.com/nainya/docsync/pkg/blob"
	"github.com/nainya/docsync/pkg/config"
	"github.com/nainya/docsync/pkg/index"
)

// Backends bundles the substrate a database runs on
type Backends struct {
	KV    backend.KVStore
	Blobs backend.BlobStore
	Mutex backend.Mutex
}

// Options carries optional collaborators
type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Database is the top-level handle. Each collection is one file in the blob
// store; the master index in the KV store coordinates concurrent access.
type Database struct {
	cfg     config.Config
	idx     *index.MasterIndex
	files   *blob.FileService
	log     *logger.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	collections map[string]*Collection
}

// Open validates cfg and builds a database over the given backends
func Open(cfg config.Config, b Backends, opts Options) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.KV == nil || b.Blobs == nil || b.Mutex == nil {
		return nil, fmt.Errorf("store: kv, blob, and mutex backends are all required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobalLogger()
	}

	idx := index.NewMasterIndex(b.KV, b.Mutex, index.Options{
		Key:         cfg.MasterIndexKey,
		LockTimeout: cfg.LockTimeout,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
		Clock:       opts.Clock,
	})
	files, err := blob.NewFileService(b.Blobs, cfg.CacheSize, opts.Metrics)
	if err != nil {
		return nil, err
	}

	return &Database{
		cfg:         cfg,
		idx:         idx,
		files:       files,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		collections: make(map[string]*Collection),
	}, nil
}

// Index exposes the master index for diagnostics and tooling
func (db *Database) Index() *index.MasterIndex {
	return db.idx
}

// Collection returns a handle for name, creating the collection on first use
func (db *Database) Collection(name string) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("store: collection name must not be empty")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	meta, err := db.idx.GetCollection(name)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta, err = db.createCollection(name)
		if err != nil {
			return nil, err
		}
	}

	c := newCollection(db, name, meta)
	db.collections[name] = c
	return c, nil
}

// createCollection registers a new empty collection. Two processes creating
// the same name concurrently both succeed; the later registration wins and
// the loser's first coordinated write detects the token mismatch and reloads.
func (db *Database) createCollection(name string) (*index.CollectionMetadata, error) {
	fileID := uuid.NewString()
	if err := db.files.Write(fileID, make(blob.DocumentSet)); err != nil {
		return nil, err
	}

	meta := &index.CollectionMetadata{
		Name:              name,
		FileID:            fileID,
		DocumentCount:     0,
		ModificationToken: db.idx.GenerateModificationToken(),
	}
	if err := db.idx.AddCollection(name, meta); err != nil {
		return nil, err
	}

	db.log.StoreLogger(name).Info("Collection created").
		Str("file_id", fileID).
		Send()
	return meta, nil
}

// ListCollections returns all registered collection names, sorted
func (db *Database) ListCollections() ([]string, error) {
	all, err := db.idx.GetCollections()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DropCollection removes a collection: its blob, its index entry, and any
// local handle. Dropping an unknown collection is a no-op.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	c, ok := db.collections[name]
	delete(db.collections, name)
	db.mu.Unlock()

	if !ok {
		meta, err := db.idx.GetCollection(name)
		if err != nil {
			return err
		}
		if meta == nil {
			return nil
		}
		c = newCollection(db, name, meta)
	}
	return c.drop()
}
