// ABOUTME: Collection handle with MongoDB-style CRUD operations
// ABOUTME: Routes every mutation through the coordination protocol

package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nainya/docsync/pkg/blob"
	"github.com/nainya/docsync/pkg/coordinator"
	"github.com/nainya/docsync/pkg/document"
	"github.com/nainya/docsync/pkg/index"
	"github.com/nainya/docsync/pkg/query"
	"github.com/nainya/docsync/pkg/update"
)

// ErrDropped indicates an operation on a collection handle after its drop
var ErrDropped = errors.New("store: collection dropped")

// UpdateResult reports the outcome of an update operation
type UpdateResult struct {
	MatchedCount  int
	ModifiedCount int
}

// Collection is one named document set backed by a single blob file.
// Mutations run inside the coordination protocol; reads serve the lazily
// loaded in-memory set.
type Collection struct {
	db    *Database
	name  string
	coord *coordinator.Coordinator

	mu      sync.Mutex
	fileID  string
	token   string
	docs    blob.DocumentSet // nil until first load
	dropped bool
}

func newCollection(db *Database, name string, meta *index.CollectionMetadata) *Collection {
	c := &Collection{
		db:     db,
		name:   name,
		fileID: meta.FileID,
		token:  meta.ModificationToken,
	}
	c.coord = coordinator.New(c, db.idx, coordinator.Config{
		Enabled:       db.cfg.CoordinationEnabled,
		LockTimeout:   db.cfg.LockTimeout,
		RetryAttempts: db.cfg.RetryAttempts,
		RetryDelay:    db.cfg.RetryDelay,
	}, db.log, db.metrics)
	return c
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// ModificationToken returns the locally held version stamp.
// Part of the coordinator.Target contract.
func (c *Collection) ModificationToken() string {
	return c.token
}

// SetModificationToken adopts a freshly published version stamp.
// Part of the coordinator.Target contract.
func (c *Collection) SetModificationToken(token string) {
	c.token = token
}

// DocumentCount returns the in-memory document count.
// Part of the coordinator.Target contract.
func (c *Collection) DocumentCount() int {
	return len(c.docs)
}

// Reload refreshes local state from the authoritative metadata and re-reads
// the backing file, bypassing the cache. Part of the coordinator.Target
// contract; invoked while the virtual lock is held.
func (c *Collection) Reload(meta *index.CollectionMetadata) error {
	if meta == nil {
		// Collection vanished from the index; start from an empty view
		c.token = ""
		c.docs = make(blob.DocumentSet)
		return nil
	}
	c.fileID = meta.FileID
	c.token = meta.ModificationToken
	docs, err := c.db.files.Refresh(c.fileID)
	if err != nil {
		return err
	}
	c.docs = docs
	return nil
}

// load reads the backing file on first use
func (c *Collection) load() error {
	if c.docs != nil {
		return nil
	}
	docs, err := c.db.files.Read(c.fileID)
	if err != nil {
		return err
	}
	c.docs = docs
	return nil
}

// flush persists the in-memory set to the backing file
func (c *Collection) flush() error {
	return c.db.files.Write(c.fileID, c.docs)
}

// InsertOne adds one document, assigning an _id when absent, and returns it
func (c *Collection) InsertOne(doc document.Document) (string, error) {
	ids, err := c.InsertMany([]document.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany adds documents atomically and returns their ids in input order
func (c *Collection) InsertMany(docs []document.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("store: no documents to insert")
	}
	for _, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("store: cannot insert a nil document")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return nil, ErrDropped
	}

	var ids []string
	err := c.coord.Coordinate("insertMany", func() error {
		if err := c.load(); err != nil {
			return err
		}
		ids = ids[:0]
		inserted := make([]string, 0, len(docs))
		for _, doc := range docs {
			d := doc.Clone()
			id := d.ID()
			if id == "" {
				id = document.NewID()
				d[document.IDField] = id
			}
			if _, exists := c.docs[id]; exists {
				// Roll back this batch's partial inserts
				for _, prev := range inserted {
					delete(c.docs, prev)
				}
				return fmt.Errorf("store: duplicate _id %q in collection %q", id, c.name)
			}
			c.docs[id] = d
			inserted = append(inserted, id)
			ids = append(ids, id)
		}
		return c.flush()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindOne returns the first matching document in _id order, or nil
func (c *Collection) FindOne(filter map[string]interface{}) (document.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return nil, ErrDropped
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	for _, id := range c.sortedIDs() {
		ok, err := query.Match(c.docs[id], filter)
		if err != nil {
			return nil, err
		}
		if ok {
			return c.docs[id].Clone(), nil
		}
	}
	return nil, nil
}

// Find returns all matching documents in _id order
func (c *Collection) Find(filter map[string]interface{}) ([]document.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return nil, ErrDropped
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	var out []document.Document
	for _, id := range c.sortedIDs() {
		ok, err := query.Match(c.docs[id], filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c.docs[id].Clone())
		}
	}
	return out, nil
}

// CountDocuments returns the number of documents matching filter
func (c *Collection) CountDocuments(filter map[string]interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return 0, ErrDropped
	}
	if err := c.load(); err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range c.docs {
		ok, err := query.Match(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// UpdateOne applies spec to the first matching document in _id order
func (c *Collection) UpdateOne(filter, spec map[string]interface{}) (*UpdateResult, error) {
	return c.applyUpdate("updateOne", filter, spec, 1)
}

// UpdateMany applies spec to every matching document
func (c *Collection) UpdateMany(filter, spec map[string]interface{}) (*UpdateResult, error) {
	return c.applyUpdate("updateMany", filter, spec, 0)
}

// ReplaceOne replaces the first matching document wholesale, preserving _id
func (c *Collection) ReplaceOne(filter map[string]interface{}, replacement document.Document) (*UpdateResult, error) {
	if replacement == nil {
		return nil, fmt.Errorf("store: replacement document required")
	}
	for key := range replacement {
		if key != document.IDField && len(key) > 0 && key[0] == '$' {
			return nil, fmt.Errorf("store: replacement document may not contain operators")
		}
	}
	return c.applyUpdate("replaceOne", filter, map[string]interface{}(replacement), 1)
}

// applyUpdate is the shared coordinated update path; limit 0 means no limit
func (c *Collection) applyUpdate(operation string, filter, spec map[string]interface{}, limit int) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return nil, ErrDropped
	}

	result := &UpdateResult{}
	err := c.coord.Coordinate(operation, func() error {
		if err := c.load(); err != nil {
			return err
		}
		*result = UpdateResult{}
		for _, id := range c.sortedIDs() {
			ok, err := query.Match(c.docs[id], filter)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			result.MatchedCount++

			updated, changed, err := update.Apply(c.docs[id], spec)
			if err != nil {
				return err
			}
			if changed {
				updated[document.IDField] = id
				c.docs[id] = updated
				result.ModifiedCount++
			}
			if limit > 0 && result.MatchedCount >= limit {
				break
			}
		}
		if result.ModifiedCount == 0 {
			return nil
		}
		return c.flush()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOne removes the first matching document in _id order
func (c *Collection) DeleteOne(filter map[string]interface{}) (bool, error) {
	n, err := c.applyDelete("deleteOne", filter, 1)
	return n > 0, err
}

// DeleteMany removes every matching document and returns how many
func (c *Collection) DeleteMany(filter map[string]interface{}) (int, error) {
	return c.applyDelete("deleteMany", filter, 0)
}

func (c *Collection) applyDelete(operation string, filter map[string]interface{}, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return 0, ErrDropped
	}

	deleted := 0
	err := c.coord.Coordinate(operation, func() error {
		if err := c.load(); err != nil {
			return err
		}
		deleted = 0
		for _, id := range c.sortedIDs() {
			ok, err := query.Match(c.docs[id], filter)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			delete(c.docs, id)
			deleted++
			if limit > 0 && deleted >= limit {
				break
			}
		}
		if deleted == 0 {
			return nil
		}
		return c.flush()
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Metadata returns the collection's current record in the master index
func (c *Collection) Metadata() (*index.CollectionMetadata, error) {
	return c.db.idx.GetCollection(c.name)
}

// drop removes the backing blob and the index entry under coordination
func (c *Collection) drop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return nil
	}

	err := c.coord.Coordinate("drop", func() error {
		if err := c.db.files.Delete(c.fileID); err != nil {
			return err
		}
		_, err := c.db.idx.RemoveCollection(c.name)
		return err
	})
	if err != nil {
		return err
	}
	c.dropped = true
	c.docs = nil
	return nil
}

func (c *Collection) sortedIDs() []string {
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
