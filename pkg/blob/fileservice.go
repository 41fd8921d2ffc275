// ABOUTME: Cached collection-file access over the blob store
// ABOUTME: JSON round-tripping, LRU caching, and typed quota/IO error passthrough

package blob

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nainya/docsync/internal/metrics"
	"github.com/nainya/docsync/pkg/backend"
	"github.com/nainya/docsync/pkg/document"
)

// DocumentSet is one collection's documents keyed by _id, as stored in a blob
type DocumentSet map[string]document.Document

// FileService reads and writes collection files with an LRU cache in front.
// Cached sets are authoritative copies; reads hand out clones so callers
// can mutate freely.
type FileService struct {
	store   backend.BlobStore
	cache   *lru.Cache[string, DocumentSet]
	metrics *metrics.Metrics
}

// NewFileService creates a file service with the given cache capacity
func NewFileService(store backend.BlobStore, cacheSize int, m *metrics.Metrics) (*FileService, error) {
	cache, err := lru.New[string, DocumentSet](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("blob: create cache: %w", err)
	}
	return &FileService{store: store, cache: cache, metrics: m}, nil
}

// Read returns the documents in the collection file, served from cache when
// possible. Missing files surface backend.ErrNotFound.
func (fs *FileService) Read(fileID string) (DocumentSet, error) {
	if cached, ok := fs.cache.Get(fileID); ok {
		if fs.metrics != nil {
			fs.metrics.CacheHitsTotal.Inc()
		}
		return cloneSet(cached), nil
	}
	if fs.metrics != nil {
		fs.metrics.CacheMissesTotal.Inc()
	}

	data, err := fs.store.ReadFile(fileID)
	if err != nil {
		return nil, fmt.Errorf("blob: read collection file %q: %w", fileID, err)
	}
	var docs DocumentSet
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("blob: decode collection file %q: %w", fileID, err)
	}
	if docs == nil {
		docs = make(DocumentSet)
	}
	fs.cache.Add(fileID, cloneSet(docs))
	return docs, nil
}

// ReadMany reads several collection files, stopping at the first failure
func (fs *FileService) ReadMany(fileIDs []string) (map[string]DocumentSet, error) {
	out := make(map[string]DocumentSet, len(fileIDs))
	for _, id := range fileIDs {
		docs, err := fs.Read(id)
		if err != nil {
			return nil, err
		}
		out[id] = docs
	}
	return out, nil
}

// Refresh drops any cached copy and re-reads from the blob store.
// Used when another process may have rewritten the file.
func (fs *FileService) Refresh(fileID string) (DocumentSet, error) {
	fs.cache.Remove(fileID)
	return fs.Read(fileID)
}

// Write persists the documents and updates the cache.
// Quota failures pass through as backend.ErrQuotaExceeded.
func (fs *FileService) Write(fileID string, docs DocumentSet) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("blob: encode collection file %q: %w", fileID, err)
	}
	if err := fs.store.WriteFile(fileID, data); err != nil {
		return fmt.Errorf("blob: write collection file %q: %w", fileID, err)
	}
	fs.cache.Add(fileID, cloneSet(docs))
	return nil
}

// Delete removes the collection file and its cache entry
func (fs *FileService) Delete(fileID string) error {
	fs.cache.Remove(fileID)
	if err := fs.store.DeleteFile(fileID); err != nil {
		return fmt.Errorf("blob: delete collection file %q: %w", fileID, err)
	}
	return nil
}

func cloneSet(docs DocumentSet) DocumentSet {
	out := make(DocumentSet, len(docs))
	for id, doc := range docs {
		out[id] = doc.Clone()
	}
	return out
}
