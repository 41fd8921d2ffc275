// ABOUTME: In-memory substrate implementations for tests and single-process use
// ABOUTME: Map-backed KV and blob stores plus a timed semaphore mutex

package backend

import (
	"sync"
	"time"
)

// MemoryKV is a map-backed KVStore
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryKV creates an empty in-memory key-value store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]string)}
}

// Get returns the value for key and whether it exists
func (kv *MemoryKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.entries[key]
	return v, ok, nil
}

// Set stores value under key
func (kv *MemoryKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.entries[key] = value
	return nil
}

// Delete removes key
func (kv *MemoryKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.entries, key)
	return nil
}

// Len returns the number of stored entries
func (kv *MemoryKV) Len() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.entries)
}

// MemoryBlobs is a map-backed BlobStore
type MemoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// Quota caps total stored bytes when > 0; writes past it fail
	// with ErrQuotaExceeded, mimicking cloud store quota errors.
	Quota int
}

// NewMemoryBlobs creates an empty in-memory blob store
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

// ReadFile returns a copy of the blob's contents or ErrNotFound
func (bs *MemoryBlobs) ReadFile(id string) ([]byte, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	data, ok := bs.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile stores data under id
func (bs *MemoryBlobs) WriteFile(id string, data []byte) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.Quota > 0 {
		total := len(data)
		for other, blob := range bs.blobs {
			if other != id {
				total += len(blob)
			}
		}
		if total > bs.Quota {
			return ErrQuotaExceeded
		}
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	bs.blobs[id] = stored
	return nil
}

// DeleteFile removes the blob
func (bs *MemoryBlobs) DeleteFile(id string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	delete(bs.blobs, id)
	return nil
}

// MemoryMutex is a Mutex backed by a buffered-channel semaphore.
// It supports timed acquisition and is the deterministic test substrate.
type MemoryMutex struct {
	sem chan struct{}

	mu     sync.Mutex
	holder *memoryHandle
}

type memoryHandle struct {
	owner *MemoryMutex
}

// NewMemoryMutex creates an unheld mutex
func NewMemoryMutex() *MemoryMutex {
	return &MemoryMutex{sem: make(chan struct{}, 1)}
}

// Acquire blocks up to timeout for exclusive ownership
func (m *MemoryMutex) Acquire(timeout time.Duration) (Handle, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m.sem <- struct{}{}:
		h := &memoryHandle{owner: m}
		m.mu.Lock()
		m.holder = h
		m.mu.Unlock()
		return h, nil
	case <-timer.C:
		return nil, ErrMutexTimeout
	}
}

// Release gives up ownership; the handle must be the one Acquire issued
func (m *MemoryMutex) Release(h Handle) error {
	mh, ok := h.(*memoryHandle)
	if !ok || mh == nil || mh.owner != m {
		return ErrBadHandle
	}

	m.mu.Lock()
	if m.holder != mh {
		m.mu.Unlock()
		return ErrBadHandle
	}
	m.holder = nil
	m.mu.Unlock()

	<-m.sem
	return nil
}
