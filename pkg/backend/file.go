// ABOUTME: Filesystem substrate over afero for local and on-disk shared deployments
// ABOUTME: KV entries and blobs as files, mutex as an exclusive lockfile with stale reclaim

package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const (
	kvDir   = "kv"
	blobDir = "blobs"

	lockPollInterval = 25 * time.Millisecond
)

// FileBackend implements KVStore and BlobStore on a filesystem root.
// The afero abstraction lets tests run against an in-memory filesystem.
type FileBackend struct {
	fs   afero.Fs
	root string
}

// NewFileBackend creates a backend rooted at root, creating directories as needed
func NewFileBackend(fs afero.Fs, root string) (*FileBackend, error) {
	for _, dir := range []string{kvDir, blobDir} {
		if err := fs.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("backend: create %s dir: %w", dir, err)
		}
	}
	return &FileBackend{fs: fs, root: root}, nil
}

func (fb *FileBackend) kvPath(key string) string {
	return filepath.Join(fb.root, kvDir, key+".json")
}

func (fb *FileBackend) blobPath(id string) string {
	return filepath.Join(fb.root, blobDir, id+".json")
}

// Get returns the value for key and whether it exists
func (fb *FileBackend) Get(key string) (string, bool, error) {
	data, err := afero.ReadFile(fb.fs, fb.kvPath(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("backend: read key %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set stores value under key
func (fb *FileBackend) Set(key, value string) error {
	if err := afero.WriteFile(fb.fs, fb.kvPath(key), []byte(value), 0o644); err != nil {
		return fmt.Errorf("backend: write key %q: %w", key, err)
	}
	return nil
}

// Delete removes key
func (fb *FileBackend) Delete(key string) error {
	err := fb.fs.Remove(fb.kvPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend: delete key %q: %w", key, err)
	}
	return nil
}

// ReadFile returns the blob's contents or ErrNotFound
func (fb *FileBackend) ReadFile(id string) ([]byte, error) {
	data, err := afero.ReadFile(fb.fs, fb.blobPath(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("backend: read blob %q: %w", id, err)
	}
	return data, nil
}

// WriteFile stores data under id
func (fb *FileBackend) WriteFile(id string, data []byte) error {
	if err := afero.WriteFile(fb.fs, fb.blobPath(id), data, 0o644); err != nil {
		return fmt.Errorf("backend: write blob %q: %w", id, err)
	}
	return nil
}

// DeleteFile removes the blob
func (fb *FileBackend) DeleteFile(id string) error {
	err := fb.fs.Remove(fb.blobPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend: delete blob %q: %w", id, err)
	}
	return nil
}

// FileMutex provides cross-process mutual exclusion through an exclusive
// lockfile. A lockfile older than StaleAfter is treated as abandoned and
// reclaimed, so a crashed holder cannot block other processes forever.
type FileMutex struct {
	fs   afero.Fs
	path string

	// StaleAfter bounds how long a lockfile is honored
	StaleAfter time.Duration
}

type fileHandle struct {
	owner *FileMutex
	token string
}

type lockfileBody struct {
	Token    string    `json:"token"`
	PID      int       `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

// NewFileMutex creates a mutex whose lockfile lives at path
func NewFileMutex(fs afero.Fs, path string, staleAfter time.Duration) *FileMutex {
	return &FileMutex{fs: fs, path: path, StaleAfter: staleAfter}
}

// Acquire polls for exclusive lockfile creation until timeout
func (m *FileMutex) Acquire(timeout time.Duration) (Handle, error) {
	deadline := time.Now().Add(timeout)
	for {
		h, ok, err := m.tryAcquire()
		if err != nil {
			return nil, err
		}
		if ok {
			return h, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrMutexTimeout
		}
		time.Sleep(lockPollInterval)
	}
}

func (m *FileMutex) tryAcquire() (Handle, bool, error) {
	f, err := m.fs.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		m.reclaimIfStale()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("backend: create lockfile: %w", err)
	}
	defer f.Close()

	body := lockfileBody{
		Token:    fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano()),
		PID:      os.Getpid(),
		Acquired: time.Now(),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, false, err
	}
	if _, err := f.Write(data); err != nil {
		_ = m.fs.Remove(m.path)
		return nil, false, fmt.Errorf("backend: write lockfile: %w", err)
	}
	return &fileHandle{owner: m, token: body.Token}, true, nil
}

func (m *FileMutex) reclaimIfStale() {
	if m.StaleAfter <= 0 {
		return
	}
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return
	}
	var body lockfileBody
	if err := json.Unmarshal(data, &body); err != nil {
		// Unreadable lockfile, reclaim it
		_ = m.fs.Remove(m.path)
		return
	}
	if time.Since(body.Acquired) > m.StaleAfter {
		_ = m.fs.Remove(m.path)
	}
}

// Release removes the lockfile if the handle still owns it
func (m *FileMutex) Release(h Handle) error {
	fh, ok := h.(*fileHandle)
	if !ok || fh == nil || fh.owner != m {
		return ErrBadHandle
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if os.IsNotExist(err) {
		// Lock was reclaimed as stale; nothing to release
		return nil
	}
	if err != nil {
		return fmt.Errorf("backend: read lockfile: %w", err)
	}
	var body lockfileBody
	if err := json.Unmarshal(data, &body); err == nil && body.Token != fh.token {
		// Someone else holds it now
		return ErrBadHandle
	}
	if err := m.fs.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend: remove lockfile: %w", err)
	}
	return nil
}
