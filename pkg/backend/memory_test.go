// ABOUTME: Tests for the in-memory substrate implementations
// ABOUTME: Verifies KV semantics, blob quota behavior, and timed mutex exclusion

package backend

import (
	"errors"
	"testing"
	"time"
)

func TestMemoryKVRoundTrip(t *testing.T) {
	kv := NewMemoryKV()

	if _, ok, _ := kv.Get("missing"); ok {
		t.Fatal("expected missing key to not exist")
	}

	if err := kv.Set("key", "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := kv.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || v != "value" {
		t.Errorf("Expected 'value', got %q (exists=%v)", v, ok)
	}

	if err := kv.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := kv.Get("key"); ok {
		t.Error("expected key to be gone after delete")
	}

	// Deleting a missing key is not an error
	if err := kv.Delete("key"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestMemoryBlobsRoundTrip(t *testing.T) {
	bs := NewMemoryBlobs()

	if _, err := bs.ReadFile("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := bs.WriteFile("f1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := bs.ReadFile("f1")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("Unexpected contents: %s", data)
	}

	// Returned slice is a copy
	data[0] = 'X'
	data2, _ := bs.ReadFile("f1")
	if string(data2) != `{"a":1}` {
		t.Error("ReadFile returned aliased storage")
	}

	if err := bs.DeleteFile("f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if _, err := bs.ReadFile("f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryBlobsQuota(t *testing.T) {
	bs := NewMemoryBlobs()
	bs.Quota = 10

	if err := bs.WriteFile("f1", []byte("12345")); err != nil {
		t.Fatalf("WriteFile within quota failed: %v", err)
	}
	if err := bs.WriteFile("f2", []byte("1234567890")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}

	// Overwriting an existing blob counts its new size, not both
	if err := bs.WriteFile("f1", []byte("1234567890")); err != nil {
		t.Errorf("Overwrite within quota failed: %v", err)
	}
}

func TestMemoryMutexExclusion(t *testing.T) {
	m := NewMemoryMutex()

	h1, err := m.Acquire(time.Second)
	if err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	// Second acquire blocks roughly its timeout, then fails
	start := time.Now()
	_, err = m.Acquire(100 * time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrMutexTimeout) {
		t.Fatalf("Expected ErrMutexTimeout, got %v", err)
	}
	if elapsed < 80*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("Timeout took %v, expected about 100ms", elapsed)
	}

	if err := m.Release(h1); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Available again after release
	h2, err := m.Acquire(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if err := m.Release(h2); err != nil {
		t.Fatalf("Second release failed: %v", err)
	}
}

func TestMemoryMutexBadHandle(t *testing.T) {
	m := NewMemoryMutex()

	if err := m.Release("not a handle"); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Expected ErrBadHandle for foreign handle, got %v", err)
	}

	h, err := m.Acquire(time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	other := NewMemoryMutex()
	if err := other.Release(h); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Expected ErrBadHandle for other mutex's handle, got %v", err)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Double release
	if err := m.Release(h); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Expected ErrBadHandle on double release, got %v", err)
	}
}

func TestMemoryMutexHandoff(t *testing.T) {
	m := NewMemoryMutex()

	h1, err := m.Acquire(time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		h2, err := m.Acquire(2 * time.Second)
		if err != nil {
			done <- err
			return
		}
		done <- m.Release(h2)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := m.Release(h1); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Waiter failed after release: %v", err)
	}
}
