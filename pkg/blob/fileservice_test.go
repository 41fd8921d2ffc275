// ABOUTME: Tests for the cached file service
// ABOUTME: Covers cache hits and misses, refresh after external writes, clone isolation, and error passthrough

package blob

import (
	"errors"
	"testing"

	"github.com/nainya/docsync/pkg/backend"
	"github.com/nainya/docsync/pkg/document"
)

func setupTestFileService(t *testing.T) (*FileService, *backend.MemoryBlobs) {
	t.Helper()
	blobs := backend.NewMemoryBlobs()
	fs, err := NewFileService(blobs, 8, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	return fs, blobs
}

func testSet() DocumentSet {
	return DocumentSet{
		"d1": document.Document{"_id": "d1", "name": "ada"},
		"d2": document.Document{"_id": "d2", "name": "bob"},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs, _ := setupTestFileService(t)

	if err := fs.Write("f1", testSet()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	docs, err := fs.Read("f1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(docs) != 2 || docs["d1"]["name"] != "ada" {
		t.Errorf("Unexpected documents: %v", docs)
	}
}

func TestReadMissingFile(t *testing.T) {
	fs, _ := setupTestFileService(t)

	_, err := fs.Read("ghost")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestReadServesFromCache(t *testing.T) {
	fs, blobs := setupTestFileService(t)

	if err := fs.Write("f1", testSet()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Remove the underlying blob; the cache still serves the set
	if err := blobs.DeleteFile("f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	docs, err := fs.Read("f1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Expected cached set of 2, got %d", len(docs))
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	fs, blobs := setupTestFileService(t)

	if err := fs.Write("f1", testSet()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Another process rewrites the file out from under us
	if err := blobs.WriteFile("f1", []byte(`{"d9":{"_id":"d9"}}`)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cached, err := fs.Read("f1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("Expected stale cached set of 2, got %d", len(cached))
	}

	fresh, err := fs.Refresh("f1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(fresh) != 1 || fresh["d9"] == nil {
		t.Errorf("Expected refreshed set, got %v", fresh)
	}
}

func TestReadReturnsClones(t *testing.T) {
	fs, _ := setupTestFileService(t)

	if err := fs.Write("f1", testSet()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	docs, _ := fs.Read("f1")
	docs["d1"]["name"] = "mutated"

	again, _ := fs.Read("f1")
	if again["d1"]["name"] != "ada" {
		t.Error("Read handed out shared document state")
	}
}

func TestWriteCachesClone(t *testing.T) {
	fs, _ := setupTestFileService(t)

	set := testSet()
	if err := fs.Write("f1", set); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	set["d1"]["name"] = "mutated"

	docs, _ := fs.Read("f1")
	if docs["d1"]["name"] != "ada" {
		t.Error("Cache shares state with the caller's set")
	}
}

func TestReadEmptyFile(t *testing.T) {
	fs, blobs := setupTestFileService(t)

	if err := blobs.WriteFile("f1", []byte(`null`)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	docs, err := fs.Read("f1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("Expected empty non-nil set, got %v", docs)
	}
}

func TestReadMany(t *testing.T) {
	fs, _ := setupTestFileService(t)

	if err := fs.Write("f1", testSet()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := fs.Write("f2", DocumentSet{"x": document.Document{"_id": "x"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	sets, err := fs.ReadMany([]string{"f1", "f2"})
	if err != nil {
		t.Fatalf("ReadMany failed: %v", err)
	}
	if len(sets) != 2 || len(sets["f1"]) != 2 || len(sets["f2"]) != 1 {
		t.Errorf("Unexpected sets: %v", sets)
	}

	_, err = fs.ReadMany([]string{"f1", "ghost"})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing file, got %v", err)
	}
}

func TestWriteQuotaPassthrough(t *testing.T) {
	blobs := backend.NewMemoryBlobs()
	blobs.Quota = 10
	fs, err := NewFileService(blobs, 8, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}

	err = fs.Write("f1", testSet())
	if !errors.Is(err, backend.ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	fs, _ := setupTestFileService(t)

	if err := fs.Write("f1", testSet()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := fs.Delete("f1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := fs.Read("f1")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
