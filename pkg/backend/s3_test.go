// ABOUTME: Tests for the S3 substrate against a fake client
// ABOUTME: Verifies key layout, round trips, and NoSuchKey mapping

package backend

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is a map-backed S3API
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func setupTestS3Backend(t *testing.T) (*S3Backend, *fakeS3) {
	t.Helper()
	client := newFakeS3()
	return NewS3Backend(client, "test-bucket", "docsync"), client
}

func TestS3KVRoundTrip(t *testing.T) {
	sb, client := setupTestS3Backend(t)

	if _, ok, err := sb.Get("master"); err != nil || ok {
		t.Fatalf("Expected missing key, got (%v, %v)", ok, err)
	}

	if err := sb.Set("master", `{"version":1}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, exists := client.objects["docsync/kv/master.json"]; !exists {
		t.Errorf("Unexpected object layout: %v", keysOf(client.objects))
	}

	value, ok, err := sb.Get("master")
	if err != nil || !ok {
		t.Fatalf("Get failed: (%v, %v)", ok, err)
	}
	if value != `{"version":1}` {
		t.Errorf("Unexpected value: %q", value)
	}

	if err := sb.Delete("master"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := sb.Get("master"); ok {
		t.Error("Key still present after delete")
	}
}

func TestS3BlobRoundTrip(t *testing.T) {
	sb, client := setupTestS3Backend(t)

	if _, err := sb.ReadFile("f1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := sb.WriteFile("f1", []byte(`{}`)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, exists := client.objects["docsync/blobs/f1.json"]; !exists {
		t.Errorf("Unexpected object layout: %v", keysOf(client.objects))
	}

	data, err := sb.ReadFile("f1")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("Unexpected contents: %s", data)
	}

	if err := sb.DeleteFile("f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if _, err := sb.ReadFile("f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
