// ABOUTME: S3-backed substrate for shared deployments on a cloud object store
// ABOUTME: Implements KVStore and BlobStore over GetObject/PutObject/DeleteObject

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the backend uses.
// Satisfied by *s3.Client; tests substitute a fake.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Backend implements KVStore and BlobStore against one bucket.
// KV entries live under <prefix>/kv/, blobs under <prefix>/blobs/.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Backend creates a backend over an existing S3 client
func NewS3Backend(client S3API, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (sb *S3Backend) kvKey(key string) string {
	return path.Join(sb.prefix, kvDir, key+".json")
}

func (sb *S3Backend) blobKey(id string) string {
	return path.Join(sb.prefix, blobDir, id+".json")
}

func (sb *S3Backend) get(key string) ([]byte, bool, error) {
	out, err := sb.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("backend: s3 get %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("backend: s3 read %q: %w", key, err)
	}
	return data, true, nil
}

func (sb *S3Backend) put(key string, data []byte) error {
	_, err := sb.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("backend: s3 put %q: %w", key, err)
	}
	return nil
}

func (sb *S3Backend) del(key string) error {
	_, err := sb.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("backend: s3 delete %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key and whether it exists
func (sb *S3Backend) Get(key string) (string, bool, error) {
	data, ok, err := sb.get(sb.kvKey(key))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(data), true, nil
}

// Set stores value under key
func (sb *S3Backend) Set(key, value string) error {
	return sb.put(sb.kvKey(key), []byte(value))
}

// Delete removes key
func (sb *S3Backend) Delete(key string) error {
	return sb.del(sb.kvKey(key))
}

// ReadFile returns the blob's contents or ErrNotFound
func (sb *S3Backend) ReadFile(id string) ([]byte, error) {
	data, ok, err := sb.get(sb.blobKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// WriteFile stores data under id
func (sb *S3Backend) WriteFile(id string, data []byte) error {
	return sb.put(sb.blobKey(id), data)
}

// DeleteFile removes the blob
func (sb *S3Backend) DeleteFile(id string) error {
	return sb.del(sb.blobKey(id))
}
