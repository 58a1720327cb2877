// Package storage holds the blob store: the place uploaded file contents live
// under generated keys. Backends are a local directory and S3-compatible
// object storage (MinIO, AWS S3, etc.).
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned by Get and Delete when no blob exists under the key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Put when the key is already taken.
	// Backends that cannot detect this overwrite instead.
	ErrObjectExists = errors.New("object already exists")
	// ErrInvalidKey is returned for keys that are empty or not filesystem-safe.
	ErrInvalidKey = errors.New("invalid object key")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType is optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Storage is the blob store used by the document service.
// Methods use context and streaming readers; implementations are safe for concurrent use.
type Storage interface {
	// Put stores the reader's content under key. The blob becomes visible only
	// once fully written; on error nothing is left behind.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get opens the blob for streaming alongside its info. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the blob under key.
	Delete(ctx context.Context, key string) error
}
