// Package storage abstracts the object store holding payload files and
// task artifacts.
package storage

import (
	"context"
	"io"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore lists and removes payload objects. Workflow payloads live
// under a bucket/prefix pair; the retention sweeper removes every object
// below a payload's root prefix.
type ObjectStore interface {
	// ListObjects returns every object under prefix in bucket.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// GetObject opens the object for reading. The caller closes it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// RemoveObject deletes a single object.
	RemoveObject(ctx context.Context, bucket, key string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}
