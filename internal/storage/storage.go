// Package storage holds raw uploaded payloads in S3-compatible object
// storage so the task queue carries a reference instead of file bytes.
package storage

import (
	"context"
	"fmt"
	"io"
)

// PayloadStore persists raw job payloads between intake and the worker.
type PayloadStore interface {
	// Put stores a payload under the given key.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves a stored payload.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a stored payload.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a payload is stored under the key.
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadKey returns the canonical object key for a job's raw CSV payload.
func UploadKey(jobID string) string {
	return fmt.Sprintf("jobs/%s.csv", jobID)
}
