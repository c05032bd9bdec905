// Package storage provides the two media storage backends: the local
// filesystem under a configured media root, and S3 for durable storage.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/models"
)

// ErrNotFound is returned by Fetch when the locator does not exist in the backend.
var ErrNotFound = errors.New("storage: object not found")

// PutResult describes where a stored object landed.
type PutResult struct {
	Backend   models.StorageBackend
	Locator   string // absolute path (local) or object key (remote)
	PublicURL string // set only by the remote backend
}

// Backend is the uniform contract over the local filesystem and S3.
// Operations are safe to call concurrently for different locators.
type Backend interface {
	// Put persists body under the suggested key and reports where it landed.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (PutResult, error)
	// Fetch returns a readable stream for a previously stored object.
	// Returns ErrNotFound when the locator does not exist in this backend.
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
	// Delete removes an object. A missing object is not an error.
	Delete(ctx context.Context, locator string) error
	// Kind reports which backend this is.
	Kind() models.StorageBackend
}
