// Package storage defines the Backend contract shared by every storage medium
// (filesystem, object store, document store, SQL) and the errors they report.
package storage

import (
	"context"

	"github.com/juju/errors"
)

// ListCap is the maximum number of keys a remote backend returns from a single List call.
const ListCap = 1000

const (
	// ErrWriteNotAcknowledged is returned when a backend accepted a write
	// without confirming it was applied.
	ErrWriteNotAcknowledged = errors.ConstError("write not acknowledged")

	// ErrUnknownStorageSource is returned for storage source tokens no backend handles.
	ErrUnknownStorageSource = errors.ConstError("unknown storage source")
)

// Backend is the interface for content storage backends.
//
// Keys are backend-agnostic strings such as "patents/US7654321B2.json";
// each implementation maps them onto its own addressing scheme.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the content stored at key.
	// A missing key yields an error satisfying errors.Is(err, errors.NotFound).
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys (or names) matching prefix. An empty listing is not an error.
	List(ctx context.Context, prefix string) (Listing, error)

	// Exists reports whether key is present. A missing key is not an error.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes key. Whether a missing key is an error depends on the backend.
	Remove(ctx context.Context, key string) error

	// Put creates or overwrites key with data.
	Put(ctx context.Context, key string, data []byte) error

	// Type returns the backend type identifier ("local", "s3", "mongodb", "postgres").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// Listing is the result of Backend.List.
type Listing struct {
	Keys []string
	// Truncated is set when the backend stopped at ListCap and more matches exist.
	Truncated bool
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errors.NotFound)
}
