// Package kv defines the flat key-value cache that kvfs stores file contents
// in, together with the backends it ships with.
//
// A Store knows nothing about directories: keys are opaque, path-shaped
// strings and every value is a complete file body. Backends guarantee
// atomicity for single-key operations only.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("kv: key not found")

// ErrClosed is returned by stores that have been closed.
var ErrClosed = errors.New("kv: store closed")

// Store is the cache client used by kvfs.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a value is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns every key that starts with prefix, in no particular order.
	// An empty prefix enumerates the whole store.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}
