// Package storage provides the shared key-value store used by every tab and
// the relay. Values are opaque bytes (JSON in practice); keys are flat strings.
//
// Backends:
//   - SQLiteStore: a file shared by the relay and every tab process.
//   - BadgerStore: an embedded store for single-process runs.
//   - MemoryStore: a map, for tests and in-process simulations.
//   - Noop: the degraded store used outside the host, always misses.
package storage

import (
	"context"
	"fmt"

	apperrors "github.com/focusflow/host/internal/errors"
)

// ErrUnavailable is returned by operations that need a real store and got Noop.
var ErrUnavailable = apperrors.New(apperrors.CodeStoreUnavailable, "store unavailable")

// Store is the contract every backend satisfies.
type Store interface {
	// Put writes value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value under key, or nil, nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Available reports whether writes are durable and visible to peers.
	Available() bool

	Close() error
}

// Open selects a backend by name. Path is ignored for memory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteStore(path)
	case "badger":
		return NewBadgerStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
