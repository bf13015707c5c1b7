// Package kv abstracts the shared key-value store used for cross-process
// coordination: the entity cache, delivery state, and conversation state.
//
// The interface is deliberately narrow. Every mutation a caller needs for
// race-safe coordination maps to a single atomic store command (SET, SETNX,
// DEL); there is no read-modify-write primitive, so any of N worker processes
// and M callback handlers may share the store without in-process locks.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist (or has expired).
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal key-value contract shared by all pipeline components.
//
// A ttl of zero means the key does not expire. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key unconditionally.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes value only when key is absent and reports whether this
	// call performed the write. This is the single atomic check-and-set the
	// delivery tracker builds its at-most-once guarantee on.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
}
