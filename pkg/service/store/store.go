// Package store implements the client adapter for the external
// key-value store backing the block pipeline.
package store

import (
	"context"
)

// Store wraps the list and hash primitives the pipeline needs from the
// backing key-value store.
//
// List values follow the queue layout: the head of a list is the newest
// entry and the tail is the oldest, so ListPush paired with ListPop
// behaves as a FIFO queue.
type Store interface {
	// ListPush inserts data at the head of the list stored at key,
	// making it the newest entry.
	ListPush(ctx context.Context, key string, data []byte) error
	// ListPop atomically removes and returns the tail (oldest entry) of
	// the list stored at key. A missing or empty list yields (nil, nil).
	ListPop(ctx context.Context, key string) ([]byte, error)
	// ListRange returns the full contents of the list stored at key
	// without modifying it, head (newest) first.
	ListRange(ctx context.Context, key string) ([][]byte, error)

	// HashSet sets field in the hash stored at key, overwriting any
	// previous value.
	HashSet(ctx context.Context, key, field string, data []byte) error
	// HashGetAll returns every field of the hash stored at key. A
	// missing hash yields an empty map.
	HashGetAll(ctx context.Context, key string) (map[string][]byte, error)
}

type corrupter interface {
	Corrupt() bool
}

// corruptError marks a stored payload that could not be decoded.
type corruptError struct {
	error
}

func (corruptError) Corrupt() bool { return true }

// IsCorrupt reports whether err indicates a malformed stored payload.
//
// Corruption is not transient, so callers must not retry operations
// that fail this way.
func IsCorrupt(err error) bool {
	for err != nil {
		if c, ok := err.(corrupter); ok && c.Corrupt() {
			return true
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			return false
		}
		err = cause.Cause()
	}
	return false
}
