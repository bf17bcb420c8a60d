// Package store persists in-progress answers and result snapshots across
// engine restarts. Backends implement the small KV contract below.
package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KV.Get when nothing is stored under a key.
var ErrKeyNotFound = errors.New("state key not found")

// KV is a string-keyed byte store. Implementations must be safe for
// concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
