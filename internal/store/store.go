package store

import (
	"context"
	"errors"
)

// The engine coordinates entirely through a replicated key/value store:
// one JSON document per room, addressed by key, versioned by revision.
// Guarded writes (Update with an expected revision) are the only
// concurrency primitive the engine relies on.

var (
	// ErrNotFound is returned when the key does not exist.
	ErrNotFound = errors.New("store: key not found")
	// ErrExists is returned by Create when the key is already present.
	ErrExists = errors.New("store: key already exists")
	// ErrConflict is returned by Update when the expected revision no
	// longer matches, i.e. another writer got there first.
	ErrConflict = errors.New("store: revision conflict")
)

// Entry is a single observed version of a key.
type Entry struct {
	Value    []byte
	Revision uint64
	Deleted  bool
}

// Watcher delivers the current value of a key followed by every
// subsequent update until stopped.
type Watcher interface {
	// Updates returns the channel entries are delivered on. The channel
	// is closed when the watcher stops.
	Updates() <-chan Entry
	// Stop terminates the watch and closes the updates channel.
	Stop()
}

// Store is the replicated document store the engine runs against.
// Implementations must provide per-key atomic compare-and-swap via
// revisions; no cross-key guarantees are assumed.
type Store interface {
	// Create writes a new key, failing with ErrExists if present.
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	// Get returns the current value and revision of a key.
	Get(ctx context.Context, key string) ([]byte, uint64, error)
	// Update replaces the value only if the key is still at the given
	// revision, returning the new revision or ErrConflict.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Watch streams the present value (if any) and all future updates.
	Watch(ctx context.Context, key string) (Watcher, error)
}
