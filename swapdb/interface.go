package swapdb

import (
	"context"
	"errors"
)

var (
	// ErrSwapNotFound is returned when the requested swap id is not
	// present in the store.
	ErrSwapNotFound = errors.New("swap not found")
)

// SwapListener is notified after every successful local write with the full
// current mapping of swaps. Notifications are snapshots, not deltas; a
// listener must not retain and mutate the records it receives.
type SwapListener func(swaps map[string]*SwapRecord)

// SwapStore is the primary swap database interface of the bridge engine. It
// houses the records for all pending and completed swaps.
type SwapStore interface {
	// FetchSwaps returns all swaps currently in the store, keyed by id.
	// Unreadable records are skipped, never surfaced as an error.
	FetchSwaps(ctx context.Context) (map[string]*SwapRecord, error)

	// FetchSwap returns the swap with the given id, or ErrSwapNotFound.
	FetchSwap(ctx context.Context, id string) (*SwapRecord, error)

	// PutSwap persists the record locally and, if its version meets the
	// remote sync boundary, additionally attempts a best-effort remote
	// save. Remote failure never fails the put.
	PutSwap(ctx context.Context, swap *SwapRecord) error

	// UpdateSwap applies a mutation to the stored record under a per-id
	// lock, then persists the result. Concurrent updates to the same id
	// are serialized so a poll result and a user action cannot
	// interleave.
	UpdateSwap(ctx context.Context, id string,
		update func(*SwapRecord) error) error

	// DeleteSwap removes the record with the given id. Deleting an
	// absent id is not an error.
	DeleteSwap(ctx context.Context, id string) error

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Close closes the underlying database.
	Close() error
}

// RemoteSwapStore is the client-side contract with the remote swap backup
// service. SaveSwap is an idempotent upsert keyed by the record id.
type RemoteSwapStore interface {
	SaveSwap(ctx context.Context, swap *SwapRecord) error
}
