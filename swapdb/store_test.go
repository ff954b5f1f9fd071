package swapdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

// remoteMock records remote saves and optionally fails them.
type remoteMock struct {
	mtx   sync.Mutex
	saved []string
	fail  bool

	saveSignal chan struct{}
}

func newRemoteMock() *remoteMock {
	return &remoteMock{
		saveSignal: make(chan struct{}, 10),
	}
}

func (r *remoteMock) SaveSwap(ctx context.Context, swap *SwapRecord) error {
	r.mtx.Lock()
	r.saved = append(r.saved, swap.ID)
	fail := r.fail
	r.mtx.Unlock()

	r.saveSignal <- struct{}{}

	if fail {
		return context.DeadlineExceeded
	}

	return nil
}

func (r *remoteMock) setFail(fail bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.fail = fail
}

func (r *remoteMock) savedIDs() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	ids := make([]string, len(r.saved))
	copy(ids, r.saved)

	return ids
}

func newTestStore(t *testing.T, remote RemoteSwapStore) *boltSwapStore {
	t.Helper()

	store, err := NewBoltSwapStore(t.TempDir(), remote)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

// TestStoreRoundTrip asserts that put followed by get returns the persisted
// record unchanged, and that delete makes it absent.
func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	// An empty database has no swaps.
	swaps, err := store.FetchSwaps(ctx)
	require.NoError(t, err)
	require.Empty(t, swaps)

	record := testRecord()
	record.CreatedAt = time.Date(
		2026, time.March, 9, 14, 0, 0, 0, time.UTC,
	)
	require.NoError(t, store.PutSwap(ctx, record))

	stored, err := store.FetchSwap(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, record, stored)

	swaps, err = store.FetchSwaps(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	require.Equal(t, record, swaps[record.ID])

	// Delete and verify absence.
	require.NoError(t, store.DeleteSwap(ctx, record.ID))

	_, err = store.FetchSwap(ctx, record.ID)
	require.ErrorIs(t, err, ErrSwapNotFound)

	// Deleting an absent id is not an error.
	require.NoError(t, store.DeleteSwap(ctx, record.ID))
}

// TestStoreCorruptRecord asserts that an unreadable stored value degrades to
// missing data instead of an error.
func TestStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	record := testRecord()
	require.NoError(t, store.PutSwap(ctx, record))

	// Write garbage under a second key, bypassing the codec.
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(swapsBucketKey).Put(
			[]byte("swap-corrupt"), []byte("{not json"),
		)
	})
	require.NoError(t, err)

	// The corrupt record is skipped, the healthy one survives.
	swaps, err := store.FetchSwaps(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	require.Contains(t, swaps, record.ID)
}

// TestStoreListeners asserts that listeners receive a full snapshot after
// every successful local write.
func TestStoreListeners(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	var snapshots []map[string]*SwapRecord
	store.Subscribe(func(swaps map[string]*SwapRecord) {
		snapshots = append(snapshots, swaps)
	})

	first := testRecord()
	require.NoError(t, store.PutSwap(ctx, first))

	second := testRecord()
	second.ID = "swap-2"
	require.NoError(t, store.PutSwap(ctx, second))

	require.NoError(t, store.DeleteSwap(ctx, first.ID))

	require.Len(t, snapshots, 3)

	// Every notification carries the complete mapping at that point,
	// not a diff.
	require.Len(t, snapshots[0], 1)
	require.Len(t, snapshots[1], 2)
	require.Len(t, snapshots[2], 1)
	require.Contains(t, snapshots[2], second.ID)
}

// TestStoreRemoteSync asserts that only records at or above the sync
// boundary are saved remotely, and that a failing remote never fails the
// local put.
func TestStoreRemoteSync(t *testing.T) {
	ctx := context.Background()
	remote := newRemoteMock()
	store := newTestStore(t, remote)

	// A record below the boundary stays client-local.
	local := testRecord()
	local.ID = "swap-local"
	local.Version = 3
	require.NoError(t, store.PutSwap(ctx, local))

	// A record at the boundary is synced.
	synced := testRecord()
	synced.ID = "swap-synced"
	synced.Version = RecordVersionRemoteSync
	require.NoError(t, store.PutSwap(ctx, synced))

	select {
	case <-remote.saveSignal:
	case <-time.After(5 * time.Second):
		t.Fatal("remote save not attempted")
	}
	require.Equal(t, []string{"swap-synced"}, remote.savedIDs())

	// A failing remote must not fail the local write.
	remote.setFail(true)

	failing := testRecord()
	failing.ID = "swap-remote-down"
	require.NoError(t, store.PutSwap(ctx, failing))

	select {
	case <-remote.saveSignal:
	case <-time.After(5 * time.Second):
		t.Fatal("remote save not attempted")
	}

	stored, err := store.FetchSwap(ctx, failing.ID)
	require.NoError(t, err)
	require.Equal(t, failing.ID, stored.ID)
}

// TestStoreUpdateSerialization runs many concurrent updates against the same
// id and asserts that none of them are lost.
func TestStoreUpdateSerialization(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	record := testRecord()
	record.Timelock = 0
	require.NoError(t, store.PutSwap(ctx, record))

	const writers = 20

	var wg sync.WaitGroup
	wg.Add(writers)

	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()

			err := store.UpdateSwap(
				ctx, record.ID,
				func(swap *SwapRecord) error {
					swap.Timelock++
					return nil
				},
			)
			require.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, err := store.FetchSwap(ctx, record.ID)
	require.NoError(t, err)
	require.EqualValues(t, writers, stored.Timelock)
}

// TestStoreMockListeners asserts that the in-memory store honors the same
// listener contract as the bolt store: a full snapshot after every write,
// including clear.
func TestStoreMockListeners(t *testing.T) {
	ctx := context.Background()
	store := NewStoreMock()

	var snapshots []map[string]*SwapRecord
	store.Subscribe(func(swaps map[string]*SwapRecord) {
		snapshots = append(snapshots, swaps)
	})

	require.NoError(t, store.PutSwap(ctx, testRecord()))
	require.NoError(t, store.Clear(ctx))

	require.Len(t, snapshots, 2)
	require.Len(t, snapshots[0], 1)
	require.Empty(t, snapshots[1])
}

// TestStoreClear asserts that clear removes all records and notifies with an
// empty snapshot.
func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	require.NoError(t, store.PutSwap(ctx, testRecord()))

	var lastSnapshot map[string]*SwapRecord
	store.Subscribe(func(swaps map[string]*SwapRecord) {
		lastSnapshot = swaps
	})

	require.NoError(t, store.Clear(ctx))

	swaps, err := store.FetchSwaps(ctx)
	require.NoError(t, err)
	require.Empty(t, swaps)
	require.NotNil(t, lastSnapshot)
	require.Empty(t, lastSnapshot)
}
