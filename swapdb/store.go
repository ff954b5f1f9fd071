package swapdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// dbFileName is the default file name of the client-side bridge swap
	// database.
	dbFileName = "bridge.db"

	// swapsBucketKey is the bucket that contains all swap records,
	// pending or completed. The bucket is keyed by the swap id.
	//
	// maps: swapID -> serialized SwapRecord
	swapsBucketKey = []byte("bridge-swaps")
)

const (
	// remoteSyncTimeout bounds a single best-effort remote save. The
	// remote write runs detached from the caller's context so a
	// cancelled caller cannot abort an in-flight backup.
	remoteSyncTimeout = 30 * time.Second
)

// fileExists returns true if the file exists, and false otherwise.
func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}

// boltSwapStore stores swap records in boltdb, with optional best-effort
// remote backup and synchronous change notification.
//
// The store serializes read-modify-write cycles per swap id within this
// process only. There is no cross-process locking; running two clients
// against the same database file is unsupported.
type boltSwapStore struct {
	db     *bbolt.DB
	remote RemoteSwapStore

	// idLocks serializes UpdateSwap calls per swap id.
	idLocksMtx sync.Mutex
	idLocks    map[string]*sync.Mutex

	// listeners are notified with a full snapshot after every
	// successful local write.
	listenersMtx sync.Mutex
	listeners    []SwapListener

	// remoteWg tracks in-flight remote saves so Close can wait for
	// them.
	remoteWg sync.WaitGroup
}

// A compile-time check to ensure that boltSwapStore implements the SwapStore
// interface.
var _ SwapStore = (*boltSwapStore)(nil)

// NewBoltSwapStore creates a new client swap store. The remote store may be
// nil, in which case records are kept client-local regardless of version.
func NewBoltSwapStore(dbPath string, remote RemoteSwapStore) (*boltSwapStore,
	error) {

	// If the target path for the swap store doesn't exist, then we'll
	// create it now before we proceed.
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dbPath, dbFileName)
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	// We'll create our swaps bucket if it doesn't yet exist, so all
	// other operations can assume its presence.
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(swapsBucketKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &boltSwapStore{
		db:      db,
		remote:  remote,
		idLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Subscribe registers a listener that is invoked synchronously with the full
// current mapping after every successful local write.
func (s *boltSwapStore) Subscribe(listener SwapListener) {
	s.listenersMtx.Lock()
	defer s.listenersMtx.Unlock()

	s.listeners = append(s.listeners, listener)
}

// FetchSwaps returns all swaps currently in the store. A record that fails
// to deserialize is logged and skipped, so corrupt local state degrades to
// missing data instead of a crash.
func (s *boltSwapStore) FetchSwaps(ctx context.Context) (
	map[string]*SwapRecord, error) {

	swaps := make(map[string]*SwapRecord)

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(swapsBucketKey)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			swap, err := unmarshalSwap(v)
			if err != nil {
				log.Warnf("Skipping unreadable swap "+
					"record %s: %v", string(k), err)

				return nil
			}

			swaps[swap.ID] = swap

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return swaps, nil
}

// FetchSwap returns the swap with the given id.
func (s *boltSwapStore) FetchSwap(ctx context.Context, id string) (
	*SwapRecord, error) {

	var swap *SwapRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(swapsBucketKey).Get([]byte(id))
		if value == nil {
			return ErrSwapNotFound
		}

		var err error
		swap, err = unmarshalSwap(value)

		return err
	})
	if err != nil {
		return nil, err
	}

	return swap, nil
}

// PutSwap persists the record locally. If the record's version is at or
// above the remote sync boundary, a best-effort remote save runs
// concurrently; its failure is logged and never fails the put.
func (s *boltSwapStore) PutSwap(ctx context.Context, swap *SwapRecord) error {
	if swap.ID == "" {
		return errors.New("swap record has no id")
	}

	value, err := marshalSwap(swap)
	if err != nil {
		return err
	}

	// Kick off the remote save before the local write so both proceed
	// concurrently. The local write below is authoritative for the
	// outcome of this call.
	if s.remote != nil && swap.Version.SyncsRemotely() {
		s.saveRemote(swap)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(swapsBucketKey).Put([]byte(swap.ID), value)
	})
	if err != nil {
		return err
	}

	s.notifyListeners(ctx)

	return nil
}

// saveRemote launches a detached best-effort remote save for the given
// record.
func (s *boltSwapStore) saveRemote(swap *SwapRecord) {
	s.remoteWg.Add(1)

	go func() {
		defer s.remoteWg.Done()

		ctx, cancel := context.WithTimeout(
			context.Background(), remoteSyncTimeout,
		)
		defer cancel()

		if err := s.remote.SaveSwap(ctx, swap); err != nil {
			log.Warnf("Remote save of swap %s failed: %v",
				swap.ID, err)
		}
	}()
}

// UpdateSwap applies a mutation to the stored record under a per-id lock and
// persists the result. The update callback sees the freshest stored state.
func (s *boltSwapStore) UpdateSwap(ctx context.Context, id string,
	update func(*SwapRecord) error) error {

	unlock := s.lockID(id)
	defer unlock()

	swap, err := s.FetchSwap(ctx, id)
	if err != nil {
		return err
	}

	if err := update(swap); err != nil {
		return err
	}

	swap.LastUpdate = time.Now().UTC()

	return s.PutSwap(ctx, swap)
}

// lockID acquires the mutation lock for the given swap id, returning the
// matching unlock function.
func (s *boltSwapStore) lockID(id string) func() {
	s.idLocksMtx.Lock()
	lock, ok := s.idLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.idLocks[id] = lock
	}
	s.idLocksMtx.Unlock()

	lock.Lock()

	return lock.Unlock
}

// DeleteSwap removes the record with the given id.
func (s *boltSwapStore) DeleteSwap(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(swapsBucketKey).Delete([]byte(id))
	})
	if err != nil {
		return err
	}

	s.notifyListeners(ctx)

	return nil
}

// Clear removes all records.
func (s *boltSwapStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(swapsBucketKey); err != nil {
			return err
		}

		_, err := tx.CreateBucket(swapsBucketKey)

		return err
	})
	if err != nil {
		return err
	}

	s.notifyListeners(ctx)

	return nil
}

// Close waits for in-flight remote saves and closes the underlying database.
func (s *boltSwapStore) Close() error {
	s.remoteWg.Wait()

	return s.db.Close()
}

// notifyListeners sends the full current mapping to all registered
// listeners. Listeners are invoked synchronously on the writer's goroutine,
// so a successful write is observed before the write call returns.
func (s *boltSwapStore) notifyListeners(ctx context.Context) {
	s.listenersMtx.Lock()
	listeners := make([]SwapListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMtx.Unlock()

	if len(listeners) == 0 {
		return
	}

	swaps, err := s.FetchSwaps(ctx)
	if err != nil {
		log.Errorf("Unable to fetch swaps for notification: %v", err)

		return
	}

	for _, listener := range listeners {
		listener(swaps)
	}
}
