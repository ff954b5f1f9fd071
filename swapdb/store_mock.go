package swapdb

import (
	"context"
	"sync"
	"time"
)

// StoreMock is an in-memory implementation of SwapStore for use in tests.
type StoreMock struct {
	mtx       sync.Mutex
	swaps     map[string]*SwapRecord
	listeners []SwapListener
}

// A compile-time check to ensure that StoreMock implements the SwapStore
// interface.
var _ SwapStore = (*StoreMock)(nil)

// NewStoreMock returns an empty in-memory swap store.
func NewStoreMock() *StoreMock {
	return &StoreMock{
		swaps: make(map[string]*SwapRecord),
	}
}

// Subscribe registers a snapshot listener.
func (s *StoreMock) Subscribe(listener SwapListener) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.listeners = append(s.listeners, listener)
}

// FetchSwaps returns a copy of all stored swaps.
func (s *StoreMock) FetchSwaps(ctx context.Context) (map[string]*SwapRecord,
	error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.snapshot(), nil
}

// FetchSwap returns the swap with the given id.
func (s *StoreMock) FetchSwap(ctx context.Context, id string) (*SwapRecord,
	error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	swap, ok := s.swaps[id]
	if !ok {
		return nil, ErrSwapNotFound
	}

	swapCopy := *swap

	return &swapCopy, nil
}

// PutSwap stores the record and notifies listeners.
func (s *StoreMock) PutSwap(ctx context.Context, swap *SwapRecord) error {
	s.mtx.Lock()
	swapCopy := *swap
	s.swaps[swap.ID] = &swapCopy
	listeners, snapshot := s.listeners, s.snapshot()
	s.mtx.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}

	return nil
}

// UpdateSwap applies a mutation to the stored record.
func (s *StoreMock) UpdateSwap(ctx context.Context, id string,
	update func(*SwapRecord) error) error {

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

// DeleteSwap removes the record with the given id.
func (s *StoreMock) DeleteSwap(ctx context.Context, id string) error {
	s.mtx.Lock()
	delete(s.swaps, id)
	listeners, snapshot := s.listeners, s.snapshot()
	s.mtx.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}

	return nil
}

// Clear removes all records and notifies listeners.
func (s *StoreMock) Clear(ctx context.Context) error {
	s.mtx.Lock()
	s.swaps = make(map[string]*SwapRecord)
	listeners, snapshot := s.listeners, s.snapshot()
	s.mtx.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}

	return nil
}

// Close is a no-op for the mock store.
func (s *StoreMock) Close() error {
	return nil
}

// snapshot copies the current mapping. Callers must hold mtx.
func (s *StoreMock) snapshot() map[string]*SwapRecord {
	swaps := make(map[string]*SwapRecord, len(s.swaps))
	for id, swap := range s.swaps {
		swapCopy := *swap
		swaps[id] = &swapCopy
	}

	return swaps
}
