package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/errgroup"

	"github.com/JuiceSwapxyz/bridge/swap"
	"github.com/JuiceSwapxyz/bridge/swapdb"
)

const (
	// DefaultRefundCheckInterval is how often stored swaps are
	// re-evaluated for refund eligibility.
	DefaultRefundCheckInterval = time.Minute
)

// RefundManagerConfig bundles the external dependencies of the refund
// manager.
type RefundManagerConfig struct {
	// Store holds the swap records being re-evaluated.
	Store swapdb.SwapStore

	// Clock drives the check interval; swapped for a test clock in
	// tests.
	Clock clock.Clock

	// FetchHeight reads the current tip height of the settlement rail.
	FetchHeight func(ctx context.Context) (int64, error)

	// SafetyBuffer is the number of blocks waited past a timelock
	// before eligibility.
	SafetyBuffer int64

	// CheckInterval is the wait between sweeps.
	CheckInterval time.Duration
}

// RefundManager periodically re-evaluates stored swaps and promotes those
// whose timelock plus safety buffer has elapsed to the RefundEligible
// state. All mutations go through the store's serialized update path, so a
// concurrent poll result on the same swap cannot interleave.
type RefundManager struct {
	cfg RefundManagerConfig
}

// NewRefundManager creates a refund manager. Zero config values fall back
// to defaults.
func NewRefundManager(cfg RefundManagerConfig) *RefundManager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	if cfg.SafetyBuffer == 0 {
		cfg.SafetyBuffer = swap.DefaultRefundSafetyBuffer
	}

	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultRefundCheckInterval
	}

	return &RefundManager{cfg: cfg}
}

// Run re-evaluates refund eligibility on every tick until the context is
// canceled.
func (m *RefundManager) Run(ctx context.Context) error {
	for {
		select {
		case <-m.cfg.Clock.TickAfter(m.cfg.CheckInterval):
			if err := m.sweep(ctx); err != nil {
				log.Errorf("Refund sweep failed: %v", err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sweep runs one eligibility pass over all stored swaps.
func (m *RefundManager) sweep(ctx context.Context) error {
	height, err := m.cfg.FetchHeight(ctx)
	if err != nil {
		return err
	}

	swaps, err := m.cfg.Store.FetchSwaps(ctx)
	if err != nil {
		return err
	}

	// Only swaps with live lockups can become refundable.
	var lockups []swap.Lockup
	for _, record := range swaps {
		if !record.State.CanTransition(swapdb.StateRefundEligible) {
			continue
		}

		lockups = append(lockups, swap.Lockup{
			SwapID:      record.ID,
			Timelock:    record.Timelock,
			LockAddress: record.LockAddress,
		})
	}

	partition := swap.PartitionRefundable(
		lockups, height, m.cfg.SafetyBuffer,
	)

	if len(partition.Refundable) == 0 {
		return nil
	}

	log.Infof("Refund sweep at height %d: %d refundable, %d locked",
		height, len(partition.Refundable), len(partition.Locked))

	var eg errgroup.Group
	for _, lockup := range partition.Refundable {
		swapID := lockup.SwapID

		eg.Go(func() error {
			err := m.cfg.Store.UpdateSwap(
				ctx, swapID,
				func(record *swapdb.SwapRecord) error {
					return record.Advance(
						swapdb.StateRefundEligible,
					)
				},
			)

			// Another actor may have advanced the swap between
			// the snapshot and this update; that is not a sweep
			// failure.
			var illegalErr *swapdb.IllegalTransitionError
			if errors.As(err, &illegalErr) {
				log.Debugf("Swap %s advanced concurrently, "+
					"skipping refund promotion", swapID)

				return nil
			}

			return err
		})
	}

	return eg.Wait()
}

// MarkRefunded records a settled refund transaction for an eligible swap.
func (m *RefundManager) MarkRefunded(ctx context.Context, swapID,
	refundTxID string) error {

	return m.cfg.Store.UpdateSwap(
		ctx, swapID, func(record *swapdb.SwapRecord) error {
			if err := record.Advance(swapdb.StateRefunded); err != nil {
				return err
			}

			record.RefundTxID = refundTxID

			return nil
		},
	)
}
