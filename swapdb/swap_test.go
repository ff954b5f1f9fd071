package swapdb

import (
	"crypto/sha256"
	"math/rand"
	"testing"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

var (
	testPreimage = lntypes.Preimage{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	}
)

func testRecord() *SwapRecord {
	hash := sha256.Sum256(testPreimage[:])

	return &SwapRecord{
		ID:           "swap-1",
		Version:      RecordVersionCurrent,
		Direction:    DirectionBitcoinBridge,
		State:        StateCreated,
		PreimageHash: hash,
		Timelock:     800144,
	}
}

// TestStateTransitions asserts the exact set of legal lifecycle edges.
func TestStateTransitions(t *testing.T) {
	allStates := []SwapState{
		StateCreated, StateLocked, StateClaimPending,
		StateRefundEligible, StateClaimed, StateRefunded,
		StateSettled, StateFailed,
	}

	legal := map[SwapState]map[SwapState]bool{
		StateCreated: {
			StateLocked: true, StateFailed: true,
		},
		StateLocked: {
			StateClaimPending: true, StateRefundEligible: true,
			StateFailed: true,
		},
		StateClaimPending: {
			StateClaimed: true, StateRefundEligible: true,
			StateFailed: true,
		},
		StateRefundEligible: {
			StateRefunded: true, StateFailed: true,
		},
		StateClaimed: {
			StateSettled: true,
		},
		StateRefunded: {
			StateSettled: true,
		},
		StateSettled: {},
		StateFailed:  {},
	}

	for _, from := range allStates {
		for _, to := range allStates {
			expected := legal[from][to]
			require.Equal(
				t, expected, from.CanTransition(to),
				"edge %v -> %v", from, to,
			)
		}
	}
}

// TestRandomTransitionSequences drives records through random event
// sequences and asserts that no illegal edge is ever reachable and that
// progression is monotonic.
func TestRandomTransitionSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	allStates := []SwapState{
		StateCreated, StateLocked, StateClaimPending,
		StateRefundEligible, StateClaimed, StateRefunded,
		StateSettled, StateFailed,
	}

	for i := 0; i < 1000; i++ {
		record := testRecord()

		for step := 0; step < 20; step++ {
			prev := record.State
			next := allStates[rng.Intn(len(allStates))]

			err := record.Advance(next)
			if prev.CanTransition(next) {
				require.NoError(t, err)
				require.Equal(t, next, record.State)

				continue
			}

			// The record must reject the edge and stay put.
			require.ErrorAs(
				t, err, new(*IllegalTransitionError),
			)
			require.Equal(t, prev, record.State)

			// Terminal states must never be left.
			if prev.IsTerminal() {
				require.True(t, record.State.IsTerminal())
			}
		}
	}
}

// TestOutcomeCannotFail asserts that a funds-relevant outcome can never be
// overwritten by a failure: once a swap is Claimed or Refunded, the only
// remaining edge is Settled.
func TestOutcomeCannotFail(t *testing.T) {
	for _, state := range []SwapState{StateClaimed, StateRefunded} {
		t.Run(state.String(), func(t *testing.T) {
			record := testRecord()
			record.State = state

			err := record.Advance(StateFailed)
			require.ErrorAs(
				t, err, new(*IllegalTransitionError),
			)
			require.Equal(t, state, record.State)

			require.True(t, state.HasOutcome())
			require.NoError(t, record.Advance(StateSettled))
		})
	}

	// States without an outcome can still fail.
	for _, state := range []SwapState{
		StateCreated, StateLocked, StateClaimPending,
		StateRefundEligible,
	} {
		require.False(t, state.HasOutcome())
		require.True(t, state.CanTransition(StateFailed))
	}
}

// TestPreimageWriteOnce asserts that a stored preimage can never be replaced
// by a different value, and that a preimage must match the record's hash.
func TestPreimageWriteOnce(t *testing.T) {
	record := testRecord()

	var wrong lntypes.Preimage
	wrong[0] = 0xff

	// A preimage that doesn't hash to the record's hash is rejected.
	require.ErrorIs(
		t, record.SetPreimage(wrong), ErrPreimageMismatch,
	)
	require.Nil(t, record.Preimage)

	// The matching preimage is accepted.
	require.NoError(t, record.SetPreimage(testPreimage))
	require.NotNil(t, record.Preimage)
	require.Equal(t, testPreimage, *record.Preimage)

	// Setting the identical value again is a no-op.
	require.NoError(t, record.SetPreimage(testPreimage))

	// Overwriting with anything else is rejected outright.
	require.ErrorIs(t, record.SetPreimage(wrong), ErrPreimageSet)
	require.Equal(t, testPreimage, *record.Preimage)
}

// TestRecordVersionSyncBoundary pins the remote sync migration boundary.
func TestRecordVersionSyncBoundary(t *testing.T) {
	require.False(t, RecordVersionLegacy.SyncsRemotely())
	require.False(t, RecordVersion(3).SyncsRemotely())
	require.True(t, RecordVersionRemoteSync.SyncsRemotely())
	require.True(t, RecordVersion(5).SyncsRemotely())
	require.True(t, RecordVersionCurrent.SyncsRemotely())
}
