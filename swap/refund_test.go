package swap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPartitionRefundableBoundary asserts the inclusive eligibility boundary
// at timelock + buffer == currentHeight.
func TestPartitionRefundableBoundary(t *testing.T) {
	const (
		currentHeight = int64(100)
		buffer        = int64(3)
	)

	tests := []struct {
		name       string
		timelock   int64
		refundable bool
	}{
		{
			name:       "well past expiry",
			timelock:   50,
			refundable: true,
		},
		{
			name:       "exactly at boundary",
			timelock:   currentHeight - buffer,
			refundable: true,
		},
		{
			name:       "one block short",
			timelock:   currentHeight - buffer + 1,
			refundable: false,
		},
		{
			name:       "not yet expired",
			timelock:   currentHeight + 144,
			refundable: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			partition := PartitionRefundable(
				[]Lockup{{
					SwapID:   "swap-1",
					Timelock: test.timelock,
				}},
				currentHeight, buffer,
			)

			if test.refundable {
				require.Len(t, partition.Refundable, 1)
				require.Empty(t, partition.Locked)
			} else {
				require.Empty(t, partition.Refundable)
				require.Len(t, partition.Locked, 1)
			}
		})
	}
}

// TestPartitionRefundableSplit asserts that a mixed set is split with no
// lockup dropped or duplicated.
func TestPartitionRefundableSplit(t *testing.T) {
	lockups := []Lockup{
		{SwapID: "a", Timelock: 10},
		{SwapID: "b", Timelock: 200},
		{SwapID: "c", Timelock: 97},
		{SwapID: "d", Timelock: 98},
	}

	partition := PartitionRefundable(lockups, 100, 3)

	require.Len(t, partition.Refundable, 2)
	require.Len(t, partition.Locked, 2)
	require.Equal(t, "a", partition.Refundable[0].SwapID)
	require.Equal(t, "c", partition.Refundable[1].SwapID)
	require.Equal(t, "b", partition.Locked[0].SwapID)
	require.Equal(t, "d", partition.Locked[1].SwapID)
}

// TestRefundLifecycle walks the bitcoin bridge refund scenario: a lockup of
// 100k sats with a timelock 144 blocks out stays locked until the chain
// passes the timelock plus the safety buffer.
func TestRefundLifecycle(t *testing.T) {
	const startHeight = int64(800_000)

	lockup := Lockup{
		SwapID:   "btc-bridge-1",
		Timelock: startHeight + 144,
		Amount:   100_000,
	}

	// Before the timelock the lockup is reported under locked.
	partition := PartitionRefundable(
		[]Lockup{lockup}, startHeight, DefaultRefundSafetyBuffer,
	)
	require.Empty(t, partition.Refundable)
	require.Len(t, partition.Locked, 1)

	// At the timelock itself the buffer still holds it back.
	partition = PartitionRefundable(
		[]Lockup{lockup}, lockup.Timelock, DefaultRefundSafetyBuffer,
	)
	require.Empty(t, partition.Refundable)

	// Once the chain passes timelock plus buffer it becomes refundable.
	partition = PartitionRefundable(
		[]Lockup{lockup},
		lockup.Timelock+DefaultRefundSafetyBuffer,
		DefaultRefundSafetyBuffer,
	)
	require.Len(t, partition.Refundable, 1)
	require.Empty(t, partition.Locked)
	require.EqualValues(t, 100_000, partition.Refundable[0].Amount)
}
