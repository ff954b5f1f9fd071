package swap

import (
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// DefaultRefundSafetyBuffer is the number of blocks waited past the
	// timelock before a lockup is surfaced as refundable. Block
	// timestamps and the local clock disagree routinely; the buffer
	// keeps a lockup from flapping between classifications around the
	// expiry height.
	DefaultRefundSafetyBuffer = 3
)

// Lockup is one on-chain lockup a refund decision is made for. Timelock is
// expressed in the settlement rail's native time unit, an absolute block
// height for on-chain rails.
type Lockup struct {
	// SwapID is the swap the lockup belongs to.
	SwapID string

	// Timelock is the absolute height after which the lockup may be
	// refunded.
	Timelock int64

	// Amount is the locked value.
	Amount btcutil.Amount

	// LockAddress is the address the value is locked to.
	LockAddress string
}

// RefundPartition is the result of a refund eligibility pass.
type RefundPartition struct {
	// Refundable holds lockups whose timelock plus safety buffer has
	// elapsed without a claim.
	Refundable []Lockup

	// Locked holds lockups not yet eligible for refund.
	Locked []Lockup
}

// PartitionRefundable splits the given lockups into refundable and still
// locked ones. A lockup is refundable iff
//
//	timelock + safetyBuffer <= currentHeight
//
// with the boundary inclusive. Comparisons are whole-unit integer math only,
// so there is no epsilon to misclassify on. The function is pure; callers
// are responsible for acting on the result.
func PartitionRefundable(lockups []Lockup, currentHeight,
	safetyBuffer int64) RefundPartition {

	var partition RefundPartition

	for _, lockup := range lockups {
		if lockup.Timelock+safetyBuffer <= currentHeight {
			partition.Refundable = append(
				partition.Refundable, lockup,
			)

			continue
		}

		partition.Locked = append(partition.Locked, lockup)
	}

	return partition
}
