package swapdb

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

// RecordVersion tracks the schema version of a stored swap record. The
// version is bumped whenever the persisted shape of a record changes in a
// way that older clients cannot read.
type RecordVersion uint32

const (
	// RecordVersionLegacy is the version of records written before
	// versioning was introduced.
	RecordVersionLegacy RecordVersion = 0

	// RecordVersionRemoteSync is the migration boundary from which
	// records are also persisted to the remote backup service. Records
	// below this version predate the remote record format and remain
	// client-local only. The boundary is pinned to the version that was
	// current when remote backup shipped; it must never be lowered.
	RecordVersionRemoteSync RecordVersion = 4

	// RecordVersionCurrent is the version assigned to newly created
	// records.
	RecordVersionCurrent RecordVersion = 4
)

// SyncsRemotely returns true if records of this version are persisted to the
// remote backup service in addition to the local store.
func (v RecordVersion) SyncsRemotely() bool {
	return v >= RecordVersionRemoteSync
}

// SwapState indicates the lifecycle state of a swap. States only ever move
// forward along the transition table below, so a stale poll result can never
// revert funds-relevant state.
type SwapState uint8

const (
	// StateCreated is the initial state of a swap. The quote has been
	// accepted and a lock transaction is being prepared, but nothing has
	// been broadcast yet.
	StateCreated SwapState = 0

	// StateLocked is reached when our lock transaction has been
	// broadcast and its transaction id recorded.
	StateLocked SwapState = 1

	// StateClaimPending is reached when the counterparty's lockup has
	// been confirmed on the opposite rail and our claim can proceed.
	StateClaimPending SwapState = 2

	// StateRefundEligible is reached when the timelock plus the safety
	// buffer has elapsed without a claim. The buffer absorbs
	// disagreement between block time and wall clock, which is why
	// eligibility is a distinct state rather than an immediate refund.
	StateRefundEligible SwapState = 3

	// StateClaimed is reached when the claim transaction has settled.
	StateClaimed SwapState = 4

	// StateRefunded is reached when the refund transaction has settled.
	StateRefunded SwapState = 5

	// StateSettled is the bookkeeping state reached once the backend has
	// acknowledged the terminal outcome.
	StateSettled SwapState = 6

	// StateFailed is the terminal failure state, reachable on
	// unrecoverable error from any state that has no funds-relevant
	// outcome yet. Claimed and Refunded swaps can never fail.
	StateFailed SwapState = 7
)

// String returns a human readable name for the swap state.
func (s SwapState) String() string {
	switch s {
	case StateCreated:
		return "Created"

	case StateLocked:
		return "Locked"

	case StateClaimPending:
		return "ClaimPending"

	case StateRefundEligible:
		return "RefundEligible"

	case StateClaimed:
		return "Claimed"

	case StateRefunded:
		return "Refunded"

	case StateSettled:
		return "Settled"

	case StateFailed:
		return "Failed"

	default:
		return "Unknown"
	}
}

// IsTerminal returns true for states out of which no further transition is
// allowed.
func (s SwapState) IsTerminal() bool {
	return s == StateSettled || s == StateFailed
}

// HasOutcome returns true once the swap has a funds-relevant outcome. A
// Claimed or Refunded record still settles for bookkeeping, but its outcome
// can no longer be overwritten by a failure.
func (s SwapState) HasOutcome() bool {
	return s == StateClaimed || s == StateRefunded || s.IsTerminal()
}

// stateTransitions is the full set of legal lifecycle edges. Anything not
// listed here is rejected by Advance.
var stateTransitions = map[SwapState][]SwapState{
	StateCreated: {
		StateLocked, StateFailed,
	},
	StateLocked: {
		StateClaimPending, StateRefundEligible, StateFailed,
	},
	StateClaimPending: {
		StateClaimed, StateRefundEligible, StateFailed,
	},
	StateRefundEligible: {
		StateRefunded, StateFailed,
	},
	StateClaimed: {
		StateSettled,
	},
	StateRefunded: {
		StateSettled,
	},
	StateSettled: nil,
	StateFailed:  nil,
}

// CanTransition returns true if the edge from s to next is a legal lifecycle
// transition.
func (s SwapState) CanTransition(next SwapState) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// SwapDirection enumerates the rail pairings a swap can settle through.
type SwapDirection uint8

const (
	// DirectionBitcoinBridge swaps between the Bitcoin chain and an EVM
	// chain through an on-chain HTLC on both legs.
	DirectionBitcoinBridge SwapDirection = 0

	// DirectionLightningBridge swaps between Lightning and an EVM chain.
	DirectionLightningBridge SwapDirection = 1

	// DirectionErc20ChainSwap moves an ERC-20 asset between two
	// supported EVM chains. The record carries an explicit
	// source/destination sub-direction.
	DirectionErc20ChainSwap SwapDirection = 2

	// DirectionWbtcBridge moves wrapped bitcoin between chains through
	// an ordered sequence of sub-steps.
	DirectionWbtcBridge SwapDirection = 3
)

// String returns a human readable name for the swap direction.
func (d SwapDirection) String() string {
	switch d {
	case DirectionBitcoinBridge:
		return "BitcoinBridge"

	case DirectionLightningBridge:
		return "LightningBridge"

	case DirectionErc20ChainSwap:
		return "Erc20ChainSwap"

	case DirectionWbtcBridge:
		return "WbtcBridge"

	default:
		return "Unknown"
	}
}

// ChainPair is the explicit source to destination sub-direction of a chain
// swap.
type ChainPair struct {
	// Source is the chain identifier of the leg the user pays on.
	Source string `json:"source"`

	// Destination is the chain identifier of the leg the user receives
	// on.
	Destination string `json:"destination"`
}

// String returns the pair in source->destination form.
func (c ChainPair) String() string {
	return fmt.Sprintf("%s->%s", c.Source, c.Destination)
}

var (
	// ErrPreimageSet is returned when attempting to overwrite an already
	// stored preimage with a different value.
	ErrPreimageSet = errors.New("preimage already set")

	// ErrPreimageMismatch is returned when a preimage does not hash to
	// the record's preimage hash.
	ErrPreimageMismatch = errors.New("preimage does not match hash")
)

// IllegalTransitionError is returned by Advance for an edge that is not part
// of the lifecycle table.
type IllegalTransitionError struct {
	From SwapState
	To   SwapState
}

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal swap state transition %v -> %v",
		e.From, e.To)
}

// SwapRecord is the unit of state for one atomic swap. The record id is
// assigned at creation and is the sole key across local storage, change
// notification and remote sync.
type SwapRecord struct {
	// ID uniquely identifies the swap. Immutable once assigned.
	ID string `json:"id"`

	// Version is the schema version of this record. Records at or above
	// RecordVersionRemoteSync are also persisted remotely.
	Version RecordVersion `json:"version"`

	// Direction is the rail pairing this swap settles through.
	Direction SwapDirection `json:"direction"`

	// SubDirection carries the source/destination chains for chain
	// swaps. Nil for bitcoin and lightning bridges.
	SubDirection *ChainPair `json:"subDirection,omitempty"`

	// State is the current lifecycle state.
	State SwapState `json:"state"`

	// PreimageHash is the 32-byte hash locking both legs of the swap.
	PreimageHash lntypes.Hash `json:"preimageHash"`

	// Preimage is the revealed preimage, nil until the claim becomes
	// possible. Once set it is never cleared.
	Preimage *lntypes.Preimage `json:"preimage,omitempty"`

	// Timelock is the absolute block height after which the lockup may
	// be refunded.
	Timelock int64 `json:"timelock"`

	// InputAmount is the amount the user pays, in the smallest unit of
	// the input rail.
	InputAmount *big.Int `json:"inputAmount"`

	// OutputAmount is the amount the user receives, in the smallest unit
	// of the output rail.
	OutputAmount *big.Int `json:"outputAmount"`

	// InputDecimals and OutputDecimals record the decimal scale of each
	// leg so amounts can be converted to the canonical representation.
	InputDecimals  uint8 `json:"inputDecimals"`
	OutputDecimals uint8 `json:"outputDecimals"`

	// LockAddress is the address funds are locked to on the input rail.
	LockAddress string `json:"lockAddress,omitempty"`

	// ClaimAddress is the address the claim pays out to.
	ClaimAddress string `json:"claimAddress,omitempty"`

	// RefundAddress is the address a refund pays out to.
	RefundAddress string `json:"refundAddress,omitempty"`

	// LockTxID is the transaction id of our broadcast lock transaction,
	// set on the Created to Locked transition.
	LockTxID string `json:"lockTxId,omitempty"`

	// ClaimTxID is the transaction id of the settled claim, set on the
	// transition to Claimed.
	ClaimTxID string `json:"claimTxId,omitempty"`

	// RefundTxID is the transaction id of the settled refund, set on
	// the transition to Refunded.
	RefundTxID string `json:"refundTxId,omitempty"`

	// CounterpartyPubKey is the counterparty's compressed public key,
	// used for MuSig2 aggregation on bitcoin and lightning claims. Empty
	// for EVM-only swaps.
	CounterpartyPubKey []byte `json:"counterpartyPubKey,omitempty"`

	// CreatedAt is the time the record was created.
	CreatedAt time.Time `json:"createdAt"`

	// LastUpdate is the time of the last mutation.
	LastUpdate time.Time `json:"lastUpdate"`
}

// Advance moves the record to the next lifecycle state, rejecting any edge
// that is not part of the transition table.
func (r *SwapRecord) Advance(next SwapState) error {
	if !r.State.CanTransition(next) {
		return &IllegalTransitionError{From: r.State, To: next}
	}

	r.State = next

	return nil
}

// SetPreimage stores the revealed preimage on the record. The preimage is
// write-once: setting a conflicting value after one is stored is rejected,
// because losing or replacing it can forfeit funds.
func (r *SwapRecord) SetPreimage(preimage lntypes.Preimage) error {
	if r.Preimage != nil {
		if *r.Preimage == preimage {
			return nil
		}

		return ErrPreimageSet
	}

	if !preimage.Matches(r.PreimageHash) {
		return ErrPreimageMismatch
	}

	r.Preimage = &preimage

	return nil
}
