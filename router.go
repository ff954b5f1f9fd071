package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"

	"github.com/JuiceSwapxyz/bridge/evm"
	"github.com/JuiceSwapxyz/bridge/swapdb"
)

// WrappedBitcoinSymbol is the ticker routed through the wbtc bridge.
const WrappedBitcoinSymbol = "WBTC"

// RouteStep is one sub-step of a multi-step route.
type RouteStep string

const (
	// StepLockSource locks the asset on the source chain.
	StepLockSource RouteStep = "lock-source"

	// StepBridgeWrapped moves the wrapped asset between chains.
	StepBridgeWrapped RouteStep = "bridge-wrapped"

	// StepClaimDestination claims the asset on the destination chain.
	StepClaimDestination RouteStep = "claim-destination"
)

// Route is the result of classifying a requested trade: exactly one rail
// and direction, plus the ordered sub-steps for multi-step rails.
type Route struct {
	// Direction is the rail pairing the trade settles through.
	Direction swapdb.SwapDirection

	// From and To are the classified trade legs.
	From Asset
	To   Asset

	// SubDirection is the explicit source to destination chain pair for
	// chain swaps. Nil for bitcoin and lightning bridges.
	SubDirection *swapdb.ChainPair

	// Steps is the ordered sub-step sequence of the route.
	Steps []RouteStep
}

// NoRouteError is returned for a trade that matches no routing rule. The
// trade is rejected before any transaction is built.
type NoRouteError struct {
	From Asset
	To   Asset
}

// Error implements the error interface.
func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no route for trade %s(%s) -> %s(%s)",
		e.From.Symbol, e.From.Chain, e.To.Symbol, e.To.Chain)
}

// RouterConfig bundles the external dependencies of the routing service.
type RouterConfig struct {
	// EvmChains maps every supported EVM chain to its lock builder.
	EvmChains map[ChainID]*evm.LockBuilder

	// Store persists swap records resulting from dispatched locks.
	Store swapdb.SwapStore

	// Clock is the time source for record timestamps.
	Clock clock.Clock
}

// Router classifies requested trades into exactly one rail and dispatches
// lock building to the matching rail builder.
type Router struct {
	cfg RouterConfig
}

// NewRouter creates a routing service for the given rail set.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Router{cfg: cfg}
}

// supportedEvm returns true if the chain is a registered EVM chain.
func (r *Router) supportedEvm(chain ChainID) bool {
	if !chain.IsEvm() {
		return false
	}

	_, ok := r.cfg.EvmChains[chain]

	return ok
}

// Classify maps a requested trade onto exactly one rail. Classification is
// total and exclusive: the rules below are checked in order and a trade
// matching none of them is rejected.
func (r *Router) Classify(from, to Asset) (*Route, error) {
	route := &Route{From: from, To: to}

	switch {
	// Bitcoin chain against a supported EVM chain, either direction.
	case from.Chain.IsBitcoin() && r.supportedEvm(to.Chain),
		to.Chain.IsBitcoin() && r.supportedEvm(from.Chain):

		route.Direction = swapdb.DirectionBitcoinBridge
		route.Steps = []RouteStep{
			StepLockSource, StepClaimDestination,
		}

	// Lightning against a supported EVM chain, either direction.
	case from.Chain.IsLightning() && r.supportedEvm(to.Chain),
		to.Chain.IsLightning() && r.supportedEvm(from.Chain):

		route.Direction = swapdb.DirectionLightningBridge
		route.Steps = []RouteStep{
			StepLockSource, StepClaimDestination,
		}

	// Wrapped bitcoin moving between two supported EVM chains. Checked
	// before the generic token rule so the two never overlap.
	case r.supportedEvm(from.Chain) && r.supportedEvm(to.Chain) &&
		from.Chain != to.Chain &&
		!from.Native && !to.Native &&
		from.Symbol == WrappedBitcoinSymbol &&
		to.Symbol == WrappedBitcoinSymbol:

		route.Direction = swapdb.DirectionWbtcBridge
		route.SubDirection = &swapdb.ChainPair{
			Source:      string(from.Chain),
			Destination: string(to.Chain),
		}
		route.Steps = []RouteStep{
			StepLockSource, StepBridgeWrapped,
			StepClaimDestination,
		}

	// The same token moving between two supported EVM chains,
	// non-native on both legs.
	case r.supportedEvm(from.Chain) && r.supportedEvm(to.Chain) &&
		from.Chain != to.Chain &&
		!from.Native && !to.Native &&
		from.Symbol == to.Symbol:

		route.Direction = swapdb.DirectionErc20ChainSwap
		route.SubDirection = &swapdb.ChainPair{
			Source:      string(from.Chain),
			Destination: string(to.Chain),
		}
		route.Steps = []RouteStep{
			StepLockSource, StepClaimDestination,
		}

	default:
		return nil, &NoRouteError{From: from, To: to}
	}

	return route, nil
}

// LockRequest describes an accepted quote ready for lock dispatch. Amounts
// are in the smallest unit of their respective rails.
type LockRequest struct {
	// SwapID is the identifier the resulting record is keyed by.
	SwapID string

	// From and To are the trade legs.
	From Asset
	To   Asset

	// InputAmount and OutputAmount are the leg amounts in native
	// smallest units.
	InputAmount  *big.Int
	OutputAmount *big.Int

	// InputDecimals and OutputDecimals are the decimal scales of the
	// legs.
	InputDecimals  uint8
	OutputDecimals uint8

	// PreimageHash locks both legs of the swap.
	PreimageHash lntypes.Hash

	// Timelock is the absolute height after which the lock is
	// refundable.
	Timelock int64

	// Sender is the funding account in hex for EVM source legs.
	Sender string

	// LockAddress is the address funds are locked to on the source
	// rail, for rails whose lock is funded externally. EVM source legs
	// override it with the htlc contract address.
	LockAddress string

	// ClaimAddress is the counterparty claim address on the source
	// rail.
	ClaimAddress string

	// RefundAddress is our refund address on the source rail.
	RefundAddress string

	// CounterpartyPubKey is the counterparty's compressed public key
	// for MuSig2 claims on bitcoin and lightning rails.
	CounterpartyPubKey []byte
}

// LockResult is the outcome of a dispatched lock.
type LockResult struct {
	// Record is the persisted swap record, in the Created state.
	Record *swapdb.SwapRecord

	// Route is the classified route the swap follows.
	Route *Route

	// EvmTx is the ready-to-sign lock transaction for EVM source legs.
	// Nil when the source rail is bitcoin or lightning, where the
	// user's wallet funds the htlc directly.
	EvmTx *types.Transaction

	// CanonicalAmount is the locked input amount at canonical decimals,
	// as computed by the rail builder. Nil for rails whose lock is
	// funded externally.
	CanonicalAmount *big.Int

	// Fee is the rail-specific fee information of the lock.
	Fee FeeInfo
}

// DispatchLock classifies the trade, builds the source-leg lock through the
// matching rail builder and persists the resulting swap record. The record
// starts in the Created state; MarkLocked advances it once the lock
// transaction has been broadcast.
func (r *Router) DispatchLock(ctx context.Context, req *LockRequest) (
	*LockResult, error) {

	route, err := r.Classify(req.From, req.To)
	if err != nil {
		return nil, err
	}

	result := &LockResult{Route: route}
	lockAddress := req.LockAddress

	if req.From.Chain.IsEvm() {
		builder := r.cfg.EvmChains[req.From.Chain]

		params := &evm.LockParams{
			Sender:       common.HexToAddress(req.Sender),
			ClaimAddress: common.HexToAddress(req.ClaimAddress),
			Amount:       req.InputAmount,
			Decimals:     req.InputDecimals,
			PreimageHash: req.PreimageHash,
			Timelock:     big.NewInt(req.Timelock),
		}
		if !req.From.Native {
			token := common.HexToAddress(req.From.TokenAddress)
			params.Token = &token
		}

		lockTx, err := builder.BuildLock(ctx, params)
		if err != nil {
			return nil, err
		}

		result.EvmTx = lockTx.Tx
		result.CanonicalAmount = lockTx.CanonicalAmount
		lockAddress = lockTx.Tx.To().Hex()
		result.Fee = EvmGasInfo{
			GasLimit: lockTx.GasInfo.GasLimit,
			GasPrice: lockTx.GasInfo.GasPrice,
		}
	} else {
		rail := "bitcoin"
		if req.From.Chain.IsLightning() {
			rail = "lightning"
		}

		result.Fee = ZeroFeeRailInfo{Rail: rail}
	}

	now := r.cfg.Clock.Now().UTC()
	record := &swapdb.SwapRecord{
		ID:                 req.SwapID,
		Version:            swapdb.RecordVersionCurrent,
		Direction:          route.Direction,
		SubDirection:       route.SubDirection,
		State:              swapdb.StateCreated,
		PreimageHash:       req.PreimageHash,
		Timelock:           req.Timelock,
		InputAmount:        req.InputAmount,
		OutputAmount:       req.OutputAmount,
		InputDecimals:      req.InputDecimals,
		OutputDecimals:     req.OutputDecimals,
		LockAddress:        lockAddress,
		ClaimAddress:       req.ClaimAddress,
		RefundAddress:      req.RefundAddress,
		CounterpartyPubKey: req.CounterpartyPubKey,
		CreatedAt:          now,
		LastUpdate:         now,
	}

	if err := r.cfg.Store.PutSwap(ctx, record); err != nil {
		return nil, err
	}

	log.Infof("Dispatched %v lock for swap %s, timelock %d",
		route.Direction, record.ID, record.Timelock)

	result.Record = record

	return result, nil
}

// MarkLocked records the broadcast lock transaction and advances the swap
// to the Locked state.
func (r *Router) MarkLocked(ctx context.Context, swapID, lockTxID string) error {
	return r.cfg.Store.UpdateSwap(
		ctx, swapID, func(record *swapdb.SwapRecord) error {
			if err := record.Advance(swapdb.StateLocked); err != nil {
				return err
			}

			record.LockTxID = lockTxID

			return nil
		},
	)
}

// MarkClaimPending advances the swap once the counterparty lockup has been
// confirmed on the opposite rail.
func (r *Router) MarkClaimPending(ctx context.Context, swapID string) error {
	return r.cfg.Store.UpdateSwap(
		ctx, swapID, func(record *swapdb.SwapRecord) error {
			return record.Advance(swapdb.StateClaimPending)
		},
	)
}

// MarkClaimed records the settled claim transaction and the revealed
// preimage.
func (r *Router) MarkClaimed(ctx context.Context, swapID, claimTxID string,
	preimage lntypes.Preimage) error {

	return r.cfg.Store.UpdateSwap(
		ctx, swapID, func(record *swapdb.SwapRecord) error {
			if err := record.SetPreimage(preimage); err != nil {
				return err
			}

			if err := record.Advance(swapdb.StateClaimed); err != nil {
				return err
			}

			record.ClaimTxID = claimTxID

			return nil
		},
	)
}

// MarkSettled moves a claimed or refunded swap to the bookkeeping state once
// the backend has acknowledged the terminal outcome.
func (r *Router) MarkSettled(ctx context.Context, swapID string) error {
	return r.cfg.Store.UpdateSwap(
		ctx, swapID, func(record *swapdb.SwapRecord) error {
			return record.Advance(swapdb.StateSettled)
		},
	)
}

// MarkFailed moves the swap to the terminal failure state.
func (r *Router) MarkFailed(ctx context.Context, swapID string) error {
	return r.cfg.Store.UpdateSwap(
		ctx, swapID, func(record *swapdb.SwapRecord) error {
			return record.Advance(swapdb.StateFailed)
		},
	)
}
