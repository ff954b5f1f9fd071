package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/lntypes"
)

// etherSwapABIJSON is the lock method of the native-coin htlc contract. The
// locked value rides along as the call value.
const etherSwapABIJSON = `[{
	"name": "lock",
	"type": "function",
	"stateMutability": "payable",
	"inputs": [
		{"name": "preimageHash", "type": "bytes32"},
		{"name": "claimAddress", "type": "address"},
		{"name": "timelock", "type": "uint256"}
	],
	"outputs": []
}]`

// erc20SwapABIJSON is the lock method of the token htlc contract. The token
// must have been approved to the contract beforehand.
const erc20SwapABIJSON = `[{
	"name": "lock",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "preimageHash", "type": "bytes32"},
		{"name": "amount", "type": "uint256"},
		{"name": "tokenAddress", "type": "address"},
		{"name": "claimAddress", "type": "address"},
		{"name": "timelock", "type": "uint256"}
	],
	"outputs": []
}]`

var (
	etherSwapABI abi.ABI
	erc20SwapABI abi.ABI
)

func init() {
	var err error

	etherSwapABI, err = abi.JSON(strings.NewReader(etherSwapABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid ether swap abi: %v", err))
	}

	erc20SwapABI, err = abi.JSON(strings.NewReader(erc20SwapABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 swap abi: %v", err))
	}
}

// ChainClient is the narrow surface of an EVM node the lock builder needs.
// *ethclient.Client satisfies it.
type ChainClient interface {
	// BlockNumber returns the current chain tip height.
	BlockNumber(ctx context.Context) (uint64, error)

	// PendingNonceAt returns the next account nonce.
	PendingNonceAt(ctx context.Context, account common.Address) (uint64,
		error)

	// EstimateGas simulates the call and returns a gas limit, or an
	// error if the call would revert.
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64,
		error)

	// SuggestGasPrice returns the node's gas price estimate.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasInfo is the fee information of an EVM settlement transaction.
type GasInfo struct {
	// GasLimit is the estimated gas limit of the lock call.
	GasLimit uint64

	// GasPrice is the suggested gas price in wei.
	GasPrice *big.Int
}

// LockTx is a built htlc lock: the unsigned transaction, its fee
// information and the locked amount in the canonical representation.
type LockTx struct {
	// Tx is the ready-to-sign lock transaction.
	Tx *types.Transaction

	// GasInfo is the fee information of the lock call.
	GasInfo GasInfo

	// CanonicalAmount is the locked amount rescaled from the asset's
	// native decimals to the canonical representation, so both legs of
	// a swap compare at the same scale.
	CanonicalAmount *big.Int
}

// LockParams describes one htlc lock on an EVM chain. Amounts are in the
// asset's native smallest unit (wei or token base units).
type LockParams struct {
	// Sender is the funding account.
	Sender common.Address

	// ClaimAddress is the counterparty address allowed to claim with
	// the preimage.
	ClaimAddress common.Address

	// Token is the ERC-20 contract of the locked asset. Nil locks the
	// chain's native coin.
	Token *common.Address

	// Amount is the locked value in native smallest units.
	Amount *big.Int

	// Decimals is the asset's decimal scale, used by callers to derive
	// the canonical amount.
	Decimals uint8

	// PreimageHash locks the contract.
	PreimageHash lntypes.Hash

	// Timelock is the absolute block height after which the sender can
	// refund.
	Timelock *big.Int
}

// validate reports configuration errors before any network call.
func (p *LockParams) validate() error {
	var zeroAddr common.Address

	switch {
	case p.Sender == zeroAddr:
		return &ValidationError{
			Field: "sender", Reason: "missing",
		}

	case p.ClaimAddress == zeroAddr:
		return &ValidationError{
			Field: "claimAddress", Reason: "missing",
		}

	case p.Amount == nil || p.Amount.Sign() <= 0:
		return &ValidationError{
			Field: "amount", Reason: "must be positive",
		}

	case p.Timelock == nil || p.Timelock.Sign() <= 0:
		return &ValidationError{
			Field: "timelock", Reason: "must be positive",
		}
	}

	if p.Token != nil && *p.Token == zeroAddr {
		return &ValidationError{
			Field: "token", Reason: "zero token address",
		}
	}

	return nil
}

// LockBuilder builds ready-to-sign htlc lock transactions against the swap
// contracts of one EVM chain.
type LockBuilder struct {
	client ChainClient

	// etherSwapAddr and erc20SwapAddr are the deployed htlc contracts.
	etherSwapAddr common.Address
	erc20SwapAddr common.Address
}

// NewLockBuilder creates a lock builder for one chain's swap contracts.
func NewLockBuilder(client ChainClient, etherSwapAddr,
	erc20SwapAddr common.Address) *LockBuilder {

	return &LockBuilder{
		client:        client,
		etherSwapAddr: etherSwapAddr,
		erc20SwapAddr: erc20SwapAddr,
	}
}

// BuildLock constructs the unsigned lock transaction for the given
// parameters along with its fee information and canonical amount.
// Parameter problems, including an amount that is not representable at
// canonical decimals, surface as *ValidationError before any RPC; a
// simulated revert surfaces as *RevertError.
func (b *LockBuilder) BuildLock(ctx context.Context, params *LockParams) (
	*LockTx, error) {

	if err := params.validate(); err != nil {
		return nil, err
	}

	canonicalAmount, err := ToCanonical(params.Amount, params.Decimals)
	if err != nil {
		return nil, &ValidationError{
			Field: "amount", Reason: err.Error(),
		}
	}

	var (
		contractAddr common.Address
		callValue    *big.Int
		data         []byte
	)

	var preimageHash [32]byte
	copy(preimageHash[:], params.PreimageHash[:])

	if params.Token == nil {
		contractAddr = b.etherSwapAddr
		callValue = params.Amount

		data, err = etherSwapABI.Pack(
			"lock", preimageHash, params.ClaimAddress,
			params.Timelock,
		)
	} else {
		contractAddr = b.erc20SwapAddr
		callValue = new(big.Int)

		data, err = erc20SwapABI.Pack(
			"lock", preimageHash, params.Amount, *params.Token,
			params.ClaimAddress, params.Timelock,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("packing lock call: %w", err)
	}

	nonce, err := b.client.PendingNonceAt(ctx, params.Sender)
	if err != nil {
		return nil, err
	}

	// Estimating gas simulates the call, so a contract-level rejection
	// shows up here rather than at broadcast time.
	gasLimit, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  params.Sender,
		To:    &contractAddr,
		Value: callValue,
		Data:  data,
	})
	if err != nil {
		return nil, classifyEstimateError(err)
	}

	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	lockTx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &contractAddr,
		Value:    callValue,
		Data:     data,
	})

	log.Debugf("Built lock tx to %v, value %v (canonical %v), gas %d",
		contractAddr, callValue, canonicalAmount, gasLimit)

	return &LockTx{
		Tx: lockTx,
		GasInfo: GasInfo{
			GasLimit: gasLimit,
			GasPrice: gasPrice,
		},
		CanonicalAmount: canonicalAmount,
	}, nil
}
