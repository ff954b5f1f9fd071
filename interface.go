package bridge

import (
	"math/big"
)

// ChainID identifies a settlement network. Bitcoin and Lightning have fixed
// identifiers; every other value is treated as an EVM chain and must be
// registered with the router to be routable.
type ChainID string

const (
	// ChainBitcoin is the bitcoin on-chain rail.
	ChainBitcoin ChainID = "BTC"

	// ChainLightning is the lightning rail.
	ChainLightning ChainID = "LN"
)

// IsBitcoin returns true for the bitcoin on-chain rail.
func (c ChainID) IsBitcoin() bool {
	return c == ChainBitcoin
}

// IsLightning returns true for the lightning rail.
func (c ChainID) IsLightning() bool {
	return c == ChainLightning
}

// IsEvm returns true for any chain that is neither bitcoin nor lightning.
func (c ChainID) IsEvm() bool {
	return !c.IsBitcoin() && !c.IsLightning()
}

// Asset is one leg of a requested trade.
type Asset struct {
	// Chain is the settlement network of this leg.
	Chain ChainID

	// Symbol is the asset ticker, e.g. "BTC", "USDT" or "WBTC".
	Symbol string

	// Native is true if the asset is the chain's native coin rather
	// than a token.
	Native bool

	// TokenAddress is the token contract in hex for non-native EVM
	// assets.
	TokenAddress string
}

// FeeInfo is the tagged fee variant of a settlement transaction. Fee
// information differs meaningfully per rail, so rails without engine-paid
// fees report an explicit zero-fee variant instead of a gas shape padded
// with zeroes.
type FeeInfo interface {
	feeInfo()
}

// EvmGasInfo is the fee information of an EVM settlement transaction.
type EvmGasInfo struct {
	// GasLimit is the estimated gas limit of the call.
	GasLimit uint64

	// GasPrice is the suggested gas price in wei.
	GasPrice *big.Int
}

func (EvmGasInfo) feeInfo() {}

// ZeroFeeRailInfo marks a rail whose lock carries no engine-paid fee: the
// user's wallet pays the network fee when funding the htlc or the invoice.
type ZeroFeeRailInfo struct {
	// Rail names the settlement rail the fee decision belongs to.
	Rail string
}

func (ZeroFeeRailInfo) feeInfo() {}
