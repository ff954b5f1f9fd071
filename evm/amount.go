package evm

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// CanonicalDecimals is the decimal scale of the bridge's canonical
	// amount representation. Every rail amount is converted to this
	// scale before legs are compared or persisted.
	CanonicalDecimals = 8
)

var (
	// ErrNotRepresentable is returned when an amount cannot be expressed
	// at the target decimal scale without losing precision.
	ErrNotRepresentable = errors.New("amount not representable at " +
		"target decimals")

	// ErrNegativeAmount is returned for negative inputs; rail amounts
	// are unsigned quantities.
	ErrNegativeAmount = errors.New("negative amount")

	bigTen = big.NewInt(10)
)

// pow10 returns 10^n as a big integer.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// ToCanonical converts an amount in the rail's native smallest unit to the
// canonical 8-decimal representation. The conversion is exact integer
// arithmetic; scaling down with a non-zero remainder fails instead of
// rounding.
func ToCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	return rescale(amount, decimals, CanonicalDecimals)
}

// FromCanonical converts a canonical 8-decimal amount back to the rail's
// native smallest unit. Like ToCanonical the conversion fails on any
// precision loss.
func FromCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	return rescale(amount, CanonicalDecimals, decimals)
}

// rescale moves an integer amount from one decimal scale to another using
// only multiplication and exact division by powers of ten.
func rescale(amount *big.Int, from, to uint8) (*big.Int, error) {
	if amount == nil {
		return nil, errors.New("nil amount")
	}

	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	switch {
	case from == to:
		return new(big.Int).Set(amount), nil

	case to > from:
		return new(big.Int).Mul(amount, pow10(to-from)), nil

	default:
		quo, rem := new(big.Int).QuoRem(
			amount, pow10(from-to), new(big.Int),
		)
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("%w: %v has sub-unit "+
				"precision at %d decimals", ErrNotRepresentable,
				amount, to)
		}

		return quo, nil
	}
}
