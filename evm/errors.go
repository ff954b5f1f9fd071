package evm

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed or missing lock parameters. It is
// raised before any network or chain interaction and is never retried.
type ValidationError struct {
	// Field is the offending parameter.
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid lock parameter %s: %s", e.Field, e.Reason)
}

// RevertError reports an on-chain rejection: the node indicated the lock
// call would revert. Surfaced distinctly from validation failures so
// callers can rebuild with adjusted parameters rather than fixing inputs.
type RevertError struct {
	// Err is the underlying node error.
	Err error
}

// Error implements the error interface.
func (e *RevertError) Error() string {
	return fmt.Sprintf("lock call reverted on-chain: %v", e.Err)
}

// Unwrap returns the underlying node error.
func (e *RevertError) Unwrap() error {
	return e.Err
}

// classifyEstimateError wraps gas estimation failures that indicate an
// on-chain revert into a RevertError, leaving transport errors untouched.
func classifyEstimateError(err error) error {
	if err == nil {
		return nil
	}

	// go-ethereum surfaces contract rejections from eth_estimateGas as
	// "execution reverted" errors.
	if strings.Contains(err.Error(), "execution reverted") {
		return &RevertError{Err: err}
	}

	return err
}
