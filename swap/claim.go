package swap

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
)

// ClaimParams describes one claim of an htlc output. All parameters must be
// known before any network interaction; missing material is a configuration
// error, not a retryable one.
type ClaimParams struct {
	// Htlc is the contract being claimed.
	Htlc *Htlc

	// Preimage is the revealed preimage proving the claim.
	Preimage lntypes.Preimage

	// HtlcOutPoint is the outpoint of the confirmed htlc output.
	HtlcOutPoint wire.OutPoint

	// HtlcValue is the value of the htlc output.
	HtlcValue btcutil.Amount

	// DestAddr is the address the claim pays out to.
	DestAddr btcutil.Address

	// Fee is the miner fee, deducted from the htlc value.
	Fee btcutil.Amount
}

// validate reports parameter problems before any transaction is assembled.
func (p *ClaimParams) validate() error {
	switch {
	case p.Htlc == nil:
		return errors.New("missing htlc")

	case p.DestAddr == nil:
		return errors.New("missing claim destination address")

	case p.HtlcValue <= 0:
		return fmt.Errorf("non-positive htlc value %v", p.HtlcValue)

	case p.Fee < 0 || p.Fee >= p.HtlcValue:
		return fmt.Errorf("fee %v not payable from htlc value %v",
			p.Fee, p.HtlcValue)
	}

	if !p.Preimage.Matches(p.Htlc.Hash) {
		return ErrPreimageMismatch
	}

	return nil
}

// BuildClaimTx assembles the unsigned claim transaction sweeping the htlc
// output to the destination address. The transaction still needs its
// witness, either the cooperative key spend signature from a ClaimSession or
// the unilateral claim witness.
func BuildClaimTx(params *ClaimParams) (*wire.MsgTx, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	claimTx := wire.NewMsgTx(2)
	claimTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: params.HtlcOutPoint,
		Sequence:         params.Htlc.SuccessSequence(),
	})

	pkScript, err := txscript.PayToAddrScript(params.DestAddr)
	if err != nil {
		return nil, err
	}

	claimTx.AddTxOut(&wire.TxOut{
		Value:    int64(params.HtlcValue - params.Fee),
		PkScript: pkScript,
	})

	return claimTx, nil
}

// ClaimDigest computes the taproot key spend signature hash for the claim
// transaction's htlc input. This is the digest both parties sign in their
// MuSig2 claim sessions.
func ClaimDigest(claimTx *wire.MsgTx, htlc *Htlc,
	htlcValue btcutil.Amount) ([32]byte, error) {

	var digest [32]byte

	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(
		htlc.PkScript, int64(htlcValue),
	)
	sigHashes := txscript.NewTxSigHashes(claimTx, prevOutFetcher)

	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, htlc.SigHash(), claimTx, 0, prevOutFetcher,
	)
	if err != nil {
		return digest, err
	}

	copy(digest[:], sigHash)

	return digest, nil
}

// FinalizeClaimTx attaches the final key spend signature to the claim
// transaction.
func FinalizeClaimTx(claimTx *wire.MsgTx, finalSig []byte) error {
	if len(claimTx.TxIn) != 1 {
		return fmt.Errorf("expected 1 input, got %d",
			len(claimTx.TxIn))
	}

	claimTx.TxIn[0].Witness = wire.TxWitness{finalSig}

	return nil
}
