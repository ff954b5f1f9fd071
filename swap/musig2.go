package swap

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
)

var (
	// ErrSessionUsed is returned when a claim session is asked to sign
	// more than once. Every signature needs a fresh session so nonces
	// are never reused.
	ErrSessionUsed = errors.New("claim session already used")

	// ErrMissingNonce is returned when signing is attempted before the
	// counterparty nonce has been registered.
	ErrMissingNonce = errors.New("counterparty nonce not registered")

	// ErrMissingPartialSig is returned when the final signature is
	// requested before all partial signatures have been combined.
	ErrMissingPartialSig = errors.New("missing partial signature")
)

// ClaimSession is a single-use MuSig2 signing session for the cooperative
// key spend of an htlc. The secret nonce is derived internally from a
// cryptographically secure source when the session is created and is never
// exposed, so it cannot be carried into another session. A session signs at
// most one digest; subsequent attempts fail.
type ClaimSession struct {
	htlc    *Htlc
	session *musig2.Session

	haveTheirNonce bool
	signed         bool
}

// NewClaimSession creates a signing session for the cooperative spend of the
// given htlc. The local key must be one of the two keys aggregated into the
// htlc's internal key.
func NewClaimSession(localKey *btcec.PrivateKey,
	counterpartyKey *btcec.PublicKey, htlc *Htlc) (*ClaimSession, error) {

	if localKey == nil || counterpartyKey == nil {
		return nil, errors.New("both keys required for claim session")
	}

	signers := []*btcec.PublicKey{
		localKey.PubKey(), counterpartyKey,
	}

	musigCtx, err := musig2.NewContext(
		localKey, true,
		musig2.WithKnownSigners(signers),
		musig2.WithTaprootTweakCtx(htlc.scriptRoot),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating signing context: %w",
			err)
	}

	// NewSession draws the secret nonce internally. It never leaves the
	// underlying session object.
	session, err := musigCtx.NewSession()
	if err != nil {
		return nil, fmt.Errorf("error creating musig2 session: %w",
			err)
	}

	return &ClaimSession{
		htlc:    htlc,
		session: session,
	}, nil
}

// PublicNonce returns the public nonce to hand to the counterparty.
func (s *ClaimSession) PublicNonce() [musig2.PubNonceSize]byte {
	return s.session.PublicNonce()
}

// RegisterCounterpartyNonce registers the counterparty's public nonce,
// making the session ready to sign.
func (s *ClaimSession) RegisterCounterpartyNonce(
	nonce [musig2.PubNonceSize]byte) error {

	haveAll, err := s.session.RegisterPubNonce(nonce)
	if err != nil {
		return fmt.Errorf("error registering nonce: %w", err)
	}

	if !haveAll {
		return errors.New("nonces still missing after registration")
	}

	s.haveTheirNonce = true

	return nil
}

// Sign produces our partial signature over the given digest. A session signs
// exactly once.
func (s *ClaimSession) Sign(digest [32]byte) (*musig2.PartialSignature,
	error) {

	if s.signed {
		return nil, ErrSessionUsed
	}

	if !s.haveTheirNonce {
		return nil, ErrMissingNonce
	}

	sig, err := s.session.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("musig2 sign: %w", err)
	}

	s.signed = true

	return sig, nil
}

// Combine adds the counterparty's partial signature and, once all shares are
// present, returns the final schnorr signature valid for the htlc's taproot
// key.
func (s *ClaimSession) Combine(theirSig *musig2.PartialSignature) (
	*schnorr.Signature, error) {

	if !s.signed {
		return nil, ErrMissingPartialSig
	}

	haveAllSigs, err := s.session.CombineSig(theirSig)
	if err != nil {
		return nil, fmt.Errorf("musig2 combine: %w", err)
	}

	if !haveAllSigs {
		return nil, ErrMissingPartialSig
	}

	return s.session.FinalSig(), nil
}
