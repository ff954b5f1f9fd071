package swap

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/input"
	"github.com/lightningnetwork/lnd/lntypes"
)

var (
	// ErrPreimageMismatch is returned when a witness is requested with a
	// preimage that does not hash to the htlc's swap hash.
	ErrPreimageMismatch = errors.New("preimage doesn't match hash")
)

// Htlc is the taproot hash/time-locked contract both legs of a bridge swap
// lock into on the bitcoin rail. The output key is a MuSig2 aggregate of the
// sender and receiver keys tweaked with the script root, so the cooperative
// claim and refund paths are single-signature key spends. The script leaves
// are the unilateral fallbacks.
type Htlc struct {
	// ClaimScript is the tapleaf spendable by the receiver with the
	// preimage.
	ClaimScript []byte

	// TimeoutScript is the tapleaf spendable by the sender after the
	// timelock.
	TimeoutScript []byte

	// TaprootKey is the tweaked output key.
	TaprootKey *btcec.PublicKey

	// InternalKey is the MuSig2 aggregate of sender and receiver keys,
	// before the taproot tweak.
	InternalKey *btcec.PublicKey

	// scriptRoot is the taproot script tree root the internal key is
	// tweaked with. Claim sessions need it to reproduce the tweak.
	scriptRoot []byte

	// PkScript is the segwit v1 output script paying to TaprootKey.
	PkScript []byte

	// Address is the taproot address of the htlc output.
	Address btcutil.Address

	// Hash is the swap hash locking the contract.
	Hash lntypes.Hash

	// SenderKey and ReceiverKey are the two signing keys aggregated into
	// the internal key.
	SenderKey   *btcec.PublicKey
	ReceiverKey *btcec.PublicKey

	// CltvExpiry is the absolute block height after which the timeout
	// path becomes spendable.
	CltvExpiry int32

	// ChainParams identifies the bitcoin network of the htlc address.
	ChainParams *chaincfg.Params
}

// NewHtlc constructs the taproot htlc for the given swap hash, signing keys
// and absolute timeout height.
func NewHtlc(cltvExpiry int32, senderKey, receiverKey *btcec.PublicKey,
	hash lntypes.Hash, chainParams *chaincfg.Params) (*Htlc, error) {

	if senderKey == nil || receiverKey == nil {
		return nil, errors.New("both signing keys required")
	}

	var schnorrSenderKey, schnorrReceiverKey [32]byte
	copy(schnorrSenderKey[:], schnorr.SerializePubKey(senderKey))
	copy(schnorrReceiverKey[:], schnorr.SerializePubKey(receiverKey))

	claimPathScript, err := GenClaimPathScript(schnorrReceiverKey, hash)
	if err != nil {
		return nil, err
	}

	timeoutPathScript, err := GenTimeoutPathScript(
		schnorrSenderKey, int64(cltvExpiry),
	)
	if err != nil {
		return nil, err
	}

	// Assemble the taproot script tree from our two leaves.
	tree := txscript.AssembleTaprootScriptTree(
		txscript.NewBaseTapLeaf(claimPathScript),
		txscript.NewBaseTapLeaf(timeoutPathScript),
	)

	rootHash := tree.RootNode.TapHash()

	// Aggregate both signing keys into the internal key, tweaked with
	// the script root to commit to the unilateral spend paths.
	aggregateKey, _, _, err := musig2.AggregateKeys(
		[]*btcec.PublicKey{senderKey, receiverKey}, true,
		musig2.WithTaprootKeyTweak(rootHash[:]),
	)
	if err != nil {
		return nil, fmt.Errorf("error aggregating keys: %w", err)
	}

	pkScript, err := txscript.PayToTaprootScript(aggregateKey.FinalKey)
	if err != nil {
		return nil, err
	}

	address, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(aggregateKey.FinalKey), chainParams,
	)
	if err != nil {
		return nil, err
	}

	return &Htlc{
		ClaimScript:   claimPathScript,
		TimeoutScript: timeoutPathScript,
		TaprootKey:    aggregateKey.FinalKey,
		InternalKey:   aggregateKey.PreTweakedKey,
		scriptRoot:    rootHash[:],
		PkScript:      pkScript,
		Address:       address,
		Hash:          hash,
		SenderKey:     senderKey,
		ReceiverKey:   receiverKey,
		CltvExpiry:    cltvExpiry,
		ChainParams:   chainParams,
	}, nil
}

// GenClaimPathScript constructs the claim payment path leaf.
//
//	<receiverHtlcKey> OP_CHECKSIGVERIFY
//	OP_SIZE 32 OP_EQUALVERIFY
//	OP_HASH160 <ripemd160h(swapHash)> OP_EQUALVERIFY
//	1
//	OP_CHECKSEQUENCEVERIFY
func GenClaimPathScript(receiverHtlcKey [32]byte,
	swapHash lntypes.Hash) ([]byte, error) {

	builder := txscript.NewScriptBuilder()

	builder.AddData(receiverHtlcKey[:])
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(input.Ripemd160H(swapHash[:]))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddInt64(1)
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)

	return builder.Script()
}

// GenTimeoutPathScript constructs the timeout payment path leaf.
//
//	<senderHtlcKey> OP_CHECKSIGVERIFY <cltvExpiry> OP_CHECKLOCKTIMEVERIFY
func GenTimeoutPathScript(senderHtlcKey [32]byte,
	cltvExpiry int64) ([]byte, error) {

	builder := txscript.NewScriptBuilder()
	builder.AddData(senderHtlcKey[:])
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddInt64(cltvExpiry)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)

	return builder.Script()
}

// genControlBlock constructs the control block proving inclusion of the leaf
// whose sibling hash is passed in.
func (h *Htlc) genControlBlock(siblingScript []byte) ([]byte, error) {
	var outputKeyYIsOdd bool
	if h.TaprootKey.SerializeCompressed()[0] ==
		secp.PubKeyFormatCompressedOdd {

		outputKeyYIsOdd = true
	}

	leaf := txscript.NewBaseTapLeaf(siblingScript)
	proof := leaf.TapHash()

	controlBlock := txscript.ControlBlock{
		InternalKey:     h.InternalKey,
		OutputKeyYIsOdd: outputKeyYIsOdd,
		LeafVersion:     txscript.BaseLeafVersion,
		InclusionProof:  proof[:],
	}

	return controlBlock.ToBytes()
}

// GenSuccessWitness returns the unilateral claim witness, spending the claim
// leaf with the revealed preimage.
func (h *Htlc) GenSuccessWitness(receiverSig []byte,
	preimage lntypes.Preimage) (wire.TxWitness, error) {

	if !preimage.Matches(h.Hash) {
		return nil, ErrPreimageMismatch
	}

	controlBlockBytes, err := h.genControlBlock(h.TimeoutScript)
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{
		preimage[:],
		receiverSig,
		h.ClaimScript,
		controlBlockBytes,
	}, nil
}

// GenTimeoutWitness returns the unilateral refund witness, spending the
// timeout leaf after the timelock.
func (h *Htlc) GenTimeoutWitness(senderSig []byte) (wire.TxWitness, error) {
	controlBlockBytes, err := h.genControlBlock(h.ClaimScript)
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{
		senderSig,
		h.TimeoutScript,
		controlBlockBytes,
	}, nil
}

// SuccessSequence returns the sequence to spend this htlc in the success
// case. The claim leaf requires a single confirmation via its
// OP_CHECKSEQUENCEVERIFY.
func (h *Htlc) SuccessSequence() uint32 {
	return 1
}

// SigHash is the signature hash type used for spends from the htlc.
func (h *Htlc) SigHash() txscript.SigHashType {
	return txscript.SigHashDefault
}
