package swap

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

var testHtlcPreimage = lntypes.Preimage{
	1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4,
	1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4,
}

func testHtlc(t *testing.T) (*Htlc, *btcec.PrivateKey, *btcec.PrivateKey) {
	t.Helper()

	senderKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	receiverKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hash := lntypes.Hash(sha256.Sum256(testHtlcPreimage[:]))

	htlc, err := NewHtlc(
		800_144, senderKey.PubKey(), receiverKey.PubKey(), hash,
		&chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	return htlc, senderKey, receiverKey
}

// TestNewHtlcDeterministic asserts that the same inputs always produce the
// same output script and address.
func TestNewHtlcDeterministic(t *testing.T) {
	senderKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	receiverKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hash := lntypes.Hash(sha256.Sum256(testHtlcPreimage[:]))

	first, err := NewHtlc(
		800_144, senderKey.PubKey(), receiverKey.PubKey(), hash,
		&chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	second, err := NewHtlc(
		800_144, senderKey.PubKey(), receiverKey.PubKey(), hash,
		&chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	require.Equal(t, first.PkScript, second.PkScript)
	require.Equal(t, first.Address.String(), second.Address.String())
	require.Equal(t, first.ClaimScript, second.ClaimScript)
	require.Equal(t, first.TimeoutScript, second.TimeoutScript)
}

// TestHtlcOutput asserts that the htlc pays to a segwit v1 (taproot) output
// matching its address.
func TestHtlcOutput(t *testing.T) {
	htlc, _, _ := testHtlc(t)

	// OP_1 <32-byte program>.
	require.Len(t, htlc.PkScript, 34)
	require.EqualValues(t, txscript.OP_1, htlc.PkScript[0])

	addrScript, err := txscript.PayToAddrScript(htlc.Address)
	require.NoError(t, err)
	require.Equal(t, htlc.PkScript, addrScript)

	// The tweaked output key must differ from the aggregate internal
	// key.
	require.NotEqual(
		t, htlc.InternalKey.SerializeCompressed(),
		htlc.TaprootKey.SerializeCompressed(),
	)
}

// TestHtlcSuccessWitness asserts that the unilateral claim witness carries
// the preimage and rejects a non-matching one.
func TestHtlcSuccessWitness(t *testing.T) {
	htlc, _, _ := testHtlc(t)

	sig := make([]byte, 64)

	witness, err := htlc.GenSuccessWitness(sig, testHtlcPreimage)
	require.NoError(t, err)
	require.Len(t, witness, 4)
	require.Equal(t, testHtlcPreimage[:], witness[0])
	require.Equal(t, htlc.ClaimScript, witness[2])

	var wrongPreimage lntypes.Preimage
	wrongPreimage[0] = 0xff

	_, err = htlc.GenSuccessWitness(sig, wrongPreimage)
	require.ErrorIs(t, err, ErrPreimageMismatch)
}

// TestHtlcTimeoutWitness asserts the shape of the unilateral refund witness.
func TestHtlcTimeoutWitness(t *testing.T) {
	htlc, _, _ := testHtlc(t)

	sig := make([]byte, 64)

	witness, err := htlc.GenTimeoutWitness(sig)
	require.NoError(t, err)
	require.Len(t, witness, 3)
	require.Equal(t, htlc.TimeoutScript, witness[1])
}
