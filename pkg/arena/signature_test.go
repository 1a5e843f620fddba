package arena

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// personalSign produces a wallet-style r || s || v signature.
func personalSign(key *secp256k1.PrivateKey, msg string) string {
	compact := ecdsa.SignCompact(key, PersonalMessageHash(msg), false)
	sig := append(append([]byte{}, compact[1:]...), compact[0])
	return "0x" + hex.EncodeToString(sig)
}

func TestAddressOf_KnownKey(t *testing.T) {
	one := make([]byte, 32)
	one[31] = 1
	key := secp256k1.PrivKeyFromBytes(one)
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", AddressOf(key.PubKey()))
}

func TestRecoverSigner(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	want := AddressOf(key.PubKey())
	sig := personalSign(key, "sign in")

	got, err := RecoverSigner("sign in", sig)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("zero based recovery id", func(t *testing.T) {
		raw, _ := hex.DecodeString(sig[2:])
		raw[64] -= 27
		got, err := RecoverSigner("sign in", hex.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("other message recovers another address", func(t *testing.T) {
		got, err := RecoverSigner("sign in!", sig)
		if err == nil {
			assert.NotEqual(t, want, got)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, bad := range []string{"", "0x1234", "zz", sig[:len(sig)-2] + "05"} {
			_, err := RecoverSigner("sign in", bad)
			assert.ErrorIs(t, err, ErrInvalidSignature, bad)
		}
	})
}
