package approval

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentwire/verifier/pkg/models"
)

const (
	testEd25519Seed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	testEcdsaKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

func testID(b byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = b
	}
	return id
}

func TestEd25519Signer(t *testing.T) {
	t.Run("signature verifies against the derived public key", func(t *testing.T) {
		signer, err := NewEd25519Signer(testEd25519Seed)
		require.NoError(t, err)
		assert.Equal(t, models.SchemeEd25519, signer.Scheme())

		id := testID(0xab)
		sig, err := signer.Sign(id)
		require.NoError(t, err)
		require.Len(t, sig, ed25519.SignatureSize)

		seed, _ := hex.DecodeString(testEd25519Seed)
		pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
		assert.True(t, ed25519.Verify(pub, id[:], sig), "signature covers the raw 32-byte identifier")
	})

	t.Run("signing is deterministic", func(t *testing.T) {
		signer, err := NewEd25519Signer("0x" + testEd25519Seed)
		require.NoError(t, err)

		id := testID(0x01)
		first, err := signer.Sign(id)
		require.NoError(t, err)
		second, err := signer.Sign(id)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("rejects malformed seeds", func(t *testing.T) {
		_, err := NewEd25519Signer("not-hex")
		assert.Error(t, err)

		_, err = NewEd25519Signer("abcd")
		assert.Error(t, err, "seed must be exactly 32 bytes")
	})

	t.Run("public key is base58", func(t *testing.T) {
		signer, err := NewEd25519Signer(testEd25519Seed)
		require.NoError(t, err)

		pub := signer.PublicKey()
		assert.NotEmpty(t, pub)
		assert.False(t, strings.HasPrefix(pub, "0x"))
	})
}

func TestEcdsaSigner(t *testing.T) {
	t.Run("signature recovers to the signer address", func(t *testing.T) {
		signer, err := NewEcdsaSigner(testEcdsaKey)
		require.NoError(t, err)
		assert.Equal(t, models.SchemeECDSA, signer.Scheme())

		id := testID(0xcd)
		sig, err := signer.Sign(id)
		require.NoError(t, err)
		require.Len(t, sig, crypto.SignatureLength)

		digest := accounts.TextHash(crypto.Keccak256(id[:]))
		pub, err := crypto.SigToPub(digest, sig)
		require.NoError(t, err)

		recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
		assert.Equal(t, signer.PublicKey(), recovered)
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		_, err := NewEcdsaSigner("zz")
		assert.Error(t, err)
	})

	t.Run("public key is a lowercase address", func(t *testing.T) {
		signer, err := NewEcdsaSigner("0x" + testEcdsaKey)
		require.NoError(t, err)

		pub := signer.PublicKey()
		assert.True(t, strings.HasPrefix(pub, "0x"))
		assert.Equal(t, strings.ToLower(pub), pub)
	})
}
