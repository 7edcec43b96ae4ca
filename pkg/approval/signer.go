package approval

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intentwire/verifier/pkg/chains/solana"
	"github.com/intentwire/verifier/pkg/models"
)

// Signer is the opaque signing capability for one scheme. Key custody and
// HSM integration live behind this boundary.
type Signer interface {
	Scheme() models.SignScheme
	// Sign produces the approval signature over the 32-byte intent
	// identifier.
	Sign(intentID [32]byte) ([]byte, error)
	// PublicKey returns the verifier-facing key: a base58 pubkey for
	// ed25519, a 0x address for ecdsa.
	PublicKey() string
}

// Ed25519Signer signs the raw intent identifier bytes. Chains that verify
// ed25519 check the signature directly against the published public key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

var _ Signer = (*Ed25519Signer)(nil)

// NewEd25519Signer builds a signer from a 32-byte hex seed.
func NewEd25519Signer(seedHex string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Scheme() models.SignScheme { return models.SchemeEd25519 }

func (s *Ed25519Signer) Sign(intentID [32]byte) ([]byte, error) {
	return ed25519.Sign(s.priv, intentID[:]), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return solana.EncodePubkey(s.priv.Public().(ed25519.PublicKey))
}

// EcdsaSigner signs keccak256("\x19Ethereum Signed Message:\n32" ||
// keccak256(intentID)) and returns the 65-byte [R || S || V] signature so
// contracts can recover the signer address.
type EcdsaSigner struct {
	priv *ecdsa.PrivateKey
}

func (s *EcdsaSigner) Scheme() models.SignScheme { return models.SchemeECDSA }

// NewEcdsaSigner builds a signer from a hex-encoded secp256k1 private key.
func NewEcdsaSigner(privHex string) (*EcdsaSigner, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ecdsa private key: %w", err)
	}
	return &EcdsaSigner{priv: priv}, nil
}

var _ Signer = (*EcdsaSigner)(nil)

func (s *EcdsaSigner) Sign(intentID [32]byte) ([]byte, error) {
	digest := accounts.TextHash(crypto.Keccak256(intentID[:]))
	sig, err := crypto.Sign(digest, s.priv)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	return sig, nil
}

func (s *EcdsaSigner) PublicKey() string {
	return strings.ToLower(crypto.PubkeyToAddress(s.priv.PublicKey).Hex())
}
