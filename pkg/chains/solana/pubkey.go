package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DecodePubkey decodes a base58 ed25519 public key and rejects values that
// are not canonical curve points. Addresses that fail this check can never
// verify a signature, so they are caught before any record is built around
// them.
func DecodePubkey(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 pubkey %q: %w", s, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("pubkey %q: expected 32 bytes, got %d", s, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return nil, fmt.Errorf("pubkey %q is not a canonical curve point: %w", s, err)
	}
	return raw, nil
}

// EncodePubkey renders 32 raw key bytes as a base58 address.
func EncodePubkey(raw []byte) string {
	return base58.Encode(raw)
}
