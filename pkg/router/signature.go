package router

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intentwire/verifier/pkg/models"
)

// CanonicalHash is the digest a solver commits to when claiming a draft. The
// fields are joined with an unambiguous separator before hashing, so no two
// distinct drafts can share a preimage.
func CanonicalHash(draft models.DraftIntent) []byte {
	packed := strings.Join([]string{
		draft.DraftID,
		draft.Offerer,
		draft.SourceAsset,
		draft.SourceAmount,
		draft.DesiredAsset,
		draft.DesiredAmount,
		fmt.Sprintf("%d", draft.ExpiryTime.Unix()),
	}, "\x00")
	return crypto.Keccak256([]byte(packed))
}

// SignDraft produces the binding commitment a solver submits: the canonical
// hash signed under the Ethereum personal-sign scheme. Exported for solver
// tooling and tests.
func SignDraft(draft models.DraftIntent, privHex string) ([]byte, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid solver key: %w", err)
	}
	return crypto.Sign(accounts.TextHash(CanonicalHash(draft)), priv)
}

// VerifyDraftSignature recovers the signer of the draft's canonical hash and
// requires it to be solverAddr.
func VerifyDraftSignature(draft models.DraftIntent, solverAddr string, signature []byte) error {
	if len(signature) != crypto.SignatureLength {
		return models.Reject(models.ReasonBadSignature, "signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}

	// Wallets emit V as 27/28; recovery wants 0/1.
	sig := append([]byte(nil), signature...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(CanonicalHash(draft)), sig)
	if err != nil {
		return models.Reject(models.ReasonBadSignature, "signature recovery failed: %v", err)
	}

	recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	if recovered != strings.ToLower(solverAddr) {
		return models.Reject(models.ReasonBadSignature, "signature recovers to %s, not %s", recovered, solverAddr)
	}
	return nil
}
