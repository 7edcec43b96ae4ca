// Package approval issues the cryptographic attestations that downstream
// contracts accept as proof of a satisfied cross-chain condition. The
// signature is the sole approval artifact: there is no separate approved
// flag that could be forged independently of it.
package approval

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/metrics"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/store"
	"github.com/intentwire/verifier/pkg/validator"
)

// Service signs validator-approved linkages. At most one approval is ever
// issued per (intent, direction): concurrent requests for the same pair
// serialize on a per-key lock, and repeats return the cached record
// byte-for-byte, even if the event cache has changed since.
type Service struct {
	store     store.Store
	validator *validator.Validator
	signers   map[models.SignScheme]Signer
	kindOf    func(chainID int) (models.ChainKind, bool)
	logger    logger.Logger

	mu    sync.Mutex
	locks map[models.ApprovalKey]*sync.Mutex
}

// New creates the approval service. kindOf resolves a chain id to its
// cryptographic kind; it is derived from the configured adapter set.
func New(st store.Store, v *validator.Validator, signers []Signer, kindOf func(chainID int) (models.ChainKind, bool), log logger.Logger) *Service {
	byScheme := make(map[models.SignScheme]Signer, len(signers))
	for _, s := range signers {
		byScheme[s.Scheme()] = s
	}
	return &Service{
		store:     st,
		validator: v,
		signers:   byScheme,
		kindOf:    kindOf,
		logger:    log,
		locks:     make(map[models.ApprovalKey]*sync.Mutex),
	}
}

// PublicKeys returns the verifier-facing key per scheme.
func (s *Service) PublicKeys() map[models.SignScheme]string {
	out := make(map[models.SignScheme]string, len(s.signers))
	for scheme, signer := range s.signers {
		out[scheme] = signer.PublicKey()
	}
	return out
}

// Approve validates the linkage for (intentID, direction) and issues the
// signature. Validation runs here regardless of what the caller claims to
// have checked. Signing failures are surfaced directly, never substituted
// with a cached or default signature.
func (s *Service) Approve(ctx context.Context, intentID string, direction models.Direction) (models.ApprovalRecord, error) {
	if !direction.Valid() {
		return models.ApprovalRecord{}, models.Reject(models.ReasonMalformedTx, "unknown direction %q", direction)
	}

	key := models.ApprovalKey{IntentID: intentID, Direction: direction}
	if rec, ok := s.store.Approval(key); ok {
		metrics.ApprovalCacheHits.WithLabelValues(string(direction)).Inc()
		return rec, nil
	}

	// Serialize per (intent, direction) so only one request signs.
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// A concurrent request may have won the race while we waited.
	if rec, ok := s.store.Approval(key); ok {
		metrics.ApprovalCacheHits.WithLabelValues(string(direction)).Inc()
		return rec, nil
	}

	releaseChain, err := s.validate(ctx, intentID, direction)
	if err != nil {
		return models.ApprovalRecord{}, err
	}

	kind, ok := s.kindOf(releaseChain)
	if !ok {
		return models.ApprovalRecord{}, models.Reject(models.ReasonUnknownChain, "release chain %d is not configured", releaseChain)
	}
	scheme := schemeFor(kind)
	signer, ok := s.signers[scheme]
	if !ok {
		return models.ApprovalRecord{}, fmt.Errorf("no %s signer configured", scheme)
	}

	idBytes, err := decodeIntentID(intentID)
	if err != nil {
		return models.ApprovalRecord{}, models.Reject(models.ReasonMalformedTx, "intent id: %v", err)
	}

	signature, err := signer.Sign(idBytes)
	if err != nil {
		metrics.SigningErrors.WithLabelValues(string(scheme)).Inc()
		return models.ApprovalRecord{}, fmt.Errorf("signing approval for intent %s: %w", intentID, err)
	}

	rec := models.ApprovalRecord{
		IntentID:  intentID,
		Direction: direction,
		Scheme:    scheme,
		Signature: signature,
		SignedAt:  time.Now().UTC(),
	}
	if !s.store.InsertApproval(rec) {
		// Insert can only lose to a concurrent writer; return what won.
		if cached, ok := s.store.Approval(key); ok {
			return cached, nil
		}
		return models.ApprovalRecord{}, fmt.Errorf("approval cache insert failed for intent %s", intentID)
	}

	s.logger.Notice("Issued %s %s approval for intent %s", scheme, direction, intentID)
	metrics.ApprovalsIssued.WithLabelValues(string(direction), string(scheme)).Inc()
	return rec, nil
}

// validate runs the direction predicate and returns the chain on which the
// approval releases funds: the hub for outflow, the escrow chain for inflow.
func (s *Service) validate(ctx context.Context, intentID string, direction models.Direction) (int, error) {
	switch direction {
	case models.DirectionOutflow:
		if _, err := s.validator.ValidateOutflow(ctx, intentID, ""); err != nil {
			return 0, err
		}
		intent, ok := s.store.Intent(intentID)
		if !ok {
			return 0, models.Reject(models.ReasonIntentNotObserved, "intent %s not observed", intentID)
		}
		return intent.ChainID, nil
	case models.DirectionInflow:
		escrow, err := s.validator.ValidateInflow(ctx, intentID)
		if err != nil {
			return 0, err
		}
		return escrow.ChainID, nil
	}
	return 0, models.Reject(models.ReasonMalformedTx, "unknown direction %q", direction)
}

func (s *Service) keyLock(key models.ApprovalKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func schemeFor(kind models.ChainKind) models.SignScheme {
	if kind == models.ChainKindSolana {
		return models.SchemeEd25519
	}
	return models.SchemeECDSA
}

// decodeIntentID parses the 0x-hex 32-byte intent identifier.
func decodeIntentID(intentID string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(intentID, "0x"))
	if err != nil {
		return out, fmt.Errorf("not hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
