// Package router implements the pre-intent negotiation flow: an offerer
// publishes a draft intent and the first solver to land a valid binding
// signature claims it. First-committer-wins is a correctness invariant here,
// enforced by an atomic check-and-set on the draft state.
package router

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/metrics"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/store"
)

// Router matches draft intents to solvers FCFS.
type Router struct {
	store  store.Store
	logger logger.Logger
	now    func() time.Time
}

// New creates a router over the shared store.
func New(st store.Store, log logger.Logger) *Router {
	return &Router{store: st, logger: log, now: time.Now}
}

// DraftRequest is the offerer-supplied draft payload.
type DraftRequest struct {
	Offerer       string    `json:"offerer"`
	SourceAsset   string    `json:"source_asset"`
	SourceAmount  string    `json:"source_amount"`
	DesiredAsset  string    `json:"desired_asset"`
	DesiredAmount string    `json:"desired_amount"`
	ExpiryTime    time.Time `json:"expiry_time"`
}

// SubmitDraft validates and stores a new draft in Pending state, returning
// its id.
func (r *Router) SubmitDraft(req DraftRequest) (string, error) {
	if req.Offerer == "" {
		return "", models.Reject(models.ReasonBadSignature, "draft has no offerer")
	}
	if err := requirePositiveAmount("source_amount", req.SourceAmount); err != nil {
		return "", err
	}
	if err := requirePositiveAmount("desired_amount", req.DesiredAmount); err != nil {
		return "", err
	}
	if !req.ExpiryTime.After(r.now()) {
		return "", models.Reject(models.ReasonExpiryInPast, "draft expiry %s is not in the future", req.ExpiryTime)
	}

	draft := models.DraftIntent{
		DraftID:       uuid.NewString(),
		Offerer:       req.Offerer,
		SourceAsset:   req.SourceAsset,
		SourceAmount:  req.SourceAmount,
		DesiredAsset:  req.DesiredAsset,
		DesiredAmount: req.DesiredAmount,
		ExpiryTime:    req.ExpiryTime.UTC(),
		State:         models.DraftPending,
		CreatedAt:     r.now().UTC(),
	}
	if !r.store.InsertDraft(draft) {
		return "", models.Reject(models.ReasonAlreadyClaimed, "draft id collision")
	}

	r.logger.Info("Draft %s submitted by %s", draft.DraftID, draft.Offerer)
	metrics.DraftsSubmitted.Inc()
	return draft.DraftID, nil
}

// ListPending returns drafts still open for claiming, oldest first.
func (r *Router) ListPending() []models.DraftIntent {
	return r.store.PendingDrafts()
}

// SubmitSignature verifies the solver's signature over the draft's canonical
// hash and atomically claims the draft if it is still Pending. Once the slot
// is taken, later submissions are rejected regardless of their validity.
func (r *Router) SubmitSignature(draftID, solverAddr string, signature []byte) error {
	draft, ok := r.store.Draft(draftID)
	if !ok {
		return models.Reject(models.ReasonDraftNotFound, "draft %s not found", draftID)
	}
	if draft.State != models.DraftPending {
		metrics.DraftConflicts.Inc()
		return models.Reject(models.ReasonAlreadyClaimed, "draft %s already claimed by %s", draftID, draft.Solver)
	}
	if !draft.ExpiryTime.After(r.now()) {
		return models.Reject(models.ReasonDraftExpired, "draft %s expired at %s", draftID, draft.ExpiryTime)
	}

	if err := VerifyDraftSignature(draft, solverAddr, signature); err != nil {
		return err
	}

	if !r.store.ClaimDraft(draftID, solverAddr, signature) {
		// Lost the race between the state read above and the claim.
		metrics.DraftConflicts.Inc()
		return models.Reject(models.ReasonAlreadyClaimed, "draft %s already claimed", draftID)
	}

	r.logger.Notice("Draft %s claimed by solver %s", draftID, solverAddr)
	metrics.DraftsClaimed.Inc()
	return nil
}

// GetSignature returns the winning signature once the draft is Signed. The
// bool reports whether a signature exists yet; a missing draft is an error.
func (r *Router) GetSignature(draftID string) ([]byte, string, bool, error) {
	draft, ok := r.store.Draft(draftID)
	if !ok {
		return nil, "", false, models.Reject(models.ReasonDraftNotFound, "draft %s not found", draftID)
	}
	if draft.State != models.DraftSigned {
		return nil, "", false, nil
	}
	return draft.Signature, draft.Solver, true, nil
}

func requirePositiveAmount(field, value string) error {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return models.Reject(models.ReasonZeroAmount, "%s %q is not a valid integer", field, value)
	}
	if amount.Sign() <= 0 {
		return models.Reject(models.ReasonZeroAmount, "%s must be positive", field)
	}
	return nil
}
