// Package validator applies the direction-specific correctness predicates
// that link hub-side and connected-side records. Every rejection carries a
// typed reason; a wrong approval moves real funds, so there is no partial
// credit and no rounding tolerance anywhere in this package.
package validator

import (
	"context"
	"errors"
	"math/big"

	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/circuitbreaker"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/metrics"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/store"
)

// Validator evaluates outflow and inflow predicates over the record cache.
// It reads the store and the chain adapters; it never mutates records.
type Validator struct {
	store    store.Store
	adapters map[int]chains.Adapter
	breakers map[int]*circuitbreaker.CircuitBreaker
	logger   logger.Logger
}

// New creates a validator over the shared store and adapter set.
func New(st store.Store, adapters map[int]chains.Adapter, breakers map[int]*circuitbreaker.CircuitBreaker, log logger.Logger) *Validator {
	return &Validator{
		store:    st,
		adapters: adapters,
		breakers: breakers,
		logger:   log,
	}
}

// ValidateOutflow checks that the transaction txRef on the intent's
// destination chain is a correct fulfillment: successful, exact asset,
// amount and recipient, and sent by the reserved solver when one is set.
// With an empty txRef the cached fulfillment record observed by the monitor
// is used instead.
func (v *Validator) ValidateOutflow(ctx context.Context, intentID, txRef string) (models.FulfillmentRecord, error) {
	intent, ok := v.store.Intent(intentID)
	if !ok {
		return fail(models.DirectionOutflow, models.Reject(models.ReasonIntentNotObserved, "intent %s not observed on the hub chain yet", intentID))
	}

	fulfillment, err := v.resolveFulfillment(ctx, intent, txRef)
	if err != nil {
		return fail(models.DirectionOutflow, err)
	}

	if err := checkOutflow(intent, fulfillment); err != nil {
		return fail(models.DirectionOutflow, err)
	}

	metrics.Validations.WithLabelValues(string(models.DirectionOutflow), "approved").Inc()
	return fulfillment, nil
}

// resolveFulfillment finds the candidate fulfillment either in the cache or
// by an on-demand lookup through the destination chain adapter.
func (v *Validator) resolveFulfillment(ctx context.Context, intent models.IntentRecord, txRef string) (models.FulfillmentRecord, error) {
	if txRef == "" {
		cached, ok := v.store.Fulfillment(store.ChainKey{IntentID: intent.IntentID, ChainID: intent.DestinationChain})
		if !ok {
			return models.FulfillmentRecord{}, models.Reject(models.ReasonTxNotFound,
				"no fulfillment observed for intent %s on chain %d", intent.IntentID, intent.DestinationChain)
		}
		return cached, nil
	}

	adapter, ok := v.adapters[intent.DestinationChain]
	if !ok {
		return models.FulfillmentRecord{}, models.Reject(models.ReasonUnknownChain,
			"destination chain %d is not configured", intent.DestinationChain)
	}
	if cb, ok := v.breakers[intent.DestinationChain]; ok && cb.IsOpen() {
		return models.FulfillmentRecord{}, models.Reject(models.ReasonChainUnavailable,
			"chain %d RPC circuit is open", intent.DestinationChain)
	}

	fulfillment, err := adapter.FetchFulfillment(ctx, intent, txRef)
	if err != nil {
		if errors.Is(err, chains.ErrTxNotFound) {
			return models.FulfillmentRecord{}, models.Reject(models.ReasonTxNotFound,
				"transaction %s not found on chain %d", txRef, intent.DestinationChain)
		}
		var rej *models.RejectionError
		if errors.As(err, &rej) {
			return models.FulfillmentRecord{}, rej
		}
		// Transport failure, not a verdict on the intent.
		if cb, ok := v.breakers[intent.DestinationChain]; ok {
			cb.RecordFailure()
		}
		v.logger.ErrorWithChain(intent.DestinationChain, "Fulfillment lookup failed: %v", err)
		return models.FulfillmentRecord{}, models.Reject(models.ReasonChainUnavailable, "chain %d lookup failed: %v", intent.DestinationChain, err)
	}
	if cb, ok := v.breakers[intent.DestinationChain]; ok {
		cb.RecordSuccess()
	}
	return fulfillment, nil
}

// checkOutflow is the pure outflow predicate. Any single mismatch is a hard
// rejection with a specific reason.
func checkOutflow(intent models.IntentRecord, f models.FulfillmentRecord) error {
	if !f.Succeeded {
		return models.Reject(models.ReasonTxFailed, "fulfillment transaction %s did not succeed", f.TxReference)
	}
	if f.ProvidedAsset != intent.DesiredAsset {
		return models.Reject(models.ReasonTokenMismatch, "transferred %s, intent wants %s", f.ProvidedAsset, intent.DesiredAsset)
	}
	if err := compareAmounts(f.ProvidedAmount, intent.DesiredAmount); err != nil {
		return err
	}
	if f.Recipient != intent.Recipient {
		return models.Reject(models.ReasonRecipientMismatch, "transferred to %s, intent wants %s", f.Recipient, intent.Recipient)
	}
	if intent.Reserved() && f.Solver != intent.ReservedSolver {
		return models.Reject(models.ReasonSolverMismatch, "sent by %s, intent reserved for %s", f.Solver, intent.ReservedSolver)
	}
	return nil
}

// ValidateInflow checks that the escrow locked on a connected chain matches
// the hub intent and cannot be revoked out from under the solver.
func (v *Validator) ValidateInflow(ctx context.Context, intentID string) (models.EscrowRecord, error) {
	intent, ok := v.store.Intent(intentID)
	if !ok {
		return models.EscrowRecord{}, failEscrow(models.Reject(models.ReasonIntentNotObserved,
			"intent %s not observed on the hub chain yet", intentID))
	}

	escrow, ok := v.store.EscrowByIntent(intentID)
	if !ok {
		return models.EscrowRecord{}, failEscrow(models.Reject(models.ReasonEscrowNotObserved,
			"no escrow observed for intent %s on any connected chain", intentID))
	}

	if err := checkInflow(intent, escrow); err != nil {
		return models.EscrowRecord{}, failEscrow(err)
	}

	metrics.Validations.WithLabelValues(string(models.DirectionInflow), "approved").Inc()
	return escrow, nil
}

// checkInflow is the pure inflow predicate. A revocable escrow is never
// approved: the requester could revoke concurrently with the solver's
// on-chain action, opening a double-spend window.
func checkInflow(intent models.IntentRecord, escrow models.EscrowRecord) error {
	if escrow.Revocable {
		return models.Reject(models.ReasonRevocableEscrow, "escrow for intent %s is revocable", intent.IntentID)
	}
	if escrow.LockedAsset != intent.SourceAsset {
		return models.Reject(models.ReasonTokenMismatch, "escrow locks %s, intent offers %s", escrow.LockedAsset, intent.SourceAsset)
	}
	if err := compareAmounts(escrow.LockedAmount, intent.SourceAmount); err != nil {
		return err
	}
	if escrow.ReservedSolver != intent.ReservedSolver {
		return models.Reject(models.ReasonSolverMismatch, "escrow reserves %q, intent reserves %q", escrow.ReservedSolver, intent.ReservedSolver)
	}
	return nil
}

// compareAmounts demands exact integer equality. Unparseable amounts mean a
// record was built from garbage and must never validate.
func compareAmounts(got, want string) error {
	gotInt, ok := new(big.Int).SetString(got, 10)
	if !ok {
		return models.Reject(models.ReasonMalformedTx, "unparseable amount %q", got)
	}
	wantInt, ok := new(big.Int).SetString(want, 10)
	if !ok {
		return models.Reject(models.ReasonMalformedTx, "unparseable amount %q", want)
	}
	if gotInt.Cmp(wantInt) != 0 {
		return models.Reject(models.ReasonAmountMismatch, "transferred %s, intent wants %s", got, want)
	}
	return nil
}

// fail records the rejection metric and passes the error through.
func fail(direction models.Direction, err error) (models.FulfillmentRecord, error) {
	reason := models.ReasonOf(err)
	metrics.Validations.WithLabelValues(string(direction), string(reason)).Inc()
	return models.FulfillmentRecord{}, err
}

func failEscrow(err error) error {
	reason := models.ReasonOf(err)
	metrics.Validations.WithLabelValues(string(models.DirectionInflow), string(reason)).Inc()
	return err
}
