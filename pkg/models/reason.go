package models

import (
	"errors"
	"fmt"
)

// ReasonCode is the typed cause attached to a validation or negotiation
// rejection. Callers must be able to tell "retry later" apart from "will
// never succeed", so every code declares whether it is transient.
type ReasonCode string

const (
	ReasonNone ReasonCode = ""

	// Transient: the counterpart event simply has not been observed yet.
	ReasonIntentNotObserved ReasonCode = "intent_not_observed"
	ReasonEscrowNotObserved ReasonCode = "escrow_not_observed"
	ReasonTxNotFound        ReasonCode = "tx_not_found"
	ReasonChainUnavailable  ReasonCode = "chain_unavailable"

	// Permanent validation rejections.
	ReasonTxFailed          ReasonCode = "tx_failed"
	ReasonMalformedTx       ReasonCode = "malformed_tx"
	ReasonTokenMismatch     ReasonCode = "token_mismatch"
	ReasonAmountMismatch    ReasonCode = "amount_mismatch"
	ReasonRecipientMismatch ReasonCode = "recipient_mismatch"
	ReasonSolverMismatch    ReasonCode = "solver_mismatch"
	ReasonRevocableEscrow   ReasonCode = "revocable_escrow"
	ReasonUnknownChain      ReasonCode = "unknown_chain"

	// Negotiation rejections.
	ReasonDraftNotFound  ReasonCode = "draft_not_found"
	ReasonAlreadyClaimed ReasonCode = "already_claimed"
	ReasonDraftExpired   ReasonCode = "draft_expired"
	ReasonZeroAmount     ReasonCode = "zero_amount"
	ReasonExpiryInPast   ReasonCode = "expiry_in_past"
	ReasonBadSignature   ReasonCode = "bad_signature"
)

// Transient reports whether a retry without any new on-chain action can
// change the outcome.
func (r ReasonCode) Transient() bool {
	switch r {
	case ReasonIntentNotObserved, ReasonEscrowNotObserved, ReasonTxNotFound, ReasonChainUnavailable:
		return true
	}
	return false
}

// RejectionError carries a ReasonCode through error returns so the API layer
// can map it without string matching.
type RejectionError struct {
	Reason ReasonCode
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Reject builds a RejectionError with a formatted detail message.
func Reject(reason ReasonCode, format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the reason code from err, or ReasonNone if err is not a
// rejection.
func ReasonOf(err error) ReasonCode {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ReasonNone
}
