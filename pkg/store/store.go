// Package store holds the shared record cache behind an explicit interface
// so the monitor, validator, approval service and router depend on an
// abstraction rather than a process-global map.
package store

import (
	"github.com/intentwire/verifier/pkg/models"
)

// ChainKey addresses a record that exists per (intent, chain) pair.
type ChainKey struct {
	IntentID string
	ChainID  int
}

// Snapshot is a point-in-time copy of every cached record, for the read-only
// events surface.
type Snapshot struct {
	Intents      []models.IntentRecord      `json:"intents"`
	Escrows      []models.EscrowRecord      `json:"escrows"`
	Fulfillments []models.FulfillmentRecord `json:"fulfillments"`
}

// Store is the only mutable shared resource in the service. All mutation goes
// through insert-if-absent or compare-and-swap style operations; nothing is
// ever deleted or overwritten in place.
type Store interface {
	// Intents.
	Intent(intentID string) (models.IntentRecord, bool)
	InsertIntent(rec models.IntentRecord) bool
	// MarkIntentFulfilled sets the terminal fulfilled_by field exactly once.
	// It returns false if the intent is unknown or already fulfilled.
	MarkIntentFulfilled(intentID, solver, txRef string) bool

	// Escrows, one per (intent, connected chain).
	Escrow(key ChainKey) (models.EscrowRecord, bool)
	EscrowByIntent(intentID string) (models.EscrowRecord, bool)
	InsertEscrow(rec models.EscrowRecord) bool

	// Fulfillments, one per (intent, chain).
	Fulfillment(key ChainKey) (models.FulfillmentRecord, bool)
	FulfillmentByIntent(intentID string) (models.FulfillmentRecord, bool)
	InsertFulfillment(rec models.FulfillmentRecord) bool

	// Approvals, at most one per (intent, direction).
	Approval(key models.ApprovalKey) (models.ApprovalRecord, bool)
	InsertApproval(rec models.ApprovalRecord) bool

	// Drafts.
	Draft(draftID string) (models.DraftIntent, bool)
	InsertDraft(rec models.DraftIntent) bool
	PendingDrafts() []models.DraftIntent
	// ClaimDraft transitions a draft Pending -> Signed atomically. It returns
	// false if the draft is unknown or the slot was already taken.
	ClaimDraft(draftID, solver string, signature []byte) bool

	Records() Snapshot
}
