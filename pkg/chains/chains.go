// Package chains defines the adapter boundary between the verification
// service and the ledgers it observes. Each supported chain kind implements
// Adapter; everything above this boundary is chain-agnostic.
package chains

import (
	"context"
	"errors"

	"github.com/intentwire/verifier/pkg/models"
)

// ErrTxNotFound is returned by FetchFulfillment when the referenced
// transaction is not (yet) visible on the chain. It is transient: the caller
// should retry later rather than reject the intent.
var ErrTxNotFound = errors.New("transaction not found")

// DecodeError marks an event that was observed but could not be normalized.
// The whole event is discarded; no partial record is ever built from it.
type DecodeError struct {
	ChainID int
	TxRef   string
	Err     error
}

func (e *DecodeError) Error() string {
	return "decode event from tx " + e.TxRef + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PollResult is one tick's worth of observations from a single chain.
// DecodeErrs are surfaced separately from the RPC error so the monitor can
// tell "nothing happened" apart from "something happened that we dropped".
type PollResult struct {
	Events     []models.Event
	DecodeErrs []*DecodeError
}

// Adapter reads events and read-only state from a single ledger. Adapters
// own their cursor and their chain-specific decoders; they hold no other
// long-lived state.
type Adapter interface {
	ChainID() int
	Kind() models.ChainKind
	Name() string

	// PollEvents returns events observed since the previous successful poll,
	// in the order the chain reports them. The cursor only advances when the
	// poll as a whole succeeds, so a failed tick is retried from the same
	// position next tick.
	PollEvents(ctx context.Context) (PollResult, error)

	// FetchFulfillment looks up txRef and decodes it as a fulfillment of the
	// given intent. It returns ErrTxNotFound while the transaction is not
	// visible, and a models.RejectionError for transactions that exist but
	// can never count as proof of payment (failed, malformed shape).
	FetchFulfillment(ctx context.Context, intent models.IntentRecord, txRef string) (models.FulfillmentRecord, error)

	// Healthy performs a cheap liveness probe against the chain RPC.
	Healthy(ctx context.Context) error
}
