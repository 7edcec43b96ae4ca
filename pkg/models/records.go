package models

import (
	"time"
)

// ChainKind identifies the family a chain belongs to. It is a closed set:
// decode, validation and signing logic dispatch on it.
type ChainKind string

const (
	// ChainKindEVM covers the hub chain and EVM connected chains.
	ChainKindEVM ChainKind = "evm"
	// ChainKindSolana covers Solana-style connected chains.
	ChainKindSolana ChainKind = "solana"
)

// Direction of value flow for an approval.
type Direction string

const (
	// DirectionOutflow moves value from the hub chain to a connected chain.
	DirectionOutflow Direction = "outflow"
	// DirectionInflow moves value from a connected chain to the hub chain.
	DirectionInflow Direction = "inflow"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionOutflow || d == DirectionInflow
}

// SignScheme selects the signature algorithm for an approval.
type SignScheme string

const (
	SchemeEd25519 SignScheme = "ed25519"
	SchemeECDSA   SignScheme = "ecdsa"
)

// EventKind classifies a normalized chain event.
type EventKind string

const (
	EventIntentCreated EventKind = "intent_created"
	EventEscrowCreated EventKind = "escrow_created"
	EventFulfillment   EventKind = "fulfillment"
)

// IntentRecord is the hub-side view of an intent. Amounts are canonical
// decimal strings produced from on-chain integers; they carry no sign or
// leading zeros so they can be compared after big.Int parsing.
type IntentRecord struct {
	IntentID         string    `json:"intent_id"`
	ChainID          int       `json:"chain_id"`
	DestinationChain int       `json:"destination_chain"`
	Issuer           string    `json:"issuer"`
	SourceAsset      string    `json:"source_asset"`
	SourceAmount     string    `json:"source_amount"`
	DesiredAsset     string    `json:"desired_asset"`
	DesiredAmount    string    `json:"desired_amount"`
	Recipient        string    `json:"recipient"`
	ExpiryTime       time.Time `json:"expiry_time"`
	ReservedSolver   string    `json:"reserved_solver,omitempty"`
	Revocable        bool      `json:"revocable"`
	ObservedAt       time.Time `json:"observed_at"`

	// FulfilledBy is the only mutable field: it is set once when a
	// fulfillment event referencing this intent is observed.
	FulfilledBy string `json:"fulfilled_by,omitempty"`
	FulfilledTx string `json:"fulfilled_tx,omitempty"`
}

// Reserved reports whether the intent restricts fulfillment to a single solver.
func (r *IntentRecord) Reserved() bool {
	return r.ReservedSolver != ""
}

// EscrowRecord is a connected-chain deposit awaiting an inflow approval.
type EscrowRecord struct {
	IntentID       string    `json:"intent_id"`
	ChainID        int       `json:"chain_id"`
	Requester      string    `json:"requester"`
	LockedAsset    string    `json:"locked_asset"`
	LockedAmount   string    `json:"locked_amount"`
	ReservedSolver string    `json:"reserved_solver,omitempty"`
	Revocable      bool      `json:"revocable"`
	ExpiryTime     time.Time `json:"expiry_time"`
	ObservedAt     time.Time `json:"observed_at"`
}

// FulfillmentRecord is an observed transfer that claims to satisfy an intent.
// Succeeded reflects the transaction status reported by the chain; a decode
// that cannot establish success is dropped before a record is ever built.
type FulfillmentRecord struct {
	IntentID       string    `json:"intent_id"`
	ChainID        int       `json:"chain_id"`
	Solver         string    `json:"solver"`
	ProvidedAsset  string    `json:"provided_asset"`
	ProvidedAmount string    `json:"provided_amount"`
	Recipient      string    `json:"recipient"`
	TxReference    string    `json:"tx_reference"`
	Succeeded      bool      `json:"succeeded"`
	ObservedAt     time.Time `json:"observed_at"`
}

// ApprovalRecord holds the signature that authorizes fund release. The
// signature bytes are the sole approval artifact; there is no separate
// approved flag.
type ApprovalRecord struct {
	IntentID  string     `json:"intent_id"`
	Direction Direction  `json:"direction"`
	Scheme    SignScheme `json:"scheme"`
	Signature []byte     `json:"signature"`
	SignedAt  time.Time  `json:"signed_at"`
}

// ApprovalKey identifies the at-most-once unit for approvals.
type ApprovalKey struct {
	IntentID  string
	Direction Direction
}

// Event is a normalized chain event as returned by an adapter. Exactly one
// of the record pointers is set, matching Kind.
type Event struct {
	ChainID     int
	Kind        EventKind
	IntentID    string
	Intent      *IntentRecord
	Escrow      *EscrowRecord
	Fulfillment *FulfillmentRecord
}
