package models

import (
	"time"
)

// DraftState is the lifecycle of a negotiated draft intent.
type DraftState string

const (
	// DraftPending means no solver has claimed the draft yet.
	DraftPending DraftState = "pending"
	// DraftSigned means a solver signature was accepted. Terminal.
	DraftSigned DraftState = "signed"
)

// DraftIntent is an off-chain draft published by an offerer and claimed
// first-come-first-served by a solver. The winning signature is what the
// offerer embeds in the on-chain intent it creates afterwards.
type DraftIntent struct {
	DraftID       string     `json:"draft_id"`
	Offerer       string     `json:"offerer"`
	SourceAsset   string     `json:"source_asset"`
	SourceAmount  string     `json:"source_amount"`
	DesiredAsset  string     `json:"desired_asset"`
	DesiredAmount string     `json:"desired_amount"`
	ExpiryTime    time.Time  `json:"expiry_time"`
	State         DraftState `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`

	// Set atomically with the Pending -> Signed transition.
	Solver    string    `json:"solver,omitempty"`
	Signature []byte    `json:"signature,omitempty"`
	SignedAt  time.Time `json:"signed_at,omitempty"`
}
