package solana

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/intentwire/verifier/pkg/models"
)

const (
	memoProgram  = "spl-memo"
	tokenProgram = "spl-token"

	// escrowLogPrefix marks the escrow-creation event line the escrow program
	// writes to its transaction log.
	escrowLogPrefix = "Program log: escrow_created "
)

// escrowLogPayload is the JSON the escrow program logs on creation.
type escrowLogPayload struct {
	IntentID       string `json:"intent_id"`
	Requester      string `json:"requester"`
	Mint           string `json:"mint"`
	Amount         string `json:"amount"`
	ReservedSolver string `json:"reserved_solver"`
	Revocable      bool   `json:"revocable"`
	ExpiryUnix     int64  `json:"expiry_unix"`
}

// fulfillmentShape is the decoded strict instruction pattern: a leading memo
// carrying the intent id, then exactly one transferChecked.
type fulfillmentShape struct {
	IntentID  string
	Solver    string
	Mint      string
	Amount    string
	Recipient string
}

// decodeEscrowCreated extracts an escrow record from the program log lines of
// a successful transaction. Returns (nil, nil) when the transaction carries
// no escrow event at all.
func decodeEscrowCreated(chainID int, tx *ParsedTransaction) (*models.EscrowRecord, error) {
	if tx.Meta == nil {
		return nil, nil
	}
	for _, line := range tx.Meta.LogMessages {
		if !strings.HasPrefix(line, escrowLogPrefix) {
			continue
		}
		if tx.Meta.Err != nil {
			return nil, fmt.Errorf("escrow_created log in failed transaction")
		}

		var payload escrowLogPayload
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, escrowLogPrefix)), &payload); err != nil {
			return nil, fmt.Errorf("malformed escrow_created payload: %w", err)
		}
		if payload.IntentID == "" || payload.Amount == "" || payload.Mint == "" {
			return nil, fmt.Errorf("escrow_created payload missing required fields")
		}
		if _, err := DecodePubkey(payload.Requester); err != nil {
			return nil, err
		}
		if payload.ReservedSolver != "" {
			if _, err := DecodePubkey(payload.ReservedSolver); err != nil {
				return nil, err
			}
		}

		return &models.EscrowRecord{
			IntentID:       payload.IntentID,
			ChainID:        chainID,
			Requester:      payload.Requester,
			LockedAsset:    payload.Mint,
			LockedAmount:   payload.Amount,
			ReservedSolver: payload.ReservedSolver,
			Revocable:      payload.Revocable,
			ExpiryTime:     time.Unix(payload.ExpiryUnix, 0).UTC(),
			ObservedAt:     time.Now().UTC(),
		}, nil
	}
	return nil, nil
}

// decodeFulfillmentShape enforces the strict instruction ordering a
// fulfillment transaction must have: the first instruction is a memo whose
// content is the intent identifier, followed by exactly one token transfer
// (transferChecked, so the mint is provable) whose authority signed the
// transaction. Any other shape is rejected: a memo with no matching transfer
// is forgeable and must not count as proof of payment.
func decodeFulfillmentShape(tx *ParsedTransaction) (*fulfillmentShape, error) {
	if tx.Transaction == nil || tx.Transaction.Message == nil {
		return nil, fmt.Errorf("transaction has no parsed message")
	}
	msg := tx.Transaction.Message

	if len(msg.Instructions) != 2 {
		return nil, fmt.Errorf("expected memo + transfer, got %d instructions", len(msg.Instructions))
	}

	memo := msg.Instructions[0]
	if memo.Program != memoProgram {
		return nil, fmt.Errorf("leading instruction is %q, not a memo", memo.Program)
	}
	var intentID string
	if err := json.Unmarshal(memo.Parsed, &intentID); err != nil || intentID == "" {
		return nil, fmt.Errorf("memo does not carry an intent identifier")
	}

	transfer := msg.Instructions[1]
	if transfer.Program != tokenProgram {
		return nil, fmt.Errorf("second instruction is %q, not a token transfer", transfer.Program)
	}
	var ti tokenInstruction
	if err := json.Unmarshal(transfer.Parsed, &ti); err != nil {
		return nil, fmt.Errorf("malformed token instruction: %w", err)
	}
	// A plain transfer carries no mint, so the asset cannot be proven.
	if ti.Type != "transferChecked" {
		return nil, fmt.Errorf("token instruction is %q, want transferChecked", ti.Type)
	}
	if ti.Info.Mint == "" || ti.Info.Destination == "" || ti.Info.Authority == "" {
		return nil, fmt.Errorf("transferChecked missing mint, destination or authority")
	}
	if ti.Info.TokenAmount == nil || ti.Info.TokenAmount.Amount == "" {
		return nil, fmt.Errorf("transferChecked missing amount")
	}

	if !isSigner(msg.AccountKeys, ti.Info.Authority) {
		return nil, fmt.Errorf("transfer authority %s is not a transaction signer", ti.Info.Authority)
	}
	if _, err := DecodePubkey(ti.Info.Authority); err != nil {
		return nil, err
	}

	return &fulfillmentShape{
		IntentID:  intentID,
		Solver:    ti.Info.Authority,
		Mint:      ti.Info.Mint,
		Amount:    ti.Info.TokenAmount.Amount,
		Recipient: ti.Info.Destination,
	}, nil
}

func isSigner(keys []AccountKey, pubkey string) bool {
	for _, k := range keys {
		if k.Pubkey == pubkey && k.Signer {
			return true
		}
	}
	return false
}
