package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
)

// signaturePageLimit caps one getSignaturesForAddress page. A burst larger
// than a page is drained by paging backward until the cursor is reached.
const signaturePageLimit = 200

// Adapter reads escrow and fulfillment events from a Solana-style chain by
// polling the signatures touching the escrow program account.
type Adapter struct {
	chainID        int
	name           string
	programAddr    string
	client         RPCClient
	logger         logger.Logger
	requestTimeout time.Duration

	// cursor is the newest signature already consumed. Only the polling
	// goroutine touches it.
	cursor string
}

var _ chains.Adapter = (*Adapter)(nil)

// New creates an adapter over the given RPC endpoint. The program address
// must be a canonical base58 pubkey. A non-empty startSignature seeds the
// cursor so a restarted process can replay history from a known position
// instead of starting at the chain tip.
func New(chainID int, name, rpcURL, programAddr, startSignature string, requestTimeout time.Duration, log logger.Logger) (*Adapter, error) {
	if _, err := DecodePubkey(programAddr); err != nil {
		return nil, fmt.Errorf("escrow program address: %w", err)
	}
	return NewWithClient(chainID, name, programAddr, NewHTTPClient(rpcURL, requestTimeout), startSignature, requestTimeout, log), nil
}

// NewWithClient wires an adapter over an existing RPC client. Used by New
// and by tests.
func NewWithClient(chainID int, name, programAddr string, client RPCClient, startSignature string, requestTimeout time.Duration, log logger.Logger) *Adapter {
	if requestTimeout <= 0 {
		requestTimeout = DefaultTimeout
	}
	return &Adapter{
		chainID:        chainID,
		name:           name,
		programAddr:    programAddr,
		client:         client,
		logger:         log,
		requestTimeout: requestTimeout,
		cursor:         startSignature,
	}
}

func (a *Adapter) ChainID() int           { return a.chainID }
func (a *Adapter) Kind() models.ChainKind { return models.ChainKindSolana }
func (a *Adapter) Name() string           { return a.name }

// Healthy probes the RPC node.
func (a *Adapter) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	return a.client.GetHealth(ctx)
}

// PollEvents lists new signatures touching the escrow program since the
// cursor and decodes each transaction. The cursor only advances when the
// whole batch was fetched and decoded (or explicitly dropped), so a failed
// tick replays from the same position.
func (a *Adapter) PollEvents(ctx context.Context) (chains.PollResult, error) {
	var result chains.PollResult

	sigs, err := a.listNewSignatures(ctx)
	if err != nil {
		return result, err
	}
	if len(sigs) == 0 {
		return result, nil
	}

	// First poll with no configured start signature: start observing from
	// the chain tip without replaying history.
	if a.cursor == "" {
		a.cursor = sigs[0].Signature
		return result, nil
	}

	// Newest first from the RPC; apply in chain order.
	for i := len(sigs) - 1; i >= 0; i-- {
		info := sigs[i]
		if info.Err != nil {
			// Failed transactions can never be proof of anything.
			continue
		}

		txCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
		tx, err := a.client.GetTransaction(txCtx, info.Signature)
		cancel()
		if err != nil {
			// RPC failure mid-batch: abort the tick without moving the
			// cursor; the same batch is retried next tick.
			return chains.PollResult{}, fmt.Errorf("failed to get transaction %s: %w", info.Signature, err)
		}
		if tx == nil {
			continue
		}

		event, decodeErr := a.decodeTransaction(info.Signature, tx)
		if decodeErr != nil {
			result.DecodeErrs = append(result.DecodeErrs, &chains.DecodeError{
				ChainID: a.chainID,
				TxRef:   info.Signature,
				Err:     decodeErr,
			})
			continue
		}
		if event != nil {
			result.Events = append(result.Events, *event)
		}
	}

	a.cursor = sigs[0].Signature
	return result, nil
}

// listNewSignatures collects every signature newer than the cursor, newest
// first. A full page means more transactions landed than one page holds, so
// it pages backward with Before until the node reaches the cursor. If any
// page fails, the tick aborts without advancing: nothing between the cursor
// and the tip is ever skipped silently.
func (a *Adapter) listNewSignatures(ctx context.Context) ([]SignatureInfo, error) {
	var all []SignatureInfo
	before := ""
	for {
		pageCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
		page, err := a.client.GetSignaturesForAddress(pageCtx, a.programAddr, SignaturesOpts{
			Before: before,
			Until:  a.cursor,
			Limit:  signaturePageLimit,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to list signatures: %w", err)
		}
		all = append(all, page...)

		// A short page means the node reached the cursor (or the start of
		// the account's history). Seeding at the tip needs only the newest
		// page regardless.
		if len(page) < signaturePageLimit || a.cursor == "" {
			return all, nil
		}
		before = page[len(page)-1].Signature
	}
}

// decodeTransaction classifies a program transaction. Escrow creations are
// identified by the program's log line; fulfillments by the strict
// memo+transfer shape. Transactions matching neither marker are unrelated
// program traffic and yield no event.
func (a *Adapter) decodeTransaction(signature string, tx *ParsedTransaction) (*models.Event, error) {
	escrow, err := decodeEscrowCreated(a.chainID, tx)
	if err != nil {
		return nil, err
	}
	if escrow != nil {
		return &models.Event{
			ChainID:  a.chainID,
			Kind:     models.EventEscrowCreated,
			IntentID: escrow.IntentID,
			Escrow:   escrow,
		}, nil
	}

	if !hasMemoInstruction(tx) {
		return nil, nil
	}
	shape, err := decodeFulfillmentShape(tx)
	if err != nil {
		return nil, err
	}

	rec := models.FulfillmentRecord{
		IntentID:       shape.IntentID,
		ChainID:        a.chainID,
		Solver:         shape.Solver,
		ProvidedAsset:  shape.Mint,
		ProvidedAmount: shape.Amount,
		Recipient:      shape.Recipient,
		TxReference:    signature,
		Succeeded:      true,
		ObservedAt:     time.Now().UTC(),
	}
	return &models.Event{
		ChainID:     a.chainID,
		Kind:        models.EventFulfillment,
		IntentID:    shape.IntentID,
		Fulfillment: &rec,
	}, nil
}

func hasMemoInstruction(tx *ParsedTransaction) bool {
	if tx.Transaction == nil || tx.Transaction.Message == nil {
		return false
	}
	for _, ins := range tx.Transaction.Message.Instructions {
		if ins.Program == memoProgram {
			return true
		}
	}
	return false
}

// FetchFulfillment resolves txRef and decodes it against the strict
// fulfillment shape. The memo must name exactly the intent being validated.
func (a *Adapter) FetchFulfillment(ctx context.Context, intent models.IntentRecord, txRef string) (models.FulfillmentRecord, error) {
	txCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	tx, err := a.client.GetTransaction(txCtx, txRef)
	if err != nil {
		return models.FulfillmentRecord{}, fmt.Errorf("failed to get transaction %s: %w", txRef, err)
	}
	if tx == nil {
		return models.FulfillmentRecord{}, chains.ErrTxNotFound
	}
	if tx.Meta == nil || tx.Meta.Err != nil {
		return models.FulfillmentRecord{}, models.Reject(models.ReasonTxFailed, "transaction %s failed on chain", txRef)
	}

	shape, err := decodeFulfillmentShape(tx)
	if err != nil {
		return models.FulfillmentRecord{}, models.Reject(models.ReasonMalformedTx, "transaction %s: %v", txRef, err)
	}
	if shape.IntentID != intent.IntentID {
		return models.FulfillmentRecord{}, models.Reject(models.ReasonMalformedTx,
			"memo names intent %s, not %s", shape.IntentID, intent.IntentID)
	}

	return models.FulfillmentRecord{
		IntentID:       shape.IntentID,
		ChainID:        a.chainID,
		Solver:         shape.Solver,
		ProvidedAsset:  shape.Mint,
		ProvidedAmount: shape.Amount,
		Recipient:      shape.Recipient,
		TxReference:    txRef,
		Succeeded:      true,
		ObservedAt:     time.Now().UTC(),
	}, nil
}
