// Package evm implements the chain adapter for EVM ledgers: the hub chain
// and any EVM connected chain. Events are read by filtering logs emitted by
// the intent contract deployed on the chain.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
)

// Backend is the subset of ethclient.Client the adapter uses. Tests swap in
// a fake.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Adapter reads intent, escrow and fulfillment events from a single EVM
// chain.
type Adapter struct {
	chainID        int
	name           string
	contract       common.Address
	client         Backend
	logger         logger.Logger
	requestTimeout time.Duration

	// cursor is the last block whose logs have been fully consumed. Only the
	// polling goroutine touches it.
	cursor uint64
}

var _ chains.Adapter = (*Adapter)(nil)

// New dials the chain RPC and positions the cursor at the chain head, so the
// monitor only observes events from startup onward. startBlock > 0 overrides
// the initial cursor for replaying history.
func New(ctx context.Context, chainID int, name, rpcURL, contractAddr string, startBlock uint64, requestTimeout time.Duration, log logger.Logger) (*Adapter, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid intent contract address %q for chain %d", contractAddr, chainID)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d at %s: %w", chainID, rpcURL, err)
	}

	a := NewWithBackend(chainID, name, contractAddr, client, requestTimeout, log)
	if startBlock > 0 {
		a.cursor = startBlock - 1
		return a, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	head, err := client.BlockNumber(callCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get head block for chain %d: %w", chainID, err)
	}
	a.cursor = head
	return a, nil
}

// NewWithBackend wires an adapter over an existing backend. Used by New and
// by tests.
func NewWithBackend(chainID int, name, contractAddr string, client Backend, requestTimeout time.Duration, log logger.Logger) *Adapter {
	return &Adapter{
		chainID:        chainID,
		name:           name,
		contract:       common.HexToAddress(contractAddr),
		client:         client,
		logger:         log,
		requestTimeout: requestTimeout,
	}
}

func (a *Adapter) ChainID() int           { return a.chainID }
func (a *Adapter) Kind() models.ChainKind { return models.ChainKindEVM }
func (a *Adapter) Name() string           { return a.name }

// Healthy checks the RPC endpoint responds.
func (a *Adapter) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	_, err := a.client.BlockNumber(ctx)
	return err
}

// PollEvents filters intent contract logs in (cursor, head] and normalizes
// them. The cursor advances only when the whole range was fetched, so an RPC
// failure retries the same range next tick.
func (a *Adapter) PollEvents(ctx context.Context) (chains.PollResult, error) {
	var result chains.PollResult

	headCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	head, err := a.client.BlockNumber(headCtx)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to get head block: %w", err)
	}
	if head <= a.cursor {
		return result, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(a.cursor + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{a.contract},
		Topics:    [][]common.Hash{{intentCreatedTopic, escrowCreatedTopic, intentFulfilledTopic}},
	}

	logCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	logs, err := a.client.FilterLogs(logCtx, query)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to filter logs [%d, %d]: %w", a.cursor+1, head, err)
	}

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		event, err := a.decodeLog(lg)
		if err != nil {
			result.DecodeErrs = append(result.DecodeErrs, &chains.DecodeError{
				ChainID: a.chainID,
				TxRef:   lg.TxHash.Hex(),
				Err:     err,
			})
			continue
		}
		result.Events = append(result.Events, event)
	}

	a.cursor = head
	return result, nil
}

// decodeLog normalizes one contract log. Any missing or malformed field
// fails the whole event.
func (a *Adapter) decodeLog(lg types.Log) (models.Event, error) {
	if len(lg.Topics) == 0 {
		return models.Event{}, fmt.Errorf("log without topics")
	}

	switch lg.Topics[0] {
	case intentCreatedTopic:
		return a.decodeIntentCreated(lg)
	case escrowCreatedTopic:
		return a.decodeEscrowCreated(lg)
	case intentFulfilledTopic:
		return a.decodeIntentFulfilled(lg)
	}
	return models.Event{}, fmt.Errorf("unknown event topic %s", lg.Topics[0].Hex())
}

func (a *Adapter) decodeIntentCreated(lg types.Log) (models.Event, error) {
	if len(lg.Topics) != 3 {
		return models.Event{}, fmt.Errorf("IntentCreated: expected 3 topics, got %d", len(lg.Topics))
	}

	var data intentCreatedData
	if err := intentABI.UnpackIntoInterface(&data, "IntentCreated", lg.Data); err != nil {
		return models.Event{}, fmt.Errorf("IntentCreated: %w", err)
	}
	if data.SourceAmount == nil || data.DesiredAmount == nil {
		return models.Event{}, fmt.Errorf("IntentCreated: missing amount")
	}

	intentID := lg.Topics[1].Hex()
	rec := models.IntentRecord{
		IntentID:         intentID,
		ChainID:          a.chainID,
		DestinationChain: int(data.DestinationChain.Int64()),
		Issuer:           NormalizeAddress(common.BytesToAddress(lg.Topics[2].Bytes())),
		SourceAsset:      NormalizeAddress(data.SourceAsset),
		SourceAmount:     data.SourceAmount.String(),
		DesiredAsset:     decodeForeign(data.DesiredAsset),
		DesiredAmount:    data.DesiredAmount.String(),
		Recipient:        decodeForeign(data.Recipient),
		ExpiryTime:       time.Unix(int64(data.Expiry), 0).UTC(),
		Revocable:        data.Revocable,
		ObservedAt:       time.Now().UTC(),
	}
	if data.ReservedSolver != (common.Address{}) {
		rec.ReservedSolver = NormalizeAddress(data.ReservedSolver)
	}

	return models.Event{
		ChainID:  a.chainID,
		Kind:     models.EventIntentCreated,
		IntentID: intentID,
		Intent:   &rec,
	}, nil
}

func (a *Adapter) decodeEscrowCreated(lg types.Log) (models.Event, error) {
	if len(lg.Topics) != 3 {
		return models.Event{}, fmt.Errorf("EscrowCreated: expected 3 topics, got %d", len(lg.Topics))
	}

	var data escrowCreatedData
	if err := intentABI.UnpackIntoInterface(&data, "EscrowCreated", lg.Data); err != nil {
		return models.Event{}, fmt.Errorf("EscrowCreated: %w", err)
	}
	if data.LockedAmount == nil {
		return models.Event{}, fmt.Errorf("EscrowCreated: missing amount")
	}

	intentID := lg.Topics[1].Hex()
	rec := models.EscrowRecord{
		IntentID:     intentID,
		ChainID:      a.chainID,
		Requester:    NormalizeAddress(common.BytesToAddress(lg.Topics[2].Bytes())),
		LockedAsset:  NormalizeAddress(data.LockedAsset),
		LockedAmount: data.LockedAmount.String(),
		Revocable:    data.Revocable,
		ExpiryTime:   time.Unix(int64(data.Expiry), 0).UTC(),
		ObservedAt:   time.Now().UTC(),
	}
	if data.ReservedSolver != (common.Address{}) {
		rec.ReservedSolver = NormalizeAddress(data.ReservedSolver)
	}

	return models.Event{
		ChainID:  a.chainID,
		Kind:     models.EventEscrowCreated,
		IntentID: intentID,
		Escrow:   &rec,
	}, nil
}

func (a *Adapter) decodeIntentFulfilled(lg types.Log) (models.Event, error) {
	if len(lg.Topics) != 3 {
		return models.Event{}, fmt.Errorf("IntentFulfilled: expected 3 topics, got %d", len(lg.Topics))
	}

	var data intentFulfilledData
	if err := intentABI.UnpackIntoInterface(&data, "IntentFulfilled", lg.Data); err != nil {
		return models.Event{}, fmt.Errorf("IntentFulfilled: %w", err)
	}
	if data.Amount == nil {
		return models.Event{}, fmt.Errorf("IntentFulfilled: missing amount")
	}

	intentID := lg.Topics[1].Hex()
	rec := models.FulfillmentRecord{
		IntentID:       intentID,
		ChainID:        a.chainID,
		Solver:         NormalizeAddress(common.BytesToAddress(lg.Topics[2].Bytes())),
		ProvidedAsset:  NormalizeAddress(data.Asset),
		ProvidedAmount: data.Amount.String(),
		Recipient:      NormalizeAddress(data.Receiver),
		TxReference:    lg.TxHash.Hex(),
		Succeeded:      true,
		ObservedAt:     time.Now().UTC(),
	}

	return models.Event{
		ChainID:     a.chainID,
		Kind:        models.EventFulfillment,
		IntentID:    intentID,
		Fulfillment: &rec,
	}, nil
}

// FetchFulfillment resolves txRef to a receipt and extracts the
// IntentFulfilled event emitted by the configured intent contract for the
// given intent. A receipt with status 0, or one lacking a matching event, is
// a permanent rejection.
func (a *Adapter) FetchFulfillment(ctx context.Context, intent models.IntentRecord, txRef string) (models.FulfillmentRecord, error) {
	txHash := common.HexToHash(txRef)

	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	receipt, err := a.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if err == ethereum.NotFound {
			return models.FulfillmentRecord{}, chains.ErrTxNotFound
		}
		return models.FulfillmentRecord{}, fmt.Errorf("failed to get receipt for %s: %w", txRef, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return models.FulfillmentRecord{}, models.Reject(models.ReasonTxFailed, "transaction %s reverted", txRef)
	}

	intentIDHash := common.HexToHash(intent.IntentID)
	for _, lg := range receipt.Logs {
		if lg.Address != a.contract || len(lg.Topics) != 3 {
			continue
		}
		if lg.Topics[0] != intentFulfilledTopic || lg.Topics[1] != intentIDHash {
			continue
		}
		event, err := a.decodeIntentFulfilled(*lg)
		if err != nil {
			return models.FulfillmentRecord{}, models.Reject(models.ReasonMalformedTx, "fulfillment event in %s: %v", txRef, err)
		}
		return *event.Fulfillment, nil
	}

	return models.FulfillmentRecord{}, models.Reject(models.ReasonMalformedTx,
		"transaction %s carries no fulfillment event for intent %s", txRef, intent.IntentID)
}

// NormalizeAddress lowers an EVM address to its canonical comparable form.
// Records store addresses in this form so the validator can use plain string
// equality.
func NormalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// decodeForeign renders an ABI bytes field that encodes an address on the
// destination chain: 20 bytes is an EVM address, anything else is an opaque
// destination-chain string (e.g. base58).
func decodeForeign(b []byte) string {
	if len(b) == common.AddressLength {
		return NormalizeAddress(common.BytesToAddress(b))
	}
	return string(b)
}
