package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event fragments of the intent contract. The hub chain emits IntentCreated
// and the hub-side IntentFulfilled (inflow proof); connected EVM chains emit
// EscrowCreated and the connected-side IntentFulfilled (outflow proof).
const intentABIJSON = `[
	{
		"type": "event",
		"name": "IntentCreated",
		"inputs": [
			{"name": "intentId", "type": "bytes32", "indexed": true},
			{"name": "issuer", "type": "address", "indexed": true},
			{"name": "sourceAsset", "type": "address", "indexed": false},
			{"name": "sourceAmount", "type": "uint256", "indexed": false},
			{"name": "desiredAsset", "type": "bytes", "indexed": false},
			{"name": "desiredAmount", "type": "uint256", "indexed": false},
			{"name": "recipient", "type": "bytes", "indexed": false},
			{"name": "destinationChain", "type": "uint256", "indexed": false},
			{"name": "expiry", "type": "uint64", "indexed": false},
			{"name": "reservedSolver", "type": "address", "indexed": false},
			{"name": "revocable", "type": "bool", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "EscrowCreated",
		"inputs": [
			{"name": "intentId", "type": "bytes32", "indexed": true},
			{"name": "requester", "type": "address", "indexed": true},
			{"name": "lockedAsset", "type": "address", "indexed": false},
			{"name": "lockedAmount", "type": "uint256", "indexed": false},
			{"name": "reservedSolver", "type": "address", "indexed": false},
			{"name": "revocable", "type": "bool", "indexed": false},
			{"name": "expiry", "type": "uint64", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "IntentFulfilled",
		"inputs": [
			{"name": "intentId", "type": "bytes32", "indexed": true},
			{"name": "solver", "type": "address", "indexed": true},
			{"name": "asset", "type": "address", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "receiver", "type": "address", "indexed": false}
		]
	}
]`

var (
	intentABI abi.ABI

	intentCreatedTopic   common.Hash
	escrowCreatedTopic   common.Hash
	intentFulfilledTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(intentABIJSON))
	if err != nil {
		panic("evm: invalid intent ABI: " + err.Error())
	}
	intentABI = parsed

	intentCreatedTopic = parsed.Events["IntentCreated"].ID
	escrowCreatedTopic = parsed.Events["EscrowCreated"].ID
	intentFulfilledTopic = parsed.Events["IntentFulfilled"].ID
}

// Unpack targets for the non-indexed event data.

type intentCreatedData struct {
	SourceAsset      common.Address
	SourceAmount     *big.Int
	DesiredAsset     []byte
	DesiredAmount    *big.Int
	Recipient        []byte
	DestinationChain *big.Int
	Expiry           uint64
	ReservedSolver   common.Address
	Revocable        bool
}

type escrowCreatedData struct {
	LockedAsset    common.Address
	LockedAmount   *big.Int
	ReservedSolver common.Address
	Revocable      bool
	Expiry         uint64
}

type intentFulfilledData struct {
	Asset    common.Address
	Amount   *big.Int
	Receiver common.Address
}
