package solana

import "encoding/json"

// ParsedTransaction is the jsonParsed getTransaction result.
type ParsedTransaction struct {
	Slot        int64            `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction *TransactionBody `json:"transaction"`
}

// TransactionMeta carries execution status and program logs.
type TransactionMeta struct {
	Err         interface{} `json:"err"`
	LogMessages []string    `json:"logMessages"`
}

// TransactionBody wraps the parsed message.
type TransactionBody struct {
	Message *TransactionMessage `json:"message"`
}

// TransactionMessage holds account keys and parsed instructions.
type TransactionMessage struct {
	AccountKeys  []AccountKey        `json:"accountKeys"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// AccountKey is one entry of the parsed account list.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// ParsedInstruction is one instruction in jsonParsed form. Parsed is a plain
// string for memo instructions and a typed object for spl-token.
type ParsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

// tokenInstruction is the parsed payload of an spl-token instruction.
type tokenInstruction struct {
	Type string               `json:"type"`
	Info tokenInstructionInfo `json:"info"`
}

type tokenInstructionInfo struct {
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	Authority   string       `json:"authority"`
	Mint        string       `json:"mint"`
	Amount      string       `json:"amount"`
	TokenAmount *tokenAmount `json:"tokenAmount"`
}

type tokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}
