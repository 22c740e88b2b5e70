package ledger

import (
	"encoding/json"

	"github.com/cantata-io/cantata/core"
)

// Function names accepted by Handle. Satellite contracts build nested
// actions against these with core.MarshalAction.
const (
	FnInitialize        = "initialize"
	FnTransfer          = "transfer"
	FnMint              = "mint"
	FnBurn              = "burn"
	FnSetApprovalForAll = "setApprovalForAll"
	FnIsApprovedForAll  = "isApprovedForAll"
	FnBalanceOf         = "balanceOf"
	FnGetToken          = "getToken"
	FnGetAllTokens      = "getAllTokens"
	FnReadSettings      = "readSettings"
	FnConfigure         = "configure"
	FnEvolve            = "evolve"
	FnBatch             = "batch"
	FnAsDirectCaller    = "asDirectCaller"
)

// InitializeArgs seeds the state document of a freshly deployed ledger.
type InitializeArgs struct {
	Name     string            `json:"name,omitempty"`
	Tokens   map[string]*Token `json:"tokens,omitempty"`
	Settings Settings          `json:"settings"`
}

// TransferArgs moves qty of a token between two addresses. From defaults to
// the effective caller; TokenID defaults to the ledger's default token.
type TransferArgs struct {
	From    string      `json:"from,omitempty"`
	Target  string      `json:"target"`
	TokenID string      `json:"tokenId,omitempty"`
	Qty     core.Amount `json:"qty"`
}

// MintArgs creates or increases supply of a token credited to the caller.
type MintArgs struct {
	BaseID string      `json:"baseId,omitempty"`
	Prefix string      `json:"prefix,omitempty"`
	Ticker string      `json:"ticker,omitempty"`
	Qty    core.Amount `json:"qty"`
}

// BurnArgs destroys qty of a token held by Owner (default: caller).
type BurnArgs struct {
	TokenID string      `json:"tokenId,omitempty"`
	Owner   string      `json:"owner,omitempty"`
	Qty     core.Amount `json:"qty"`
}

// SetApprovalForAllArgs grants or revokes operator rights over all of the
// caller's balances.
type SetApprovalForAllArgs struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

// IsApprovedForAllArgs queries an operator delegation.
type IsApprovedForAllArgs struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
}

// BalanceOfArgs queries one balance.
type BalanceOfArgs struct {
	Target  string `json:"target"`
	TokenID string `json:"tokenId,omitempty"`
}

// GetTokenArgs queries one token document.
type GetTokenArgs struct {
	TokenID string `json:"tokenId,omitempty"`
}

// ConfigureArgs updates a subset of Settings. Nil fields are left untouched.
type ConfigureArgs struct {
	Paused            *bool     `json:"paused,omitempty"`
	AllowFreeTransfer *bool     `json:"allowFreeTransfer,omitempty"`
	DefaultToken      *string   `json:"defaultToken,omitempty"`
	Operators         *[]string `json:"operators,omitempty"`
	SuperOperators    *[]string `json:"superOperators,omitempty"`
	Proxies           *[]string `json:"proxies,omitempty"`
	CanEvolve         *bool     `json:"canEvolve,omitempty"`
}

// EvolveArgs records a new executable logic reference.
type EvolveArgs struct {
	Value string `json:"value"`
}

// BatchArgs applies an ordered list of actions atomically.
type BatchArgs struct {
	Actions []json.RawMessage `json:"actions"`
}

// AsDirectCallerArgs lets a proxy contract run the wrapped action as itself
// instead of impersonating the outer caller.
type AsDirectCallerArgs struct {
	Input json.RawMessage `json:"input"`
}
