// Package ledger implements the multi-token balance contract every other
// contract in the family settles against. Balances are arbitrary-precision
// and keyed by (token id, address); authorization is tiered: approved
// operators per address, global operators, superOperators, and proxy
// contracts trusted for foreign writes.
package ledger

import (
	"encoding/json"

	"github.com/cantata-io/cantata/core"
)

// Token is one fungible or non-fungible token tracked by the ledger.
type Token struct {
	Ticker   string                 `json:"ticker"`
	TxID     string                 `json:"txId,omitempty"`
	Balances map[string]core.Amount `json:"balances"`
}

// Approvals holds the per-owner operator delegations.
type Approvals struct {
	Approves map[string]bool `json:"approves"`
}

// Settings is the governance section of the state document.
type Settings struct {
	DefaultToken      string   `json:"defaultToken"`
	Paused            bool     `json:"paused"`
	AllowFreeTransfer bool     `json:"allowFreeTransfer"`
	Operators         []string `json:"operators"`
	SuperOperators    []string `json:"superOperators"`
	Proxies           []string `json:"proxies"`
	CanEvolve         bool     `json:"canEvolve"`
}

// State is the full ledger document.
type State struct {
	Name        string                `json:"name"`
	Initialized bool                  `json:"initialized"`
	TickerNonce uint64                `json:"tickerNonce"`
	Tokens      map[string]*Token     `json:"tokens"`
	Approvals   map[string]*Approvals `json:"approvals"`
	Settings    Settings              `json:"settings"`
	Evolve      string                `json:"evolve,omitempty"`
}

// ParseState decodes a ledger state document, as obtained from a foreign
// read.
func ParseState(raw json.RawMessage) (*State, error) {
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *State) normalize() {
	if s.Tokens == nil {
		s.Tokens = make(map[string]*Token)
	}
	if s.Approvals == nil {
		s.Approvals = make(map[string]*Approvals)
	}
	for _, t := range s.Tokens {
		if t.Balances == nil {
			t.Balances = make(map[string]core.Amount)
		}
	}
}

func contains(list []string, addr string) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// IsOperator reports whether addr holds global operator privilege
// (operators and superOperators both qualify).
func (s *State) IsOperator(addr string) bool {
	return contains(s.Settings.Operators, addr) || contains(s.Settings.SuperOperators, addr)
}

// IsSuperOperator reports whether addr is a superOperator.
func (s *State) IsSuperOperator(addr string) bool {
	return contains(s.Settings.SuperOperators, addr)
}

// IsProxy reports whether a contract id is trusted for foreign writes.
func (s *State) IsProxy(id string) bool {
	return contains(s.Settings.Proxies, id)
}

// IsApproved reports whether owner has delegated operator rights to addr.
func (s *State) IsApproved(owner, addr string) bool {
	ap, ok := s.Approvals[owner]
	return ok && ap.Approves[addr]
}

// Balance returns the balance of addr for tokenID, zero if absent.
func (s *State) Balance(tokenID, addr string) core.Amount {
	t, ok := s.Tokens[tokenID]
	if !ok {
		return core.Amount{}
	}
	return t.Balances[addr]
}

// TokenOwner returns the first holder of tokenID in ascending address
// order. For single-edition NFTs this is the sole owner.
func (s *State) TokenOwner(tokenID string) (string, bool) {
	t, ok := s.Tokens[tokenID]
	if !ok || len(t.Balances) == 0 {
		return "", false
	}
	for _, addr := range core.SortedKeys(t.Balances) {
		if !t.Balances[addr].IsZero() {
			return addr, true
		}
	}
	return "", false
}
