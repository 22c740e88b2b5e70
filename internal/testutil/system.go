package testutil

import (
	"fmt"
	"testing"

	"github.com/cantata-io/cantata/config"
	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/engine"
	"github.com/cantata-io/cantata/events"
	"github.com/cantata-io/cantata/storage"
)

// Well-known addresses used across tests.
const (
	Admin  = "admin"  // superOperator everywhere
	Minter = "minter" // plain operator everywhere
)

// System is a fully wired contract family on an in-memory store.
type System struct {
	T       *testing.T
	Engine  *engine.Engine
	Store   *storage.Store
	Emitter *events.Emitter
	Cfg     *config.Config

	n int
}

// NewSystem builds the genesis family with Admin as superOperator and
// Minter as operator on every contract, backed by a fresh MemDB.
func NewSystem(t *testing.T) *System {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Genesis.Operators = []string{Minter}
	cfg.Genesis.SuperOperators = []string{Admin}

	store := NewStore()
	emitter := events.NewEmitter()
	eng := engine.New(store, emitter)
	contracts, err := config.BuildContracts(cfg)
	if err != nil {
		t.Fatalf("build contracts: %v", err)
	}
	for _, c := range contracts {
		eng.Register(c)
	}
	return &System{T: t, Engine: eng, Store: store, Emitter: emitter, Cfg: cfg}
}

// Apply runs one interaction at the engine's current height.
func (s *System) Apply(contract, caller, fn string, args any) *core.Receipt {
	s.T.Helper()
	return s.ApplyAt(s.Engine.Height(), "", contract, caller, fn, args)
}

// ApplyAt runs one interaction at an explicit height, optionally carrying
// randomness. Interaction ids are sequential so reruns are deterministic.
func (s *System) ApplyAt(height int64, random, contract, caller, fn string, args any) *core.Receipt {
	s.T.Helper()
	input, err := core.MarshalAction(fn, args)
	if err != nil {
		s.T.Fatalf("marshal action %s: %v", fn, err)
	}
	s.n++
	in := &core.Interaction{
		ID:       fmt.Sprintf("itx-%04d", s.n),
		Contract: contract,
		Caller:   caller,
		Height:   height,
		Random:   random,
		Input:    input,
	}
	receipt, err := s.Engine.Apply(in)
	if err != nil {
		s.T.Fatalf("apply %s: %v", in.ID, err)
	}
	return receipt
}

// MustOK fails the test if the receipt reports an error.
func (s *System) MustOK(receipt *core.Receipt) *core.Receipt {
	s.T.Helper()
	if !receipt.OK {
		s.T.Fatalf("interaction %s failed: %v", receipt.InteractionID, receipt.Err)
	}
	return receipt
}

// LedgerState decodes the ledger contract's current document.
func (s *System) LedgerState() *ledger.State {
	s.T.Helper()
	raw, err := s.Engine.State(s.Cfg.Contracts.Ledger)
	if err != nil {
		s.T.Fatalf("ledger state: %v", err)
	}
	st, err := ledger.ParseState(raw)
	if err != nil {
		s.T.Fatalf("parse ledger state: %v", err)
	}
	return st
}

// Balance reads one ledger balance as a decimal string ("0" if absent).
func (s *System) Balance(tokenID, addr string) string {
	s.T.Helper()
	return s.LedgerState().Balance(tokenID, addr).String()
}
