// Package vault implements vested custody: locked balances transferred into
// the vault contract's ledger account and released back to their target by
// cliff or linear schedule. Block height is the only clock, so unlock math
// is exact integer arithmetic and replays bit-identically.
package vault

import (
	"encoding/json"
	"fmt"

	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/events"
)

// Lock methods.
const (
	MethodCliff  = "cliff"
	MethodLinear = "linear"
)

// LockedBalance is one vesting entry. Unlocked accumulates what has already
// been released, so repeated unlock calls never double-pay.
type LockedBalance struct {
	Method   string      `json:"method"`
	TokenID  string      `json:"tokenId,omitempty"`
	From     string      `json:"from"`
	Qty      core.Amount `json:"qty"`
	At       int64       `json:"at"`
	Duration int64       `json:"duration"`
	Unlocked core.Amount `json:"unlocked"`
}

// releasable returns the total amount unlocked at height h, before
// subtracting what was already released.
func (lb *LockedBalance) releasable(h int64) core.Amount {
	elapsed := h - lb.At
	if elapsed < 0 {
		elapsed = 0
	}
	switch lb.Method {
	case MethodCliff:
		if elapsed >= lb.Duration {
			return lb.Qty
		}
		return core.Amount{}
	case MethodLinear:
		if elapsed > lb.Duration {
			elapsed = lb.Duration
		}
		return lb.Qty.MulDiv(uint64(elapsed), uint64(lb.Duration))
	default:
		return core.Amount{}
	}
}

// Settings is the governance section of the state document.
type Settings struct {
	Paused         bool     `json:"paused"`
	Operators      []string `json:"operators"`
	SuperOperators []string `json:"superOperators"`
	CanEvolve      bool     `json:"canEvolve"`
}

// State is the full vault document.
type State struct {
	Name        string                      `json:"name"`
	Initialized bool                        `json:"initialized"`
	Ledger      string                      `json:"ledger"`
	Vaults      map[string][]*LockedBalance `json:"vaults"`
	Settings    Settings                    `json:"settings"`
	Evolve      string                      `json:"evolve,omitempty"`
}

func (s *State) normalize() {
	if s.Vaults == nil {
		s.Vaults = make(map[string][]*LockedBalance)
	}
}

func (s *State) isOperator(addr string) bool {
	for _, a := range s.Settings.Operators {
		if a == addr {
			return true
		}
	}
	return s.isSuperOperator(addr)
}

func (s *State) isSuperOperator(addr string) bool {
	for _, a := range s.Settings.SuperOperators {
		if a == addr {
			return true
		}
	}
	return false
}

// Function names accepted by Handle.
const (
	FnInitialize     = "initialize"
	FnTransferLocked = "transferLocked"
	FnUnlock         = "unlock"
	FnGetVault       = "getVault"
	FnGetAllVaults   = "getAllVaults"
	FnConfigure      = "configure"
	FnEvolve         = "evolve"
	FnBatch          = "batch"
)

// InitializeArgs seeds a fresh vault contract.
type InitializeArgs struct {
	Name     string   `json:"name,omitempty"`
	Ledger   string   `json:"ledger"`
	Settings Settings `json:"settings"`
}

// TransferLockedArgs debits qty from the caller into vault custody and
// starts a vesting entry for Target.
type TransferLockedArgs struct {
	TokenID  string      `json:"tokenId,omitempty"`
	Target   string      `json:"target"`
	Qty      core.Amount `json:"qty"`
	Duration int64       `json:"duration"`
	Method   string      `json:"method"`
}

// GetVaultArgs queries one owner's entries.
type GetVaultArgs struct {
	Owner string `json:"owner"`
}

// ConfigureArgs updates a subset of Settings.
type ConfigureArgs struct {
	Paused         *bool     `json:"paused,omitempty"`
	Operators      *[]string `json:"operators,omitempty"`
	SuperOperators *[]string `json:"superOperators,omitempty"`
	CanEvolve      *bool     `json:"canEvolve,omitempty"`
}

// EvolveArgs records a new executable logic reference.
type EvolveArgs struct {
	Value string `json:"value"`
}

// BatchArgs applies an ordered list of actions atomically.
type BatchArgs struct {
	Actions []json.RawMessage `json:"actions"`
}

// Vault is the vesting contract instance.
type Vault struct {
	id    string
	state State
}

// New creates a vault contract. A nil initial state leaves it
// uninitialized.
func New(id string, initial *State) *Vault {
	v := &Vault{id: id}
	if initial != nil {
		v.state = *initial
		v.state.Initialized = true
	}
	v.state.normalize()
	return v
}

func (v *Vault) ID() string { return v.id }

func (v *Vault) Snapshot() ([]byte, error) {
	return json.Marshal(&v.state)
}

func (v *Vault) Restore(data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	st.normalize()
	v.state = st
	return nil
}

// Handle applies one action. The vault accepts no foreign writes.
func (v *Vault) Handle(ctx *core.Context, input json.RawMessage) (*core.Result, error) {
	fn, err := core.Function(input)
	if err != nil {
		return nil, err
	}
	if ctx.IsForeignCall() {
		return nil, core.ErrUnauthorizedAddress(ctx.DirectCaller)
	}
	caller := ctx.Interaction.Caller

	if fn == FnInitialize {
		return v.initialize(input)
	}
	if !v.state.Initialized {
		return nil, core.ErrContractUninitialized()
	}
	if v.state.Settings.Paused && isMutatingInput(fn, input) && !v.state.isOperator(caller) {
		return nil, core.ErrContractIsPaused()
	}
	return v.dispatch(ctx, caller, fn, input)
}

func isMutating(fn string) bool {
	switch fn {
	case FnGetVault, FnGetAllVaults:
		return false
	}
	return true
}

// isMutatingInput treats a batch as a read only when every member is a read.
func isMutatingInput(fn string, input json.RawMessage) bool {
	if fn != FnBatch {
		return isMutating(fn)
	}
	var p BatchArgs
	if err := json.Unmarshal(input, &p); err != nil || len(p.Actions) == 0 {
		return true
	}
	for _, action := range p.Actions {
		member, err := core.Function(action)
		if err != nil || isMutating(member) {
			return true
		}
	}
	return false
}

func (v *Vault) dispatch(ctx *core.Context, caller, fn string, input json.RawMessage) (*core.Result, error) {
	switch fn {
	case FnTransferLocked:
		return v.transferLocked(ctx, caller, input)
	case FnUnlock:
		return v.unlock(ctx, caller)
	case FnGetVault:
		return v.getVault(input)
	case FnGetAllVaults:
		return v.getAllVaults()
	case FnConfigure:
		return v.configure(caller, input)
	case FnEvolve:
		return v.evolve(caller, input)
	case FnBatch:
		return v.batch(ctx, caller, input)
	default:
		return nil, fmt.Errorf("unknown function %q", fn)
	}
}

func (v *Vault) initialize(input json.RawMessage) (*core.Result, error) {
	if v.state.Initialized {
		return nil, core.ErrContractAlreadyInitialized()
	}
	var p InitializeArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode initialize: %w", err)
	}
	v.state = State{
		Name:        p.Name,
		Initialized: true,
		Ledger:      p.Ledger,
		Settings:    p.Settings,
	}
	v.state.normalize()
	return core.WriteResult(), nil
}

// transferLocked moves qty from the caller into the vault's own ledger
// account and records the vesting entry. The debit and the entry commit or
// roll back together.
func (v *Vault) transferLocked(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p TransferLockedArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode transferLocked: %w", err)
	}
	if !v.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	if p.Qty.IsZero() {
		return nil, core.ErrTransferAmountMustBeHigherThanZero()
	}
	if p.Duration <= 0 {
		return nil, core.ErrRuntime("lock duration must be higher than zero")
	}
	if p.Method != MethodCliff && p.Method != MethodLinear {
		return nil, core.ErrRuntime("unknown lock method " + p.Method)
	}

	_, err := ctx.ForeignWrite(v.state.Ledger, ledger.FnTransfer, ledger.TransferArgs{
		From:    caller,
		Target:  v.id,
		TokenID: p.TokenID,
		Qty:     p.Qty,
	})
	if err != nil {
		return nil, err
	}

	v.state.Vaults[p.Target] = append(v.state.Vaults[p.Target], &LockedBalance{
		Method:   p.Method,
		TokenID:  p.TokenID,
		From:     caller,
		Qty:      p.Qty,
		At:       ctx.Interaction.Height,
		Duration: p.Duration,
	})

	ctx.Emit(events.EventLocked, map[string]any{
		"target":   p.Target,
		"qty":      p.Qty.String(),
		"method":   p.Method,
		"duration": p.Duration,
	})
	return core.WriteResult(), nil
}

// unlock releases everything vested for the caller up to the current
// height. The vault pays out of its own custody account, so the ledger legs
// ride an asDirectCaller batch. Entries disappear once fully released.
func (v *Vault) unlock(ctx *core.Context, caller string) (*core.Result, error) {
	entries := v.state.Vaults[caller]
	if len(entries) == 0 {
		return core.NoneResult(), nil
	}
	h := ctx.Interaction.Height

	var legs []json.RawMessage
	var kept []*LockedBalance
	released := core.NewAmount(0)
	for _, entry := range entries {
		total := entry.releasable(h)
		delta := total.Sub(entry.Unlocked)
		if !delta.IsZero() {
			leg, err := core.MarshalAction(ledger.FnTransfer, ledger.TransferArgs{
				Target:  caller,
				TokenID: entry.TokenID,
				Qty:     delta,
			})
			if err != nil {
				return nil, err
			}
			legs = append(legs, leg)
			released = released.Add(delta)
			entry.Unlocked = total
		}
		if entry.Unlocked.Cmp(entry.Qty) < 0 {
			kept = append(kept, entry)
		}
	}
	if len(legs) == 0 {
		return core.NoneResult(), nil
	}

	batch, err := core.MarshalAction(ledger.FnBatch, ledger.BatchArgs{Actions: legs})
	if err != nil {
		return nil, err
	}
	_, err = ctx.ForeignWrite(v.state.Ledger, ledger.FnAsDirectCaller, ledger.AsDirectCallerArgs{Input: batch})
	if err != nil {
		return nil, err
	}

	if len(kept) == 0 {
		delete(v.state.Vaults, caller)
	} else {
		v.state.Vaults[caller] = kept
	}

	ctx.Emit(events.EventUnlocked, map[string]any{
		"owner": caller,
		"qty":   released.String(),
	})
	return core.WriteResult(), nil
}

func (v *Vault) getVault(input json.RawMessage) (*core.Result, error) {
	var p GetVaultArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode getVault: %w", err)
	}
	entries, ok := v.state.Vaults[p.Owner]
	if !ok || len(entries) == 0 {
		return nil, core.ErrOwnerHasNoVault(p.Owner)
	}
	return core.ReadResult(map[string]any{"owner": p.Owner, "entries": entries}), nil
}

func (v *Vault) getAllVaults() (*core.Result, error) {
	list := make([]map[string]any, 0, len(v.state.Vaults))
	for _, owner := range core.SortedKeys(v.state.Vaults) {
		list = append(list, map[string]any{"owner": owner, "entries": v.state.Vaults[owner]})
	}
	return core.ReadResult(list), nil
}

func (v *Vault) configure(caller string, input json.RawMessage) (*core.Result, error) {
	var p ConfigureArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode configure: %w", err)
	}
	if !v.state.isSuperOperator(caller) {
		return nil, core.ErrUnauthorizedConfiguration()
	}
	s := &v.state.Settings
	if p.Paused != nil {
		s.Paused = *p.Paused
	}
	if p.Operators != nil {
		s.Operators = *p.Operators
	}
	if p.SuperOperators != nil {
		s.SuperOperators = *p.SuperOperators
	}
	if p.CanEvolve != nil {
		s.CanEvolve = *p.CanEvolve
	}
	return core.WriteResult(), nil
}

func (v *Vault) evolve(caller string, input json.RawMessage) (*core.Result, error) {
	var p EvolveArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode evolve: %w", err)
	}
	if !v.state.isSuperOperator(caller) {
		return nil, core.ErrOnlyOwnerCanEvolve()
	}
	if !v.state.Settings.CanEvolve {
		return nil, core.ErrEvolveNotAllowed()
	}
	v.state.Evolve = p.Value
	return core.WriteResult(), nil
}

func (v *Vault) batch(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p BatchArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if len(p.Actions) == 0 {
		return nil, core.ErrEmptyBatch()
	}
	reads := 0
	fns := make([]string, len(p.Actions))
	for i, action := range p.Actions {
		fn, err := core.Function(action)
		if err != nil {
			return nil, err
		}
		if fn == FnBatch {
			return nil, core.ErrForbiddenNestedBatch()
		}
		if !isMutating(fn) {
			reads++
		}
		fns[i] = fn
	}
	if reads != 0 && reads != len(p.Actions) {
		return nil, core.ErrCannotMixeReadAndWrite()
	}

	var bodies []any
	for i, action := range p.Actions {
		res, err := v.dispatch(ctx, caller, fns[i], action)
		if err != nil {
			return nil, err
		}
		if res.Kind == core.ResultRead {
			bodies = append(bodies, res.Body)
		}
	}
	if reads > 0 {
		return core.ReadResult(bodies), nil
	}
	return core.WriteResult(), nil
}
