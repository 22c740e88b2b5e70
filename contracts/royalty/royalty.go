// Package royalty implements the fee engine: royalty schedules attached to
// NFT base ids, tiered edition minting, and priced transfers that split the
// sale price between royalty recipients and the seller. All balance moves
// are foreign writes against the ledger contract; this contract holds no
// balances of its own.
package royalty

import (
	"encoding/json"
	"fmt"

	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/contracts/nftid"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/events"
)

// Unit is the denominator of all rate and share fractions: a rate of
// 1_000_000 is 100%.
const Unit uint64 = 1_000_000

// Schedule is the royalty split attached to one base id. Rate is the fee
// fraction of the sale price; Royalties maps recipient address to its share
// of the fee, and shares must sum to Unit.
type Schedule struct {
	Rate      uint64            `json:"rate"`
	Royalties map[string]uint64 `json:"royalties"`
}

// Settings is the governance section of the state document.
type Settings struct {
	Paused         bool     `json:"paused"`
	Operators      []string `json:"operators"`
	SuperOperators []string `json:"superOperators"`
	CanEvolve      bool     `json:"canEvolve"`
}

// State is the full royalty document.
type State struct {
	Name          string               `json:"name"`
	Initialized   bool                 `json:"initialized"`
	Ledger        string               `json:"ledger"`
	ExchangeToken string               `json:"exchangeToken"`
	Schedules     map[string]*Schedule `json:"schedules"`
	Settings      Settings             `json:"settings"`
	Evolve        string               `json:"evolve,omitempty"`
}

func (s *State) normalize() {
	if s.Schedules == nil {
		s.Schedules = make(map[string]*Schedule)
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
	FnInitialize              = "initialize"
	FnAttachRoyalties         = "attachRoyalties"
	FnEditAttachedRoyalties   = "editAttachedRoyalties"
	FnRemoveAttachedRoyalties = "removeAttachedRoyalties"
	FnGetRoyalties            = "getRoyalties"
	FnGetAllRoyalties         = "getAllRoyalties"
	FnMintNft                 = "mintNft"
	FnTransfer                = "transfer"
	FnConfigure               = "configure"
	FnEvolve                  = "evolve"
	FnBatch                   = "batch"
)

// InitializeArgs seeds a fresh royalty contract.
type InitializeArgs struct {
	Name          string   `json:"name,omitempty"`
	Ledger        string   `json:"ledger"`
	ExchangeToken string   `json:"exchangeToken"`
	Settings      Settings `json:"settings"`
}

// AttachRoyaltiesArgs creates a schedule for a base id.
type AttachRoyaltiesArgs struct {
	BaseID    string            `json:"baseId"`
	Rate      uint64            `json:"rate"`
	Royalties map[string]uint64 `json:"royalties"`
}

// EditAttachedRoyaltiesArgs updates an existing schedule. Nil fields keep
// their current value.
type EditAttachedRoyaltiesArgs struct {
	BaseID    string             `json:"baseId"`
	Rate      *uint64            `json:"rate,omitempty"`
	Royalties *map[string]uint64 `json:"royalties,omitempty"`
}

// RemoveAttachedRoyaltiesArgs deletes a schedule.
type RemoveAttachedRoyaltiesArgs struct {
	BaseID string `json:"baseId"`
}

// GetRoyaltiesArgs queries one schedule.
type GetRoyaltiesArgs struct {
	BaseID string `json:"baseId"`
}

// MintNftArgs mints the full edition set of a tier and attaches the
// schedule to the base id. BaseID defaults to the interaction id; Editions
// is required for the limited scarcity and ignored otherwise.
type MintNftArgs struct {
	Scarcity  string            `json:"scarcity"`
	Editions  uint64            `json:"editions,omitempty"`
	Rate      uint64            `json:"rate"`
	Royalties map[string]uint64 `json:"royalties"`
	BaseID    string            `json:"baseId,omitempty"`
	Ticker    string            `json:"ticker,omitempty"`
}

// TransferArgs performs a priced NFT transfer: To pays Price in the
// exchange token, split between royalty recipients and the current owner,
// and receives the NFT.
type TransferArgs struct {
	TokenID string      `json:"tokenId"`
	To      string      `json:"to"`
	Price   core.Amount `json:"price"`
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

// Royalty is the fee engine contract instance.
type Royalty struct {
	id    string
	state State
}

// New creates a royalty contract. A nil initial state leaves it
// uninitialized.
func New(id string, initial *State) *Royalty {
	r := &Royalty{id: id}
	if initial != nil {
		r.state = *initial
		r.state.Initialized = true
	}
	r.state.normalize()
	return r
}

func (r *Royalty) ID() string { return r.id }

func (r *Royalty) Snapshot() ([]byte, error) {
	return json.Marshal(&r.state)
}

func (r *Royalty) Restore(data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	st.normalize()
	r.state = st
	return nil
}

// Handle applies one action. This contract accepts no foreign writes; it
// only issues them.
func (r *Royalty) Handle(ctx *core.Context, input json.RawMessage) (*core.Result, error) {
	fn, err := core.Function(input)
	if err != nil {
		return nil, err
	}
	if ctx.IsForeignCall() {
		return nil, core.ErrUnauthorizedAddress(ctx.DirectCaller)
	}
	caller := ctx.Interaction.Caller

	if fn == FnInitialize {
		return r.initialize(input)
	}
	if !r.state.Initialized {
		return nil, core.ErrContractUninitialized()
	}
	if r.state.Settings.Paused && isMutatingInput(fn, input) && !r.state.isOperator(caller) {
		return nil, core.ErrContractIsPaused()
	}
	return r.dispatch(ctx, caller, fn, input)
}

func isMutating(fn string) bool {
	switch fn {
	case FnGetRoyalties, FnGetAllRoyalties:
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

func (r *Royalty) dispatch(ctx *core.Context, caller, fn string, input json.RawMessage) (*core.Result, error) {
	switch fn {
	case FnAttachRoyalties:
		return r.attachRoyalties(ctx, caller, input)
	case FnEditAttachedRoyalties:
		return r.editAttachedRoyalties(caller, input)
	case FnRemoveAttachedRoyalties:
		return r.removeAttachedRoyalties(ctx, caller, input)
	case FnGetRoyalties:
		return r.getRoyalties(input)
	case FnGetAllRoyalties:
		return r.getAllRoyalties()
	case FnMintNft:
		return r.mintNft(ctx, caller, input)
	case FnTransfer:
		return r.transfer(ctx, caller, input)
	case FnConfigure:
		return r.configure(caller, input)
	case FnEvolve:
		return r.evolve(caller, input)
	case FnBatch:
		return r.batch(ctx, caller, input)
	default:
		return nil, fmt.Errorf("unknown function %q", fn)
	}
}

func (r *Royalty) initialize(input json.RawMessage) (*core.Result, error) {
	if r.state.Initialized {
		return nil, core.ErrContractAlreadyInitialized()
	}
	var p InitializeArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode initialize: %w", err)
	}
	r.state = State{
		Name:          p.Name,
		Initialized:   true,
		Ledger:        p.Ledger,
		ExchangeToken: p.ExchangeToken,
		Settings:      p.Settings,
	}
	r.state.normalize()
	return core.WriteResult(), nil
}

// validateSchedule enforces the fraction invariants: shares sum to Unit and
// the fee rate does not exceed Unit. A share above Unit can never be part of
// a valid sum, so it is rejected before it gets a chance to wrap the
// accumulator around.
func validateSchedule(rate uint64, royalties map[string]uint64) error {
	var sum uint64
	for _, share := range royalties {
		if share > Unit || sum+share < sum {
			return core.ErrInvalidRate()
		}
		sum += share
	}
	if len(royalties) == 0 || sum != Unit {
		return core.ErrInvalidRate()
	}
	if rate > Unit {
		return core.ErrInvalidFee()
	}
	return nil
}

func (r *Royalty) attachRoyalties(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p AttachRoyaltiesArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode attachRoyalties: %w", err)
	}
	if !r.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	if err := r.attach(p.BaseID, p.Rate, p.Royalties); err != nil {
		return nil, err
	}
	ctx.Emit(events.EventRoyaltiesAttached, map[string]any{
		"baseId": p.BaseID,
		"rate":   p.Rate,
	})
	return core.WriteResult(), nil
}

func (r *Royalty) attach(baseID string, rate uint64, royalties map[string]uint64) error {
	if _, ok := r.state.Schedules[baseID]; ok {
		return core.ErrTokenAlreadyExists(baseID)
	}
	if err := validateSchedule(rate, royalties); err != nil {
		return err
	}
	r.state.Schedules[baseID] = &Schedule{Rate: rate, Royalties: royalties}
	return nil
}

func (r *Royalty) editAttachedRoyalties(caller string, input json.RawMessage) (*core.Result, error) {
	var p EditAttachedRoyaltiesArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode editAttachedRoyalties: %w", err)
	}
	if !r.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	sched, ok := r.state.Schedules[p.BaseID]
	if !ok {
		return nil, core.ErrTokenNotFound(p.BaseID)
	}
	rate := sched.Rate
	royalties := sched.Royalties
	if p.Rate != nil {
		rate = *p.Rate
	}
	if p.Royalties != nil {
		royalties = *p.Royalties
	}
	if err := validateSchedule(rate, royalties); err != nil {
		return nil, err
	}
	sched.Rate = rate
	sched.Royalties = royalties
	return core.WriteResult(), nil
}

func (r *Royalty) removeAttachedRoyalties(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p RemoveAttachedRoyaltiesArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode removeAttachedRoyalties: %w", err)
	}
	if !r.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	if _, ok := r.state.Schedules[p.BaseID]; !ok {
		return nil, core.ErrTokenNotFound(p.BaseID)
	}
	delete(r.state.Schedules, p.BaseID)
	ctx.Emit(events.EventRoyaltiesRemoved, map[string]any{"baseId": p.BaseID})
	return core.WriteResult(), nil
}

func (r *Royalty) getRoyalties(input json.RawMessage) (*core.Result, error) {
	var p GetRoyaltiesArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode getRoyalties: %w", err)
	}
	sched, ok := r.state.Schedules[p.BaseID]
	if !ok {
		return nil, core.ErrTokenNotFound(p.BaseID)
	}
	return core.ReadResult(map[string]any{"baseId": p.BaseID, "schedule": sched}), nil
}

func (r *Royalty) getAllRoyalties() (*core.Result, error) {
	list := make([]map[string]any, 0, len(r.state.Schedules))
	for _, baseID := range core.SortedKeys(r.state.Schedules) {
		list = append(list, map[string]any{"baseId": baseID, "schedule": r.state.Schedules[baseID]})
	}
	return core.ReadResult(list), nil
}

// mintNft mints every edition of the tier through one ledger batch, then
// records the schedule. The engine rolls the schedule back if any edition
// mint fails, so the edition set exists either completely or not at all.
func (r *Royalty) mintNft(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p MintNftArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode mintNft: %w", err)
	}
	if !r.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	tier, err := nftid.ParseTier(p.Scarcity, p.Editions)
	if err != nil {
		return nil, err
	}
	baseID := p.BaseID
	if baseID == "" {
		baseID = ctx.Interaction.ID
	}
	if err := r.attach(baseID, p.Rate, p.Royalties); err != nil {
		return nil, err
	}

	actions := make([]json.RawMessage, 0, tier.Editions)
	for i := uint64(1); i <= tier.Editions; i++ {
		action, err := core.MarshalAction(ledger.FnMint, ledger.MintArgs{
			BaseID: baseID,
			Prefix: fmt.Sprintf("%d-%s", i, tier.Name),
			Ticker: p.Ticker,
			Qty:    core.NewAmount(1),
		})
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if _, err := ctx.ForeignWrite(r.state.Ledger, ledger.FnBatch, ledger.BatchArgs{Actions: actions}); err != nil {
		return nil, err
	}

	ctx.Emit(events.EventNftMinted, map[string]any{
		"baseId":   baseID,
		"scarcity": tier.Name,
		"editions": tier.Editions,
		"owner":    caller,
	})
	return core.WriteResult(), nil
}

// transfer settles a priced sale. Each royalty recipient receives
// floor(feeTotal*share/Unit); the last recipient in ascending address order
// additionally absorbs the rounding residue so the seller nets exactly
// price - feeTotal. All legs and the NFT move ride one ledger batch.
func (r *Royalty) transfer(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p TransferArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	if caller != p.To && !r.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	parsed, err := nftid.Parse(p.TokenID)
	if err != nil {
		return nil, err
	}
	sched, ok := r.state.Schedules[parsed.BaseID]
	if !ok {
		return nil, core.ErrTokenNotFound(parsed.BaseID)
	}

	raw, err := ctx.ForeignRead(r.state.Ledger)
	if err != nil {
		return nil, err
	}
	ls, err := ledger.ParseState(raw)
	if err != nil {
		return nil, core.ErrErc1155ReadFailed()
	}
	owner, ok := ls.TokenOwner(p.TokenID)
	if !ok {
		return nil, core.ErrTokenOwnerNotFound()
	}
	if owner == p.To {
		return nil, core.ErrTransferFromAndToCannotBeEqual()
	}

	var legs []ledger.TransferArgs
	if !p.Price.IsZero() {
		balance := ls.Balance(r.state.ExchangeToken, p.To)
		if balance.Cmp(p.Price) < 0 {
			return nil, core.ErrCallerBalanceNotEnough(balance)
		}
		feeTotal := p.Price.MulDiv(sched.Rate, Unit)
		recipients := core.SortedKeys(sched.Royalties)
		distributed := core.NewAmount(0)
		for i, addr := range recipients {
			share := feeTotal.MulDiv(sched.Royalties[addr], Unit)
			if i == len(recipients)-1 {
				share = feeTotal.Sub(distributed)
			}
			distributed = distributed.Add(share)
			if share.IsZero() || addr == p.To {
				continue
			}
			legs = append(legs, ledger.TransferArgs{
				From:    p.To,
				Target:  addr,
				TokenID: r.state.ExchangeToken,
				Qty:     share,
			})
		}
		sellerNet := p.Price.Sub(feeTotal)
		if !sellerNet.IsZero() {
			legs = append(legs, ledger.TransferArgs{
				From:    p.To,
				Target:  owner,
				TokenID: r.state.ExchangeToken,
				Qty:     sellerNet,
			})
		}
	}
	legs = append(legs, ledger.TransferArgs{
		From:    owner,
		Target:  p.To,
		TokenID: p.TokenID,
		Qty:     core.NewAmount(1),
	})

	actions := make([]json.RawMessage, 0, len(legs))
	for _, leg := range legs {
		action, err := core.MarshalAction(ledger.FnTransfer, leg)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if _, err := ctx.ForeignWrite(r.state.Ledger, ledger.FnBatch, ledger.BatchArgs{Actions: actions}); err != nil {
		return nil, err
	}

	ctx.Emit(events.EventTransfer, map[string]any{
		"tokenId": p.TokenID,
		"from":    owner,
		"to":      p.To,
		"price":   p.Price.String(),
	})
	return core.WriteResult(), nil
}

func (r *Royalty) configure(caller string, input json.RawMessage) (*core.Result, error) {
	var p ConfigureArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode configure: %w", err)
	}
	if !r.state.isSuperOperator(caller) {
		return nil, core.ErrUnauthorizedConfiguration()
	}
	s := &r.state.Settings
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

func (r *Royalty) evolve(caller string, input json.RawMessage) (*core.Result, error) {
	var p EvolveArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode evolve: %w", err)
	}
	if !r.state.isSuperOperator(caller) {
		return nil, core.ErrOnlyOwnerCanEvolve()
	}
	if !r.state.Settings.CanEvolve {
		return nil, core.ErrEvolveNotAllowed()
	}
	r.state.Evolve = p.Value
	return core.WriteResult(), nil
}

func (r *Royalty) batch(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
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
		res, err := r.dispatch(ctx, caller, fns[i], action)
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
