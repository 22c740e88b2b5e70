// Package bundle implements randomized NFT containers. A bundle is a
// 1-edition container token plus a recorded set of contained base ids;
// opening it draws one not-yet-distributed edition uniformly at random,
// without replacement, from the remaining pool. Packs and shuffles are the
// same machine under two wire vocabularies.
package bundle

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/contracts/nftid"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/events"
)

// Kind selects the wire vocabulary of a bundle contract instance.
type Kind struct {
	Name   string
	Prefix string
	FnMint string
	FnOpen string
	FnGet  string
	FnList string
}

// The two deployed flavors.
var (
	Packs = Kind{
		Name:   "pack",
		Prefix: "PACK",
		FnMint: "mintPack",
		FnOpen: "openPack",
		FnGet:  "getPack",
		FnList: "getAllPacks",
	}
	Shuffles = Kind{
		Name:   "shuffle",
		Prefix: "SHUFFLE",
		FnMint: "mintShuffle",
		FnOpen: "openShuffle",
		FnGet:  "getShuffle",
		FnList: "getAllShuffles",
	}
)

func (k Kind) errNotFound(id string) *core.Error {
	if k.Name == "pack" {
		return core.ErrPackNotFound(id)
	}
	return core.ErrShuffleNotFound(id)
}

func (k Kind) errAlreadyBundled(bundleID, baseID string) *core.Error {
	if k.Name == "pack" {
		return core.ErrNftAlreadyPacked(bundleID, baseID)
	}
	return core.ErrNftAlreadyInAShuffle(bundleID, baseID)
}

// Bundle is one container: contained base ids per tier, and the edition ids
// already drawn out.
type Bundle struct {
	NFTs  map[string][]string `json:"nfts"`
	Drawn []string            `json:"drawn,omitempty"`
}

// contains reports whether baseID is part of this bundle.
func (b *Bundle) contains(baseID string) bool {
	for _, ids := range b.NFTs {
		for _, id := range ids {
			if id == baseID {
				return true
			}
		}
	}
	return false
}

// Settings is the governance section of the state document.
type Settings struct {
	Paused         bool     `json:"paused"`
	Operators      []string `json:"operators"`
	SuperOperators []string `json:"superOperators"`
	CanEvolve      bool     `json:"canEvolve"`
}

// State is the full bundle document.
type State struct {
	Name        string             `json:"name"`
	Initialized bool               `json:"initialized"`
	Ledger      string             `json:"ledger"`
	Bundles     map[string]*Bundle `json:"bundles"`
	Settings    Settings           `json:"settings"`
	Evolve      string             `json:"evolve,omitempty"`
}

func (s *State) normalize() {
	if s.Bundles == nil {
		s.Bundles = make(map[string]*Bundle)
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

// Kind-independent function names.
const (
	FnInitialize = "initialize"
	FnConfigure  = "configure"
	FnEvolve     = "evolve"
	FnBatch      = "batch"
)

// InitializeArgs seeds a fresh bundle contract.
type InitializeArgs struct {
	Name     string   `json:"name,omitempty"`
	Ledger   string   `json:"ledger"`
	Settings Settings `json:"settings"`
}

// MintArgs creates a container. NFTs maps tier name to contained base ids;
// every referenced edition must already exist in the ledger. BaseID
// defaults to the interaction id.
type MintArgs struct {
	NFTs   map[string][]string `json:"nfts"`
	BaseID string              `json:"baseId,omitempty"`
	Ticker string              `json:"ticker,omitempty"`
}

// OpenArgs draws one NFT out of a container. Exactly one of PackID and
// ShuffleID is set, matching the contract flavor; Owner defaults to the
// caller.
type OpenArgs struct {
	PackID    string `json:"packId,omitempty"`
	ShuffleID string `json:"shuffleId,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// GetArgs queries one container.
type GetArgs struct {
	PackID    string `json:"packId,omitempty"`
	ShuffleID string `json:"shuffleId,omitempty"`
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

// Contract is one bundle contract instance.
type Contract struct {
	id    string
	kind  Kind
	state State
}

// New creates a bundle contract of the given kind. A nil initial state
// leaves it uninitialized.
func New(id string, kind Kind, initial *State) *Contract {
	c := &Contract{id: id, kind: kind}
	if initial != nil {
		c.state = *initial
		c.state.Initialized = true
	}
	c.state.normalize()
	return c
}

func (c *Contract) ID() string { return c.id }

func (c *Contract) Snapshot() ([]byte, error) {
	return json.Marshal(&c.state)
}

func (c *Contract) Restore(data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	st.normalize()
	c.state = st
	return nil
}

// Handle applies one action. Bundle contracts accept no foreign writes.
func (c *Contract) Handle(ctx *core.Context, input json.RawMessage) (*core.Result, error) {
	fn, err := core.Function(input)
	if err != nil {
		return nil, err
	}
	if ctx.IsForeignCall() {
		return nil, core.ErrUnauthorizedAddress(ctx.DirectCaller)
	}
	caller := ctx.Interaction.Caller

	if fn == FnInitialize {
		return c.initialize(input)
	}
	if !c.state.Initialized {
		return nil, core.ErrContractUninitialized()
	}
	if c.state.Settings.Paused && c.isMutatingInput(fn, input) && !c.state.isOperator(caller) {
		return nil, core.ErrContractIsPaused()
	}
	return c.dispatch(ctx, caller, fn, input)
}

func (c *Contract) isMutating(fn string) bool {
	switch fn {
	case c.kind.FnGet, c.kind.FnList:
		return false
	}
	return true
}

// isMutatingInput treats a batch as a read only when every member is a read.
func (c *Contract) isMutatingInput(fn string, input json.RawMessage) bool {
	if fn != FnBatch {
		return c.isMutating(fn)
	}
	var p BatchArgs
	if err := json.Unmarshal(input, &p); err != nil || len(p.Actions) == 0 {
		return true
	}
	for _, action := range p.Actions {
		member, err := core.Function(action)
		if err != nil || c.isMutating(member) {
			return true
		}
	}
	return false
}

func (c *Contract) dispatch(ctx *core.Context, caller, fn string, input json.RawMessage) (*core.Result, error) {
	switch fn {
	case c.kind.FnMint:
		return c.mint(ctx, caller, input)
	case c.kind.FnOpen:
		return c.open(ctx, caller, input)
	case c.kind.FnGet:
		return c.get(input)
	case c.kind.FnList:
		return c.list()
	case FnConfigure:
		return c.configure(caller, input)
	case FnEvolve:
		return c.evolve(caller, input)
	case FnBatch:
		return c.batch(ctx, caller, input)
	default:
		return nil, fmt.Errorf("unknown function %q", fn)
	}
}

func (c *Contract) initialize(input json.RawMessage) (*core.Result, error) {
	if c.state.Initialized {
		return nil, core.ErrContractAlreadyInitialized()
	}
	var p InitializeArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode initialize: %w", err)
	}
	c.state = State{
		Name:        p.Name,
		Initialized: true,
		Ledger:      p.Ledger,
		Settings:    p.Settings,
	}
	c.state.normalize()
	return core.WriteResult(), nil
}

// mint validates the contained set, mints the 1-edition container token and
// records the bundle.
func (c *Contract) mint(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p MintArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.kind.FnMint, err)
	}
	if !c.state.isOperator(caller) {
		return nil, core.ErrUnauthorizedAddress(caller)
	}
	if len(p.NFTs) == 0 {
		return nil, core.ErrRuntime("bundle must contain at least one nft")
	}

	nfts := make(map[string][]string, len(p.NFTs))
	for tierName, baseIDs := range p.NFTs {
		tier, err := nftid.ParseTier(tierName, 0)
		if err != nil {
			return nil, err
		}
		for _, baseID := range baseIDs {
			for _, bundleID := range core.SortedKeys(c.state.Bundles) {
				if c.state.Bundles[bundleID].contains(baseID) {
					return nil, c.kind.errAlreadyBundled(bundleID, baseID)
				}
			}
		}
		nfts[tier.Name] = baseIDs
	}

	raw, err := ctx.ForeignRead(c.state.Ledger)
	if err != nil {
		return nil, err
	}
	ls, err := ledger.ParseState(raw)
	if err != nil {
		return nil, core.ErrErc1155ReadFailed()
	}
	for _, tierName := range core.SortedKeys(nfts) {
		tier, _ := nftid.ParseTier(tierName, 0)
		for _, baseID := range nfts[tierName] {
			for _, editionID := range nftid.EditionIDs(tier, baseID) {
				if _, ok := ls.Tokens[editionID]; !ok {
					return nil, core.ErrTokenNotFound(editionID)
				}
			}
		}
	}

	baseID := p.BaseID
	if baseID == "" {
		baseID = ctx.Interaction.ID
	}
	bundleID := c.kind.Prefix + "-" + baseID
	if _, ok := c.state.Bundles[bundleID]; ok {
		return nil, core.ErrTokenAlreadyExists(bundleID)
	}

	_, err = ctx.ForeignWrite(c.state.Ledger, ledger.FnMint, ledger.MintArgs{
		BaseID: baseID,
		Prefix: c.kind.Prefix,
		Ticker: p.Ticker,
		Qty:    core.NewAmount(1),
	})
	if err != nil {
		return nil, err
	}

	c.state.Bundles[bundleID] = &Bundle{NFTs: nfts}

	ctx.Emit(events.EventBundleMinted, map[string]any{
		"bundleId": bundleID,
		"kind":     c.kind.Name,
		"owner":    caller,
	})
	return &core.Result{Kind: core.ResultWrite, Body: map[string]any{"bundleId": bundleID}}, nil
}

// remaining lists the not-yet-drawn edition ids in lexical order. The draw
// indexes into this order, so replays pick the same edition.
func (c *Contract) remaining(b *Bundle) []string {
	drawn := make(map[string]bool, len(b.Drawn))
	for _, id := range b.Drawn {
		drawn[id] = true
	}
	var pool []string
	for _, tierName := range core.SortedKeys(b.NFTs) {
		tier, err := nftid.ParseTier(tierName, 0)
		if err != nil {
			continue
		}
		for _, baseID := range b.NFTs[tierName] {
			for _, editionID := range nftid.EditionIDs(tier, baseID) {
				if !drawn[editionID] {
					pool = append(pool, editionID)
				}
			}
		}
	}
	sort.Strings(pool)
	return pool
}

// open draws one edition and transfers it to the requested owner.
func (c *Contract) open(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
	var p OpenArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.kind.FnOpen, err)
	}
	bundleID := p.PackID
	if bundleID == "" {
		bundleID = p.ShuffleID
	}
	if bundleID == "" {
		return nil, core.ErrRuntime("missing bundle id")
	}
	b, ok := c.state.Bundles[bundleID]
	if !ok {
		return nil, c.kind.errNotFound(bundleID)
	}
	owner := p.Owner
	if owner == "" {
		owner = caller
	}

	raw, err := ctx.ForeignRead(c.state.Ledger)
	if err != nil {
		return nil, err
	}
	ls, err := ledger.ParseState(raw)
	if err != nil {
		return nil, core.ErrErc1155ReadFailed()
	}
	balance := ls.Balance(bundleID, owner)
	if balance.Cmp(core.NewAmount(1)) < 0 {
		return nil, core.ErrCallerBalanceNotEnough(balance)
	}

	pool := c.remaining(b)
	if len(pool) == 0 {
		return nil, core.ErrNoNftAvailable(bundleID)
	}
	if ctx.Interaction.Random == "" {
		return nil, core.ErrRuntime("interaction carries no randomness")
	}
	nft := pool[drawIndex(ctx.Interaction.Random, len(pool))]

	holder, ok := ls.TokenOwner(nft)
	if !ok {
		return nil, core.ErrTokenOwnerNotFound()
	}
	if holder != owner {
		_, err = ctx.ForeignWrite(c.state.Ledger, ledger.FnTransfer, ledger.TransferArgs{
			From:    holder,
			Target:  owner,
			TokenID: nft,
			Qty:     core.NewAmount(1),
		})
		if err != nil {
			return nil, err
		}
	}
	b.Drawn = append(b.Drawn, nft)

	ctx.Emit(events.EventBundleOpened, map[string]any{
		"bundleId": bundleID,
		"nft":      nft,
		"owner":    owner,
	})
	return &core.Result{Kind: core.ResultWrite, Body: map[string]any{"nft": nft}}, nil
}

func (c *Contract) get(input json.RawMessage) (*core.Result, error) {
	var p GetArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.kind.FnGet, err)
	}
	bundleID := p.PackID
	if bundleID == "" {
		bundleID = p.ShuffleID
	}
	b, ok := c.state.Bundles[bundleID]
	if !ok {
		return nil, c.kind.errNotFound(bundleID)
	}
	return core.ReadResult(map[string]any{
		"bundleId":  bundleID,
		"bundle":    b,
		"remaining": len(c.remaining(b)),
	}), nil
}

func (c *Contract) list() (*core.Result, error) {
	list := make([]map[string]any, 0, len(c.state.Bundles))
	for _, id := range core.SortedKeys(c.state.Bundles) {
		list = append(list, map[string]any{"bundleId": id, "bundle": c.state.Bundles[id]})
	}
	return core.ReadResult(list), nil
}

func (c *Contract) configure(caller string, input json.RawMessage) (*core.Result, error) {
	var p ConfigureArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode configure: %w", err)
	}
	if !c.state.isSuperOperator(caller) {
		return nil, core.ErrUnauthorizedConfiguration()
	}
	s := &c.state.Settings
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

func (c *Contract) evolve(caller string, input json.RawMessage) (*core.Result, error) {
	var p EvolveArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode evolve: %w", err)
	}
	if !c.state.isSuperOperator(caller) {
		return nil, core.ErrOnlyOwnerCanEvolve()
	}
	if !c.state.Settings.CanEvolve {
		return nil, core.ErrEvolveNotAllowed()
	}
	c.state.Evolve = p.Value
	return core.WriteResult(), nil
}

func (c *Contract) batch(ctx *core.Context, caller string, input json.RawMessage) (*core.Result, error) {
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
		if !c.isMutating(fn) {
			reads++
		}
		fns[i] = fn
	}
	if reads != 0 && reads != len(p.Actions) {
		return nil, core.ErrCannotMixeReadAndWrite()
	}

	var bodies []any
	for i, action := range p.Actions {
		res, err := c.dispatch(ctx, caller, fns[i], action)
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
