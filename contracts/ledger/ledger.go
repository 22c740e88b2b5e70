package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/events"
)

// Ledger is the balance contract instance.
type Ledger struct {
	id    string
	state State
}

// New creates a ledger contract. A nil initial state leaves the contract
// uninitialized until an initialize action arrives.
func New(id string, initial *State) *Ledger {
	l := &Ledger{id: id}
	if initial != nil {
		l.state = *initial
		l.state.Initialized = true
	}
	l.state.normalize()
	return l
}

func (l *Ledger) ID() string { return l.id }

// Snapshot serializes the state document.
func (l *Ledger) Snapshot() ([]byte, error) {
	return json.Marshal(&l.state)
}

// Restore replaces the state document.
func (l *Ledger) Restore(data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	st.normalize()
	l.state = st
	return nil
}

// auth is the resolved caller identity for one dispatch. Privileged covers
// global operators and trusted proxy contracts; both bypass the pause gate
// and per-address transfer authorization.
type auth struct {
	caller     string
	privileged bool
}

// Handle applies one action. Foreign writes are only accepted from listed
// proxy contracts; the effective caller of a proxied action is the outer
// interaction caller, unless the proxy wraps it in asDirectCaller.
func (l *Ledger) Handle(ctx *core.Context, input json.RawMessage) (*core.Result, error) {
	fn, err := core.Function(input)
	if err != nil {
		return nil, err
	}

	a := auth{caller: ctx.Interaction.Caller}
	if ctx.IsForeignCall() {
		if !l.state.IsProxy(ctx.DirectCaller) {
			return nil, core.ErrUnauthorizedAddress(ctx.DirectCaller)
		}
		a.privileged = true
		if fn == FnAsDirectCaller {
			var p AsDirectCallerArgs
			if err := json.Unmarshal(input, &p); err != nil {
				return nil, fmt.Errorf("decode asDirectCaller: %w", err)
			}
			inner, err := core.Function(p.Input)
			if err != nil {
				return nil, err
			}
			if inner == FnAsDirectCaller {
				return nil, core.ErrRuntime("asDirectCaller cannot nest")
			}
			a.caller = ctx.DirectCaller
			fn, input = inner, p.Input
		}
	}
	a.privileged = a.privileged || l.state.IsOperator(a.caller)

	if fn == FnInitialize {
		return l.initialize(ctx, input)
	}
	if !l.state.Initialized {
		return nil, core.ErrContractUninitialized()
	}
	if l.state.Settings.Paused && isMutatingInput(fn, input) && !a.privileged {
		return nil, core.ErrContractIsPaused()
	}
	return l.dispatch(ctx, a, fn, input)
}

func isMutating(fn string) bool {
	switch fn {
	case FnIsApprovedForAll, FnBalanceOf, FnGetToken, FnGetAllTokens, FnReadSettings:
		return false
	}
	return true
}

// isMutatingInput classifies one action for the pause gate. A batch counts
// as a read only when every member is a read; anything malformed counts as
// mutating and fails closed.
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

func (l *Ledger) dispatch(ctx *core.Context, a auth, fn string, input json.RawMessage) (*core.Result, error) {
	switch fn {
	case FnTransfer:
		return l.transfer(ctx, a, input)
	case FnMint:
		return l.mint(ctx, a, input)
	case FnBurn:
		return l.burn(ctx, a, input)
	case FnSetApprovalForAll:
		return l.setApprovalForAll(ctx, a, input)
	case FnIsApprovedForAll:
		return l.isApprovedForAll(input)
	case FnBalanceOf:
		return l.balanceOf(input)
	case FnGetToken:
		return l.getToken(input)
	case FnGetAllTokens:
		return l.getAllTokens()
	case FnReadSettings:
		return core.ReadResult(l.state.Settings), nil
	case FnConfigure:
		return l.configure(ctx, a, input)
	case FnEvolve:
		return l.evolve(a, input)
	case FnBatch:
		return l.batch(ctx, a, input)
	default:
		return nil, fmt.Errorf("unknown function %q", fn)
	}
}

func (l *Ledger) initialize(ctx *core.Context, input json.RawMessage) (*core.Result, error) {
	if l.state.Initialized {
		return nil, core.ErrContractAlreadyInitialized()
	}
	var p InitializeArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode initialize: %w", err)
	}
	l.state = State{
		Name:        p.Name,
		Initialized: true,
		Tokens:      p.Tokens,
		Settings:    p.Settings,
	}
	l.state.normalize()
	ctx.Emit(events.EventConfigure, map[string]any{"initialized": true})
	return core.WriteResult(), nil
}

func (l *Ledger) transfer(ctx *core.Context, a auth, input json.RawMessage) (*core.Result, error) {
	var p TransferArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	if p.Qty.IsZero() {
		return nil, core.ErrTransferAmountMustBeHigherThanZero()
	}
	from := p.From
	if from == "" {
		from = a.caller
	}
	allowed := a.caller == from ||
		l.state.IsApproved(from, a.caller) ||
		a.privileged ||
		l.state.Settings.AllowFreeTransfer
	if !allowed {
		return nil, core.ErrUnauthorizedAddress(a.caller)
	}
	if from == p.Target {
		return nil, core.ErrTransferFromAndToCannotBeEqual()
	}
	tokenID := p.TokenID
	if tokenID == "" {
		tokenID = l.state.Settings.DefaultToken
	}
	token, ok := l.state.Tokens[tokenID]
	if !ok {
		return nil, core.ErrTokenNotFound(tokenID)
	}
	balance := token.Balances[from]
	if balance.Cmp(p.Qty) < 0 {
		return nil, core.ErrCallerBalanceNotEnough(balance)
	}

	remaining := balance.Sub(p.Qty)
	fromEmptied := remaining.IsZero()
	if fromEmptied {
		delete(token.Balances, from)
	} else {
		token.Balances[from] = remaining
	}
	token.Balances[p.Target] = token.Balances[p.Target].Add(p.Qty)

	ctx.Emit(events.EventTransfer, map[string]any{
		"from":        from,
		"target":      p.Target,
		"tokenId":     tokenID,
		"qty":         p.Qty.String(),
		"fromEmptied": fromEmptied,
	})
	return core.WriteResult(), nil
}

func (l *Ledger) mint(ctx *core.Context, a auth, input json.RawMessage) (*core.Result, error) {
	var p MintArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode mint: %w", err)
	}
	if !a.privileged {
		return nil, core.ErrUnauthorizedAddress(a.caller)
	}
	if p.Qty.IsZero() {
		return nil, core.ErrTransferAmountMustBeHigherThanZero()
	}
	baseID := p.BaseID
	if baseID == "" {
		baseID = ctx.Interaction.ID
	}
	tokenID := baseID
	if p.Prefix != "" {
		tokenID = p.Prefix + "-" + baseID
	}

	token, ok := l.state.Tokens[tokenID]
	if !ok {
		ticker := p.Ticker
		if ticker == "" {
			ticker = fmt.Sprintf("%s%d", l.state.Settings.DefaultToken, l.state.TickerNonce)
			l.state.TickerNonce++
		}
		token = &Token{
			Ticker:   ticker,
			TxID:     ctx.Interaction.ID,
			Balances: make(map[string]core.Amount),
		}
		l.state.Tokens[tokenID] = token
	}
	token.Balances[a.caller] = token.Balances[a.caller].Add(p.Qty)

	ctx.Emit(events.EventMint, map[string]any{
		"owner":   a.caller,
		"tokenId": tokenID,
		"qty":     p.Qty.String(),
	})
	return core.WriteResult(), nil
}

func (l *Ledger) burn(ctx *core.Context, a auth, input json.RawMessage) (*core.Result, error) {
	var p BurnArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode burn: %w", err)
	}
	if !a.privileged {
		return nil, core.ErrUnauthorizedAddress(a.caller)
	}
	if p.Qty.IsZero() {
		return nil, core.ErrTransferAmountMustBeHigherThanZero()
	}
	tokenID := p.TokenID
	if tokenID == "" {
		tokenID = l.state.Settings.DefaultToken
	}
	owner := p.Owner
	if owner == "" {
		owner = a.caller
	}
	token, ok := l.state.Tokens[tokenID]
	if !ok {
		return nil, core.ErrTokenNotFound(tokenID)
	}
	balance := token.Balances[owner]
	if balance.Cmp(p.Qty) < 0 {
		return nil, core.ErrOwnerBalanceNotEnough(balance)
	}

	remaining := balance.Sub(p.Qty)
	ownerEmptied := remaining.IsZero()
	if ownerEmptied {
		delete(token.Balances, owner)
	} else {
		token.Balances[owner] = remaining
	}
	burned := len(token.Balances) == 0
	if burned {
		delete(l.state.Tokens, tokenID)
	}

	ctx.Emit(events.EventBurn, map[string]any{
		"owner":        owner,
		"tokenId":      tokenID,
		"qty":          p.Qty.String(),
		"ownerEmptied": ownerEmptied,
		"deleted":      burned,
	})
	return core.WriteResult(), nil
}

func (l *Ledger) setApprovalForAll(ctx *core.Context, a auth, input json.RawMessage) (*core.Result, error) {
	var p SetApprovalForAllArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode setApprovalForAll: %w", err)
	}
	ap, ok := l.state.Approvals[a.caller]
	if !ok {
		ap = &Approvals{Approves: make(map[string]bool)}
		l.state.Approvals[a.caller] = ap
	}
	if p.Approved {
		ap.Approves[p.Operator] = true
	} else {
		delete(ap.Approves, p.Operator)
		if len(ap.Approves) == 0 {
			delete(l.state.Approvals, a.caller)
		}
	}
	ctx.Emit(events.EventApproval, map[string]any{
		"owner":    a.caller,
		"operator": p.Operator,
		"approved": p.Approved,
	})
	return core.WriteResult(), nil
}

func (l *Ledger) isApprovedForAll(input json.RawMessage) (*core.Result, error) {
	var p IsApprovedForAllArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode isApprovedForAll: %w", err)
	}
	return core.ReadResult(map[string]any{
		"owner":    p.Owner,
		"operator": p.Operator,
		"approved": l.state.IsApproved(p.Owner, p.Operator),
	}), nil
}

func (l *Ledger) balanceOf(input json.RawMessage) (*core.Result, error) {
	var p BalanceOfArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode balanceOf: %w", err)
	}
	tokenID := p.TokenID
	if tokenID == "" {
		tokenID = l.state.Settings.DefaultToken
	}
	if _, ok := l.state.Tokens[tokenID]; !ok {
		return nil, core.ErrTokenNotFound(tokenID)
	}
	return core.ReadResult(map[string]any{
		"target":  p.Target,
		"tokenId": tokenID,
		"balance": l.state.Balance(tokenID, p.Target).String(),
	}), nil
}

func (l *Ledger) getToken(input json.RawMessage) (*core.Result, error) {
	var p GetTokenArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode getToken: %w", err)
	}
	tokenID := p.TokenID
	if tokenID == "" {
		tokenID = l.state.Settings.DefaultToken
	}
	token, ok := l.state.Tokens[tokenID]
	if !ok {
		return nil, core.ErrTokenNotFound(tokenID)
	}
	return core.ReadResult(map[string]any{"tokenId": tokenID, "token": token}), nil
}

func (l *Ledger) getAllTokens() (*core.Result, error) {
	list := make([]map[string]any, 0, len(l.state.Tokens))
	for _, id := range core.SortedKeys(l.state.Tokens) {
		list = append(list, map[string]any{"tokenId": id, "token": l.state.Tokens[id]})
	}
	return core.ReadResult(list), nil
}

func (l *Ledger) configure(ctx *core.Context, a auth, input json.RawMessage) (*core.Result, error) {
	var p ConfigureArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode configure: %w", err)
	}
	if !l.state.IsSuperOperator(a.caller) {
		return nil, core.ErrUnauthorizedConfiguration()
	}
	s := &l.state.Settings
	if p.Paused != nil {
		s.Paused = *p.Paused
	}
	if p.AllowFreeTransfer != nil {
		s.AllowFreeTransfer = *p.AllowFreeTransfer
	}
	if p.DefaultToken != nil {
		s.DefaultToken = *p.DefaultToken
	}
	if p.Operators != nil {
		s.Operators = *p.Operators
	}
	if p.SuperOperators != nil {
		s.SuperOperators = *p.SuperOperators
	}
	if p.Proxies != nil {
		s.Proxies = *p.Proxies
	}
	if p.CanEvolve != nil {
		s.CanEvolve = *p.CanEvolve
	}
	ctx.Emit(events.EventConfigure, map[string]any{"by": a.caller})
	return core.WriteResult(), nil
}

func (l *Ledger) evolve(a auth, input json.RawMessage) (*core.Result, error) {
	var p EvolveArgs
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("decode evolve: %w", err)
	}
	if !l.state.IsSuperOperator(a.caller) {
		return nil, core.ErrOnlyOwnerCanEvolve()
	}
	if !l.state.Settings.CanEvolve {
		return nil, core.ErrEvolveNotAllowed()
	}
	l.state.Evolve = p.Value
	return core.WriteResult(), nil
}

// batch applies member actions in order under the current interaction. The
// list must be non-empty, must not nest batches, and may not mix read and
// write members. Any member failure aborts the whole interaction.
func (l *Ledger) batch(ctx *core.Context, a auth, input json.RawMessage) (*core.Result, error) {
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
		res, err := l.dispatch(ctx, a, fns[i], action)
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
