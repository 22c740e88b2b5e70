package core

import (
	"encoding/json"

	"github.com/cantata-io/cantata/events"
)

// Contract is one isolated state-owning component. Handle applies a single
// action and either returns a Result or a typed *Error; it must leave state
// untouched on error paths it reports itself (the engine rolls back
// everything else via Snapshot/Restore).
type Contract interface {
	ID() string
	Handle(ctx *Context, input json.RawMessage) (*Result, error)

	// Snapshot serializes the full state document; Restore replaces it.
	// Snapshot followed by Restore must be lossless.
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Bridge is the engine-side mediator for cross-contract calls. Contracts
// never hold references to each other; all foreign traffic goes through the
// bridge so the engine can track the call chain and snapshot targets.
type Bridge interface {
	ReadState(target string) (json.RawMessage, error)
	WriteState(chain []string, in *Interaction, target string, input json.RawMessage) (*Result, error)
	Emit(ev events.Event)
}

// Context carries the per-interaction environment into a handler.
type Context struct {
	// Interaction is the outer feed entry, shared by every nested call.
	Interaction *Interaction

	// DirectCaller is the immediate invoker: the outer caller for the first
	// hop, or the calling contract's id for a nested foreign write.
	DirectCaller string

	// Chain lists the contract ids entered so far, outermost first. The
	// handler's own contract is always the last element.
	Chain []string

	Bridge Bridge
}

// IsForeignCall reports whether the current handler was entered through a
// foreign write rather than directly from the feed.
func (ctx *Context) IsForeignCall() bool {
	return len(ctx.Chain) > 1
}

// Emit publishes a contract event tagged with the current interaction.
func (ctx *Context) Emit(typ events.EventType, data map[string]any) {
	if ctx.Bridge == nil {
		return
	}
	ctx.Bridge.Emit(events.Event{
		Type:          typ,
		InteractionID: ctx.Interaction.ID,
		Contract:      ctx.Chain[len(ctx.Chain)-1],
		Height:        ctx.Interaction.Height,
		Data:          data,
	})
}

// ForeignRead returns the target contract's current state document. The read
// never mutates the target; failures surface as Erc1155ReadFailed.
func (ctx *Context) ForeignRead(target string) (json.RawMessage, error) {
	if ctx.Bridge == nil {
		return nil, ErrErc1155ReadFailed()
	}
	raw, err := ctx.Bridge.ReadState(target)
	if err != nil {
		return nil, ErrErc1155ReadFailed()
	}
	return raw, nil
}

// ForeignWrite submits one action to the target contract and runs its
// transition synchronously. A target already on the call chain is rejected,
// which breaks re-entrancy cycles. Target-side failures come back wrapped as
// Erc1155Error so the caller can match on the inner kind.
func (ctx *Context) ForeignWrite(target, function string, args any) (*Result, error) {
	if ctx.Bridge == nil {
		return nil, ErrRuntime("no bridge available")
	}
	for _, id := range ctx.Chain {
		if id == target {
			return nil, ErrRuntime("reentrant call to " + target)
		}
	}
	input, err := MarshalAction(function, args)
	if err != nil {
		return nil, WrapForeign(err)
	}
	res, err := ctx.Bridge.WriteState(ctx.Chain, ctx.Interaction, target, input)
	if err != nil {
		return nil, WrapForeign(err)
	}
	return res, nil
}
