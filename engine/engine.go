// Package engine applies the ordered interaction feed to a family of
// contracts. One interaction at a time runs to completion, including every
// nested foreign call; on any failure the engine restores the snapshot of
// every touched contract, so an interaction commits fully or not at all.
package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/crypto"
	"github.com/cantata-io/cantata/events"
	"github.com/cantata-io/cantata/storage"
)

// Engine hosts registered contracts and applies interactions against them.
type Engine struct {
	mu        sync.Mutex
	contracts map[string]core.Contract
	store     *storage.Store
	emitter   *events.Emitter
	height    int64
	nextSeq   int64
}

// New creates an engine. store may be nil for an ephemeral engine (tests,
// replay verification); emitter may be nil to drop events.
func New(store *storage.Store, emitter *events.Emitter) *Engine {
	return &Engine{
		contracts: make(map[string]core.Contract),
		store:     store,
		emitter:   emitter,
	}
}

// Register adds a contract. Registering two contracts under one id is a
// programming error and panics, like a duplicate handler registration.
func (e *Engine) Register(c core.Contract) {
	if _, dup := e.contracts[c.ID()]; dup {
		panic(fmt.Sprintf("engine: duplicate contract id %q", c.ID()))
	}
	e.contracts[c.ID()] = c
}

// Load restores every registered contract's document and the feed position
// from the store. Call once after Register, before the first Apply.
func (e *Engine) Load() error {
	if e.store == nil {
		return nil
	}
	for id, c := range e.contracts {
		doc, err := e.store.Document(id)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
		if err := c.Restore(doc); err != nil {
			return fmt.Errorf("restore %s: %w", id, err)
		}
	}
	seq, err := e.store.NextSeq()
	if err != nil {
		return err
	}
	height, err := e.store.LastHeight()
	if err != nil {
		return err
	}
	e.nextSeq, e.height = seq, height
	return nil
}

// Height returns the height of the last applied interaction.
func (e *Engine) Height() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

// State returns the current state document of a contract.
func (e *Engine) State(id string) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contracts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return c.Snapshot()
}

// Apply runs one interaction and persists the outcome. Contract-level
// failures come back inside the receipt; the returned error is reserved for
// infrastructure faults (storage write failure), after which the engine
// state and the log may disagree and the caller should stop.
func (e *Engine) Apply(in *core.Interaction) (*core.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(in, true)
}

func (e *Engine) apply(in *core.Interaction, persist bool) (*core.Receipt, error) {
	if in.Height == 0 {
		in.Height = e.height
	}
	receipt := &core.Receipt{
		Seq:           e.nextSeq,
		InteractionID: in.ID,
		Contract:      in.Contract,
		Height:        in.Height,
	}

	t := &txn{engine: e, snapshots: make(map[string][]byte)}
	switch {
	case in.Height < e.height:
		receipt.Err = core.ErrRuntime(fmt.Sprintf("height %d is behind %d", in.Height, e.height))
	default:
		target, ok := e.contracts[in.Contract]
		if !ok {
			receipt.Err = core.ErrRuntime("unknown contract " + in.Contract)
			break
		}
		if err := t.snapshot(target); err != nil {
			return nil, err
		}
		ctx := &core.Context{
			Interaction:  in,
			DirectCaller: in.Caller,
			Chain:        []string{in.Contract},
			Bridge:       t,
		}
		res, err := safeHandle(target, ctx, in.Input)
		if err != nil {
			t.rollback()
			receipt.Err = core.AsError(err)
		} else {
			receipt.OK = true
			receipt.Result = res
			e.height = in.Height
		}
	}

	if persist && e.store != nil {
		var docs map[string][]byte
		if receipt.OK {
			docs = make(map[string][]byte, len(t.snapshots))
			for id := range t.snapshots {
				doc, err := e.contracts[id].Snapshot()
				if err != nil {
					return nil, fmt.Errorf("snapshot %s: %w", id, err)
				}
				docs[id] = doc
			}
		}
		entry := &storage.LogEntry{Seq: receipt.Seq, Interaction: in, Receipt: receipt}
		if err := e.store.Append(entry, docs); err != nil {
			return nil, fmt.Errorf("append interaction %s: %w", in.ID, err)
		}
	}
	e.nextSeq++

	if receipt.OK {
		for _, ev := range t.events {
			e.emit(ev)
		}
	}
	e.emit(events.Event{
		Type:          events.EventInteractionApplied,
		InteractionID: in.ID,
		Contract:      in.Contract,
		Height:        in.Height,
		Data:          map[string]any{"ok": receipt.OK, "seq": receipt.Seq},
	})
	return receipt, nil
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// StateRoot hashes every contract document, sorted by contract id with
// length-prefix encoding. Two engines that applied the same feed produce
// the same root.
func (e *Engine) StateRoot() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var buf []byte
	var lenBuf [4]byte
	for _, id := range core.SortedKeys(e.contracts) {
		doc, err := e.contracts[id].Snapshot()
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", id, err)
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, id...)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(doc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, doc...)
	}
	return crypto.Hash(buf), nil
}

// safeHandle guards a contract transition against panics; a panicking
// handler surfaces as RuntimeError and rolls back like any other failure.
func safeHandle(c core.Contract, ctx *core.Context, input json.RawMessage) (res *core.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, core.ErrRuntime(fmt.Sprintf("%v", r))
		}
	}()
	return c.Handle(ctx, input)
}

// txn tracks one interaction in flight: first-touch snapshots for the
// all-or-nothing rollback, and events held back until commit.
type txn struct {
	engine    *Engine
	snapshots map[string][]byte
	events    []events.Event
}

func (t *txn) snapshot(c core.Contract) error {
	if _, ok := t.snapshots[c.ID()]; ok {
		return nil
	}
	doc, err := c.Snapshot()
	if err != nil {
		return err
	}
	t.snapshots[c.ID()] = doc
	return nil
}

func (t *txn) rollback() {
	for id, doc := range t.snapshots {
		// Restore of a doc produced by Snapshot cannot fail.
		_ = t.engine.contracts[id].Restore(doc)
	}
}

func (t *txn) Emit(ev events.Event) {
	t.events = append(t.events, ev)
}

// ReadState serves foreign reads with the target's live document, which
// includes writes earlier in the same interaction.
func (t *txn) ReadState(target string) (json.RawMessage, error) {
	c, ok := t.engine.contracts[target]
	if !ok {
		return nil, core.ErrNotFound
	}
	return c.Snapshot()
}

// WriteState runs a nested transition on the target contract. A failed
// nested call restores the target to its state just before this call, so
// an outer handler may catch the wrapped error and continue.
func (t *txn) WriteState(chain []string, in *core.Interaction, target string, input json.RawMessage) (*core.Result, error) {
	c, ok := t.engine.contracts[target]
	if !ok {
		return nil, core.ErrRuntime("unknown contract " + target)
	}
	if err := t.snapshot(c); err != nil {
		return nil, err
	}
	pre, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	nested := make([]string, len(chain)+1)
	copy(nested, chain)
	nested[len(chain)] = target
	ctx := &core.Context{
		Interaction:  in,
		DirectCaller: chain[len(chain)-1],
		Chain:        nested,
		Bridge:       t,
	}
	res, err := safeHandle(c, ctx, input)
	if err != nil {
		_ = c.Restore(pre)
		return nil, err
	}
	return res, nil
}
