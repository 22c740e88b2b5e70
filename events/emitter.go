package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventInteractionApplied EventType = "interaction_applied"
	EventTransfer           EventType = "transfer"
	EventMint               EventType = "mint"
	EventBurn               EventType = "burn"
	EventApproval           EventType = "approval"
	EventConfigure          EventType = "configure"
	EventRoyaltiesAttached  EventType = "royalties_attached"
	EventRoyaltiesRemoved   EventType = "royalties_removed"
	EventNftMinted          EventType = "nft_minted"
	EventLocked             EventType = "locked"
	EventUnlocked           EventType = "unlocked"
	EventBundleMinted       EventType = "bundle_minted"
	EventBundleOpened       EventType = "bundle_opened"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type          EventType      `json:"type"`
	InteractionID string         `json:"interaction_id"`
	Contract      string         `json:"contract"`
	Height        int64          `json:"height"`
	Data          map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot stall interaction processing.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
