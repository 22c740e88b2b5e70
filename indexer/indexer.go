// Package indexer maintains a secondary owner-to-tokens index over ledger
// events so clients can query holdings without scanning full contract
// state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/events"
	"github.com/cantata-io/cantata/storage"
)

const prefixOwnerTokens = "idx:owner:token:"

// Indexer subscribes to ledger events and updates lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventMint, idx.onMint)
	emitter.Subscribe(events.EventTransfer, idx.onTransfer)
	emitter.Subscribe(events.EventBurn, idx.onBurn)
	return idx
}

// GetTokensByOwner returns all token IDs the given address holds.
func (idx *Indexer) GetTokensByOwner(owner string) ([]string, error) {
	return idx.getList(prefixOwnerTokens + owner)
}

// ---- event handlers ----

func (idx *Indexer) onMint(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	tokenID, _ := ev.Data["tokenId"].(string)
	if owner == "" || tokenID == "" {
		return
	}
	_ = idx.addToList(prefixOwnerTokens+owner, tokenID)
}

func (idx *Indexer) onTransfer(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	target, _ := ev.Data["target"].(string)
	tokenID, _ := ev.Data["tokenId"].(string)
	if tokenID == "" || target == "" {
		return
	}
	// A partial transfer leaves the sender holding a balance; the sender
	// drops out of the index only once its balance hits zero.
	emptied, _ := ev.Data["fromEmptied"].(bool)
	if emptied && from != "" {
		if err := idx.removeFromList(prefixOwnerTokens+from, tokenID); err != nil {
			return
		}
	}
	_ = idx.addToList(prefixOwnerTokens+target, tokenID)
}

func (idx *Indexer) onBurn(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	tokenID, _ := ev.Data["tokenId"].(string)
	if owner == "" || tokenID == "" {
		return
	}
	// a partial burn leaves the owner holding the rest
	emptied, _ := ev.Data["ownerEmptied"].(bool)
	if !emptied {
		return
	}
	_ = idx.removeFromList(prefixOwnerTokens+owner, tokenID)
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, _ := idx.getList(key)
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, _ := idx.getList(key)
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
