package engine

import (
	"fmt"

	"github.com/cantata-io/cantata/storage"
)

// Replay re-applies every logged interaction against the registered
// contracts, which must be in their genesis state. Outcomes are checked
// against the recorded receipts; any divergence means the log and the code
// disagree and replay stops with an error.
//
// Replay is the alternative to Load for bringing an engine up: Load trusts
// the persisted documents, Replay recomputes them.
func (e *Engine) Replay(store *storage.Store) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return store.Walk(func(entry *storage.LogEntry) error {
		if entry.Seq != e.nextSeq {
			return fmt.Errorf("replay: log gap, want seq %d got %d", e.nextSeq, entry.Seq)
		}
		receipt, err := e.apply(entry.Interaction, false)
		if err != nil {
			return err
		}
		if receipt.OK != entry.Receipt.OK {
			return fmt.Errorf("replay diverged at seq %d: ok=%v, recorded ok=%v",
				entry.Seq, receipt.OK, entry.Receipt.OK)
		}
		if !receipt.OK && receipt.Err.Kind != entry.Receipt.Err.Kind {
			return fmt.Errorf("replay diverged at seq %d: error kind %q, recorded %q",
				entry.Seq, receipt.Err.Kind, entry.Receipt.Err.Kind)
		}
		return nil
	})
}
