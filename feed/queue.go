// Package feed buffers submitted interactions until the node's apply loop
// drains them into the engine. Insertion order is the total order: whatever
// sequence the queue hands out is the sequence the engine records.
package feed

import (
	"errors"
	"sync"

	"github.com/cantata-io/cantata/core"
)

const maxQueueSize = 10_000

// Queue is a thread-safe pending-interaction buffer.
type Queue struct {
	mu   sync.RWMutex
	ins  map[string]*core.Interaction
	ord  []string // insertion-ordered IDs for deterministic draining
	seen map[string]bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ins:  make(map[string]*core.Interaction),
		seen: make(map[string]bool),
	}
}

// Add validates and inserts an interaction. An id is accepted once for the
// lifetime of the queue, so a resubmitted interaction cannot run twice.
func (q *Queue) Add(in *core.Interaction) error {
	if in.ID == "" {
		return errors.New("interaction id required")
	}
	if in.Contract == "" {
		return errors.New("interaction contract required")
	}
	if in.Caller == "" {
		return errors.New("interaction caller required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ins) >= maxQueueSize {
		return errors.New("feed queue full")
	}
	if q.seen[in.ID] {
		return errors.New("interaction already submitted")
	}
	q.seen[in.ID] = true
	q.ins[in.ID] = in
	q.ord = append(q.ord, in.ID)
	return nil
}

// Get returns a pending interaction by ID.
func (q *Queue) Get(id string) (*core.Interaction, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	in, ok := q.ins[id]
	return in, ok
}

// Pending returns up to n pending interactions in insertion order.
func (q *Queue) Pending(n int) []*core.Interaction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	result := make([]*core.Interaction, 0, n)
	for _, id := range q.ord {
		if in, ok := q.ins[id]; ok {
			result = append(result, in)
			if len(result) >= n {
				break
			}
		}
	}
	return result
}

// Remove deletes interactions by ID after they were applied.
func (q *Queue) Remove(ids []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(q.ins, id)
		removed[id] = true
	}
	filtered := q.ord[:0]
	for _, id := range q.ord {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	q.ord = filtered
}

// Size returns the current number of pending interactions.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ins)
}
