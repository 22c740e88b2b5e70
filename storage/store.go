package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cantata-io/cantata/core"
)

const (
	prefixDoc     = "doc:"
	prefixLog     = "log:"
	prefixReceipt = "rcpt:"
	keyNextSeq    = "meta:next_seq"
	keyHeight     = "meta:height"
)

// LogEntry pairs an interaction with its receipt. The log is append-only and
// totally ordered by Seq; replaying it against fresh contracts reproduces
// the exact persisted state.
type LogEntry struct {
	Seq         int64             `json:"seq"`
	Interaction *core.Interaction `json:"interaction"`
	Receipt     *core.Receipt     `json:"receipt"`
}

// Store persists contract state documents and the interaction log. Each
// Append commits the log entry together with every touched document in one
// atomic batch, so a crash can never leave documents ahead of the log.
type Store struct {
	db DB
}

// NewStore creates a Store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

func logKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixLog, seq))
}

// Append writes entry and the given state documents atomically. docs maps
// contract id to its serialized document; a nil value deletes the document.
func (s *Store) Append(entry *LogEntry, docs map[string][]byte) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	batch.Set(logKey(entry.Seq), data)
	batch.Set([]byte(prefixReceipt+entry.Interaction.ID), []byte(strconv.FormatInt(entry.Seq, 10)))
	for id, doc := range docs {
		if doc == nil {
			batch.Delete([]byte(prefixDoc + id))
			continue
		}
		batch.Set([]byte(prefixDoc+id), doc)
	}
	batch.Set([]byte(keyNextSeq), []byte(strconv.FormatInt(entry.Seq+1, 10)))
	// Rejected interactions never advance the feed height; recording their
	// height here would make Load resume ahead of where Replay lands.
	if entry.Receipt.OK {
		batch.Set([]byte(keyHeight), []byte(strconv.FormatInt(entry.Receipt.Height, 10)))
	}
	return batch.Write()
}

// NextSeq returns the sequence number the next log entry will get.
func (s *Store) NextSeq() (int64, error) {
	return s.metaInt(keyNextSeq)
}

// LastHeight returns the height recorded by the most recent entry.
func (s *Store) LastHeight() (int64, error) {
	return s.metaInt(keyHeight)
}

func (s *Store) metaInt(key string) (int64, error) {
	data, err := s.db.Get([]byte(key))
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

// Document returns the persisted state document of a contract.
func (s *Store) Document(contract string) ([]byte, error) {
	return s.db.Get([]byte(prefixDoc + contract))
}

// Entry returns the log entry at seq.
func (s *Store) Entry(seq int64) (*LogEntry, error) {
	data, err := s.db.Get(logKey(seq))
	if err != nil {
		return nil, err
	}
	var entry LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode log entry %d: %w", seq, err)
	}
	return &entry, nil
}

// EntryByInteraction resolves an interaction id to its log entry.
func (s *Store) EntryByInteraction(id string) (*LogEntry, error) {
	data, err := s.db.Get([]byte(prefixReceipt + id))
	if err != nil {
		return nil, err
	}
	seq, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt receipt index for %s: %w", id, err)
	}
	return s.Entry(seq)
}

// Walk visits every log entry in sequence order. The zero-padded key layout
// makes lexical iteration order equal numeric order.
func (s *Store) Walk(fn func(*LogEntry) error) error {
	it := s.db.NewIterator([]byte(prefixLog))
	defer it.Release()
	for it.Next() {
		var entry LogEntry
		if err := json.Unmarshal(it.Value(), &entry); err != nil {
			return fmt.Errorf("decode log entry %s: %w", it.Key(), err)
		}
		if err := fn(&entry); err != nil {
			return err
		}
	}
	return it.Error()
}
