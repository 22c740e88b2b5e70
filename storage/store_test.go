package storage_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/internal/testutil"
	"github.com/cantata-io/cantata/storage"
)

func entry(seq, height int64) *storage.LogEntry {
	return &storage.LogEntry{
		Seq: seq,
		Interaction: &core.Interaction{
			ID:       fmt.Sprintf("itx-%d", seq),
			Contract: "ledger",
			Caller:   "alice",
			Height:   height,
			Input:    []byte(`{"function":"noop"}`),
		},
		Receipt: &core.Receipt{
			Seq:           seq,
			InteractionID: fmt.Sprintf("itx-%d", seq),
			Contract:      "ledger",
			Height:        height,
			OK:            true,
		},
	}
}

func TestAppendAndLookup(t *testing.T) {
	s := testutil.NewStore()

	seq, err := s.NextSeq()
	require.NoError(t, err)
	require.Equal(t, int64(0), seq)
	height, err := s.LastHeight()
	require.NoError(t, err)
	require.Equal(t, int64(0), height)

	require.NoError(t, s.Append(entry(0, 3), map[string][]byte{"ledger": []byte(`{"a":1}`)}))
	require.NoError(t, s.Append(entry(1, 7), nil))

	seq, err = s.NextSeq()
	require.NoError(t, err)
	require.Equal(t, int64(2), seq)
	height, err = s.LastHeight()
	require.NoError(t, err)
	require.Equal(t, int64(7), height)

	doc, err := s.Document("ledger")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(doc))

	got, err := s.Entry(1)
	require.NoError(t, err)
	require.Equal(t, "itx-1", got.Interaction.ID)

	got, err = s.EntryByInteraction("itx-0")
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Seq)
	require.Equal(t, int64(3), got.Receipt.Height)

	_, err = s.EntryByInteraction("unknown")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.Document("vault")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestAppendRejectedEntryKeepsHeight(t *testing.T) {
	s := testutil.NewStore()

	require.NoError(t, s.Append(entry(0, 5), nil))
	rejected := entry(1, 9)
	rejected.Receipt.OK = false
	require.NoError(t, s.Append(rejected, nil))

	// the seq advances for the log, the committed height does not
	seq, err := s.NextSeq()
	require.NoError(t, err)
	require.Equal(t, int64(2), seq)
	height, err := s.LastHeight()
	require.NoError(t, err)
	require.Equal(t, int64(5), height)
}

func TestAppendNilDocDeletes(t *testing.T) {
	s := testutil.NewStore()

	require.NoError(t, s.Append(entry(0, 1), map[string][]byte{"ledger": []byte(`{}`)}))
	require.NoError(t, s.Append(entry(1, 2), map[string][]byte{"ledger": nil}))

	_, err := s.Document("ledger")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestWalkVisitsInSequenceOrder(t *testing.T) {
	s := testutil.NewStore()

	// enough entries that lexical key order would diverge from numeric
	// order without zero padding
	for seq := int64(0); seq < 12; seq++ {
		require.NoError(t, s.Append(entry(seq, seq), nil))
	}

	var seen []int64
	require.NoError(t, s.Walk(func(e *storage.LogEntry) error {
		seen = append(seen, e.Seq)
		return nil
	}))
	require.Len(t, seen, 12)
	for i, seq := range seen {
		require.Equal(t, int64(i), seq)
	}

	// a walk callback error stops iteration and propagates
	calls := 0
	err := s.Walk(func(*storage.LogEntry) error {
		calls++
		return fmt.Errorf("stop")
	})
	require.EqualError(t, err, "stop")
	require.Equal(t, 1, calls)
}
