package indexer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/indexer"
	"github.com/cantata-io/cantata/internal/testutil"
)

func TestOwnerIndexFollowsLedgerEvents(t *testing.T) {
	s := testutil.NewSystem(t)
	idx := indexer.New(testutil.NewMemDB(), s.Emitter)

	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnMint, ledger.MintArgs{
		BaseID: "gold", Ticker: "GOLD", Qty: core.NewAmount(100),
	}))
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnMint, ledger.MintArgs{
		BaseID: "silver", Ticker: "SLV", Qty: core.NewAmount(100),
	}))

	tokens, err := idx.GetTokensByOwner(testutil.Minter)
	require.NoError(t, err)
	require.Equal(t, []string{"gold", "silver"}, tokens)

	// partial transfer: both sides hold the token
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnTransfer, ledger.TransferArgs{
		Target: "alice", TokenID: "gold", Qty: core.NewAmount(40),
	}))
	tokens, err = idx.GetTokensByOwner("alice")
	require.NoError(t, err)
	require.Equal(t, []string{"gold"}, tokens)
	tokens, err = idx.GetTokensByOwner(testutil.Minter)
	require.NoError(t, err)
	require.Contains(t, tokens, "gold")

	// emptying transfer drops the sender's entry
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnTransfer, ledger.TransferArgs{
		Target: "alice", TokenID: "gold", Qty: core.NewAmount(60),
	}))
	tokens, err = idx.GetTokensByOwner(testutil.Minter)
	require.NoError(t, err)
	require.Equal(t, []string{"silver"}, tokens)

	// partial burn keeps the owner's entry
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnBurn, ledger.BurnArgs{
		TokenID: "silver", Qty: core.NewAmount(30),
	}))
	tokens, err = idx.GetTokensByOwner(testutil.Minter)
	require.NoError(t, err)
	require.Equal(t, []string{"silver"}, tokens)

	// burning the remainder removes it
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnBurn, ledger.BurnArgs{
		TokenID: "silver", Qty: core.NewAmount(70),
	}))
	tokens, err = idx.GetTokensByOwner(testutil.Minter)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestFailedInteractionLeavesIndexUntouched(t *testing.T) {
	s := testutil.NewSystem(t)
	idx := indexer.New(testutil.NewMemDB(), s.Emitter)

	rec := s.Apply(s.Cfg.Contracts.Ledger, "alice", ledger.FnMint, ledger.MintArgs{
		BaseID: "gold", Qty: core.NewAmount(1),
	})
	require.False(t, rec.OK)

	tokens, err := idx.GetTokensByOwner("alice")
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestUnknownOwnerIsEmpty(t *testing.T) {
	idx := indexer.New(testutil.NewMemDB(), testutil.NewSystem(t).Emitter)
	tokens, err := idx.GetTokensByOwner("nobody")
	require.NoError(t, err)
	require.Empty(t, tokens)
}
