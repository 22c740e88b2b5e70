package bundle_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cantata-io/cantata/contracts/bundle"
	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/contracts/royalty"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/internal/testutil"
)

// mintEditions mints the full edition set of one tier through the fee
// engine, so the ledger holds tokens like "1-RARE-<baseID>".
func mintEditions(s *testutil.System, scarcity, baseID string) {
	s.MustOK(s.Apply(s.Cfg.Contracts.Royalty, testutil.Minter, royalty.FnMintNft, royalty.MintNftArgs{
		Scarcity:  scarcity,
		Rate:      0,
		Royalties: map[string]uint64{"artist": royalty.Unit},
		BaseID:    baseID,
	}))
}

func mintPack(s *testutil.System, baseID string, nfts map[string][]string) *core.Receipt {
	return s.Apply(s.Cfg.Contracts.Packs, testutil.Minter, bundle.Packs.FnMint, bundle.MintArgs{
		NFTs:   nfts,
		BaseID: baseID,
	})
}

func openPack(s *testutil.System, caller, packID, random string) *core.Receipt {
	return s.ApplyAt(s.Engine.Height(), random, s.Cfg.Contracts.Packs, caller, bundle.Packs.FnOpen, bundle.OpenArgs{
		PackID: packID,
	})
}

func TestMintPackValidation(t *testing.T) {
	s := testutil.NewSystem(t)
	mintEditions(s, "rare", "a")

	rec := s.Apply(s.Cfg.Contracts.Packs, "alice", bundle.Packs.FnMint, bundle.MintArgs{
		NFTs: map[string][]string{"rare": {"a"}},
	})
	require.Equal(t, core.KindUnauthorizedAddress, rec.Err.Kind)

	rec = mintPack(s, "box", nil)
	require.Equal(t, core.KindRuntimeError, rec.Err.Kind)

	// every edition of every contained base id must exist
	rec = mintPack(s, "box", map[string][]string{"rare": {"ghost"}})
	require.Equal(t, core.KindTokenNotFound, rec.Err.Kind)
	require.Equal(t, "1-RARE-ghost", rec.Err.Data)

	s.MustOK(mintPack(s, "box", map[string][]string{"rare": {"a"}}))
	require.Equal(t, "1", s.Balance("PACK-box", testutil.Minter))

	rec = mintPack(s, "box", map[string][]string{"rare": {"a"}})
	require.Equal(t, core.KindTokenAlreadyExists, rec.Err.Kind)

	// a base id can sit in at most one container
	mintEditions(s, "rare", "b")
	rec = mintPack(s, "box2", map[string][]string{"rare": {"a", "b"}})
	require.Equal(t, core.KindNftAlreadyPacked, rec.Err.Kind)
	require.Equal(t, [2]string{"PACK-box", "a"}, rec.Err.Data)
	_, exists := s.LedgerState().Tokens["PACK-box2"]
	require.False(t, exists)
}

func TestOpenPackDrainsPool(t *testing.T) {
	s := testutil.NewSystem(t)
	mintEditions(s, "rare", "a")
	s.MustOK(mintPack(s, "box", map[string][]string{"rare": {"a"}}))

	// hand the container to bob; the contained editions stay with Minter
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnTransfer, ledger.TransferArgs{
		Target:  "bob",
		TokenID: "PACK-box",
		Qty:     core.NewAmount(1),
	}))

	drawn := make(map[string]bool)
	for i := 0; i < 4; i++ {
		rec := s.MustOK(openPack(s, "bob", "PACK-box", fmt.Sprintf("seed-%d", i)))
		body := rec.Result.Body.(map[string]any)
		nft := body["nft"].(string)
		require.False(t, drawn[nft], "edition %s drawn twice", nft)
		drawn[nft] = true
		require.Equal(t, "1", s.Balance(nft, "bob"))
	}
	require.Len(t, drawn, 4)

	rec := openPack(s, "bob", "PACK-box", "seed-5")
	require.Equal(t, core.KindNoNftAvailable, rec.Err.Kind)
}

func TestOpenKeepsDrawnEditionInPlace(t *testing.T) {
	s := testutil.NewSystem(t)
	mintEditions(s, "unique", "a")
	s.MustOK(mintPack(s, "box", map[string][]string{"unique": {"a"}}))

	// the opener already holds the edition: no transfer, still drawn
	rec := s.MustOK(openPack(s, testutil.Minter, "PACK-box", "seed"))
	require.Equal(t, "1-UNIQUE-a", rec.Result.Body.(map[string]any)["nft"])
	require.Equal(t, "1", s.Balance("1-UNIQUE-a", testutil.Minter))

	rec = openPack(s, testutil.Minter, "PACK-box", "seed2")
	require.Equal(t, core.KindNoNftAvailable, rec.Err.Kind)
}

func TestOpenValidation(t *testing.T) {
	s := testutil.NewSystem(t)
	mintEditions(s, "rare", "a")
	s.MustOK(mintPack(s, "box", map[string][]string{"rare": {"a"}}))

	rec := openPack(s, testutil.Minter, "PACK-ghost", "seed")
	require.Equal(t, core.KindPackNotFound, rec.Err.Kind)

	// alice holds no container token
	rec = openPack(s, "alice", "PACK-box", "seed")
	require.Equal(t, core.KindCallerBalanceNotEnough, rec.Err.Kind)

	rec = openPack(s, testutil.Minter, "PACK-box", "")
	require.Equal(t, core.KindRuntimeError, rec.Err.Kind)
}

func TestOpenIsDeterministic(t *testing.T) {
	script := func() (string, *testutil.System) {
		s := testutil.NewSystem(t)
		mintEditions(s, "epic", "a")
		s.MustOK(mintPack(s, "box", map[string][]string{"epic": {"a"}}))
		rec := s.MustOK(openPack(s, testutil.Minter, "PACK-box", "fixed-seed"))
		return rec.Result.Body.(map[string]any)["nft"].(string), s
	}

	first, _ := script()
	second, _ := script()
	require.Equal(t, first, second)
}

func TestShuffleVocabulary(t *testing.T) {
	s := testutil.NewSystem(t)
	shuffles := s.Cfg.Contracts.Shuffles
	mintEditions(s, "rare", "a")

	rec := s.Apply(shuffles, testutil.Minter, bundle.Shuffles.FnOpen, bundle.OpenArgs{ShuffleID: "SHUFFLE-ghost"})
	require.Equal(t, core.KindShuffleNotFound, rec.Err.Kind)

	s.MustOK(s.Apply(shuffles, testutil.Minter, bundle.Shuffles.FnMint, bundle.MintArgs{
		NFTs:   map[string][]string{"rare": {"a"}},
		BaseID: "deck",
	}))
	require.Equal(t, "1", s.Balance("SHUFFLE-deck", testutil.Minter))

	rec = s.Apply(shuffles, testutil.Minter, bundle.Shuffles.FnMint, bundle.MintArgs{
		NFTs:   map[string][]string{"rare": {"a"}},
		BaseID: "deck2",
	})
	require.Equal(t, core.KindNftAlreadyInAShuffle, rec.Err.Kind)
	require.Equal(t, [2]string{"SHUFFLE-deck", "a"}, rec.Err.Data)

	rec = s.MustOK(s.Apply(shuffles, "bob", bundle.Shuffles.FnGet, bundle.GetArgs{ShuffleID: "SHUFFLE-deck"}))
	require.Equal(t, 4, rec.Result.Body.(map[string]any)["remaining"])
}
