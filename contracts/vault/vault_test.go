package vault_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/contracts/vault"
	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/internal/testutil"
)

func mintGold(s *testutil.System, qty string) {
	amount, err := core.ParseAmount(qty)
	require.NoError(s.T, err)
	s.MustOK(s.Apply(s.Cfg.Contracts.Ledger, testutil.Minter, ledger.FnMint, ledger.MintArgs{
		BaseID: "gold",
		Ticker: "GOLD",
		Qty:    amount,
	}))
}

func lock(s *testutil.System, height int64, qty string, duration int64, method string) *core.Receipt {
	amount, err := core.ParseAmount(qty)
	require.NoError(s.T, err)
	return s.ApplyAt(height, "", s.Cfg.Contracts.Vault, testutil.Minter, vault.FnTransferLocked, vault.TransferLockedArgs{
		TokenID:  "gold",
		Target:   "alice",
		Qty:      amount,
		Duration: duration,
		Method:   method,
	})
}

func TestTransferLockedValidation(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "100")
	vaultID := s.Cfg.Contracts.Vault

	rec := s.Apply(vaultID, "alice", vault.FnTransferLocked, vault.TransferLockedArgs{
		TokenID: "gold", Target: "bob", Qty: core.NewAmount(1), Duration: 5, Method: vault.MethodCliff,
	})
	require.Equal(t, core.KindUnauthorizedAddress, rec.Err.Kind)

	rec = lock(s, 0, "0", 5, vault.MethodCliff)
	require.Equal(t, core.KindTransferAmountMustBeHigherThanZero, rec.Err.Kind)

	rec = lock(s, 0, "1", 0, vault.MethodCliff)
	require.Equal(t, core.KindRuntimeError, rec.Err.Kind)

	rec = lock(s, 0, "1", 5, "staircase")
	require.Equal(t, core.KindRuntimeError, rec.Err.Kind)

	// the custody debit failing rolls the whole lock back
	rec = lock(s, 0, "101", 5, vault.MethodCliff)
	require.Equal(t, core.KindErc1155Error, rec.Err.Kind)
	inner := core.ForeignInner(rec.Err)
	require.NotNil(t, inner)
	require.Equal(t, core.KindCallerBalanceNotEnough, inner.Kind)
	require.Equal(t, "100", s.Balance("gold", testutil.Minter))

	rec = s.Apply(vaultID, "alice", vault.FnGetVault, vault.GetVaultArgs{Owner: "alice"})
	require.Equal(t, core.KindOwnerHasNoVault, rec.Err.Kind)
}

func TestLinearVesting(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "999999999")
	vaultID := s.Cfg.Contracts.Vault

	s.MustOK(lock(s, 1, "999999999", 10, vault.MethodLinear))
	require.Equal(t, "0", s.Balance("gold", testutil.Minter))
	require.Equal(t, "999999999", s.Balance("gold", vaultID))

	total, err := core.ParseAmount("999999999")
	require.NoError(t, err)
	for k := int64(1); k <= 10; k++ {
		rec := s.ApplyAt(1+k, "", vaultID, "alice", vault.FnUnlock, nil)
		s.MustOK(rec)
		want := total.MulDiv(uint64(k), 10)
		require.Equal(t, want.String(), s.Balance("gold", "alice"), "k=%d", k)
		require.Equal(t, total.Sub(want).String(), s.Balance("gold", vaultID), "k=%d", k)
	}

	// fully released entries disappear
	rec := s.Apply(vaultID, "alice", vault.FnGetVault, vault.GetVaultArgs{Owner: "alice"})
	require.Equal(t, core.KindOwnerHasNoVault, rec.Err.Kind)
}

func TestCliffVesting(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "500")
	vaultID := s.Cfg.Contracts.Vault

	s.MustOK(lock(s, 1, "500", 5, vault.MethodCliff))

	// nothing vests before the cliff
	rec := s.ApplyAt(5, "", vaultID, "alice", vault.FnUnlock, nil)
	s.MustOK(rec)
	require.Equal(t, core.ResultNone, rec.Result.Kind)
	require.Equal(t, "0", s.Balance("gold", "alice"))

	rec = s.ApplyAt(6, "", vaultID, "alice", vault.FnUnlock, nil)
	s.MustOK(rec)
	require.Equal(t, core.ResultWrite, rec.Result.Kind)
	require.Equal(t, "500", s.Balance("gold", "alice"))
	require.Equal(t, "0", s.Balance("gold", vaultID))
}

func TestUnlockNeverDoublePays(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "1000")
	vaultID := s.Cfg.Contracts.Vault

	s.MustOK(lock(s, 1, "1000", 10, vault.MethodLinear))

	s.MustOK(s.ApplyAt(6, "", vaultID, "alice", vault.FnUnlock, nil))
	require.Equal(t, "500", s.Balance("gold", "alice"))

	// same height again: nothing new has vested
	rec := s.ApplyAt(6, "", vaultID, "alice", vault.FnUnlock, nil)
	s.MustOK(rec)
	require.Equal(t, core.ResultNone, rec.Result.Kind)
	require.Equal(t, "500", s.Balance("gold", "alice"))
	require.Equal(t, "500", s.Balance("gold", vaultID))
}

func TestMultipleEntriesPerOwner(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "300")
	vaultID := s.Cfg.Contracts.Vault

	s.MustOK(lock(s, 1, "100", 10, vault.MethodLinear))
	s.MustOK(lock(s, 1, "200", 4, vault.MethodCliff))

	rec := s.MustOK(s.Apply(vaultID, "bob", vault.FnGetVault, vault.GetVaultArgs{Owner: "alice"}))
	body, ok := rec.Result.Body.(map[string]any)
	require.True(t, ok)
	entries, ok := body["entries"].([]*vault.LockedBalance)
	require.True(t, ok)
	require.Len(t, entries, 2)

	// height 6: linear entry half vested, cliff entry fully vested
	s.MustOK(s.ApplyAt(6, "", vaultID, "alice", vault.FnUnlock, nil))
	require.Equal(t, "250", s.Balance("gold", "alice"))

	rec = s.MustOK(s.Apply(vaultID, "bob", vault.FnGetVault, vault.GetVaultArgs{Owner: "alice"}))
	body = rec.Result.Body.(map[string]any)
	require.Len(t, body["entries"].([]*vault.LockedBalance), 1)
}

func TestVaultPauseAndConfigure(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "100")
	vaultID := s.Cfg.Contracts.Vault
	s.MustOK(lock(s, 1, "100", 2, vault.MethodCliff))

	paused := true
	rec := s.Apply(vaultID, testutil.Minter, vault.FnConfigure, vault.ConfigureArgs{Paused: &paused})
	require.Equal(t, core.KindUnauthorizedConfiguration, rec.Err.Kind)
	s.MustOK(s.Apply(vaultID, testutil.Admin, vault.FnConfigure, vault.ConfigureArgs{Paused: &paused}))

	rec = s.ApplyAt(3, "", vaultID, "alice", vault.FnUnlock, nil)
	require.Equal(t, core.KindContractIsPaused, rec.Err.Kind)

	// reads stay open while paused, including read-only batches
	s.MustOK(s.Apply(vaultID, "alice", vault.FnGetVault, vault.GetVaultArgs{Owner: "alice"}))
	member, err := core.MarshalAction(vault.FnGetAllVaults, nil)
	require.NoError(t, err)
	rec = s.MustOK(s.Apply(vaultID, "alice", vault.FnBatch, vault.BatchArgs{
		Actions: []json.RawMessage{member},
	}))
	require.Equal(t, core.ResultRead, rec.Result.Kind)

	paused = false
	s.MustOK(s.Apply(vaultID, testutil.Admin, vault.FnConfigure, vault.ConfigureArgs{Paused: &paused}))
	s.MustOK(s.ApplyAt(3, "", vaultID, "alice", vault.FnUnlock, nil))
	require.Equal(t, "100", s.Balance("gold", "alice"))
}

func TestGetAllVaultsOrdering(t *testing.T) {
	s := testutil.NewSystem(t)
	mintGold(s, "30")
	vaultID := s.Cfg.Contracts.Vault

	for i, target := range []string{"carol", "alice", "bob"} {
		s.MustOK(s.Apply(vaultID, testutil.Minter, vault.FnTransferLocked, vault.TransferLockedArgs{
			TokenID:  "gold",
			Target:   target,
			Qty:      core.NewAmount(10),
			Duration: int64(i) + 1,
			Method:   vault.MethodCliff,
		}))
	}

	rec := s.MustOK(s.Apply(vaultID, "bob", vault.FnGetAllVaults, nil))
	list, ok := rec.Result.Body.([]map[string]any)
	require.True(t, ok)
	owners := make([]string, len(list))
	for i, entry := range list {
		owners[i] = fmt.Sprint(entry["owner"])
	}
	require.Equal(t, []string{"alice", "bob", "carol"}, owners)
}
