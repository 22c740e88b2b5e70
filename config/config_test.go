package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = "node7"
	cfg.RPCPort = 9000
	cfg.Genesis.Operators = []string{"minter"}
	cfg.Genesis.Alloc = map[string]string{"alice": "1000"}

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node_id":"partial"}`), 0644))

	// fields absent from the file keep their defaults
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "partial", loaded.NodeID)
	require.Equal(t, 8545, loaded.RPCPort)
	require.Equal(t, "USDC", loaded.Genesis.ExchangeToken)
}

func TestBuildContractsGenesisAlloc(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genesis.SuperOperators = []string{"admin"}
	cfg.Genesis.Alloc = map[string]string{"alice": "1000", "bob": "50"}

	contracts, err := BuildContracts(cfg)
	require.NoError(t, err)
	require.Len(t, contracts, 5)

	ids := make([]string, len(contracts))
	for i, c := range contracts {
		ids[i] = c.ID()
	}
	require.Equal(t, []string{"ledger", "royalty", "vault", "packs", "shuffles"}, ids)

	raw, err := contracts[0].Snapshot()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"alice":"1000"`)
}

func TestBuildContractsRejectsBadAlloc(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genesis.Alloc = map[string]string{"alice": "-5"}

	_, err := BuildContracts(cfg)
	require.Error(t, err)
}
