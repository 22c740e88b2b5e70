// Package config loads node configuration and assembles the genesis
// contract family from it.
package config

import (
	"encoding/json"
	"os"
)

// ContractIDs names the deployed contract family. Satellite contracts refer
// to the ledger by the id configured here.
type ContractIDs struct {
	Ledger   string `json:"ledger"`
	Royalty  string `json:"royalty"`
	Vault    string `json:"vault"`
	Packs    string `json:"packs"`
	Shuffles string `json:"shuffles"`
}

// GenesisConfig describes the initial contract family.
type GenesisConfig struct {
	Name           string            `json:"name"`
	ExchangeToken  string            `json:"exchange_token"`
	Operators      []string          `json:"operators"`
	SuperOperators []string          `json:"super_operators"`
	Alloc          map[string]string `json:"alloc"` // address → initial exchange-token balance (decimal string)
}

// Config holds all node configuration.
type Config struct {
	NodeID    string        `json:"node_id"`
	DataDir   string        `json:"data_dir"`
	RPCPort   int           `json:"rpc_port"`
	AuthToken string        `json:"auth_token"` // empty → RPC auth disabled
	BatchSize int           `json:"batch_size"` // interactions drained per apply tick; 0 → 100
	Contracts ContractIDs   `json:"contracts"`
	Genesis   GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:    "node0",
		DataDir:   "./data",
		RPCPort:   8545,
		BatchSize: 100,
		Contracts: ContractIDs{
			Ledger:   "ledger",
			Royalty:  "royalty",
			Vault:    "vault",
			Packs:    "packs",
			Shuffles: "shuffles",
		},
		Genesis: GenesisConfig{
			Name:          "cantata-dev",
			ExchangeToken: "USDC",
			Alloc:         map[string]string{},
		},
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
