package config

import (
	"fmt"

	"github.com/cantata-io/cantata/contracts/bundle"
	"github.com/cantata-io/cantata/contracts/ledger"
	"github.com/cantata-io/cantata/contracts/royalty"
	"github.com/cantata-io/cantata/contracts/vault"
	"github.com/cantata-io/cantata/core"
)

// BuildContracts assembles the initialized genesis contract family. All
// satellite contracts are listed as ledger proxies so their foreign writes
// pass the proxy gate, and the configured operator sets are mirrored into
// each contract.
func BuildContracts(cfg *Config) ([]core.Contract, error) {
	ids := cfg.Contracts
	g := cfg.Genesis

	balances := make(map[string]core.Amount, len(g.Alloc))
	for addr, amount := range g.Alloc {
		parsed, err := core.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("genesis alloc %s: %w", addr, err)
		}
		balances[addr] = parsed
	}

	tokens := make(map[string]*ledger.Token)
	if len(balances) > 0 {
		tokens[g.ExchangeToken] = &ledger.Token{
			Ticker:   g.ExchangeToken,
			Balances: balances,
		}
	}
	ledgerState := &ledger.State{
		Name:   g.Name,
		Tokens: tokens,
		Settings: ledger.Settings{
			DefaultToken:   g.ExchangeToken,
			Operators:      g.Operators,
			SuperOperators: g.SuperOperators,
			Proxies:        []string{ids.Royalty, ids.Vault, ids.Packs, ids.Shuffles},
		},
	}

	royaltyState := &royalty.State{
		Name:          g.Name,
		Ledger:        ids.Ledger,
		ExchangeToken: g.ExchangeToken,
		Settings: royalty.Settings{
			Operators:      g.Operators,
			SuperOperators: g.SuperOperators,
		},
	}
	vaultState := &vault.State{
		Name:   g.Name,
		Ledger: ids.Ledger,
		Settings: vault.Settings{
			Operators:      g.Operators,
			SuperOperators: g.SuperOperators,
		},
	}
	bundleSettings := bundle.Settings{
		Operators:      g.Operators,
		SuperOperators: g.SuperOperators,
	}

	return []core.Contract{
		ledger.New(ids.Ledger, ledgerState),
		royalty.New(ids.Royalty, royaltyState),
		vault.New(ids.Vault, vaultState),
		bundle.New(ids.Packs, bundle.Packs, &bundle.State{Name: g.Name, Ledger: ids.Ledger, Settings: bundleSettings}),
		bundle.New(ids.Shuffles, bundle.Shuffles, &bundle.State{Name: g.Name, Ledger: ids.Ledger, Settings: bundleSettings}),
	}, nil
}
