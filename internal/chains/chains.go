package chains

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID is an EVM chain id.
type ID int64

const (
	Ethereum  ID = 1
	Optimism  ID = 10
	Polygon   ID = 137
	Base      ID = 8453
	Arbitrum  ID = 42161
	Avalanche ID = 43114
	Linea     ID = 59144
)

const defaultExplorer = "https://etherscan.io"

// Chain describes a CCTP-enabled chain.
type Chain struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	// KitName is the identifier the bridge SDK uses for this chain.
	KitName string `json:"kitName"`
	// Domain is Circle's CCTP domain id, used by the Iris API.
	Domain   uint32 `json:"domain"`
	Explorer string `json:"explorer"`
}

var registry = map[ID]Chain{
	Ethereum:  {ID: Ethereum, Name: "Ethereum", ShortName: "ETH", KitName: "Ethereum", Domain: 0, Explorer: "https://etherscan.io"},
	Avalanche: {ID: Avalanche, Name: "Avalanche", ShortName: "AVAX", KitName: "Avalanche", Domain: 1, Explorer: "https://snowtrace.io"},
	Optimism:  {ID: Optimism, Name: "Optimism", ShortName: "OP", KitName: "OP Mainnet", Domain: 2, Explorer: "https://optimistic.etherscan.io"},
	Arbitrum:  {ID: Arbitrum, Name: "Arbitrum One", ShortName: "ARB", KitName: "Arbitrum", Domain: 3, Explorer: "https://arbiscan.io"},
	Base:      {ID: Base, Name: "Base", ShortName: "BASE", KitName: "Base", Domain: 6, Explorer: "https://basescan.org"},
	Polygon:   {ID: Polygon, Name: "Polygon", ShortName: "POL", KitName: "Polygon PoS", Domain: 7, Explorer: "https://polygonscan.com"},
	Linea:     {ID: Linea, Name: "Linea", ShortName: "LINEA", KitName: "Linea", Domain: 11, Explorer: "https://lineascan.build"},
}

// Lookup returns the chain for id.
func Lookup(id ID) (Chain, bool) {
	c, ok := registry[id]
	return c, ok
}

// KitName resolves id into the bridge SDK's chain identifier.
func KitName(id ID) (string, bool) {
	c, ok := registry[id]
	if !ok {
		return "", false
	}
	return c.KitName, true
}

// Domain resolves id into its CCTP domain.
func Domain(id ID) (uint32, bool) {
	c, ok := registry[id]
	if !ok {
		return 0, false
	}
	return c.Domain, true
}

// ExplorerTxURL links a transaction hash on the chain's block explorer.
// Unknown chains fall back to Etherscan.
func ExplorerTxURL(id ID, txHash string) string {
	explorer := defaultExplorer
	if c, ok := registry[id]; ok {
		explorer = c.Explorer
	}
	return fmt.Sprintf("%s/tx/%s", explorer, txHash)
}

// All returns the supported chains ordered by id.
func All() []Chain {
	out := make([]Chain, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Parse accepts a numeric chain id or a case-insensitive chain name,
// short name or SDK name.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if _, ok := registry[ID(n)]; ok {
			return ID(n), nil
		}
		return 0, fmt.Errorf("unsupported chain id %d", n)
	}
	for _, c := range registry {
		if strings.EqualFold(s, c.Name) || strings.EqualFold(s, c.ShortName) || strings.EqualFold(s, c.KitName) {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown chain %q", s)
}
