package types

import (
	"fmt"
	"strings"
)

// ChainID identifies a spoke chain or the hub chain in configuration
type ChainID string

// RelayChainID identifies a chain inside the relay network. It is a separate
// namespace from ChainID.
type RelayChainID uint64

// ChainFamily is the closed set of chain families the adapters support
type ChainFamily string

const (
	FamilyEVM     ChainFamily = "evm"     // Generic EVM spoke
	FamilyHub     ChainFamily = "hub"     // EVM chain whose state is the hub itself
	FamilySolana  ChainFamily = "solana"  // Solana
	FamilySui     ChainFamily = "sui"     // Sui
	FamilyStellar ChainFamily = "stellar" // Stellar / Soroban
	FamilyIcon    ChainFamily = "icon"    // ICON
	FamilyCosmos  ChainFamily = "cosmos"  // CosmWasm chains
	FamilyBitcoin ChainFamily = "bitcoin" // Bitcoin-style UTXO chains
)

// Families lists every supported chain family
var Families = []ChainFamily{
	FamilyEVM, FamilyHub, FamilySolana, FamilySui,
	FamilyStellar, FamilyIcon, FamilyCosmos, FamilyBitcoin,
}

// ParseChainFamily converts a config string to a ChainFamily
func ParseChainFamily(s string) (ChainFamily, error) {
	f := ChainFamily(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Families {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFamily, s)
}

// IsEVM returns true for families that speak the EVM transaction format
func (f ChainFamily) IsEVM() bool {
	return f == FamilyEVM || f == FamilyHub
}

// String implements fmt.Stringer
func (f ChainFamily) String() string {
	return string(f)
}
