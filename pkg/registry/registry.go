// Package registry holds the static chain and hub asset configuration. A
// Registry is immutable after New returns and safe for concurrent readers.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"hub-settle/pkg/types"
)

// DefaultVaultDecimals is the canonical precision of vault shares
const DefaultVaultDecimals = 18

// Asset is a spoke token and its hub representation
type Asset struct {
	Symbol   string
	Address  string // Native address on the spoke chain
	Decimals uint8
	HubAsset common.Address
	Vault    common.Address
}

// HubInfo converts the asset to the hub view
func (a Asset) HubInfo() types.HubAssetInfo {
	return types.HubAssetInfo{Asset: a.HubAsset, Vault: a.Vault, Decimals: a.Decimals}
}

// ChainConfig is everything an adapter needs to talk to one chain
type ChainConfig struct {
	ID           types.ChainID
	Name         string
	Family       types.ChainFamily
	RelayChainID types.RelayChainID
	RPCURL       string
	// AuxURL is a secondary endpoint: Horizon for stellar, LCD for cosmos
	AuxURL       string
	AssetManager string
	Connection   string
	NativeToken  string
	EVMChainID   int64
	NetworkID    string // ICON nid, bitcoin network name
	Bech32Prefix string
	Assets       []Asset
}

// HubConfig holds the hub contracts
type HubConfig struct {
	ChainID        types.ChainID
	AssetManager   common.Address
	WalletFactory  common.Address
	WalletCodeHash common.Hash // Zero means resolve from the factory
	Intents        common.Address
	WrappedNative  common.Address
}

// VaultConfig overrides the canonical precision of a vault. Decimals is
// used as given, zero included.
type VaultConfig struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Registry indexes chains and assets
type Registry struct {
	hub        HubConfig
	chains     map[types.ChainID]ChainConfig
	assets     map[types.ChainID]map[string]Asset
	symbols    map[types.ChainID]map[string]Asset
	vaults     map[common.Address]VaultConfig
	relayIndex map[types.RelayChainID]types.ChainID
}

// New validates and indexes the configuration
func New(hub HubConfig, chains []ChainConfig, vaults []VaultConfig) (*Registry, error) {
	r := &Registry{
		hub:        hub,
		chains:     make(map[types.ChainID]ChainConfig, len(chains)),
		assets:     make(map[types.ChainID]map[string]Asset, len(chains)),
		symbols:    make(map[types.ChainID]map[string]Asset, len(chains)),
		vaults:     make(map[common.Address]VaultConfig, len(vaults)),
		relayIndex: make(map[types.RelayChainID]types.ChainID, len(chains)),
	}

	if hub.ChainID == "" {
		return nil, fmt.Errorf("hub chain id is required")
	}

	hubSeen := false
	for _, chain := range chains {
		if chain.ID == "" {
			return nil, fmt.Errorf("chain id is required")
		}
		if _, exists := r.chains[chain.ID]; exists {
			return nil, fmt.Errorf("duplicate chain %q", chain.ID)
		}
		if _, err := types.ParseChainFamily(string(chain.Family)); err != nil {
			return nil, fmt.Errorf("chain %q: %w", chain.ID, err)
		}
		if chain.Family == types.FamilyHub {
			if chain.ID != hub.ChainID {
				return nil, fmt.Errorf("chain %q has family hub but hub chain is %q", chain.ID, hub.ChainID)
			}
			hubSeen = true
		}
		if other, exists := r.relayIndex[chain.RelayChainID]; exists {
			return nil, fmt.Errorf("chains %q and %q share relay chain id %d", other, chain.ID, chain.RelayChainID)
		}
		r.relayIndex[chain.RelayChainID] = chain.ID

		byAddr := make(map[string]Asset, len(chain.Assets))
		bySymbol := make(map[string]Asset, len(chain.Assets))
		for _, asset := range chain.Assets {
			if asset.Address == "" {
				return nil, fmt.Errorf("chain %q: asset %q has no address", chain.ID, asset.Symbol)
			}
			if asset.Vault == (common.Address{}) || asset.HubAsset == (common.Address{}) {
				return nil, fmt.Errorf("chain %q: asset %q needs hub_asset and vault", chain.ID, asset.Address)
			}
			key := normalizeAddress(chain.Family, asset.Address)
			if _, exists := byAddr[key]; exists {
				return nil, fmt.Errorf("chain %q: duplicate asset %q", chain.ID, asset.Address)
			}
			byAddr[key] = asset
			if asset.Symbol != "" {
				bySymbol[strings.ToUpper(asset.Symbol)] = asset
			}
		}
		r.chains[chain.ID] = chain
		r.assets[chain.ID] = byAddr
		r.symbols[chain.ID] = bySymbol
	}
	if !hubSeen {
		return nil, fmt.Errorf("hub chain %q is not configured with family %q", hub.ChainID, types.FamilyHub)
	}

	for _, v := range vaults {
		r.vaults[v.Address] = v
	}

	return r, nil
}

// normalizeAddress lowercases hex addresses so lookups ignore checksum casing.
// Base58 and strkey addresses are case sensitive and kept as is.
func normalizeAddress(family types.ChainFamily, address string) string {
	switch family {
	case types.FamilyEVM, types.FamilyHub, types.FamilySui, types.FamilyIcon:
		return strings.ToLower(address)
	default:
		return address
	}
}

// Hub returns the hub contracts
func (r *Registry) Hub() HubConfig {
	return r.hub
}

// HubChain returns the hub chain config
func (r *Registry) HubChain() ChainConfig {
	return r.chains[r.hub.ChainID]
}

// IsHub returns true when id is the hub chain
func (r *Registry) IsHub(id types.ChainID) bool {
	return id == r.hub.ChainID
}

// Chain returns a chain config
func (r *Registry) Chain(id types.ChainID) (ChainConfig, error) {
	chain, ok := r.chains[id]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", types.ErrUnknownChain, id)
	}
	return chain, nil
}

// Chains returns every chain sorted by id
func (r *Registry) Chains() []ChainConfig {
	chains := make([]ChainConfig, 0, len(r.chains))
	for _, c := range r.chains {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ID < chains[j].ID })
	return chains
}

// RelayChainID maps a chain to its relay network id
func (r *Registry) RelayChainID(id types.ChainID) (types.RelayChainID, error) {
	chain, err := r.Chain(id)
	if err != nil {
		return 0, err
	}
	return chain.RelayChainID, nil
}

// ChainByRelayID maps a relay network id back to a chain
func (r *Registry) ChainByRelayID(id types.RelayChainID) (types.ChainID, error) {
	chain, ok := r.relayIndex[id]
	if !ok {
		return "", fmt.Errorf("%w: relay chain id %d", types.ErrUnknownChain, id)
	}
	return chain, nil
}

// Asset returns the configured asset for a spoke token address
func (r *Registry) Asset(chainID types.ChainID, token string) (Asset, error) {
	chain, err := r.Chain(chainID)
	if err != nil {
		return Asset{}, err
	}
	asset, ok := r.assets[chainID][normalizeAddress(chain.Family, token)]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s on %s", types.ErrAssetNotFound, token, chainID)
	}
	return asset, nil
}

// AssetBySymbol finds an asset by ticker on a chain
func (r *Registry) AssetBySymbol(chainID types.ChainID, symbol string) (Asset, error) {
	if _, err := r.Chain(chainID); err != nil {
		return Asset{}, err
	}
	asset, ok := r.symbols[chainID][strings.ToUpper(symbol)]
	if !ok {
		return Asset{}, fmt.Errorf("%w: symbol %s on %s", types.ErrAssetNotFound, symbol, chainID)
	}
	return asset, nil
}

// Assets lists the assets of a chain sorted by symbol
func (r *Registry) Assets(chainID types.ChainID) []Asset {
	chain, ok := r.chains[chainID]
	if !ok {
		return nil
	}
	assets := append([]Asset(nil), chain.Assets...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets
}

// HubAsset resolves the hub view of a spoke token
func (r *Registry) HubAsset(chainID types.ChainID, token string) (types.HubAssetInfo, error) {
	asset, err := r.Asset(chainID, token)
	if err != nil {
		return types.HubAssetInfo{}, err
	}
	return asset.HubInfo(), nil
}

// IsValidOriginalAsset reports whether token is a configured spoke asset
func (r *Registry) IsValidOriginalAsset(chainID types.ChainID, token string) bool {
	_, err := r.Asset(chainID, token)
	return err == nil
}

// OriginalAsset maps a hub asset back to the spoke token on chainID
func (r *Registry) OriginalAsset(chainID types.ChainID, hubAsset common.Address) (Asset, error) {
	chain, err := r.Chain(chainID)
	if err != nil {
		return Asset{}, err
	}
	for _, asset := range chain.Assets {
		if asset.HubAsset == hubAsset {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: hub asset %s on %s", types.ErrAssetNotFound, hubAsset.Hex(), chainID)
}

// VaultDecimals returns the canonical precision of a vault
func (r *Registry) VaultDecimals(vault common.Address) uint8 {
	if v, ok := r.vaults[vault]; ok {
		return v.Decimals
	}
	return DefaultVaultDecimals
}

// IsWrappedNative reports whether asset is the hub wrapped native token
func (r *Registry) IsWrappedNative(asset common.Address) bool {
	return r.hub.WrappedNative != (common.Address{}) && asset == r.hub.WrappedNative
}
