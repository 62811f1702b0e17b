package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// RegistryFile is the on-disk layout of the chain and asset registry
type RegistryFile struct {
	Hub    HubEntry     `toml:"hub" json:"hub"`
	Chains []ChainEntry `toml:"chains" json:"chains"`
	Vaults []VaultEntry `toml:"vaults" json:"vaults"`
}

// HubEntry holds the hub contracts
type HubEntry struct {
	ChainID        string `toml:"chain_id" json:"chain_id"`
	AssetManager   string `toml:"asset_manager" json:"asset_manager"`
	WalletFactory  string `toml:"wallet_factory" json:"wallet_factory"`
	WalletCodeHash string `toml:"wallet_code_hash,omitempty" json:"wallet_code_hash,omitempty"`
	Intents        string `toml:"intents" json:"intents"`
	WrappedNative  string `toml:"wrapped_native" json:"wrapped_native"`
}

// ChainEntry describes one chain
type ChainEntry struct {
	ID           string       `toml:"id" json:"id"`
	Name         string       `toml:"name" json:"name"`
	Family       string       `toml:"family" json:"family"`
	RelayChainID uint64       `toml:"relay_chain_id" json:"relay_chain_id"`
	RPCURL       string       `toml:"rpc_url" json:"rpc_url"`
	AuxURL       string       `toml:"aux_url,omitempty" json:"aux_url,omitempty"`
	AssetManager string       `toml:"asset_manager" json:"asset_manager"`
	Connection   string       `toml:"connection" json:"connection"`
	NativeToken  string       `toml:"native_token,omitempty" json:"native_token,omitempty"`
	EVMChainID   int64        `toml:"evm_chain_id,omitempty" json:"evm_chain_id,omitempty"`
	NetworkID    string       `toml:"network_id,omitempty" json:"network_id,omitempty"`
	Bech32Prefix string       `toml:"bech32_prefix,omitempty" json:"bech32_prefix,omitempty"`
	Assets       []AssetEntry `toml:"assets" json:"assets"`
}

// AssetEntry describes one spoke token
type AssetEntry struct {
	Symbol   string `toml:"symbol" json:"symbol"`
	Address  string `toml:"address" json:"address"`
	Decimals uint8  `toml:"decimals" json:"decimals"`
	HubAsset string `toml:"hub_asset" json:"hub_asset"`
	Vault    string `toml:"vault" json:"vault"`
}

// VaultEntry overrides the precision of a vault. Without decimals the vault
// keeps the 18 decimal default.
type VaultEntry struct {
	Address  string `toml:"address" json:"address"`
	Symbol   string `toml:"symbol" json:"symbol"`
	Decimals *uint8 `toml:"decimals,omitempty" json:"decimals,omitempty"`
}

// LoadRegistryFile reads a TOML or JSON registry file and builds the registry
func LoadRegistryFile(filePath string) (*registry.Registry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var file RegistryFile
	if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON registry: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML registry: %w", err)
		}
	}

	return file.Build()
}

// Build converts the file layout into a validated registry
func (f *RegistryFile) Build() (*registry.Registry, error) {
	if len(f.Chains) == 0 {
		return nil, fmt.Errorf("no chains in registry")
	}

	hub := registry.HubConfig{ChainID: types.ChainID(f.Hub.ChainID)}
	var err error
	if hub.AssetManager, err = hexAddress("hub.asset_manager", f.Hub.AssetManager); err != nil {
		return nil, err
	}
	if hub.WalletFactory, err = hexAddress("hub.wallet_factory", f.Hub.WalletFactory); err != nil {
		return nil, err
	}
	if hub.Intents, err = hexAddress("hub.intents", f.Hub.Intents); err != nil {
		return nil, err
	}
	if hub.WrappedNative, err = hexAddress("hub.wrapped_native", f.Hub.WrappedNative); err != nil {
		return nil, err
	}
	if f.Hub.WalletCodeHash != "" {
		raw := common.FromHex(f.Hub.WalletCodeHash)
		if len(raw) != common.HashLength {
			return nil, fmt.Errorf("hub.wallet_code_hash must be 32 bytes, got %d", len(raw))
		}
		hub.WalletCodeHash = common.BytesToHash(raw)
	}

	chains := make([]registry.ChainConfig, len(f.Chains))
	for i, c := range f.Chains {
		family, err := types.ParseChainFamily(c.Family)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", c.ID, err)
		}
		chains[i] = registry.ChainConfig{
			ID:           types.ChainID(c.ID),
			Name:         c.Name,
			Family:       family,
			RelayChainID: types.RelayChainID(c.RelayChainID),
			RPCURL:       c.RPCURL,
			AuxURL:       c.AuxURL,
			AssetManager: c.AssetManager,
			Connection:   c.Connection,
			NativeToken:  c.NativeToken,
			EVMChainID:   c.EVMChainID,
			NetworkID:    c.NetworkID,
			Bech32Prefix: c.Bech32Prefix,
			Assets:       make([]registry.Asset, len(c.Assets)),
		}
		for j, a := range c.Assets {
			field := fmt.Sprintf("chains.%s.assets.%s", c.ID, a.Symbol)
			hubAsset, err := hexAddress(field+".hub_asset", a.HubAsset)
			if err != nil {
				return nil, err
			}
			vault, err := hexAddress(field+".vault", a.Vault)
			if err != nil {
				return nil, err
			}
			chains[i].Assets[j] = registry.Asset{
				Symbol:   a.Symbol,
				Address:  a.Address,
				Decimals: a.Decimals,
				HubAsset: hubAsset,
				Vault:    vault,
			}
		}
	}

	vaults := make([]registry.VaultConfig, len(f.Vaults))
	for i, v := range f.Vaults {
		addr, err := hexAddress("vaults."+v.Symbol, v.Address)
		if err != nil {
			return nil, err
		}
		decimals := uint8(registry.DefaultVaultDecimals)
		if v.Decimals != nil {
			decimals = *v.Decimals
		}
		vaults[i] = registry.VaultConfig{Address: addr, Symbol: v.Symbol, Decimals: decimals}
	}

	return registry.New(hub, chains, vaults)
}

func hexAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid hub address %q", field, value)
	}
	return common.HexToAddress(value), nil
}
