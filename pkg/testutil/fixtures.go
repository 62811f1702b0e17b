// Package testutil provides fixtures shared by package tests
package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// Chains of the fixture registry
const (
	HubChain    types.ChainID = "sonic"
	BaseChain   types.ChainID = "base"
	BSCChain    types.ChainID = "bsc"
	SolanaChain types.ChainID = "solana"
)

// Relay ids of the fixture chains
const (
	HubRelayID    types.RelayChainID = 146
	BaseRelayID   types.RelayChainID = 30
	BSCRelayID    types.RelayChainID = 4
	SolanaRelayID types.RelayChainID = 1
)

// Hub contracts and assets. USDCVault keeps 6 decimals, WETHVault the default 18.
var (
	USDCVault  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	WETHVault  = common.HexToAddress("0x1000000000000000000000000000000000000002")
	SonicVault = common.HexToAddress("0x1000000000000000000000000000000000000003")

	BaseUSDCHub   = common.HexToAddress("0x2000000000000000000000000000000000000001")
	BSCUSDCHub    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	SolanaUSDCHub = common.HexToAddress("0x2000000000000000000000000000000000000003")
	BaseETHHub    = common.HexToAddress("0x2000000000000000000000000000000000000004")
	WrappedSonic  = common.HexToAddress("0x2000000000000000000000000000000000000005")

	HubAssetManager = common.HexToAddress("0x3000000000000000000000000000000000000001")
	WalletFactory   = common.HexToAddress("0x3000000000000000000000000000000000000002")
	Intents         = common.HexToAddress("0x3000000000000000000000000000000000000003")
	WalletCodeHash  = common.HexToHash("0x5ad5c9c4e7c1b8f5e2b7d3f0a2c9e8d7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1")
)

// Spoke tokens and contracts
const (
	BaseUSDC         = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	BaseETH          = "0x0000000000000000000000000000000000000000"
	BaseAssetManager = "0x4000000000000000000000000000000000000001"
	BaseConnection   = "0x4000000000000000000000000000000000000002"

	BSCUSDC         = "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"
	BSCAssetManager = "0x4000000000000000000000000000000000000003"
	BSCConnection   = "0x4000000000000000000000000000000000000004"

	SolanaUSDC         = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	SolanaAssetManager = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	SolanaConnection   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// HubConfig returns the fixture hub contracts
func HubConfig() registry.HubConfig {
	return registry.HubConfig{
		ChainID:        HubChain,
		AssetManager:   HubAssetManager,
		WalletFactory:  WalletFactory,
		WalletCodeHash: WalletCodeHash,
		Intents:        Intents,
		WrappedNative:  WrappedSonic,
	}
}

// Chains returns the fixture chain configs
func Chains() []registry.ChainConfig {
	return []registry.ChainConfig{
		{
			ID:           HubChain,
			Name:         "Sonic",
			Family:       types.FamilyHub,
			RelayChainID: HubRelayID,
			EVMChainID:   146,
			Assets: []registry.Asset{
				{Symbol: "bnUSD", Address: USDCVault.Hex(), Decimals: 6, HubAsset: USDCVault, Vault: USDCVault},
				{Symbol: "wS", Address: WrappedSonic.Hex(), Decimals: 18, HubAsset: WrappedSonic, Vault: SonicVault},
			},
		},
		{
			ID:           BaseChain,
			Name:         "Base",
			Family:       types.FamilyEVM,
			RelayChainID: BaseRelayID,
			EVMChainID:   8453,
			AssetManager: BaseAssetManager,
			Connection:   BaseConnection,
			NativeToken:  BaseETH,
			Assets: []registry.Asset{
				{Symbol: "USDC", Address: BaseUSDC, Decimals: 6, HubAsset: BaseUSDCHub, Vault: USDCVault},
				{Symbol: "ETH", Address: BaseETH, Decimals: 18, HubAsset: BaseETHHub, Vault: WETHVault},
			},
		},
		{
			ID:           BSCChain,
			Name:         "BNB Smart Chain",
			Family:       types.FamilyEVM,
			RelayChainID: BSCRelayID,
			EVMChainID:   56,
			AssetManager: BSCAssetManager,
			Connection:   BSCConnection,
			Assets: []registry.Asset{
				{Symbol: "USDC", Address: BSCUSDC, Decimals: 18, HubAsset: BSCUSDCHub, Vault: USDCVault},
			},
		},
		{
			ID:           SolanaChain,
			Name:         "Solana",
			Family:       types.FamilySolana,
			RelayChainID: SolanaRelayID,
			AssetManager: SolanaAssetManager,
			Connection:   SolanaConnection,
			Assets: []registry.Asset{
				{Symbol: "USDC", Address: SolanaUSDC, Decimals: 6, HubAsset: SolanaUSDCHub, Vault: USDCVault},
			},
		},
	}
}

// Vaults returns the fixture vault precisions
func Vaults() []registry.VaultConfig {
	return []registry.VaultConfig{
		{Address: USDCVault, Symbol: "bnUSD", Decimals: 6},
		{Address: WETHVault, Symbol: "vETH", Decimals: 18},
		{Address: SonicVault, Symbol: "vS", Decimals: 18},
	}
}

// Registry builds the fixture registry
func Registry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(HubConfig(), Chains(), Vaults())
	require.NoError(t, err)
	return r
}
