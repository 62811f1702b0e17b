package registry_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

var (
	usdcVault = common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdcHubA  = common.HexToAddress("0x2000000000000000000000000000000000000001")
	usdcHubB  = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func testChains() []registry.ChainConfig {
	return []registry.ChainConfig{
		{
			ID:           "sonic",
			Family:       types.FamilyHub,
			RelayChainID: 146,
			Assets: []registry.Asset{
				{Symbol: "USDC", Address: usdcHubA.Hex(), Decimals: 6, HubAsset: usdcHubA, Vault: usdcVault},
			},
		},
		{
			ID:           "base",
			Family:       types.FamilyEVM,
			RelayChainID: 30,
			Assets: []registry.Asset{
				{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6, HubAsset: usdcHubB, Vault: usdcVault},
			},
		},
		{
			ID:           "solana",
			Family:       types.FamilySolana,
			RelayChainID: 1,
			Assets: []registry.Asset{
				{Symbol: "usdc", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6, HubAsset: usdcHubA, Vault: usdcVault},
			},
		},
	}
}

func TestNew_RequiresHubChain(t *testing.T) {
	chains := testChains()[1:]
	_, err := registry.New(registry.HubConfig{ChainID: "sonic"}, chains, nil)
	require.Error(t, err)
}

func TestNew_RejectsDuplicateRelayIDs(t *testing.T) {
	chains := testChains()
	chains[2].RelayChainID = 30
	_, err := registry.New(registry.HubConfig{ChainID: "sonic"}, chains, nil)
	require.Error(t, err)
}

func TestNew_RejectsUnknownFamily(t *testing.T) {
	chains := testChains()
	chains[1].Family = "tron"
	_, err := registry.New(registry.HubConfig{ChainID: "sonic"}, chains, nil)
	require.ErrorIs(t, err, types.ErrUnsupportedFamily)
}

func TestHubAsset_CaseInsensitiveForHexAddresses(t *testing.T) {
	r, err := registry.New(registry.HubConfig{ChainID: "sonic"}, testChains(), nil)
	require.NoError(t, err)

	info, err := r.HubAsset("base", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.NoError(t, err)
	assert.Equal(t, usdcHubB, info.Asset)
	assert.Equal(t, usdcVault, info.Vault)
	assert.Equal(t, uint8(6), info.Decimals)
}

func TestHubAsset_Base58IsCaseSensitive(t *testing.T) {
	r, err := registry.New(registry.HubConfig{ChainID: "sonic"}, testChains(), nil)
	require.NoError(t, err)

	_, err = r.HubAsset("solana", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)

	_, err = r.HubAsset("solana", "epjfwdd5aufqssqem2qn1xzybapc8g4wegGkzwytdt1v")
	assert.ErrorIs(t, err, types.ErrAssetNotFound)
}

func TestLookups(t *testing.T) {
	r, err := registry.New(registry.HubConfig{ChainID: "sonic"}, testChains(),
		[]registry.VaultConfig{{Address: usdcVault, Decimals: 6}})
	require.NoError(t, err)

	relayID, err := r.RelayChainID("base")
	require.NoError(t, err)
	assert.Equal(t, types.RelayChainID(30), relayID)

	chainID, err := r.ChainByRelayID(1)
	require.NoError(t, err)
	assert.Equal(t, types.ChainID("solana"), chainID)

	asset, err := r.AssetBySymbol("solana", "USDC")
	require.NoError(t, err)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", asset.Address)

	original, err := r.OriginalAsset("base", usdcHubB)
	require.NoError(t, err)
	assert.Equal(t, "USDC", original.Symbol)

	assert.Equal(t, uint8(6), r.VaultDecimals(usdcVault))
	assert.Equal(t, uint8(registry.DefaultVaultDecimals), r.VaultDecimals(common.Address{}))
	assert.True(t, r.IsHub("sonic"))
	assert.False(t, r.IsHub("base"))
	assert.Len(t, r.Chains(), 3)

	_, err = r.Chain("ethereum")
	assert.ErrorIs(t, err, types.ErrUnknownChain)
}

func TestVaultDecimals_ZeroIsKept(t *testing.T) {
	r, err := registry.New(registry.HubConfig{ChainID: "sonic"}, testChains(),
		[]registry.VaultConfig{{Address: usdcVault, Symbol: "points", Decimals: 0}})
	require.NoError(t, err)

	assert.Equal(t, uint8(0), r.VaultDecimals(usdcVault))
	assert.Equal(t, uint8(registry.DefaultVaultDecimals), r.VaultDecimals(common.HexToAddress("0x1000000000000000000000000000000000000009")))
}
