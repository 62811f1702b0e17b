package wallet_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/testutil"
	"hub-settle/pkg/wallet"
)

type countingSource struct {
	hash  common.Hash
	calls int
}

func (s *countingSource) WalletCodeHash(ctx context.Context) (common.Hash, error) {
	s.calls++
	return s.hash, nil
}

const evmUser = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"

func TestDerive_MatchesCreate2(t *testing.T) {
	ctx := context.Background()
	d := wallet.NewDeriver(testutil.Registry(t), nil)

	got, err := d.Derive(ctx, testutil.BaseChain, evmUser)
	require.NoError(t, err)

	salt, err := hub.WalletSalt(testutil.BaseRelayID, common.HexToAddress(evmUser).Bytes())
	require.NoError(t, err)
	want := crypto.CreateAddress2(testutil.WalletFactory, salt, testutil.WalletCodeHash.Bytes())
	assert.Equal(t, want, got)
}

func TestDerive_IsDeterministicAndChainScoped(t *testing.T) {
	ctx := context.Background()
	d := wallet.NewDeriver(testutil.Registry(t), nil)

	first, err := d.Derive(ctx, testutil.BaseChain, evmUser)
	require.NoError(t, err)
	second, err := d.Derive(ctx, testutil.BaseChain, evmUser)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := d.Derive(ctx, testutil.BSCChain, evmUser)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestDerive_ResolvesCodeHashOnce(t *testing.T) {
	ctx := context.Background()
	hubCfg := testutil.HubConfig()
	hubCfg.WalletCodeHash = common.Hash{}
	reg, err := registry.New(hubCfg, testutil.Chains(), testutil.Vaults())
	require.NoError(t, err)

	source := &countingSource{hash: testutil.WalletCodeHash}
	d := wallet.NewDeriver(reg, source)

	_, err = d.Derive(ctx, testutil.SolanaChain, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	_, err = d.Derive(ctx, testutil.BaseChain, evmUser)
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
}

func TestDerive_Errors(t *testing.T) {
	ctx := context.Background()
	hubCfg := testutil.HubConfig()
	hubCfg.WalletCodeHash = common.Hash{}
	reg, err := registry.New(hubCfg, testutil.Chains(), testutil.Vaults())
	require.NoError(t, err)

	_, err = wallet.NewDeriver(reg, nil).Derive(ctx, testutil.BaseChain, evmUser)
	assert.Error(t, err)

	d := wallet.NewDeriver(testutil.Registry(t), nil)
	_, err = d.Derive(ctx, "ethereum", evmUser)
	assert.Error(t, err)
	_, err = d.Derive(ctx, testutil.SolanaChain, evmUser)
	assert.Error(t, err)
}
