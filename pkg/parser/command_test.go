package parser

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/testutil"
	"hub-settle/pkg/types"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    *Request
		wantErr bool
	}{
		{
			name:    "plain",
			command: "1 USDC to ETH",
			want:    &Request{Amount: "1", SrcSymbol: "USDC", DstSymbol: "ETH"},
		},
		{
			name:    "with chains and prefix",
			command: "swap 1.5 usdc@base to ws@sonic",
			want:    &Request{Amount: "1.5", SrcSymbol: "USDC", SrcChain: "base", DstSymbol: "WS", DstChain: "sonic"},
		},
		{
			name:    "bridge prefix and alias",
			command: "bridge 25 USDCE@bsc to USDC@solana",
			want:    &Request{Amount: "25", SrcSymbol: "USDC", SrcChain: "bsc", DstSymbol: "USDC", DstChain: "solana"},
		},
		{name: "missing amount", command: "USDC to ETH", wantErr: true},
		{name: "missing to", command: "1 USDC ETH", wantErr: true},
		{name: "negative", command: "-1 USDC to ETH", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.command)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAssetRef(t *testing.T) {
	symbol, chain, err := ParseAssetRef("usdc@Base")
	require.NoError(t, err)
	assert.Equal(t, "USDC", symbol)
	assert.Equal(t, types.ChainID("base"), chain)

	_, _, err = ParseAssetRef("USDC")
	assert.ErrorContains(t, err, "invalid token reference")
}

func TestResolve(t *testing.T) {
	reg := testutil.Registry(t)

	req, err := ParseCommand("2.5 USDC@base to USDC")
	require.NoError(t, err)

	resolved, err := Resolve(reg, req, testutil.HubChain, testutil.SolanaChain)
	require.NoError(t, err)
	assert.Equal(t, testutil.BaseChain, resolved.SrcChain)
	assert.Equal(t, testutil.SolanaChain, resolved.DstChain)
	assert.Equal(t, testutil.BaseUSDC, resolved.Src.Address)
	assert.Equal(t, testutil.SolanaUSDC, resolved.Dst.Address)
	assert.Equal(t, big.NewInt(2_500_000), resolved.Amount)
}

func TestResolveErrors(t *testing.T) {
	reg := testutil.Registry(t)

	req, err := ParseCommand("1 DOGE@base to USDC@solana")
	require.NoError(t, err)
	_, err = Resolve(reg, req, "", "")
	assert.ErrorIs(t, err, types.ErrAssetNotFound)

	req, err = ParseCommand("1 USDC to USDC")
	require.NoError(t, err)
	_, err = Resolve(reg, req, "", "")
	assert.ErrorContains(t, err, "chains are required")

	req, err = ParseCommand("1 USDC@mars to USDC@base")
	require.NoError(t, err)
	_, err = Resolve(reg, req, "", "")
	assert.ErrorIs(t, err, types.ErrUnknownChain)
}

func TestToBaseUnits(t *testing.T) {
	got, err := ToBaseUnits("1.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_001), got)

	got, err = ToBaseUnits("3", 18)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("3000000000000000000", 10)
	assert.Equal(t, want, got)

	_, err = ToBaseUnits("0.0000001", 6)
	assert.ErrorContains(t, err, "more than 6 decimals")

	_, err = ToBaseUnits("0", 6)
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = ToBaseUnits("abc", 6)
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
}
