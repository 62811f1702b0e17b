package bridge_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/bridge"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/journal"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/spoke"
	"hub-settle/pkg/testutil"
	"hub-settle/pkg/types"
	"hub-settle/pkg/vault"
	"hub-settle/pkg/wallet"
)

var (
	sender      = "0x1111111111111111111111111111111111111111"
	recipient   = "0x2222222222222222222222222222222222222222"
	feeReceiver = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeVaults struct {
	info     types.VaultTokenInfo
	reserves types.VaultReserves
}

func (f *fakeVaults) VaultTokenInfo(ctx context.Context, v, token common.Address) (types.VaultTokenInfo, error) {
	return f.info, nil
}

func (f *fakeVaults) VaultReserves(ctx context.Context, v common.Address) (types.VaultReserves, error) {
	return f.reserves, nil
}

type fixture struct {
	reg      *registry.Registry
	engine   *bridge.Engine
	adapters map[types.ChainID]*testutil.MockAdapter
	relay    *testutil.RelayServer
	client   *relay.Client
	journal  *journal.Journal
	vaults   *fakeVaults
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := testutil.Registry(t)

	f := &fixture{
		reg: reg,
		adapters: map[types.ChainID]*testutil.MockAdapter{
			testutil.BaseChain: testutil.NewMockAdapter(testutil.BaseChain, types.FamilyEVM),
			testutil.HubChain:  testutil.NewMockAdapter(testutil.HubChain, types.FamilyHub),
		},
		relay:  testutil.NewRelayServer(t),
		vaults: &fakeVaults{},
	}
	hc := httpjson.New(f.relay.URL, httpjson.WithRetry(httpjson.RetryConfig{}))
	f.client = relay.NewClientWithHTTP(hc, relay.WithClock(testutil.NewFakeClock()), relay.WithPollInterval(2*time.Second))

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.json"))
	require.NoError(t, err)
	f.journal = j

	resolve := func(id types.ChainID) (spoke.Adapter, error) {
		if a, ok := f.adapters[id]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("no adapter for %s", id)
	}
	custody := func(id types.ChainID) (vault.CustodyReader, error) {
		a, err := resolve(id)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	accountant := vault.NewAccountant(reg, f.vaults, custody)

	f.engine = bridge.NewEngine(reg, wallet.NewDeriver(reg, nil), accountant, f.client, resolve,
		bridge.WithJournal(j),
		bridge.WithVerifyRetry(2, time.Millisecond),
	)
	return f
}

func baseToBSC() *types.BridgeParams {
	return &types.BridgeParams{
		SrcChain:  testutil.BaseChain,
		From:      sender,
		SrcAsset:  testutil.BaseUSDC,
		Amount:    big.NewInt(1_000_000),
		DstChain:  testutil.BSCChain,
		DstAsset:  testutil.BSCUSDC,
		Recipient: recipient,
	}
}

func unpack(t *testing.T, contract abi.ABI, method string, data []byte) []interface{} {
	t.Helper()
	m := contract.Methods[method]
	require.Equal(t, m.ID, data[:4], "selector of %s", method)
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return args
}

func TestBuildBridgeCalls_FeeInVaultUnits(t *testing.T) {
	f := newFixture(t)
	params := baseToBSC()
	params.PartnerFee = &types.PartnerFee{Address: feeReceiver, Percentage: 100}

	src, err := f.reg.HubAsset(params.SrcChain, params.SrcAsset)
	require.NoError(t, err)
	dst, err := f.reg.HubAsset(params.DstChain, params.DstAsset)
	require.NoError(t, err)

	calls, err := f.engine.BuildBridgeCalls(params, src, dst)
	require.NoError(t, err)
	require.Len(t, calls, 5)

	// approve + deposit
	assert.Equal(t, testutil.BaseUSDCHub, calls[0].Address)
	args := unpack(t, hub.ERC20ABI, "approve", calls[0].Data)
	assert.Equal(t, testutil.USDCVault, args[0])
	assert.Equal(t, "1000000", args[1].(*big.Int).String())

	assert.Equal(t, testutil.USDCVault, calls[1].Address)
	args = unpack(t, hub.VaultABI, "deposit", calls[1].Data)
	assert.Equal(t, testutil.BaseUSDCHub, args[0])

	// fee
	assert.Equal(t, testutil.USDCVault, calls[2].Address)
	args = unpack(t, hub.ERC20ABI, "transfer", calls[2].Data)
	assert.Equal(t, feeReceiver, args[0])
	assert.Equal(t, "10000", args[1].(*big.Int).String())

	// withdraw in vault units
	args = unpack(t, hub.VaultABI, "withdraw", calls[3].Data)
	assert.Equal(t, testutil.BSCUSDCHub, args[0])
	assert.Equal(t, "990000", args[1].(*big.Int).String())

	// release on BSC in 18 decimals
	assert.Equal(t, testutil.HubAssetManager, calls[4].Address)
	args = unpack(t, hub.AssetManagerABI, "transfer", calls[4].Data)
	assert.Equal(t, testutil.BSCUSDCHub, args[0])
	assert.Equal(t, common.HexToAddress(recipient).Bytes(), args[1])
	assert.Equal(t, "990000000000000000", args[2].(*big.Int).String())
}

func TestBuildBridgeCalls_VaultTokenSourceSkipsDeposit(t *testing.T) {
	f := newFixture(t)
	params := &types.BridgeParams{
		SrcChain:  testutil.HubChain,
		From:      sender,
		SrcAsset:  testutil.USDCVault.Hex(),
		Amount:    big.NewInt(5_000_000),
		DstChain:  testutil.BSCChain,
		DstAsset:  testutil.BSCUSDC,
		Recipient: recipient,
	}
	src, _ := f.reg.HubAsset(params.SrcChain, params.SrcAsset)
	dst, _ := f.reg.HubAsset(params.DstChain, params.DstAsset)

	calls, err := f.engine.BuildBridgeCalls(params, src, dst)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	unpack(t, hub.VaultABI, "withdraw", calls[0].Data)
	unpack(t, hub.AssetManagerABI, "transfer", calls[1].Data)
}

func TestBuildBridgeCalls_HubWrappedNativeIsUnwrapped(t *testing.T) {
	f := newFixture(t)
	params := &types.BridgeParams{
		SrcChain:  testutil.HubChain,
		From:      sender,
		SrcAsset:  testutil.WrappedSonic.Hex(),
		Amount:    big.NewInt(1e18),
		DstChain:  testutil.HubChain,
		DstAsset:  testutil.WrappedSonic.Hex(),
		Recipient: recipient,
	}
	src, _ := f.reg.HubAsset(params.SrcChain, params.SrcAsset)
	dst, _ := f.reg.HubAsset(params.DstChain, params.DstAsset)

	calls, err := f.engine.BuildBridgeCalls(params, src, dst)
	require.NoError(t, err)
	require.Len(t, calls, 5)

	unpack(t, hub.WrappedNativeABI, "withdraw", calls[3].Data)
	assert.Equal(t, common.HexToAddress(recipient), calls[4].Address)
	assert.Equal(t, "1000000000000000000", calls[4].Value.String())
	assert.Empty(t, calls[4].Data)
}

func TestBuildBridgeCalls_FeeCoversAmount(t *testing.T) {
	f := newFixture(t)
	params := baseToBSC()
	params.PartnerFee = &types.PartnerFee{Address: feeReceiver, Amount: big.NewInt(1_000_000)}
	src, _ := f.reg.HubAsset(params.SrcChain, params.SrcAsset)
	dst, _ := f.reg.HubAsset(params.DstChain, params.DstAsset)

	_, err := f.engine.BuildBridgeCalls(params, src, dst)
	assert.ErrorContains(t, err, "does not cover the fee")
}

func TestBuildBridgeCalls_AmountBeyondUint256(t *testing.T) {
	f := newFixture(t)
	params := baseToBSC()
	params.Amount = new(big.Int).Lsh(big.NewInt(1), 256)
	src, _ := f.reg.HubAsset(params.SrcChain, params.SrcAsset)
	dst, _ := f.reg.HubAsset(params.DstChain, params.DstAsset)

	assert.NotPanics(t, func() {
		_, err := f.engine.BuildBridgeCalls(params, src, dst)
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
	})

	_, err := f.engine.Bridge(context.Background(), params, time.Minute)
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
	f.adapters[testutil.BaseChain].AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything)

	// The largest uint256 is still encodable
	params.Amount = new(big.Int).Set(types.MaxUint256)
	_, err = f.engine.BuildBridgeCalls(params, src, dst)
	assert.NoError(t, err)
}

func expectDeposit(a *testutil.MockAdapter, hash string) {
	a.On("Deposit", mock.Anything, mock.MatchedBy(func(req spoke.DepositRequest) bool {
		return req.From == sender && req.Amount.Int64() == 1_000_000 && len(req.Data) > 0
	})).Return(&types.TxHandle{ChainID: a.Chain, Hash: hash}, nil).Once()
}

func TestBridge(t *testing.T) {
	f := newFixture(t)
	base := f.adapters[testutil.BaseChain]
	expectDeposit(base, "0xspoke")
	base.On("VerifyTx", mock.Anything, "0xspoke").Return(false, nil).Once()
	base.On("VerifyTx", mock.Anything, "0xspoke").Return(true, nil).Once()
	f.relay.SetStatus(types.PacketExecuted, "0xhub")

	result, err := f.engine.Bridge(context.Background(), baseToBSC(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "0xspoke", result.SpokeTxHash)
	assert.Equal(t, "0xhub", result.HubTxHash)
	base.AssertExpectations(t)

	submitted := f.relay.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "30", submitted[0]["chain_id"])

	record, err := f.journal.Get(result.JournalID)
	require.NoError(t, err)
	assert.Equal(t, journal.StageExecuted, record.Stage)
	assert.Equal(t, "0xhub", record.HubTxHash)
	assert.NotEmpty(t, record.Detail["payload"])
}

func TestBridge_TimeoutCanBeRepolled(t *testing.T) {
	f := newFixture(t)
	base := f.adapters[testutil.BaseChain]
	expectDeposit(base, "0xspoke")
	base.On("VerifyTx", mock.Anything, "0xspoke").Return(true, nil)

	_, err := f.engine.Bridge(context.Background(), baseToBSC(), 60*time.Second)
	require.ErrorIs(t, err, types.ErrTimeout)

	var se *types.SettlementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "0xspoke", se.TxHash)
	assert.Equal(t, testutil.BaseChain, se.ChainID)

	pending := f.journal.Pending()
	require.Len(t, pending, 1)

	// The relay delivers later and an independent poll sees it
	f.relay.SetStatus(types.PacketExecuted, "0xlate")
	packet, err := f.client.GetPacket(context.Background(), testutil.BaseRelayID, "0xspoke")
	require.NoError(t, err)
	assert.Equal(t, types.PacketExecuted, packet.Status)

	resolved, err := journal.NewWatcher(f.journal, f.client).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	record, _ := f.journal.Get(pending[0].ID)
	assert.Equal(t, "0xlate", record.HubTxHash)
}

func TestBridge_SubmitFailureIsCritical(t *testing.T) {
	f := newFixture(t)
	base := f.adapters[testutil.BaseChain]
	expectDeposit(base, "0xspoke")
	base.On("VerifyTx", mock.Anything, "0xspoke").Return(true, nil)
	f.relay.Reject(true)

	_, err := f.engine.Bridge(context.Background(), baseToBSC(), time.Minute)
	require.ErrorIs(t, err, types.ErrSubmitTxFailed)

	var se *types.SettlementError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Critical())
	assert.Equal(t, "0xspoke", se.TxHash)
	assert.Len(t, f.journal.Unsubmitted(), 1)
	assert.Zero(t, f.relay.Polls())
}

func TestBridge_UnverifiedTxIsNotSubmitted(t *testing.T) {
	f := newFixture(t)
	base := f.adapters[testutil.BaseChain]
	expectDeposit(base, "0xspoke")
	base.On("VerifyTx", mock.Anything, "0xspoke").Return(false, nil)

	_, err := f.engine.Bridge(context.Background(), baseToBSC(), time.Minute)
	require.ErrorIs(t, err, types.ErrVerificationFailed)
	assert.Empty(t, f.relay.Submitted())
	base.AssertNumberOfCalls(t, "VerifyTx", 2)
}

func TestBridge_DepositFailure(t *testing.T) {
	f := newFixture(t)
	base := f.adapters[testutil.BaseChain]
	base.On("Deposit", mock.Anything, mock.Anything).Return(nil, errors.New("insufficient funds"))

	_, err := f.engine.Bridge(context.Background(), baseToBSC(), time.Minute)
	require.ErrorIs(t, err, types.ErrCreateBridgeIntentFailed)
	assert.ErrorContains(t, err, "insufficient funds")
	assert.Empty(t, f.relay.Submitted())
}

func TestBridge_HubSourceSkipsRelay(t *testing.T) {
	f := newFixture(t)
	sonic := f.adapters[testutil.HubChain]
	sonic.On("Deposit", mock.Anything, mock.Anything).Return(&types.TxHandle{ChainID: testutil.HubChain, Hash: "0xlocal"}, nil)
	sonic.On("VerifyTx", mock.Anything, "0xlocal").Return(true, nil)

	params := &types.BridgeParams{
		SrcChain:  testutil.HubChain,
		From:      sender,
		SrcAsset:  testutil.USDCVault.Hex(),
		Amount:    big.NewInt(1_000_000),
		DstChain:  testutil.BSCChain,
		DstAsset:  testutil.BSCUSDC,
		Recipient: recipient,
	}
	result, err := f.engine.Bridge(context.Background(), params, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "0xlocal", result.SpokeTxHash)
	assert.Equal(t, "0xlocal", result.HubTxHash)
	assert.Empty(t, f.relay.Submitted())
}

func TestCreateBridgeIntent_DifferentVaults(t *testing.T) {
	f := newFixture(t)
	params := baseToBSC()
	params.DstChain = testutil.BaseChain
	params.DstAsset = testutil.BaseETH

	_, err := f.engine.CreateBridgeIntent(context.Background(), params, false)
	require.ErrorIs(t, err, types.ErrCreateBridgeIntentFailed)
	assert.ErrorIs(t, err, types.ErrNotBridgeable)
	f.adapters[testutil.BaseChain].AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything)
}

func TestAllowance(t *testing.T) {
	f := newFixture(t)
	base := f.adapters[testutil.BaseChain]
	base.On("IsAllowanceValid", mock.Anything, mock.MatchedBy(func(req spoke.AllowanceRequest) bool {
		return req.Owner == sender && req.Token == testutil.BaseUSDC
	})).Return(false, nil).Once()
	base.On("IsAllowanceValid", mock.Anything, mock.Anything).Return(false, errors.New("rpc down")).Once()
	base.On("Approve", mock.Anything, mock.Anything).Return(nil, types.ErrUnsupported)

	ok, err := f.engine.IsAllowanceValid(context.Background(), baseToBSC())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.engine.IsAllowanceValid(context.Background(), baseToBSC())
	assert.ErrorIs(t, err, types.ErrAllowanceCheckFailed)

	_, err = f.engine.Approve(context.Background(), baseToBSC())
	assert.ErrorIs(t, err, types.ErrApprovalFailed)
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestGetBridgeableAmount(t *testing.T) {
	f := newFixture(t)
	f.vaults.info = types.VaultTokenInfo{IsSupported: true, MaxDeposit: big.NewInt(5_000_000)}
	f.vaults.reserves = types.VaultReserves{
		Tokens:   []common.Address{testutil.BaseUSDCHub},
		Balances: []*big.Int{big.NewInt(2_000_000)},
	}

	limit, err := f.engine.GetBridgeableAmount(context.Background(),
		vault.Token{Chain: testutil.BaseChain, Address: testutil.BaseUSDC},
		vault.Token{Chain: testutil.HubChain, Address: testutil.USDCVault.Hex()})
	require.NoError(t, err)
	assert.Equal(t, types.DepositLimit, limit.Kind)
	assert.Equal(t, "3000000", limit.Amount.String())
}

func TestGetBridgeableAmount_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.GetBridgeableAmount(context.Background(),
		vault.Token{Chain: testutil.BaseChain, Address: testutil.BaseUSDC},
		vault.Token{Chain: testutil.BaseChain, Address: testutil.BaseETH})
	assert.ErrorIs(t, err, types.ErrNotBridgeable)

	_, err = f.engine.GetBridgeableAmount(context.Background(),
		vault.Token{Chain: testutil.BaseChain, Address: "0x000000000000000000000000000000000000dead"},
		vault.Token{Chain: testutil.BSCChain, Address: testutil.BSCUSDC})
	assert.ErrorIs(t, err, types.ErrAssetNotFound)
}
