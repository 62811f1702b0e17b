package testutil

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/spoke"
	"hub-settle/pkg/types"
)

// MockAdapter is a testify mock of spoke.Adapter
type MockAdapter struct {
	mock.Mock
	Chain types.ChainID
	Kind  types.ChainFamily
}

var _ spoke.Adapter = (*MockAdapter)(nil)

// NewMockAdapter creates a mock for chain of family
func NewMockAdapter(chain types.ChainID, family types.ChainFamily) *MockAdapter {
	return &MockAdapter{Chain: chain, Kind: family}
}

func (m *MockAdapter) Family() types.ChainFamily { return m.Kind }
func (m *MockAdapter) ChainID() types.ChainID    { return m.Chain }

func (m *MockAdapter) Deposit(ctx context.Context, req spoke.DepositRequest) (*types.TxHandle, error) {
	args := m.Called(ctx, req)
	if h := args.Get(0); h != nil {
		return h.(*types.TxHandle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAdapter) CallWallet(ctx context.Context, req spoke.CallWalletRequest) (*types.TxHandle, error) {
	args := m.Called(ctx, req)
	if h := args.Get(0); h != nil {
		return h.(*types.TxHandle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	args := m.Called(ctx, handle)
	if f := args.Get(0); f != nil {
		return f.(*types.Fee), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	args := m.Called(ctx, token)
	if v := args.Get(0); v != nil {
		return v.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockAdapter) IsAllowanceValid(ctx context.Context, req spoke.AllowanceRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *MockAdapter) Approve(ctx context.Context, req spoke.AllowanceRequest) (*types.TxHandle, error) {
	args := m.Called(ctx, req)
	if h := args.Get(0); h != nil {
		return h.(*types.TxHandle), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSimulator is a testify mock of spoke.Simulator
type MockSimulator struct {
	mock.Mock
}

func (m *MockSimulator) Simulate(ctx context.Context, relayChainID types.RelayChainID, srcAddress, payload []byte) error {
	return m.Called(ctx, relayChainID, srcAddress, payload).Error(0)
}

// NewEVMSigner returns a signer over a fresh random key
func NewEVMSigner(t *testing.T) *spoke.EVMKeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := spoke.NewEVMKeySigner(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return signer
}
