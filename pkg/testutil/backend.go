package testutil

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// CallHandler receives the decoded inputs of a contract call and returns the
// outputs to pack, or an error to surface from CallContract.
type CallHandler func(args []interface{}) ([]interface{}, error)

// RevertError mimics the JSON-RPC error geth returns for a reverted eth_call
type RevertError struct {
	Reason string
	Data   string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// ErrorCode implements rpc.Error
func (e *RevertError) ErrorCode() int {
	return 3
}

// ErrorData implements rpc.DataError
func (e *RevertError) ErrorData() interface{} {
	return e.Data
}

// NewRevertError encodes reason as Error(string) revert data
func NewRevertError(reason string) *RevertError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return &RevertError{Reason: reason, Data: hexutil.Encode(append(selector, packed...))}
}

type registeredCall struct {
	method  abi.Method
	handler CallHandler
}

// FakeBackend is an in-memory hub.Backend. Contract calls are dispatched by
// target address and method selector.
type FakeBackend struct {
	mu sync.Mutex

	calls    map[string]registeredCall
	receipts map[common.Hash]*ethtypes.Receipt
	balances map[common.Address]*big.Int

	Sent     []*ethtypes.Transaction
	Gas      uint64
	GasPrice *big.Int
	Chain    *big.Int
	// FailReceipts marks sent transactions as reverted
	FailReceipts bool
	nonce        uint64
}

// NewFakeBackend creates an empty backend for chain id 146
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		calls:    make(map[string]registeredCall),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		balances: make(map[common.Address]*big.Int),
		Gas:      100_000,
		GasPrice: big.NewInt(1_000_000_000),
		Chain:    big.NewInt(146),
	}
}

func callKey(to common.Address, selector []byte) string {
	return strings.ToLower(to.Hex()) + hexutil.Encode(selector)
}

// Handle registers a handler for method of contract deployed at to
func (f *FakeBackend) Handle(to common.Address, contract abi.ABI, method string, handler CallHandler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("testutil: unknown method %s", method))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[callKey(to, m.ID)] = registeredCall{method: m, handler: handler}
}

// Returns registers a handler that always returns outputs
func (f *FakeBackend) Returns(to common.Address, contract abi.ABI, method string, outputs ...interface{}) {
	f.Handle(to, contract, method, func([]interface{}) ([]interface{}, error) {
		return outputs, nil
	})
}

// Reverts registers a handler that always reverts with reason
func (f *FakeBackend) Reverts(to common.Address, contract abi.ABI, method string, reason string) {
	f.Handle(to, contract, method, func([]interface{}) ([]interface{}, error) {
		return nil, NewRevertError(reason)
	})
}

// SetBalance sets the native balance of an account
func (f *FakeBackend) SetBalance(account common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = amount
}

// SetReceipt stores a receipt for hash
func (f *FakeBackend) SetReceipt(hash common.Hash, receipt *ethtypes.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = receipt
}

// SentCount returns the number of broadcast transactions
func (f *FakeBackend) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *FakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("testutil: call without target or selector")
	}
	f.mu.Lock()
	call, ok := f.calls[callKey(*msg.To, msg.Data[:4])]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("testutil: no handler for %s selector %s", msg.To.Hex(), hexutil.Encode(msg.Data[:4]))
	}

	args, err := call.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("testutil: unpack %s: %w", call.method.Name, err)
	}
	outputs, err := call.handler(args)
	if err != nil {
		return nil, err
	}
	return call.method.Outputs.Pack(outputs...)
}

func (f *FakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.Gas, nil
}

func (f *FakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *FakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *FakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *FakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, tx)
	f.nonce++
	status := ethtypes.ReceiptStatusSuccessful
	if f.FailReceipts {
		status = ethtypes.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &ethtypes.Receipt{
		Status:            status,
		TxHash:            tx.Hash(),
		GasUsed:           f.Gas,
		EffectiveGasPrice: new(big.Int).Set(f.GasPrice),
		BlockNumber:       big.NewInt(int64(len(f.Sent))),
	}
	return nil
}

func (f *FakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *FakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.Chain), nil
}
