// Package hub reads hub chain state and encodes the calls, intents and
// messages the hub contracts execute.
package hub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// SimulationSentinel is the revert reason simulateRecvMessage ends with when
// the payload executed cleanly.
const SimulationSentinel = "Simulation completed"

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "hub").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "hub").Logger()
}

// Client performs read-only calls against the hub contracts
type Client struct {
	backend Backend
	config  registry.HubConfig
}

// NewClient creates a hub reader
func NewClient(backend Backend, cfg registry.HubConfig) *Client {
	return &Client{backend: backend, config: cfg}
}

// Config returns the hub contracts the client talks to
func (c *Client) Config() registry.HubConfig {
	return c.config
}

// Backend exposes the underlying RPC connection
func (c *Client) Backend() Backend {
	return c.backend
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	values, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

// VaultTokenInfo reads the per-asset configuration of a vault
func (c *Client) VaultTokenInfo(ctx context.Context, vault, token common.Address) (types.VaultTokenInfo, error) {
	values, err := c.call(ctx, VaultABI, vault, "getTokenInfo", token)
	if err != nil {
		return types.VaultTokenInfo{}, err
	}
	if len(values) != 5 {
		return types.VaultTokenInfo{}, fmt.Errorf("getTokenInfo returned %d values", len(values))
	}
	return types.VaultTokenInfo{
		Decimals:      values[0].(uint8),
		DepositFee:    values[1].(*big.Int),
		WithdrawalFee: values[2].(*big.Int),
		MaxDeposit:    values[3].(*big.Int),
		IsSupported:   values[4].(bool),
	}, nil
}

// VaultReserves reads what a vault currently holds. Never cached.
func (c *Client) VaultReserves(ctx context.Context, vault common.Address) (types.VaultReserves, error) {
	values, err := c.call(ctx, VaultABI, vault, "getVaultReserves")
	if err != nil {
		return types.VaultReserves{}, err
	}
	if len(values) != 2 {
		return types.VaultReserves{}, fmt.Errorf("getVaultReserves returned %d values", len(values))
	}
	reserves := types.VaultReserves{
		Tokens:   values[0].([]common.Address),
		Balances: values[1].([]*big.Int),
	}
	if len(reserves.Tokens) != len(reserves.Balances) {
		return types.VaultReserves{}, fmt.Errorf("vault %s returned %d tokens and %d balances",
			vault.Hex(), len(reserves.Tokens), len(reserves.Balances))
	}
	return reserves, nil
}

// WalletCodeHash reads the init code hash hub wallets are deployed with
func (c *Client) WalletCodeHash(ctx context.Context) (common.Hash, error) {
	values, err := c.call(ctx, WalletFactoryABI, c.config.WalletFactory, "proxyCodeHash")
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(values[0].([32]byte)), nil
}

// DeployedWallet asks the factory for the wallet of a spoke account
func (c *Client) DeployedWallet(ctx context.Context, relayChainID types.RelayChainID, address []byte) (common.Address, error) {
	values, err := c.call(ctx, WalletFactoryABI, c.config.WalletFactory, "getDeployedAddress",
		new(big.Int).SetUint64(uint64(relayChainID)), address)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// TokenBalance reads an ERC20 balance on the hub
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	values, err := c.call(ctx, ERC20ABI, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// Simulate dry-runs a wallet payload as if it arrived from srcAddress on the
// given spoke. The factory always reverts; only the sentinel reason means the
// payload would have executed.
func (c *Client) Simulate(ctx context.Context, relayChainID types.RelayChainID, srcAddress, payload []byte) error {
	data, err := WalletFactoryABI.Pack("simulateRecvMessage",
		new(big.Int).SetUint64(uint64(relayChainID)), srcAddress, payload)
	if err != nil {
		return types.NewSettlementError(types.CodeSimulationFailed, fmt.Errorf("failed to pack simulation: %w", err))
	}

	factory := c.config.WalletFactory
	_, callErr := c.backend.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if callErr == nil {
		return types.NewSettlementError(types.CodeSimulationFailed, errors.New("simulation did not revert"))
	}

	reason := revertReason(callErr)
	if reason == SimulationSentinel {
		log.Debug().Uint64("relay_chain_id", uint64(relayChainID)).Msg("Simulation passed")
		return nil
	}

	log.Warn().Str("reason", reason).Err(callErr).Msg("Simulation rejected payload")
	return types.NewSettlementError(types.CodeSimulationFailed, fmt.Errorf("simulation reverted: %w", callErr))
}

// revertReason extracts the Error(string) reason from an eth_call failure,
// falling back to the error text for nodes that do not return revert data.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}
	if strings.Contains(err.Error(), SimulationSentinel) {
		return SimulationSentinel
	}
	return ""
}
