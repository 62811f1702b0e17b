// Package bridge moves an asset between chains through the hub vaults. The
// spoke transaction carries a payload of hub calls which the user's hub
// wallet executes once the relay delivers it.
package bridge

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"hub-settle/pkg/address"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/journal"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/spoke"
	"hub-settle/pkg/types"
	"hub-settle/pkg/vault"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "bridge").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "bridge").Logger()
}

// WalletDeriver resolves the hub wallet of a spoke account
type WalletDeriver interface {
	Derive(ctx context.Context, chainID types.ChainID, account string) (common.Address, error)
}

// Relayer is the part of the relay API the engine drives
type Relayer interface {
	SubmitWithData(ctx context.Context, chainID types.RelayChainID, txHash, data string) (*relay.SubmitResponse, error)
	WaitUntilExecuted(ctx context.Context, chainID types.RelayChainID, txHash string, timeout time.Duration) (*types.PacketData, error)
}

// AdapterResolver returns the chain adapter of a chain
type AdapterResolver func(chainID types.ChainID) (spoke.Adapter, error)

// Engine runs bridge operations. It holds no per-operation state and is safe
// for concurrent use.
type Engine struct {
	registry   *registry.Registry
	wallets    WalletDeriver
	accountant *vault.Accountant
	relay      Relayer
	adapters   AdapterResolver
	journal    *journal.Journal

	verifyAttempts uint
	verifyDelay    time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithJournal records every bridge in j
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithVerifyRetry bounds how long the spoke finality check retries
func WithVerifyRetry(attempts uint, delay time.Duration) Option {
	return func(e *Engine) {
		e.verifyAttempts = attempts
		e.verifyDelay = delay
	}
}

// NewEngine creates a bridge engine
func NewEngine(reg *registry.Registry, wallets WalletDeriver, accountant *vault.Accountant, relayer Relayer, adapters AdapterResolver, opts ...Option) *Engine {
	e := &Engine{
		registry:       reg,
		wallets:        wallets,
		accountant:     accountant,
		relay:          relayer,
		adapters:       adapters,
		verifyAttempts: spoke.DefaultVerifyAttempts,
		verifyDelay:    spoke.DefaultVerifyDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Intent is a bridge deposit that was sent (or prepared, on dry run)
type Intent struct {
	Handle    *types.TxHandle
	HubWallet common.Address
	Calls     []types.ContractCall
	Payload   []byte
}

// Result identifies both sides of a completed bridge
type Result struct {
	SpokeTxHash string
	HubTxHash   string
	Packet      *types.PacketData
	JournalID   string
}

func (e *Engine) allowanceRequest(ctx context.Context, params *types.BridgeParams) (spoke.Adapter, spoke.AllowanceRequest, error) {
	adapter, err := e.adapters(params.SrcChain)
	if err != nil {
		return nil, spoke.AllowanceRequest{}, err
	}
	hubWallet, err := e.wallets.Derive(ctx, params.SrcChain, params.From)
	if err != nil {
		return nil, spoke.AllowanceRequest{}, fmt.Errorf("failed to derive hub wallet: %w", err)
	}
	return adapter, spoke.AllowanceRequest{
		Owner:     params.From,
		Token:     params.SrcAsset,
		Amount:    params.Amount,
		HubWallet: hubWallet,
	}, nil
}

// IsAllowanceValid reports whether the source side may pull the amount. The
// spender is the spoke asset manager, or the user's hub wallet on the hub
// chain. Chains without allowances always return true.
func (e *Engine) IsAllowanceValid(ctx context.Context, params *types.BridgeParams) (bool, error) {
	if err := params.Validate(); err != nil {
		return false, types.NewSettlementError(types.CodeAllowanceCheckFailed, err)
	}
	adapter, req, err := e.allowanceRequest(ctx, params)
	if err != nil {
		return false, types.NewSettlementError(types.CodeAllowanceCheckFailed, err)
	}
	ok, err := adapter.IsAllowanceValid(ctx, req)
	if err != nil {
		return false, types.NewSettlementError(types.CodeAllowanceCheckFailed, err)
	}
	return ok, nil
}

// Approve sends the approval transaction. Only EVM spokes and the hub chain
// support it.
func (e *Engine) Approve(ctx context.Context, params *types.BridgeParams) (*types.TxHandle, error) {
	if err := params.Validate(); err != nil {
		return nil, types.NewSettlementError(types.CodeApprovalFailed, err)
	}
	adapter, req, err := e.allowanceRequest(ctx, params)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeApprovalFailed, err)
	}
	handle, err := adapter.Approve(ctx, req)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeApprovalFailed, err)
	}
	log.Info().Str("chain", string(params.SrcChain)).Str("tx_hash", handle.Hash).Msg("Approval sent")
	return handle, nil
}

// BuildBridgeCalls returns the hub calls that move params.Amount from the
// source asset to the recipient, in this order:
//
//	approve + vault deposit  (source is not the vault token)
//	fee transfer             (fee is non-zero, in vault units)
//	vault withdraw           (destination is not the vault token)
//	final transfer           (hub transfer, unwrap + native send, or spoke release)
func (e *Engine) BuildBridgeCalls(params *types.BridgeParams, src, dst types.HubAssetInfo) ([]types.ContractCall, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 || !types.FitsUint256(params.Amount) {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidAmount, params.Amount)
	}
	var calls []types.ContractCall

	amount := new(big.Int).Set(params.Amount)
	if !src.IsVaultToken() {
		calls = append(calls,
			hub.ApproveCall(src.Asset, src.Vault, amount),
			hub.VaultDepositCall(src.Vault, src.Asset, amount),
		)
		amount = e.accountant.ToVault(src, amount)
		if !types.FitsUint256(amount) {
			return nil, fmt.Errorf("%w: %s vault units exceed uint256", types.ErrInvalidAmount, amount)
		}
	}

	fee := params.PartnerFee.Compute(amount)
	if fee.Sign() > 0 {
		calls = append(calls, hub.TransferCall(src.Vault, params.PartnerFee.Address, fee))
	}

	remaining := new(big.Int).Sub(amount, fee)
	if remaining.Sign() <= 0 {
		return nil, fmt.Errorf("amount %s does not cover the fee of %s vault units", amount, fee)
	}

	token := dst.Vault
	if !dst.IsVaultToken() {
		calls = append(calls, hub.VaultWithdrawCall(dst.Vault, dst.Asset, remaining))
		remaining = e.accountant.FromVault(dst, remaining)
		token = dst.Asset
		if remaining.Sign() == 0 {
			return nil, fmt.Errorf("amount is below the precision of the destination asset")
		}
	}

	if e.registry.IsHub(params.DstChain) {
		if !common.IsHexAddress(params.Recipient) {
			return nil, fmt.Errorf("invalid hub recipient address: %s", params.Recipient)
		}
		recipient := common.HexToAddress(params.Recipient)
		if e.registry.IsWrappedNative(token) {
			return append(calls,
				hub.UnwrapCall(token, remaining),
				hub.NativeTransferCall(recipient, remaining),
			), nil
		}
		return append(calls, hub.TransferCall(token, recipient, remaining)), nil
	}

	chain, err := e.registry.Chain(params.DstChain)
	if err != nil {
		return nil, err
	}
	to, err := address.EncodeForChain(chain, params.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	return append(calls, hub.AssetManagerTransferCall(e.registry.Hub().AssetManager, token, to, remaining)), nil
}

// BuildBridgeData is BuildBridgeCalls encoded as a wallet payload
func (e *Engine) BuildBridgeData(params *types.BridgeParams, src, dst types.HubAssetInfo) ([]byte, error) {
	calls, err := e.BuildBridgeCalls(params, src, dst)
	if err != nil {
		return nil, err
	}
	return hub.EncodeContractCalls(calls)
}

// CreateBridgeIntent builds the payload and sends the spoke deposit. With
// dryRun the deposit is only prepared.
func (e *Engine) CreateBridgeIntent(ctx context.Context, params *types.BridgeParams, dryRun bool) (*Intent, error) {
	intent, err := e.createBridgeIntent(ctx, params, dryRun)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeCreateBridgeIntentFailed, err)
	}
	return intent, nil
}

func (e *Engine) createBridgeIntent(ctx context.Context, params *types.BridgeParams, dryRun bool) (*Intent, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	src, err := e.registry.HubAsset(params.SrcChain, params.SrcAsset)
	if err != nil {
		return nil, err
	}
	dst, err := e.registry.HubAsset(params.DstChain, params.DstAsset)
	if err != nil {
		return nil, err
	}
	if !src.SameVault(dst) {
		return nil, types.NewSettlementError(types.CodeNotBridgeable,
			fmt.Errorf("%s on %s and %s on %s belong to different vaults", params.SrcAsset, params.SrcChain, params.DstAsset, params.DstChain))
	}

	adapter, err := e.adapters(params.SrcChain)
	if err != nil {
		return nil, err
	}
	hubWallet, err := e.wallets.Derive(ctx, params.SrcChain, params.From)
	if err != nil {
		return nil, fmt.Errorf("failed to derive hub wallet: %w", err)
	}

	calls, err := e.BuildBridgeCalls(params, src, dst)
	if err != nil {
		return nil, err
	}
	payload, err := hub.EncodeContractCalls(calls)
	if err != nil {
		return nil, err
	}

	handle, err := adapter.Deposit(ctx, spoke.DepositRequest{
		From:   params.From,
		To:     hubWallet,
		Token:  params.SrcAsset,
		Amount: params.Amount,
		Data:   payload,
		DryRun: dryRun,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("src_chain", string(params.SrcChain)).
		Str("dst_chain", string(params.DstChain)).
		Str("hub_wallet", hubWallet.Hex()).
		Str("tx_hash", handle.Hash).
		Int("calls", len(calls)).
		Msg("Bridge deposit created")

	return &Intent{Handle: handle, HubWallet: hubWallet, Calls: calls, Payload: payload}, nil
}

// Bridge runs the whole flow: deposit, spoke finality, relay submission and
// hub execution. A hub-local source executes in the deposit transaction and
// skips the relay. Errors after the deposit carry the spoke tx for recovery.
func (e *Engine) Bridge(ctx context.Context, params *types.BridgeParams, timeout time.Duration) (*Result, error) {
	relayChainID, err := e.registry.RelayChainID(params.SrcChain)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeCreateBridgeIntentFailed, err)
	}

	tracker := e.journal.Track(journal.KindBridge, params.SrcChain, relayChainID, map[string]string{
		"src_asset": params.SrcAsset,
		"dst_chain": string(params.DstChain),
		"dst_asset": params.DstAsset,
		"amount":    params.Amount.String(),
		"recipient": params.Recipient,
	})

	result, err := e.bridge(ctx, params, relayChainID, timeout, tracker)
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}
	result.JournalID = tracker.ID()
	tracker.Executed(result.HubTxHash)
	return result, nil
}

func (e *Engine) bridge(ctx context.Context, params *types.BridgeParams, relayChainID types.RelayChainID, timeout time.Duration, tracker *journal.Tracker) (*Result, error) {
	intent, err := e.CreateBridgeIntent(ctx, params, false)
	if err != nil {
		return nil, err
	}
	handle := intent.Handle
	tracker.Detail("payload", hexutil.Encode(intent.Payload))
	tracker.SpokeSent(handle)

	adapter, err := e.adapters(params.SrcChain)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeBridgeFailed, err).WithTx(params.SrcChain, handle.Hash)
	}
	if err := spoke.AwaitFinality(ctx, adapter, handle.Hash, e.verifyAttempts, e.verifyDelay); err != nil {
		return nil, err
	}
	tracker.Stage(journal.StageVerified)

	if e.registry.IsHub(params.SrcChain) {
		return &Result{SpokeTxHash: handle.Hash, HubTxHash: handle.Hash}, nil
	}

	if _, err := e.relay.SubmitWithData(ctx, relayChainID, handle.Hash, handle.RelayData); err != nil {
		return nil, withTx(err, params.SrcChain, handle.Hash)
	}
	tracker.Stage(journal.StageSubmitted)

	packet, err := e.relay.WaitUntilExecuted(ctx, relayChainID, handle.Hash, timeout)
	if err != nil {
		return nil, withTx(err, params.SrcChain, handle.Hash)
	}

	log.Info().
		Str("spoke_tx_hash", handle.Hash).
		Str("hub_tx_hash", packet.DstTxHash).
		Msg("Bridge executed on hub")

	return &Result{SpokeTxHash: handle.Hash, HubTxHash: packet.DstTxHash, Packet: packet}, nil
}

// GetBridgeableAmount returns how much of from can currently be bridged to to.
// Tokens of different vaults fail with NOT_BRIDGEABLE.
func (e *Engine) GetBridgeableAmount(ctx context.Context, from, to vault.Token) (*types.BridgeLimit, error) {
	if from.Address == "" || to.Address == "" {
		return nil, fmt.Errorf("both tokens are required")
	}
	if !e.registry.IsValidOriginalAsset(from.Chain, from.Address) {
		return nil, fmt.Errorf("%w: %s", types.ErrAssetNotFound, from)
	}
	if !e.registry.IsValidOriginalAsset(to.Chain, to.Address) {
		return nil, fmt.Errorf("%w: %s", types.ErrAssetNotFound, to)
	}
	if !e.accountant.IsBridgeable(from, to) {
		return nil, types.NewSettlementError(types.CodeNotBridgeable,
			fmt.Errorf("%s and %s belong to different vaults", from, to))
	}
	return e.accountant.ComputeBridgeLimit(ctx, from, to)
}

// withTx attaches the spoke tx to a settlement error, wrapping foreign errors
// as BRIDGE_FAILED
func withTx(err error, chainID types.ChainID, hash string) error {
	se, ok := err.(*types.SettlementError)
	if !ok {
		se = types.NewSettlementError(types.CodeBridgeFailed, err)
	}
	return se.WithTx(chainID, hash)
}
