// Package intent creates, relays and cancels solver intents. An intent locks
// the input on the hub intents contract until a solver fills it on the
// destination chain.
package intent

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"hub-settle/pkg/address"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/journal"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/solver"
	"hub-settle/pkg/spoke"
	"hub-settle/pkg/types"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "intent").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "intent").Logger()
}

// Journal detail keys of intent records
const (
	DetailIntent     = "intent"
	DetailSrcAddress = "src_address"
	DetailIntentHash = "intent_hash"
)

var maxIntentID = new(big.Int).Lsh(big.NewInt(1), 256)

// WalletDeriver resolves the hub wallet of a spoke account
type WalletDeriver interface {
	Derive(ctx context.Context, chainID types.ChainID, account string) (common.Address, error)
}

// Relayer is the part of the relay API the engine drives
type Relayer interface {
	SubmitWithData(ctx context.Context, chainID types.RelayChainID, txHash, data string) (*relay.SubmitResponse, error)
	WaitUntilExecuted(ctx context.Context, chainID types.RelayChainID, txHash string, timeout time.Duration) (*types.PacketData, error)
}

// Solver is the solver API
type Solver interface {
	GetQuote(ctx context.Context, req types.QuoteRequest) (*solver.QuoteResponse, error)
	PostExecution(ctx context.Context, intentTxHash string) (*solver.ExecuteResponse, error)
	GetStatus(ctx context.Context, intentTxHash string) (*solver.StatusResponse, error)
	WaitUntilSolved(ctx context.Context, intentTxHash string, timeout time.Duration) (*solver.StatusResponse, error)
}

// AdapterResolver returns the chain adapter of a chain
type AdapterResolver func(chainID types.ChainID) (spoke.Adapter, error)

// Engine runs intent operations and is safe for concurrent use
type Engine struct {
	registry *registry.Registry
	wallets  WalletDeriver
	relay    Relayer
	solver   Solver
	adapters AdapterResolver
	journal  *journal.Journal
	random   io.Reader
	progress func(types.IntentState)

	verifyAttempts uint
	verifyDelay    time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithJournal records every intent in j
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

// WithRandom replaces the source of intent ids
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// WithProgress calls fn with every state a submitted intent enters
func WithProgress(fn func(types.IntentState)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// NewEngine creates an intent engine
func NewEngine(reg *registry.Registry, wallets WalletDeriver, relayer Relayer, s Solver, adapters AdapterResolver, opts ...Option) *Engine {
	e := &Engine{
		registry:       reg,
		wallets:        wallets,
		relay:          relayer,
		solver:         s,
		adapters:       adapters,
		random:         rand.Reader,
		verifyAttempts: spoke.DefaultVerifyAttempts,
		verifyDelay:    spoke.DefaultVerifyDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Created is an intent whose deposit was sent (or prepared, on dry run)
type Created struct {
	Intent     *types.Intent
	IntentHash common.Hash
	Handle     *types.TxHandle
	HubWallet  common.Address
	Payload    []byte
}

// Settlement is the outcome of CreateAndSubmitIntent
type Settlement struct {
	Intent      *types.Intent
	SpokeTxHash string
	Packet      *types.PacketData
	Execution   *solver.ExecuteResponse
	State       types.IntentState
	// History lists every state in the order it was entered
	History   []types.IntentState
	JournalID string
}

// advance moves s to state. A terminal state is never left.
func (e *Engine) advance(s *Settlement, state types.IntentState) {
	if s.State.Terminal() || s.State == state {
		return
	}
	s.State = state
	s.History = append(s.History, state)
	if e.progress != nil {
		e.progress(state)
	}
}

// BuildIntent resolves params into the intent the hub will store. The fee is
// charged on top of InputAmount so the swap itself is never reduced.
func (e *Engine) BuildIntent(ctx context.Context, params *types.CreateIntentParams, fee *types.PartnerFee) (*types.Intent, common.Address, error) {
	if err := params.Validate(); err != nil {
		return nil, common.Address{}, err
	}
	if err := fee.Validate(); err != nil {
		return nil, common.Address{}, err
	}

	srcChain, err := e.registry.Chain(params.SrcChain)
	if err != nil {
		return nil, common.Address{}, err
	}
	dstChain, err := e.registry.Chain(params.DstChain)
	if err != nil {
		return nil, common.Address{}, err
	}
	if !e.registry.IsValidOriginalAsset(srcChain.ID, params.InputToken) {
		return nil, common.Address{}, fmt.Errorf("%w: input token %s on %s", types.ErrAssetNotFound, params.InputToken, srcChain.ID)
	}
	if !e.registry.IsValidOriginalAsset(dstChain.ID, params.OutputToken) {
		return nil, common.Address{}, fmt.Errorf("%w: output token %s on %s", types.ErrAssetNotFound, params.OutputToken, dstChain.ID)
	}
	input, err := e.registry.HubAsset(srcChain.ID, params.InputToken)
	if err != nil {
		return nil, common.Address{}, err
	}
	output, err := e.registry.HubAsset(dstChain.ID, params.OutputToken)
	if err != nil {
		return nil, common.Address{}, err
	}

	srcAddress, err := address.EncodeForChain(srcChain, params.SrcAddress)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid source address: %w", err)
	}
	dstAddress, err := address.EncodeForChain(dstChain, params.DstAddress)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid destination address: %w", err)
	}

	creator, err := e.wallets.Derive(ctx, srcChain.ID, params.SrcAddress)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to derive hub wallet: %w", err)
	}

	id, err := rand.Int(e.random, maxIntentID)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to generate intent id: %w", err)
	}

	feeAmount := fee.Compute(params.InputAmount)
	if !types.FitsUint256(new(big.Int).Add(params.InputAmount, feeAmount)) {
		return nil, common.Address{}, fmt.Errorf("%w: input plus fee exceeds uint256", types.ErrInvalidAmount)
	}
	data := params.Data
	if feeAmount.Sign() > 0 {
		// The fee descriptor owns the data field
		if len(data) > 0 {
			return nil, common.Address{}, fmt.Errorf("intent data cannot be combined with a partner fee")
		}
		data, err = hub.EncodeIntentFeeData(fee.Address, feeAmount)
		if err != nil {
			return nil, common.Address{}, err
		}
	}

	return &types.Intent{
		IntentID:         id,
		Creator:          creator,
		InputToken:       input.Asset,
		OutputToken:      output.Asset,
		InputAmount:      new(big.Int).Set(params.InputAmount),
		MinOutputAmount:  new(big.Int).Set(params.MinOutputAmount),
		Deadline:         new(big.Int).SetUint64(params.Deadline),
		AllowPartialFill: params.AllowPartialFill,
		SrcChain:         srcChain.RelayChainID,
		DstChain:         dstChain.RelayChainID,
		SrcAddress:       srcAddress,
		DstAddress:       dstAddress,
		Solver:           params.Solver,
		Data:             data,
		FeeAmount:        feeAmount,
	}, creator, nil
}

// CreateIntent builds the intent and sends the spoke deposit of input plus
// fee, whose payload approves the intents contract and creates the intent.
func (e *Engine) CreateIntent(ctx context.Context, params *types.CreateIntentParams, fee *types.PartnerFee, dryRun bool) (*Created, error) {
	created, err := e.createIntent(ctx, params, fee, dryRun)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeCreationFailed, err)
	}
	return created, nil
}

func (e *Engine) createIntent(ctx context.Context, params *types.CreateIntentParams, fee *types.PartnerFee, dryRun bool) (*Created, error) {
	intent, creator, err := e.BuildIntent(ctx, params, fee)
	if err != nil {
		return nil, err
	}
	adapter, err := e.adapters(params.SrcChain)
	if err != nil {
		return nil, err
	}

	total := new(big.Int).Add(intent.InputAmount, intent.FeeAmount)
	intents := e.registry.Hub().Intents
	payload, err := hub.EncodeContractCalls([]types.ContractCall{
		hub.ApproveCall(intent.InputToken, intents, total),
		hub.CreateIntentCall(intents, intent),
	})
	if err != nil {
		return nil, err
	}
	intentHash, err := hub.IntentHash(intent)
	if err != nil {
		return nil, err
	}

	handle, err := adapter.Deposit(ctx, spoke.DepositRequest{
		From:   params.SrcAddress,
		To:     creator,
		Token:  params.InputToken,
		Amount: total,
		Data:   payload,
		DryRun: dryRun,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("intent_hash", intentHash.Hex()).
		Str("src_chain", string(params.SrcChain)).
		Str("dst_chain", string(params.DstChain)).
		Str("tx_hash", handle.Hash).
		Msg("Intent deposit created")

	return &Created{Intent: intent, IntentHash: intentHash, Handle: handle, HubWallet: creator, Payload: payload}, nil
}

// CreateAndSubmitIntent runs the whole flow: deposit, spoke finality, relay
// submission, hub execution and the solver notification. Each stage fails
// with its own code; errors after the deposit carry the spoke tx.
func (e *Engine) CreateAndSubmitIntent(ctx context.Context, params *types.CreateIntentParams, fee *types.PartnerFee, timeout time.Duration) (*Settlement, error) {
	relayChainID, err := e.registry.RelayChainID(params.SrcChain)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeCreationFailed, err)
	}

	tracker := e.journal.Track(journal.KindIntent, params.SrcChain, relayChainID, map[string]string{
		DetailSrcAddress: params.SrcAddress,
	})

	settlement, err := e.createAndSubmit(ctx, params, fee, relayChainID, timeout, tracker)
	if settlement != nil {
		settlement.JournalID = tracker.ID()
	}
	if errors.Is(err, types.ErrPostExecutionFailed) {
		// 'recover notify' or the watcher retries the notification
		tracker.NotifyFailed(err)
		return settlement, err
	}
	if err != nil {
		tracker.Fail(err)
		return settlement, err
	}
	tracker.Stage(journal.StageSolved)
	return settlement, nil
}

func (e *Engine) createAndSubmit(ctx context.Context, params *types.CreateIntentParams, fee *types.PartnerFee, relayChainID types.RelayChainID, timeout time.Duration, tracker *journal.Tracker) (*Settlement, error) {
	created, err := e.CreateIntent(ctx, params, fee, false)
	if err != nil {
		return nil, err
	}
	handle := created.Handle
	settlement := &Settlement{Intent: created.Intent, SpokeTxHash: handle.Hash}
	e.advance(settlement, types.IntentSubmitted)

	if raw, err := json.Marshal(created.Intent); err == nil {
		tracker.Detail(DetailIntent, string(raw))
	}
	tracker.Detail(DetailIntentHash, created.IntentHash.Hex())
	tracker.SpokeSent(handle)

	packet, err := e.relayTx(ctx, params.SrcChain, relayChainID, handle, timeout, tracker, func(state types.IntentState) {
		e.advance(settlement, state)
	})
	settlement.Packet = packet
	if err != nil {
		e.advance(settlement, stateOf(err))
		return settlement, err
	}
	e.advance(settlement, types.IntentExecuted)
	tracker.Executed(packet.DstTxHash)

	execution, err := e.solver.PostExecution(ctx, packet.DstTxHash)
	if err != nil {
		return settlement, types.NewSettlementError(types.CodePostExecutionFailed, err).
			WithTx(params.SrcChain, handle.Hash).
			WithPayload(packet)
	}
	settlement.Execution = execution
	return settlement, nil
}

// RelayTx waits for spoke finality of a sent transaction and relays it to
// the hub. Hub-local transactions are final on their own chain and return a
// synthetic executed packet.
func (e *Engine) RelayTx(ctx context.Context, chainID types.ChainID, handle *types.TxHandle, timeout time.Duration) (*types.PacketData, error) {
	relayChainID, err := e.registry.RelayChainID(chainID)
	if err != nil {
		return nil, err
	}
	return e.relayTx(ctx, chainID, relayChainID, handle, timeout, nil, nil)
}

// relayTx reports RELAYED once the relay acknowledged the transaction and
// AWAITING_EXECUTION while it waits for the hub packet
func (e *Engine) relayTx(ctx context.Context, chainID types.ChainID, relayChainID types.RelayChainID, handle *types.TxHandle, timeout time.Duration, tracker *journal.Tracker, report func(types.IntentState)) (*types.PacketData, error) {
	if report == nil {
		report = func(types.IntentState) {}
	}
	if !handle.Sent() {
		return nil, fmt.Errorf("transaction was not broadcast")
	}
	adapter, err := e.adapters(chainID)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeSubmitTxFailed, err).WithTx(chainID, handle.Hash)
	}
	if err := spoke.AwaitFinality(ctx, adapter, handle.Hash, e.verifyAttempts, e.verifyDelay); err != nil {
		return nil, err
	}
	tracker.Stage(journal.StageVerified)

	if e.registry.IsHub(chainID) {
		return &types.PacketData{
			SrcChainID: relayChainID,
			SrcTxHash:  handle.Hash,
			Status:     types.PacketExecuted,
			DstChainID: relayChainID,
			DstTxHash:  handle.Hash,
		}, nil
	}

	if _, err := e.relay.SubmitWithData(ctx, relayChainID, handle.Hash, handle.RelayData); err != nil {
		return nil, withTx(err, types.CodeSubmitTxFailed, chainID, handle.Hash)
	}
	tracker.Stage(journal.StageSubmitted)
	report(types.IntentRelayed)

	report(types.IntentAwaitingExecution)
	packet, err := e.relay.WaitUntilExecuted(ctx, relayChainID, handle.Hash, timeout)
	if err != nil {
		return packet, withTx(err, types.CodeTimeout, chainID, handle.Hash)
	}
	return packet, nil
}

// CancelIntent asks the creator's hub wallet to cancel intent. The intents
// contract decides whether the intent can still be cancelled; a filled intent
// is rejected by the hub simulation before anything is sent.
func (e *Engine) CancelIntent(ctx context.Context, from string, intent *types.Intent, dryRun bool) (*types.TxHandle, error) {
	handle, err := e.cancelIntent(ctx, from, intent, dryRun)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeCancelFailed, err)
	}
	e.trackCancel(from, intent, handle)
	return handle, nil
}

// Cancellation is the outcome of CancelAndSubmitIntent
type Cancellation struct {
	Handle    *types.TxHandle
	Packet    *types.PacketData
	JournalID string
}

// CancelAndSubmitIntent sends the cancellation and relays it to the hub. The
// intent is cancelled once the returned packet executed.
func (e *Engine) CancelAndSubmitIntent(ctx context.Context, from string, intent *types.Intent, timeout time.Duration) (*Cancellation, error) {
	handle, err := e.cancelIntent(ctx, from, intent, false)
	if err != nil {
		return nil, types.NewSettlementError(types.CodeCancelFailed, err)
	}
	tracker := e.trackCancel(from, intent, handle)
	result := &Cancellation{Handle: handle, JournalID: tracker.ID()}

	chainID := handle.ChainID
	packet, err := e.relayTx(ctx, chainID, intent.SrcChain, handle, timeout, tracker, nil)
	result.Packet = packet
	if err != nil {
		tracker.Fail(err)
		return result, err
	}
	tracker.Executed(packet.DstTxHash)
	tracker.Stage(journal.StageCancelled)
	return result, nil
}

func (e *Engine) trackCancel(from string, intent *types.Intent, handle *types.TxHandle) *journal.Tracker {
	if !handle.Sent() {
		return nil
	}
	tracker := e.journal.Track(journal.KindCancel, handle.ChainID, intent.SrcChain, map[string]string{
		DetailSrcAddress: from,
		"intent_id":      intent.IntentID.String(),
	})
	tracker.SpokeSent(handle)
	return tracker
}

func (e *Engine) cancelIntent(ctx context.Context, from string, intent *types.Intent, dryRun bool) (*types.TxHandle, error) {
	if intent == nil {
		return nil, fmt.Errorf("intent is required")
	}
	chainID, err := e.registry.ChainByRelayID(intent.SrcChain)
	if err != nil {
		return nil, err
	}
	hubWallet, err := e.wallets.Derive(ctx, chainID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to derive hub wallet: %w", err)
	}
	if hubWallet != intent.Creator {
		return nil, fmt.Errorf("intent was created by %s, not by the hub wallet %s of %s", intent.Creator.Hex(), hubWallet.Hex(), from)
	}

	adapter, err := e.adapters(chainID)
	if err != nil {
		return nil, err
	}
	payload, err := hub.EncodeContractCalls([]types.ContractCall{
		hub.CancelIntentCall(e.registry.Hub().Intents, intent),
	})
	if err != nil {
		return nil, err
	}

	handle, err := adapter.CallWallet(ctx, spoke.CallWalletRequest{
		From:      from,
		HubWallet: hubWallet,
		Payload:   payload,
		DryRun:    dryRun,
	})
	if err != nil {
		return nil, err
	}
	if handle.ChainID == "" {
		handle.ChainID = chainID
	}
	log.Info().Str("intent_id", intent.IntentID.String()).Str("tx_hash", handle.Hash).Msg("Intent cancellation sent")
	return handle, nil
}

// GetQuote asks the solver for a price after checking both tokens are known
func (e *Engine) GetQuote(ctx context.Context, req types.QuoteRequest) (*solver.QuoteResponse, error) {
	if !e.registry.IsValidOriginalAsset(req.TokenSrcChain, req.TokenSrc) {
		return nil, fmt.Errorf("%w: %s on %s", types.ErrAssetNotFound, req.TokenSrc, req.TokenSrcChain)
	}
	if !e.registry.IsValidOriginalAsset(req.TokenDstChain, req.TokenDst) {
		return nil, fmt.Errorf("%w: %s on %s", types.ErrAssetNotFound, req.TokenDst, req.TokenDstChain)
	}
	return e.solver.GetQuote(ctx, req)
}

// GetStatus returns the solver status of the intent created in intentTxHash
func (e *Engine) GetStatus(ctx context.Context, intentTxHash string) (*solver.StatusResponse, error) {
	return e.solver.GetStatus(ctx, intentTxHash)
}

// WaitUntilSolved polls the solver until the intent is solved or failed
func (e *Engine) WaitUntilSolved(ctx context.Context, intentTxHash string, timeout time.Duration) (*solver.StatusResponse, error) {
	return e.solver.WaitUntilSolved(ctx, intentTxHash, timeout)
}

// IntentFromRecord restores the intent stored in a journal record
func IntentFromRecord(record *journal.Record) (*types.Intent, string, error) {
	raw, ok := record.Detail[DetailIntent]
	if !ok {
		return nil, "", fmt.Errorf("record '%s' holds no intent", record.ID)
	}
	var intent types.Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, "", fmt.Errorf("failed to decode intent of record '%s': %w", record.ID, err)
	}
	return &intent, record.Detail[DetailSrcAddress], nil
}

func stateOf(err error) types.IntentState {
	if errors.Is(err, types.ErrTimeout) {
		return types.IntentTimeout
	}
	return types.IntentFailed
}

// withTx attaches the spoke tx to a settlement error, wrapping foreign errors
// with code
func withTx(err error, code types.ErrorCode, chainID types.ChainID, hash string) error {
	var se *types.SettlementError
	if !errors.As(err, &se) {
		se = types.NewSettlementError(code, err)
	}
	return se.WithTx(chainID, hash)
}
