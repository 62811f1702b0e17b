package spoke

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"hub-settle/pkg/address"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/rpcclient"
	"hub-settle/pkg/types"
)

const (
	iconVersion = "0x3"
	// iconGovernance answers step price queries
	iconGovernance = "cx0000000000000000000000000000000000000001"
	// iconStepMargin pads estimated steps the way gas limits are padded
	iconStepMargin = 120
)

// ICON JSON-RPC error codes of transactions that are not final yet
const (
	iconCodePending   = -31002
	iconCodeExecuting = -31003
	iconCodeNotFound  = -31004
)

func iconHex(v *big.Int) string {
	return "0x" + v.Text(16)
}

func parseIconHex(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid ICON hex value %q", s)
	}
	return v, nil
}

// IconAdapter sends calls to the ICON asset manager and connection score
type IconAdapter struct {
	chain      registry.ChainConfig
	rpc        *rpcclient.Client
	signer     IconSigner
	simulator  Simulator
	hubRelayID types.RelayChainID
	now        func() time.Time
}

// NewIconAdapter creates an ICON adapter. NetworkID is the nid, e.g. "0x1".
func NewIconAdapter(chain registry.ChainConfig, signer IconSigner, sim Simulator, hubRelayID types.RelayChainID, opts ...httpjson.Option) *IconAdapter {
	return &IconAdapter{
		chain:      chain,
		rpc:        rpcclient.New(chain.RPCURL, opts...),
		signer:     signer,
		simulator:  sim,
		hubRelayID: hubRelayID,
		now:        time.Now,
	}
}

func (a *IconAdapter) Family() types.ChainFamily { return types.FamilyIcon }
func (a *IconAdapter) ChainID() types.ChainID    { return a.chain.ID }

func (a *IconAdapter) isNative(token string) bool {
	return token == a.chain.NativeToken || token == "cx0000000000000000000000000000000000000000"
}

// callTx builds an unsigned call transaction without a step limit
func (a *IconAdapter) callTx(to, method string, params map[string]interface{}, value *big.Int) map[string]interface{} {
	nid := a.chain.NetworkID
	if nid == "" {
		nid = "0x1"
	}
	tx := map[string]interface{}{
		"version":   iconVersion,
		"from":      a.signer.Address(),
		"to":        to,
		"nid":       nid,
		"timestamp": fmt.Sprintf("0x%x", a.now().UnixMicro()),
		"dataType":  "call",
		"data":      map[string]interface{}{"method": method, "params": params},
	}
	if value != nil && value.Sign() > 0 {
		tx["value"] = iconHex(value)
	}
	return tx
}

func (a *IconAdapter) estimateSteps(ctx context.Context, tx map[string]interface{}) (*big.Int, error) {
	var steps string
	if err := a.rpc.Read(ctx, "debug_estimateStep", tx, &steps); err != nil {
		return nil, fmt.Errorf("failed to estimate steps: %w", err)
	}
	return parseIconHex(steps)
}

func (a *IconAdapter) send(ctx context.Context, tx map[string]interface{}, dryRun bool) (*types.TxHandle, error) {
	steps, err := a.estimateSteps(ctx, tx)
	if err != nil {
		return nil, err
	}
	limit := new(big.Int).Mul(steps, big.NewInt(iconStepMargin))
	tx["stepLimit"] = iconHex(limit.Quo(limit, big.NewInt(100)))

	handle := &types.TxHandle{ChainID: a.chain.ID, Raw: tx}
	if dryRun {
		return handle, nil
	}

	signature, err := a.signer.Sign(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx["signature"] = signature

	var hash string
	if err := a.rpc.Call(ctx, "icx_sendTransaction", tx, &hash, true); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	handle.Hash = hash

	log.Info().Str("chain", string(a.chain.ID)).Str("tx_hash", hash).Msg("Transaction sent")
	return handle, nil
}

// Deposit pushes tokens to the asset manager. IRC2 tokens are sent with
// transfer and a _data instruction; ICX goes to transferNativeToken.
func (a *IconAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	if err := checkSender(a.chain, req.From, a.signer.Address()); err != nil {
		return nil, err
	}

	to := req.To.Hex()
	data := "0x" + hex.EncodeToString(req.Data)

	var tx map[string]interface{}
	if a.isNative(req.Token) {
		tx = a.callTx(a.chain.AssetManager, "transferNativeToken", map[string]interface{}{
			"_to":   to,
			"_data": data,
		}, req.Amount)
	} else {
		instruction, err := json.Marshal(map[string]interface{}{
			"method": "transfer",
			"params": map[string]string{"to": to, "data": data},
		})
		if err != nil {
			return nil, err
		}
		tx = a.callTx(req.Token, "transfer", map[string]interface{}{
			"_to":    a.chain.AssetManager,
			"_value": iconHex(req.Amount),
			"_data":  "0x" + hex.EncodeToString(instruction),
		}, nil)
	}
	return a.send(ctx, tx, req.DryRun)
}

// CallWallet simulates the payload on the hub and sends it through the
// connection score.
func (a *IconAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	if err := checkSender(a.chain, req.From, a.signer.Address()); err != nil {
		return nil, err
	}
	from, err := address.EncodeForChain(a.chain, req.From)
	if err != nil {
		return nil, err
	}
	if err := simulateFirst(ctx, a.simulator, a.chain, from, req.Payload); err != nil {
		return nil, err
	}
	tx := a.callTx(a.chain.Connection, "sendMessage", map[string]interface{}{
		"dstChainId": iconHex(new(big.Int).SetUint64(uint64(a.hubRelayID))),
		"dstAddress": "0x" + hex.EncodeToString(req.HubWallet.Bytes()),
		"payload":    "0x" + hex.EncodeToString(req.Payload),
	}, nil)
	return a.send(ctx, tx, req.DryRun)
}

// EstimateFee prices the step limit of a prepared transaction at the current
// step price.
func (a *IconAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	tx, ok := handle.Raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("transaction handle carries no prepared ICON transaction")
	}
	limitHex, _ := tx["stepLimit"].(string)
	limit, err := parseIconHex(limitHex)
	if err != nil {
		return nil, err
	}

	var priceHex string
	err = a.rpc.Read(ctx, "icx_call", map[string]interface{}{
		"to":       iconGovernance,
		"dataType": "call",
		"data":     map[string]interface{}{"method": "getStepPrice"},
	}, &priceHex)
	if err != nil {
		return nil, fmt.Errorf("failed to get step price: %w", err)
	}
	price, err := parseIconHex(priceHex)
	if err != nil {
		return nil, err
	}
	return &types.Fee{Amount: new(big.Int).Mul(limit, price), Unit: "loop", Detail: map[string]string{
		"step_limit": limit.String(),
		"step_price": price.String(),
	}}, nil
}

// GetDeposit reads the asset manager balance of an IRC2 token or of ICX
func (a *IconAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	var balance string
	if a.isNative(token) {
		if err := a.rpc.Read(ctx, "icx_getBalance", map[string]string{"address": a.chain.AssetManager}, &balance); err != nil {
			return nil, err
		}
		return parseIconHex(balance)
	}
	err := a.rpc.Read(ctx, "icx_call", map[string]interface{}{
		"to":       token,
		"dataType": "call",
		"data": map[string]interface{}{
			"method": "balanceOf",
			"params": map[string]string{"_owner": a.chain.AssetManager},
		},
	}, &balance)
	if err != nil {
		return nil, err
	}
	return parseIconHex(balance)
}

// VerifyTx reports whether the transaction result has status 0x1. Pending
// results are not final yet.
func (a *IconAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	var result struct {
		Status  string `json:"status"`
		Failure *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"failure"`
	}
	err := a.rpc.Read(ctx, "icx_getTransactionResult", map[string]string{"txHash": hash}, &result)
	if err != nil {
		var rpcErr *rpcclient.Error
		if errors.As(err, &rpcErr) {
			switch rpcErr.Code {
			case iconCodePending, iconCodeExecuting, iconCodeNotFound:
				return false, nil
			}
		}
		return false, err
	}
	if result.Status != "0x1" {
		reason := "unknown failure"
		if result.Failure != nil {
			reason = result.Failure.Message
		}
		return false, fmt.Errorf("transaction %s failed: %s", hash, reason)
	}
	return true, nil
}

// IsAllowanceValid is always true: IRC2 deposits push tokens with transfer
func (a *IconAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	return true, nil
}

func (a *IconAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	return nil, fmt.Errorf("%w: approve on %s", types.ErrUnsupported, a.chain.ID)
}
