package spoke

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hub-settle/pkg/address"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// CosmosExecution is a prepared CosmWasm execute message
type CosmosExecution struct {
	Contract string
	Msg      json.RawMessage
	Funds    []CosmosCoin
}

// CosmosAdapter executes the asset manager and connection contracts through
// the CosmosSigner and reads chain state from the LCD endpoint.
type CosmosAdapter struct {
	chain      registry.ChainConfig
	lcd        *httpjson.Client
	signer     CosmosSigner
	simulator  Simulator
	hubRelayID types.RelayChainID
}

// NewCosmosAdapter creates a CosmWasm adapter. AuxURL is the LCD endpoint.
func NewCosmosAdapter(chain registry.ChainConfig, signer CosmosSigner, sim Simulator, hubRelayID types.RelayChainID, opts ...httpjson.Option) *CosmosAdapter {
	return &CosmosAdapter{
		chain:      chain,
		lcd:        httpjson.New(chain.AuxURL, opts...),
		signer:     signer,
		simulator:  sim,
		hubRelayID: hubRelayID,
	}
}

func (a *CosmosAdapter) Family() types.ChainFamily { return types.FamilyCosmos }
func (a *CosmosAdapter) ChainID() types.ChainID    { return a.chain.ID }

// isCW20 reports whether token is a contract address rather than a bank denom
func (a *CosmosAdapter) isCW20(token string) bool {
	if a.chain.Bech32Prefix == "" || !strings.HasPrefix(token, a.chain.Bech32Prefix+"1") {
		return false
	}
	_, err := address.EncodeForChain(a.chain, token)
	return err == nil
}

func (a *CosmosAdapter) execute(ctx context.Context, exec CosmosExecution, dryRun bool) (*types.TxHandle, error) {
	handle := &types.TxHandle{ChainID: a.chain.ID, Raw: exec}
	if dryRun {
		return handle, nil
	}
	hash, err := a.signer.Execute(ctx, exec.Contract, exec.Msg, exec.Funds)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", exec.Contract, err)
	}
	handle.Hash = hash

	log.Info().Str("chain", string(a.chain.ID)).Str("tx_hash", hash).Msg("Transaction sent")
	return handle, nil
}

// Deposit sends a bank denom with the transfer message, or a CW20 token via
// send with an embedded deposit message.
func (a *CosmosAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
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

	var exec CosmosExecution
	if a.isCW20(req.Token) {
		inner, err := json.Marshal(map[string]interface{}{
			"deposit": map[string]string{"to": to, "data": data},
		})
		if err != nil {
			return nil, err
		}
		msg, err := json.Marshal(map[string]interface{}{
			"send": map[string]string{
				"contract": a.chain.AssetManager,
				"amount":   req.Amount.String(),
				"msg":      base64.StdEncoding.EncodeToString(inner),
			},
		})
		if err != nil {
			return nil, err
		}
		exec = CosmosExecution{Contract: req.Token, Msg: msg}
	} else {
		msg, err := json.Marshal(map[string]interface{}{
			"transfer": map[string]string{
				"token":  req.Token,
				"to":     to,
				"amount": req.Amount.String(),
				"data":   data,
			},
		})
		if err != nil {
			return nil, err
		}
		exec = CosmosExecution{
			Contract: a.chain.AssetManager,
			Msg:      msg,
			Funds:    []CosmosCoin{{Denom: req.Token, Amount: req.Amount.String()}},
		}
	}
	return a.execute(ctx, exec, req.DryRun)
}

// CallWallet simulates the payload on the hub and sends it through the
// connection contract.
func (a *CosmosAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
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
	msg, err := json.Marshal(map[string]interface{}{
		"send_message": map[string]interface{}{
			"dst_chain_id": uint64(a.hubRelayID),
			"dst_address":  "0x" + hex.EncodeToString(req.HubWallet.Bytes()),
			"payload":      "0x" + hex.EncodeToString(req.Payload),
		},
	})
	if err != nil {
		return nil, err
	}
	return a.execute(ctx, CosmosExecution{Contract: a.chain.Connection, Msg: msg}, req.DryRun)
}

// EstimateFee simulates a prepared execution and returns its gas
func (a *CosmosAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	exec, ok := handle.Raw.(CosmosExecution)
	if !ok {
		return nil, fmt.Errorf("transaction handle carries no prepared CosmWasm execution")
	}
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	gas, err := a.signer.Simulate(ctx, exec.Contract, exec.Msg, exec.Funds)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate execution: %w", err)
	}
	return &types.Fee{Amount: new(big.Int).SetUint64(gas), Unit: "gas", Detail: map[string]string{
		"gas_used": strconv.FormatUint(gas, 10),
	}}, nil
}

// GetDeposit reads the asset manager balance of a bank denom or CW20 token
func (a *CosmosAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	var amount string
	if a.isCW20(token) {
		query, err := json.Marshal(map[string]interface{}{
			"balance": map[string]string{"address": a.chain.AssetManager},
		})
		if err != nil {
			return nil, err
		}
		var resp struct {
			Data struct {
				Balance string `json:"balance"`
			} `json:"data"`
		}
		path := fmt.Sprintf("/cosmwasm/wasm/v1/contract/%s/smart/%s", token, base64.StdEncoding.EncodeToString(query))
		if err := a.lcd.Get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("failed to query balance: %w", err)
		}
		amount = resp.Data.Balance
	} else {
		var resp struct {
			Balance CosmosCoin `json:"balance"`
		}
		path := fmt.Sprintf("/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s", a.chain.AssetManager, url.QueryEscape(token))
		if err := a.lcd.Get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("failed to query balance: %w", err)
		}
		amount = resp.Balance.Amount
	}
	if amount == "" {
		return new(big.Int), nil
	}
	balance, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse balance %q", amount)
	}
	return balance, nil
}

// VerifyTx reports whether the transaction was included with code 0
func (a *CosmosAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	var resp struct {
		TxResponse struct {
			Height string `json:"height"`
			Code   uint32 `json:"code"`
			RawLog string `json:"raw_log"`
		} `json:"tx_response"`
	}
	err := a.lcd.Get(ctx, "/cosmos/tx/v1beta1/txs/"+strings.TrimPrefix(hash, "0x"), &resp)
	if err != nil {
		var httpErr *httpjson.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	if resp.TxResponse.Code != 0 {
		return false, fmt.Errorf("transaction %s failed with code %d: %s", hash, resp.TxResponse.Code, resp.TxResponse.RawLog)
	}
	return true, nil
}

// IsAllowanceValid is always true: CW20 deposits use send, which needs no allowance
func (a *CosmosAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	return true, nil
}

func (a *CosmosAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	return nil, fmt.Errorf("%w: approve on %s", types.ErrUnsupported, a.chain.ID)
}
