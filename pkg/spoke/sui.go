package spoke

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"hub-settle/pkg/address"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/rpcclient"
	"hub-settle/pkg/types"
)

// suiGasBudget is the gas budget in MIST of adapter transactions
const suiGasBudget = "50000000"

// SuiNativeCoin is the coin type of SUI
const SuiNativeCoin = "0x2::sui::SUI"

// suiTarget is a Move module and the shared object its entry functions take
type suiTarget struct {
	Package string
	Module  string
	Object  string
}

// parseSuiTarget reads "package::module::object"
func parseSuiTarget(field, value string) (suiTarget, error) {
	parts := strings.Split(value, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return suiTarget{}, fmt.Errorf("invalid %s %q, expected package::module::object", field, value)
	}
	return suiTarget{Package: parts[0], Module: parts[1], Object: parts[2]}, nil
}

// moveBytes renders bytes the way Sui JSON expects vector<u8>
func moveBytes(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

type suiTxBytes struct {
	TxBytes string `json:"txBytes"`
}

type suiCoin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Balance      string `json:"balance"`
}

type suiCoinPage struct {
	Data        []suiCoin `json:"data"`
	NextCursor  *string   `json:"nextCursor"`
	HasNextPage bool      `json:"hasNextPage"`
}

type suiExecution struct {
	Digest  string `json:"digest"`
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
		GasUsed struct {
			ComputationCost string `json:"computationCost"`
			StorageCost     string `json:"storageCost"`
			StorageRebate   string `json:"storageRebate"`
		} `json:"gasUsed"`
	} `json:"effects"`
}

// SuiAdapter builds Move calls through the node and lets the signer sign them
type SuiAdapter struct {
	chain      registry.ChainConfig
	rpc        *rpcclient.Client
	signer     SuiSigner
	simulator  Simulator
	hubRelayID types.RelayChainID
}

// NewSuiAdapter creates a Sui adapter
func NewSuiAdapter(chain registry.ChainConfig, signer SuiSigner, sim Simulator, hubRelayID types.RelayChainID, opts ...httpjson.Option) *SuiAdapter {
	return &SuiAdapter{
		chain:      chain,
		rpc:        rpcclient.New(chain.RPCURL, opts...),
		signer:     signer,
		simulator:  sim,
		hubRelayID: hubRelayID,
	}
}

func (a *SuiAdapter) Family() types.ChainFamily { return types.FamilySui }
func (a *SuiAdapter) ChainID() types.ChainID    { return a.chain.ID }

// selectCoin finds an owned coin object of coinType holding at least amount
func (a *SuiAdapter) selectCoin(ctx context.Context, owner, coinType string, amount *big.Int) (string, error) {
	var cursor *string
	for {
		var page suiCoinPage
		if err := a.rpc.Read(ctx, "suix_getCoins", []interface{}{owner, coinType, cursor, 50}, &page); err != nil {
			return "", err
		}
		for _, coin := range page.Data {
			balance, ok := new(big.Int).SetString(coin.Balance, 10)
			if ok && balance.Cmp(amount) >= 0 {
				return coin.CoinObjectID, nil
			}
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return "", fmt.Errorf("no %s coin of %s holds %s", coinType, owner, amount)
		}
		cursor = page.NextCursor
	}
}

func (a *SuiAdapter) moveCall(ctx context.Context, target suiTarget, function string, typeArgs []string, args []interface{}, dryRun bool) (*types.TxHandle, error) {
	var built suiTxBytes
	params := []interface{}{a.signer.Address(), target.Package, target.Module, function, typeArgs, args, nil, suiGasBudget}
	if err := a.rpc.Read(ctx, "unsafe_moveCall", params, &built); err != nil {
		return nil, fmt.Errorf("failed to build %s::%s: %w", target.Module, function, err)
	}

	handle := &types.TxHandle{ChainID: a.chain.ID, Raw: built.TxBytes}
	if dryRun {
		return handle, nil
	}

	raw, err := base64.StdEncoding.DecodeString(built.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction bytes: %w", err)
	}
	signature, err := a.signer.SignTransaction(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	var result suiExecution
	err = a.rpc.Call(ctx, "sui_executeTransactionBlock", []interface{}{
		built.TxBytes, []string{signature}, map[string]bool{"showEffects": true}, "WaitForLocalExecution",
	}, &result, true)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transaction: %w", err)
	}
	if result.Effects.Status.Status != "success" {
		return nil, fmt.Errorf("transaction %s failed: %s", result.Digest, result.Effects.Status.Error)
	}
	handle.Hash = result.Digest

	log.Info().Str("chain", string(a.chain.ID)).Str("digest", handle.Hash).Msg("Transaction executed")
	return handle, nil
}

// Deposit hands a coin of Token to the asset manager, which keeps Amount
func (a *SuiAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	if err := checkSender(a.chain, req.From, a.signer.Address()); err != nil {
		return nil, err
	}
	assetManager, err := parseSuiTarget("asset manager", a.chain.AssetManager)
	if err != nil {
		return nil, err
	}
	connection, err := parseSuiTarget("connection", a.chain.Connection)
	if err != nil {
		return nil, err
	}
	coin, err := a.selectCoin(ctx, a.signer.Address(), req.Token, req.Amount)
	if err != nil {
		return nil, err
	}

	args := []interface{}{
		assetManager.Object,
		connection.Object,
		coin,
		req.Amount.String(),
		moveBytes(req.To.Bytes()),
		moveBytes(req.Data),
	}
	return a.moveCall(ctx, assetManager, "transfer", []string{req.Token}, args, req.DryRun)
}

// CallWallet simulates the payload on the hub and sends it through the
// connection module.
func (a *SuiAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
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
	connection, err := parseSuiTarget("connection", a.chain.Connection)
	if err != nil {
		return nil, err
	}
	args := []interface{}{
		connection.Object,
		fmt.Sprintf("%d", a.hubRelayID),
		moveBytes(req.HubWallet.Bytes()),
		moveBytes(req.Payload),
	}
	return a.moveCall(ctx, connection, "send_message", nil, args, req.DryRun)
}

// EstimateFee dry-runs a prepared transaction and returns its net gas cost
func (a *SuiAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	txBytes, ok := handle.Raw.(string)
	if !ok || txBytes == "" {
		return nil, fmt.Errorf("transaction handle carries no prepared Sui transaction")
	}
	var result suiExecution
	if err := a.rpc.Read(ctx, "sui_dryRunTransactionBlock", []interface{}{txBytes}, &result); err != nil {
		return nil, fmt.Errorf("failed to dry run transaction: %w", err)
	}

	gas := result.Effects.GasUsed
	total := new(big.Int)
	for _, part := range []string{gas.ComputationCost, gas.StorageCost} {
		v, ok := new(big.Int).SetString(part, 10)
		if !ok {
			return nil, fmt.Errorf("failed to parse gas cost %q", part)
		}
		total.Add(total, v)
	}
	if rebate, ok := new(big.Int).SetString(gas.StorageRebate, 10); ok {
		total.Sub(total, rebate)
	}
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	return &types.Fee{Amount: total, Unit: "MIST", Detail: map[string]string{
		"computation_cost": gas.ComputationCost,
		"storage_cost":     gas.StorageCost,
		"storage_rebate":   gas.StorageRebate,
	}}, nil
}

// GetDeposit reads the coin balance owned by the asset manager object
func (a *SuiAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	assetManager, err := parseSuiTarget("asset manager", a.chain.AssetManager)
	if err != nil {
		return nil, err
	}
	var balance struct {
		CoinType     string `json:"coinType"`
		TotalBalance string `json:"totalBalance"`
	}
	if err := a.rpc.Read(ctx, "suix_getBalance", []interface{}{assetManager.Object, token}, &balance); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(balance.TotalBalance, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse balance %q", balance.TotalBalance)
	}
	return amount, nil
}

// VerifyTx is a no-op: transactions are executed with local finality
// before their digest is returned.
func (a *SuiAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	return true, nil
}

func (a *SuiAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	return true, nil
}

func (a *SuiAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	return nil, fmt.Errorf("%w: approve on %s", types.ErrUnsupported, a.chain.ID)
}
