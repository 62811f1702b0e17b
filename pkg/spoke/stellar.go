package spoke

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"hub-settle/pkg/address"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/rpcclient"
	"hub-settle/pkg/types"
)

const (
	// stellarBaseFee is the inclusion fee in stroops added to resource fees
	stellarBaseFee = 100
	// stellarDecimals is the precision of classic asset amounts on Horizon
	stellarDecimals = 7

	scvU128 = 9
	scvI128 = 10
)

type sorobanSimulation struct {
	MinResourceFee  string `json:"minResourceFee"`
	TransactionData string `json:"transactionData"`
	Results         []struct {
		XDR string `json:"xdr"`
	} `json:"results"`
	Error string `json:"error"`
}

type sorobanSend struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	ErrorResultXDR string `json:"errorResultXdr"`
}

type horizonAccount struct {
	Balances []struct {
		AssetType   string `json:"asset_type"`
		AssetCode   string `json:"asset_code"`
		AssetIssuer string `json:"asset_issuer"`
		Balance     string `json:"balance"`
		Limit       string `json:"limit"`
	} `json:"balances"`
}

// DecodeScValInt decodes an i128 or u128 ScVal from its base64 XDR
func DecodeScValInt(encoded string) (*big.Int, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ScVal: %w", err)
	}
	if len(raw) != 20 {
		return nil, fmt.Errorf("unexpected ScVal length %d", len(raw))
	}
	kind := binary.BigEndian.Uint32(raw[:4])
	hi := binary.BigEndian.Uint64(raw[4:12])
	lo := binary.BigEndian.Uint64(raw[12:20])

	value := new(big.Int).SetUint64(hi)
	value.Lsh(value, 64)
	value.Or(value, new(big.Int).SetUint64(lo))

	switch kind {
	case scvU128:
		return value, nil
	case scvI128:
		if int64(hi) < 0 {
			value.Sub(value, new(big.Int).Lsh(big.NewInt(1), 128))
		}
		return value, nil
	default:
		return nil, fmt.Errorf("ScVal type %d is not a 128-bit integer", kind)
	}
}

// StellarAdapter invokes the Soroban asset manager and connection contracts.
// Envelopes are built and signed by the StellarSigner.
type StellarAdapter struct {
	chain      registry.ChainConfig
	rpc        *rpcclient.Client
	horizon    *httpjson.Client
	signer     StellarSigner
	simulator  Simulator
	hubRelayID types.RelayChainID
}

// NewStellarAdapter creates a Stellar adapter. RPCURL is the Soroban RPC and
// AuxURL the Horizon server.
func NewStellarAdapter(chain registry.ChainConfig, signer StellarSigner, sim Simulator, hubRelayID types.RelayChainID, opts ...httpjson.Option) *StellarAdapter {
	return &StellarAdapter{
		chain:      chain,
		rpc:        rpcclient.New(chain.RPCURL, opts...),
		horizon:    httpjson.New(chain.AuxURL, opts...),
		signer:     signer,
		simulator:  sim,
		hubRelayID: hubRelayID,
	}
}

func (a *StellarAdapter) Family() types.ChainFamily { return types.FamilyStellar }
func (a *StellarAdapter) ChainID() types.ChainID    { return a.chain.ID }

func (a *StellarAdapter) simulate(ctx context.Context, envelope string) (*sorobanSimulation, json.RawMessage, error) {
	var raw json.RawMessage
	if err := a.rpc.Read(ctx, "simulateTransaction", map[string]string{"transaction": envelope}, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	var sim sorobanSimulation
	if err := json.Unmarshal(raw, &sim); err != nil {
		return nil, nil, fmt.Errorf("failed to parse simulation: %w", err)
	}
	if sim.Error != "" {
		return nil, nil, fmt.Errorf("simulation failed: %s", sim.Error)
	}
	return &sim, raw, nil
}

func (a *StellarAdapter) invoke(ctx context.Context, inv StellarInvocation, dryRun bool) (*types.TxHandle, error) {
	envelope, err := a.signer.BuildInvocation(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s invocation: %w", inv.Function, err)
	}
	handle := &types.TxHandle{ChainID: a.chain.ID, Raw: envelope}
	if dryRun {
		return handle, nil
	}

	_, simulation, err := a.simulate(ctx, envelope)
	if err != nil {
		return nil, err
	}
	signed, err := a.signer.Sign(ctx, envelope, simulation)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	var sent sorobanSend
	if err := a.rpc.Call(ctx, "sendTransaction", map[string]string{"transaction": signed}, &sent, true); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	if sent.Status != "PENDING" && sent.Status != "DUPLICATE" {
		return nil, fmt.Errorf("transaction rejected with status %s: %s", sent.Status, sent.ErrorResultXDR)
	}
	handle.Hash = sent.Hash

	log.Info().Str("chain", string(a.chain.ID)).Str("tx_hash", handle.Hash).Msg("Transaction sent")
	return handle, nil
}

// Deposit invokes transfer on the asset manager contract
func (a *StellarAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	if err := checkSender(a.chain, req.From, a.signer.Address()); err != nil {
		return nil, err
	}
	return a.invoke(ctx, StellarInvocation{
		Source:   a.signer.Address(),
		Contract: a.chain.AssetManager,
		Function: "transfer",
		Args:     []interface{}{a.signer.Address(), req.Token, req.Amount, req.To.Bytes(), req.Data},
	}, req.DryRun)
}

// CallWallet simulates the payload on the hub and sends it through the
// connection contract.
func (a *StellarAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
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
	return a.invoke(ctx, StellarInvocation{
		Source:   a.signer.Address(),
		Contract: a.chain.Connection,
		Function: "send_message",
		Args:     []interface{}{a.signer.Address(), uint64(a.hubRelayID), req.HubWallet.Bytes(), req.Payload},
	}, req.DryRun)
}

// EstimateFee simulates a prepared envelope and adds the base inclusion fee
func (a *StellarAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	envelope, ok := handle.Raw.(string)
	if !ok || envelope == "" {
		return nil, fmt.Errorf("transaction handle carries no prepared Stellar envelope")
	}
	sim, _, err := a.simulate(ctx, envelope)
	if err != nil {
		return nil, err
	}
	resourceFee, ok := new(big.Int).SetString(sim.MinResourceFee, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse resource fee %q", sim.MinResourceFee)
	}
	total := new(big.Int).Add(resourceFee, big.NewInt(stellarBaseFee))
	return &types.Fee{Amount: total, Unit: "stroops", Detail: map[string]string{
		"resource_fee":  sim.MinResourceFee,
		"inclusion_fee": fmt.Sprintf("%d", stellarBaseFee),
	}}, nil
}

// GetDeposit simulates balance(asset manager) on the token contract
func (a *StellarAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	envelope, err := a.signer.BuildInvocation(ctx, StellarInvocation{
		Source:   a.signer.Address(),
		Contract: token,
		Function: "balance",
		Args:     []interface{}{a.chain.AssetManager},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build balance invocation: %w", err)
	}
	sim, _, err := a.simulate(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if len(sim.Results) == 0 {
		return nil, fmt.Errorf("balance simulation returned no result")
	}
	return DecodeScValInt(sim.Results[0].XDR)
}

// VerifyTx reports whether the transaction was applied successfully
func (a *StellarAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	var result struct {
		Status string `json:"status"`
	}
	if err := a.rpc.Read(ctx, "getTransaction", map[string]string{"hash": hash}, &result); err != nil {
		return false, err
	}
	switch result.Status {
	case "SUCCESS":
		return true, nil
	case "FAILED":
		return false, fmt.Errorf("transaction %s failed", hash)
	default:
		return false, nil
	}
}

// IsAllowanceValid checks the account holds a trustline for the token with
// room for the amount. Native XLM needs no trustline.
func (a *StellarAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	if req.Token == a.chain.NativeToken {
		return true, nil
	}
	code := a.assetCode(req.Token)

	var account horizonAccount
	if err := a.horizon.Get(ctx, "/accounts/"+url.PathEscape(req.Owner), &account); err != nil {
		return false, fmt.Errorf("failed to load account: %w", err)
	}
	for _, b := range account.Balances {
		if b.AssetType == "native" || !strings.EqualFold(b.AssetCode, code) {
			continue
		}
		balance, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return false, fmt.Errorf("failed to parse balance %q: %w", b.Balance, err)
		}
		limit, err := decimal.NewFromString(b.Limit)
		if err != nil {
			return false, fmt.Errorf("failed to parse limit %q: %w", b.Limit, err)
		}
		room := limit.Sub(balance).Shift(stellarDecimals).BigInt()
		return room.Cmp(req.Amount) >= 0, nil
	}
	return false, nil
}

// assetCode maps a token contract to its classic asset code via the registry
// symbol. Tokens given as CODE:ISSUER are split directly.
func (a *StellarAdapter) assetCode(token string) string {
	if code, _, ok := strings.Cut(token, ":"); ok {
		return code
	}
	for _, asset := range a.chain.Assets {
		if asset.Address == token {
			return asset.Symbol
		}
	}
	return token
}

// Approve is unsupported: trustlines are requested by the wallet itself
func (a *StellarAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	return nil, fmt.Errorf("%w: trustline requests on %s", types.ErrUnsupported, a.chain.ID)
}
