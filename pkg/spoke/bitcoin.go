package spoke

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcutil"
	"github.com/ethereum/go-ethereum/crypto"

	"hub-settle/pkg/address"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/rpcclient"
	"hub-settle/pkg/types"
)

const (
	// bitcoinMinConfirmations is the depth after which a deposit is final
	bitcoinMinConfirmations = 1
	// bitcoinFeeTarget is the confirmation target in blocks for fee estimates
	bitcoinFeeTarget = 6
	// bitcoinTypicalVSize is the size of a one-input commitment transaction
	bitcoinTypicalVSize = 200
)

// BitcoinTx is a funded and signed transaction that was not broadcast
type BitcoinTx struct {
	Hex string
	Fee btcutil.Amount
}

// BitcoinAdapter moves BTC through a bitcoind wallet. The transaction pays the
// asset manager and commits to the keccak hash of the transfer message in an
// OP_RETURN output; the relay receives the message itself.
type BitcoinAdapter struct {
	chain      registry.ChainConfig
	rpc        *rpcclient.Client
	simulator  Simulator
	hubRelayID types.RelayChainID
}

// NewBitcoinAdapter creates a Bitcoin adapter. RPCURL points at the bitcoind
// wallet endpoint, e.g. http://127.0.0.1:8332/wallet/hub.
func NewBitcoinAdapter(chain registry.ChainConfig, sim Simulator, hubRelayID types.RelayChainID, opts ...httpjson.Option) *BitcoinAdapter {
	return &BitcoinAdapter{
		chain:      chain,
		rpc:        rpcclient.New(chain.RPCURL, opts...),
		simulator:  sim,
		hubRelayID: hubRelayID,
	}
}

func (a *BitcoinAdapter) Family() types.ChainFamily { return types.FamilyBitcoin }
func (a *BitcoinAdapter) ChainID() types.ChainID    { return a.chain.ID }

// build funds outputs from the wallet, signs and optionally broadcasts. The
// change returns to change.
func (a *BitcoinAdapter) build(ctx context.Context, outputs []map[string]interface{}, change string, message []byte, dryRun bool) (*types.TxHandle, error) {
	commitment := crypto.Keccak256(message)
	outputs = append(outputs, map[string]interface{}{"data": hex.EncodeToString(commitment)})

	var raw string
	if err := a.rpc.Read(ctx, "createrawtransaction", []interface{}{[]interface{}{}, outputs}, &raw); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	var funded struct {
		Hex string  `json:"hex"`
		Fee float64 `json:"fee"`
	}
	if err := a.rpc.Read(ctx, "fundrawtransaction", []interface{}{raw, map[string]interface{}{"changeAddress": change}}, &funded); err != nil {
		return nil, fmt.Errorf("failed to fund transaction: %w", err)
	}
	fee, err := btcutil.NewAmount(funded.Fee)
	if err != nil {
		return nil, fmt.Errorf("invalid fee %v: %w", funded.Fee, err)
	}

	var signed struct {
		Hex      string `json:"hex"`
		Complete bool   `json:"complete"`
	}
	if err := a.rpc.Read(ctx, "signrawtransactionwithwallet", []interface{}{funded.Hex}, &signed); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if !signed.Complete {
		return nil, fmt.Errorf("wallet could not sign every input")
	}

	handle := &types.TxHandle{
		ChainID:   a.chain.ID,
		Raw:       BitcoinTx{Hex: signed.Hex, Fee: fee},
		RelayData: "0x" + hex.EncodeToString(message),
	}
	if dryRun {
		return handle, nil
	}

	var txid string
	if err := a.rpc.Call(ctx, "sendrawtransaction", []interface{}{signed.Hex}, &txid, true); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	handle.Hash = txid

	log.Info().Str("chain", string(a.chain.ID)).Str("txid", txid).Str("fee", fee.String()).Msg("Transaction sent")
	return handle, nil
}

// owned checks that the bitcoind wallet holds the keys of account, which
// funds the transaction and receives its change
func (a *BitcoinAdapter) owned(ctx context.Context, account string) error {
	if account == "" {
		return fmt.Errorf("%w: %s needs a sender address", types.ErrNoProvider, a.chain.ID)
	}
	var info struct {
		IsMine bool `json:"ismine"`
	}
	if err := a.rpc.Read(ctx, "getaddressinfo", []interface{}{account}, &info); err != nil {
		return fmt.Errorf("failed to look up %s: %w", account, err)
	}
	if !info.IsMine {
		return fmt.Errorf("%w: wallet of %s does not own %s", types.ErrNoProvider, a.chain.ID, account)
	}
	return nil
}

// Deposit pays Amount satoshis to the asset manager
func (a *BitcoinAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.Amount.IsInt64() {
		return nil, fmt.Errorf("amount %s exceeds the bitcoin supply", req.Amount)
	}
	from, err := address.EncodeForChain(a.chain, req.From)
	if err != nil {
		return nil, err
	}
	if err := a.owned(ctx, req.From); err != nil {
		return nil, err
	}
	message, err := hub.EncodeTransfer(hub.TransferMessage{
		Token:  []byte(req.Token),
		From:   from,
		To:     req.To.Bytes(),
		Amount: req.Amount,
		Data:   req.Data,
	})
	if err != nil {
		return nil, err
	}
	amount := btcutil.Amount(req.Amount.Int64())
	outputs := []map[string]interface{}{{a.chain.AssetManager: amount.ToBTC()}}
	return a.build(ctx, outputs, req.From, message, req.DryRun)
}

// CallWallet simulates the payload on the hub, then commits to it in a
// transaction without a value output.
func (a *BitcoinAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
	from, err := address.EncodeForChain(a.chain, req.From)
	if err != nil {
		return nil, err
	}
	if err := a.owned(ctx, req.From); err != nil {
		return nil, err
	}
	if err := simulateFirst(ctx, a.simulator, a.chain, from, req.Payload); err != nil {
		return nil, err
	}
	message, err := hub.EncodeTransfer(hub.TransferMessage{
		From:   from,
		To:     req.HubWallet.Bytes(),
		Amount: new(big.Int),
		Data:   req.Payload,
	})
	if err != nil {
		return nil, err
	}
	return a.build(ctx, nil, req.From, message, req.DryRun)
}

// EstimateFee returns the fee of a prepared transaction, the fee the wallet
// paid for a sent one, or a smart fee estimate otherwise.
func (a *BitcoinAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	if prepared, ok := handle.Raw.(BitcoinTx); ok {
		return &types.Fee{Amount: big.NewInt(int64(prepared.Fee)), Unit: "sat", Detail: map[string]string{
			"fee": prepared.Fee.String(),
		}}, nil
	}

	if handle.Hash != "" {
		var tx struct {
			Fee float64 `json:"fee"`
		}
		if err := a.rpc.Read(ctx, "gettransaction", []interface{}{handle.Hash}, &tx); err != nil {
			return nil, fmt.Errorf("failed to get transaction: %w", err)
		}
		paid := tx.Fee
		if paid < 0 {
			paid = -paid
		}
		fee, err := btcutil.NewAmount(paid)
		if err != nil {
			return nil, err
		}
		return &types.Fee{Amount: big.NewInt(int64(fee)), Unit: "sat", Detail: map[string]string{"fee": fee.String()}}, nil
	}

	var estimate struct {
		FeeRate float64  `json:"feerate"`
		Errors  []string `json:"errors"`
	}
	if err := a.rpc.Read(ctx, "estimatesmartfee", []interface{}{bitcoinFeeTarget}, &estimate); err != nil {
		return nil, fmt.Errorf("failed to estimate fee: %w", err)
	}
	if estimate.FeeRate <= 0 {
		return nil, fmt.Errorf("no fee estimate available: %v", estimate.Errors)
	}
	perKvB, err := btcutil.NewAmount(estimate.FeeRate)
	if err != nil {
		return nil, err
	}
	fee := int64(perKvB) * bitcoinTypicalVSize / 1000
	return &types.Fee{Amount: big.NewInt(fee), Unit: "sat", Detail: map[string]string{
		"fee_rate_per_kvb": perKvB.String(),
		"vsize":            fmt.Sprintf("%d", bitcoinTypicalVSize),
	}}, nil
}

// GetDeposit sums the unspent outputs of the asset manager
func (a *BitcoinAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	var scan struct {
		Success     bool    `json:"success"`
		TotalAmount float64 `json:"total_amount"`
	}
	descriptor := fmt.Sprintf("addr(%s)", a.chain.AssetManager)
	if err := a.rpc.Read(ctx, "scantxoutset", []interface{}{"start", []string{descriptor}}, &scan); err != nil {
		return nil, fmt.Errorf("failed to scan UTXO set: %w", err)
	}
	if !scan.Success {
		return nil, fmt.Errorf("UTXO scan of %s did not complete", a.chain.AssetManager)
	}
	total, err := btcutil.NewAmount(scan.TotalAmount)
	if err != nil {
		return nil, err
	}
	return big.NewInt(int64(total)), nil
}

// VerifyTx reports whether the transaction has enough confirmations
func (a *BitcoinAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	var tx struct {
		Confirmations int64 `json:"confirmations"`
	}
	if err := a.rpc.Read(ctx, "getrawtransaction", []interface{}{hash, true}, &tx); err != nil {
		return false, err
	}
	return tx.Confirmations >= bitcoinMinConfirmations, nil
}

func (a *BitcoinAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	return true, nil
}

func (a *BitcoinAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	return nil, fmt.Errorf("%w: approve on %s", types.ErrUnsupported, a.chain.ID)
}
