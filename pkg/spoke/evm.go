package spoke

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"hub-settle/pkg/address"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// defaultGasLimit is used when gas estimation fails
const defaultGasLimit = 500_000

// evmTransactor builds, signs and sends legacy transactions
type evmTransactor struct {
	chain   registry.ChainConfig
	backend hub.Backend
	signer  EVMSigner
}

func (t *evmTransactor) send(ctx context.Context, to common.Address, value *big.Int, data []byte, dryRun bool) (*types.TxHandle, error) {
	if t.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, t.chain.ID)
	}
	if value == nil {
		value = new(big.Int)
	}
	from := t.signer.Address()

	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := uint64(defaultGasLimit)
	estimated, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err == nil {
		gasLimit = estimated * 120 / 100
	} else {
		log.Warn().Err(err).Str("chain", string(t.chain.ID)).Msg("Gas estimation failed, using default limit")
	}

	chainID, err := t.chainID(ctx)
	if err != nil {
		return nil, err
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := t.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}

	handle := &types.TxHandle{ChainID: t.chain.ID, Raw: signed}
	if dryRun {
		return handle, nil
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	handle.Hash = signed.Hash().Hex()

	log.Info().Str("chain", string(t.chain.ID)).Str("tx_hash", handle.Hash).Msg("Transaction sent")
	return handle, nil
}

// sender checks that the signer can act for account
func (t *evmTransactor) sender(account string) error {
	if t.signer == nil {
		return fmt.Errorf("%w: %s", types.ErrNoProvider, t.chain.ID)
	}
	return checkSender(t.chain, account, t.signer.Address().Hex())
}

func (t *evmTransactor) chainID(ctx context.Context) (*big.Int, error) {
	if t.chain.EVMChainID > 0 {
		return big.NewInt(t.chain.EVMChainID), nil
	}
	id, err := t.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return id, nil
}

func (t *evmTransactor) read(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return t.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (t *evmTransactor) erc20Balance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := hub.ERC20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	out, err := t.read(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (t *evmTransactor) allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := hub.ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance: %w", err)
	}
	out, err := t.read(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (t *evmTransactor) approve(ctx context.Context, owner string, token, spender common.Address, amount *big.Int) (*types.TxHandle, error) {
	if err := t.sender(owner); err != nil {
		return nil, err
	}
	data, err := hub.ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return t.send(ctx, token, nil, data, false)
}

// verify reports whether the receipt of hash exists. A reverted receipt is an
// error so callers stop waiting on it.
func (t *evmTransactor) verify(ctx context.Context, hash string) (bool, error) {
	receipt, err := t.backend.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return false, fmt.Errorf("transaction %s reverted in block %s", hash, receipt.BlockNumber)
	}
	return true, nil
}

func (t *evmTransactor) estimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	if tx, ok := handle.Raw.(*ethtypes.Transaction); ok {
		fee := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), tx.GasPrice())
		return &types.Fee{Amount: fee, Unit: "wei", Detail: map[string]string{
			"gas_limit": strconv.FormatUint(tx.Gas(), 10),
			"gas_price": tx.GasPrice().String(),
		}}, nil
	}
	if handle.Hash == "" {
		return nil, fmt.Errorf("transaction handle has neither a raw transaction nor a hash")
	}
	receipt, err := t.backend.TransactionReceipt(ctx, common.HexToHash(handle.Hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = new(big.Int)
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
	return &types.Fee{Amount: fee, Unit: "wei", Detail: map[string]string{
		"gas_used":  strconv.FormatUint(receipt.GasUsed, 10),
		"gas_price": price.String(),
	}}, nil
}

func isNativeToken(chain registry.ChainConfig, token common.Address) bool {
	if token == (common.Address{}) {
		return true
	}
	return chain.NativeToken != "" && common.IsHexAddress(chain.NativeToken) && common.HexToAddress(chain.NativeToken) == token
}

func parseEVMAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", field, value)
	}
	return common.HexToAddress(value), nil
}

// EVMAdapter deposits through the spoke asset manager and sends wallet calls
// through the spoke connection contract.
type EVMAdapter struct {
	evmTransactor
	simulator  Simulator
	hubRelayID types.RelayChainID
}

// NewEVMAdapter creates an adapter for a generic EVM spoke
func NewEVMAdapter(chain registry.ChainConfig, backend hub.Backend, signer EVMSigner, sim Simulator, hubRelayID types.RelayChainID) *EVMAdapter {
	return &EVMAdapter{
		evmTransactor: evmTransactor{chain: chain, backend: backend, signer: signer},
		simulator:     sim,
		hubRelayID:    hubRelayID,
	}
}

func (a *EVMAdapter) Family() types.ChainFamily { return types.FamilyEVM }
func (a *EVMAdapter) ChainID() types.ChainID    { return a.chain.ID }

// Deposit calls transfer on the asset manager. Native deposits attach the
// amount as value; ERC20 deposits need a prior allowance.
func (a *EVMAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := a.sender(req.From); err != nil {
		return nil, err
	}
	token, err := parseEVMAddress("token", req.Token)
	if err != nil {
		return nil, err
	}
	assetManager, err := parseEVMAddress("asset manager", a.chain.AssetManager)
	if err != nil {
		return nil, err
	}

	data, err := hub.SpokeAssetManagerABI.Pack("transfer", token, req.To.Bytes(), req.Amount, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	var value *big.Int
	if isNativeToken(a.chain, token) {
		value = req.Amount
	}
	return a.send(ctx, assetManager, value, data, req.DryRun)
}

// CallWallet simulates the payload on the hub, then sends it as a message
// from the spoke account to its hub wallet.
func (a *EVMAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
	if err := a.sender(req.From); err != nil {
		return nil, err
	}
	from, err := address.EncodeForChain(a.chain, req.From)
	if err != nil {
		return nil, err
	}
	if err := simulateFirst(ctx, a.simulator, a.chain, from, req.Payload); err != nil {
		return nil, err
	}

	connection, err := parseEVMAddress("connection", a.chain.Connection)
	if err != nil {
		return nil, err
	}
	data, err := hub.ConnectionABI.Pack("sendMessage",
		new(big.Int).SetUint64(uint64(a.hubRelayID)), req.HubWallet.Bytes(), req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to pack sendMessage: %w", err)
	}
	return a.send(ctx, connection, nil, data, req.DryRun)
}

// EstimateFee returns gas limit times gas price for a prepared transaction,
// or the paid fee for a sent one.
func (a *EVMAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	return a.estimateFee(ctx, handle)
}

// GetDeposit reads the asset manager balance of token
func (a *EVMAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	tokenAddr, err := parseEVMAddress("token", token)
	if err != nil {
		return nil, err
	}
	assetManager, err := parseEVMAddress("asset manager", a.chain.AssetManager)
	if err != nil {
		return nil, err
	}
	if isNativeToken(a.chain, tokenAddr) {
		balance, err := a.backend.BalanceAt(ctx, assetManager, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}
	return a.erc20Balance(ctx, tokenAddr, assetManager)
}

// VerifyTx checks the transaction has a successful receipt
func (a *EVMAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	return a.verify(ctx, hash)
}

// IsAllowanceValid checks the asset manager may spend the amount. Native
// tokens need no allowance.
func (a *EVMAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	token, err := parseEVMAddress("token", req.Token)
	if err != nil {
		return false, err
	}
	if isNativeToken(a.chain, token) {
		return true, nil
	}
	owner, err := parseEVMAddress("owner", req.Owner)
	if err != nil {
		return false, err
	}
	assetManager, err := parseEVMAddress("asset manager", a.chain.AssetManager)
	if err != nil {
		return false, err
	}
	allowance, err := a.allowance(ctx, token, owner, assetManager)
	if err != nil {
		return false, err
	}
	return allowance.Cmp(req.Amount) >= 0, nil
}

// Approve lets the asset manager spend the amount
func (a *EVMAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	token, err := parseEVMAddress("token", req.Token)
	if err != nil {
		return nil, err
	}
	if isNativeToken(a.chain, token) {
		return nil, fmt.Errorf("native token %s needs no approval", req.Token)
	}
	assetManager, err := parseEVMAddress("asset manager", a.chain.AssetManager)
	if err != nil {
		return nil, err
	}
	return a.approve(ctx, req.Owner, token, assetManager, req.Amount)
}
