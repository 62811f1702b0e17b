package spoke

import (
	"context"
	"fmt"
	"math/big"

	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// HubAdapter serves accounts living on the hub chain itself. There is no
// cross-chain hop: deposits go straight to the account's router, which is its
// hub wallet, and wallet calls execute without a relay or simulation.
type HubAdapter struct {
	evmTransactor
}

// NewHubAdapter creates the hub-local adapter
func NewHubAdapter(chain registry.ChainConfig, backend hub.Backend, signer EVMSigner) *HubAdapter {
	return &HubAdapter{evmTransactor: evmTransactor{chain: chain, backend: backend, signer: signer}}
}

func (a *HubAdapter) Family() types.ChainFamily { return types.FamilyHub }
func (a *HubAdapter) ChainID() types.ChainID    { return a.chain.ID }

// Deposit routes the tokens through the account's hub wallet, which pulls
// them and executes Data in the same transaction.
func (a *HubAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
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

	data, err := hub.UserRouterABI.Pack("route", token, req.Amount, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack route: %w", err)
	}
	var value *big.Int
	if isNativeToken(a.chain, token) {
		value = req.Amount
	}
	return a.send(ctx, req.To, value, data, req.DryRun)
}

// CallWallet executes the payload on the hub wallet directly
func (a *HubAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
	if err := a.sender(req.From); err != nil {
		return nil, err
	}
	data, err := hub.UserRouterABI.Pack("execute", req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return a.send(ctx, req.HubWallet, nil, data, req.DryRun)
}

func (a *HubAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	return a.estimateFee(ctx, handle)
}

// GetDeposit reads the hub asset manager balance of token
func (a *HubAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	tokenAddr, err := parseEVMAddress("token", token)
	if err != nil {
		return nil, err
	}
	assetManager, err := parseEVMAddress("asset manager", a.chain.AssetManager)
	if err != nil {
		return nil, err
	}
	return a.erc20Balance(ctx, tokenAddr, assetManager)
}

func (a *HubAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	return a.verify(ctx, hash)
}

// IsAllowanceValid checks the account's hub wallet may spend the amount
func (a *HubAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
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
	allowance, err := a.allowance(ctx, token, owner, req.HubWallet)
	if err != nil {
		return false, err
	}
	return allowance.Cmp(req.Amount) >= 0, nil
}

// Approve lets the account's hub wallet spend the amount
func (a *HubAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	token, err := parseEVMAddress("token", req.Token)
	if err != nil {
		return nil, err
	}
	return a.approve(ctx, req.Owner, token, req.HubWallet, req.Amount)
}
