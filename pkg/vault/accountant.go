// Package vault implements the hub vault accounting rules: bridgeability,
// decimal translation and bridge limits.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "vault").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "vault").Logger()
}

// Token names a token on a chain by its native address
type Token struct {
	Chain   types.ChainID
	Address string
}

func (t Token) String() string {
	return fmt.Sprintf("%s@%s", t.Address, t.Chain)
}

// Reader is the hub state the accountant needs
type Reader interface {
	VaultTokenInfo(ctx context.Context, vault, token common.Address) (types.VaultTokenInfo, error)
	VaultReserves(ctx context.Context, vault common.Address) (types.VaultReserves, error)
}

// CustodyReader reads what a spoke asset manager holds
type CustodyReader interface {
	GetDeposit(ctx context.Context, token string) (*big.Int, error)
}

// CustodyResolver returns the custody reader of a spoke chain
type CustodyResolver func(chainID types.ChainID) (CustodyReader, error)

// Accountant answers bridgeability and limit queries. Remote state is read
// fresh on every call.
type Accountant struct {
	registry *registry.Registry
	hub      Reader
	custody  CustodyResolver
}

// NewAccountant creates an accountant
func NewAccountant(reg *registry.Registry, hub Reader, custody CustodyResolver) *Accountant {
	return &Accountant{registry: reg, hub: hub, custody: custody}
}

// IsBridgeable returns true when both tokens are pooled by the same vault
func (a *Accountant) IsBridgeable(from, to Token) bool {
	fromInfo, err := a.registry.HubAsset(from.Chain, from.Address)
	if err != nil {
		return false
	}
	toInfo, err := a.registry.HubAsset(to.Chain, to.Address)
	if err != nil {
		return false
	}
	return fromInfo.SameVault(toInfo)
}

// ToVault translates an amount of a spoke asset into vault units
func (a *Accountant) ToVault(info types.HubAssetInfo, amount *big.Int) *big.Int {
	return Translate(amount, info.Decimals, a.registry.VaultDecimals(info.Vault))
}

// FromVault translates vault units into the native units of an asset
func (a *Accountant) FromVault(info types.HubAssetInfo, amount *big.Int) *big.Int {
	return Translate(amount, a.registry.VaultDecimals(info.Vault), info.Decimals)
}

// NeedsTranslation reports whether the asset precision differs from its vault
func (a *Accountant) NeedsTranslation(info types.HubAssetInfo) bool {
	return info.Decimals != a.registry.VaultDecimals(info.Vault)
}

// ComputeBridgeLimit returns how much of from can currently be bridged to to
// and which side binds. The result is advisory; the contracts are the final
// arbiter.
func (a *Accountant) ComputeBridgeLimit(ctx context.Context, from, to Token) (*types.BridgeLimit, error) {
	fromInfo, err := a.registry.HubAsset(from.Chain, from.Address)
	if err != nil {
		return nil, err
	}
	toInfo, err := a.registry.HubAsset(to.Chain, to.Address)
	if err != nil {
		return nil, err
	}
	if !fromInfo.SameVault(toInfo) {
		return nil, types.NewSettlementError(types.CodeNotBridgeable,
			fmt.Errorf("%s and %s belong to different vaults", from, to))
	}

	fromHub := a.registry.IsHub(from.Chain)
	toHub := a.registry.IsHub(to.Chain)
	if fromHub && toHub {
		return nil, fmt.Errorf("both tokens are on the hub chain, there is nothing to bridge")
	}

	var (
		tokenInfo types.VaultTokenInfo
		reserves  types.VaultReserves
		custody   *big.Int
	)
	checkSupport := !fromHub || !fromInfo.IsVaultToken()

	g, gctx := errgroup.WithContext(ctx)
	if checkSupport {
		g.Go(func() error {
			info, err := a.hub.VaultTokenInfo(gctx, fromInfo.Vault, fromInfo.Asset)
			if err != nil {
				return fmt.Errorf("failed to read vault token info: %w", err)
			}
			tokenInfo = info
			return nil
		})
	}
	if !fromHub {
		g.Go(func() error {
			r, err := a.hub.VaultReserves(gctx, toInfo.Vault)
			if err != nil {
				return fmt.Errorf("failed to read vault reserves: %w", err)
			}
			reserves = r
			return nil
		})
	}
	if !toHub {
		g.Go(func() error {
			reader, err := a.custody(to.Chain)
			if err != nil {
				return err
			}
			balance, err := reader.GetDeposit(gctx, to.Address)
			if err != nil {
				return fmt.Errorf("failed to read asset manager balance on %s: %w", to.Chain, err)
			}
			custody = balance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if checkSupport && !tokenInfo.IsSupported {
		return &types.BridgeLimit{Amount: new(big.Int), Decimals: fromInfo.Decimals, Kind: types.DepositLimit}, nil
	}

	withdrawal := &types.BridgeLimit{Amount: custody, Decimals: toInfo.Decimals, Kind: types.WithdrawalLimit}
	if fromHub {
		return withdrawal, nil
	}

	deposit := &types.BridgeLimit{
		Amount:   depositHeadroom(tokenInfo.MaxDeposit, reserves.BalanceOf(fromInfo.Asset)),
		Decimals: fromInfo.Decimals,
		Kind:     types.DepositLimit,
	}
	if toHub {
		return deposit, nil
	}

	depositScaled := decimal.NewFromBigInt(deposit.Amount, -int32(deposit.Decimals))
	withdrawalScaled := decimal.NewFromBigInt(withdrawal.Amount, -int32(withdrawal.Decimals))
	log.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("deposit_limit", depositScaled.String()).
		Str("withdrawal_limit", withdrawalScaled.String()).
		Msg("Computed bridge limits")

	if withdrawalScaled.LessThan(depositScaled) {
		return withdrawal, nil
	}
	return deposit, nil
}

func depositHeadroom(maxDeposit, deposited *big.Int) *big.Int {
	if maxDeposit == nil {
		return new(big.Int)
	}
	headroom := new(big.Int).Sub(maxDeposit, deposited)
	if headroom.Sign() < 0 {
		return new(big.Int)
	}
	return headroom
}
