package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HubAssetInfo describes how a spoke token is represented on the hub
type HubAssetInfo struct {
	Asset    common.Address // Hub token representing the spoke token
	Vault    common.Address // Vault that pools the hub token
	Decimals uint8          // Native decimals of the spoke token
}

// IsVaultToken returns true when the asset is the vault token itself
func (h HubAssetInfo) IsVaultToken() bool {
	return h.Asset == h.Vault
}

// SameVault compares vault addresses case-insensitively
func (h HubAssetInfo) SameVault(other HubAssetInfo) bool {
	return strings.EqualFold(h.Vault.Hex(), other.Vault.Hex())
}

// VaultReserves is a snapshot of what a vault holds
type VaultReserves struct {
	Tokens   []common.Address
	Balances []*big.Int
}

// BalanceOf returns the reserve of token, or zero when the vault does not hold it
func (r *VaultReserves) BalanceOf(token common.Address) *big.Int {
	for i, t := range r.Tokens {
		if strings.EqualFold(t.Hex(), token.Hex()) && i < len(r.Balances) {
			return new(big.Int).Set(r.Balances[i])
		}
	}
	return new(big.Int)
}

// VaultTokenInfo is the per-asset configuration a vault stores
type VaultTokenInfo struct {
	Decimals      uint8
	DepositFee    *big.Int
	WithdrawalFee *big.Int
	MaxDeposit    *big.Int
	IsSupported   bool
}

// PartnerFee is an optional fee credited to Address. Exactly one of
// Percentage (basis points, 100 = 1%) or Amount is set.
type PartnerFee struct {
	Address    common.Address
	Percentage uint32
	Amount     *big.Int
}

// FeeDenominator is the basis point scale of PartnerFee.Percentage
const FeeDenominator = 10_000

// Validate checks the fee is well formed
func (f *PartnerFee) Validate() error {
	if f == nil {
		return nil
	}
	if f.Address == (common.Address{}) {
		return fmt.Errorf("fee recipient address is required")
	}
	hasAmount := f.Amount != nil && f.Amount.Sign() != 0
	if f.Percentage > 0 && hasAmount {
		return fmt.Errorf("fee must be either a percentage or a fixed amount, not both")
	}
	if f.Percentage > FeeDenominator {
		return fmt.Errorf("fee percentage %d exceeds %d basis points", f.Percentage, FeeDenominator)
	}
	if f.Amount != nil && f.Amount.Sign() < 0 {
		return fmt.Errorf("fee amount must not be negative")
	}
	if f.Amount != nil && !FitsUint256(f.Amount) {
		return fmt.Errorf("fee amount %s exceeds uint256", f.Amount)
	}
	return nil
}

// Compute returns the fee owed on amount. A nil fee is zero.
func (f *PartnerFee) Compute(amount *big.Int) *big.Int {
	if f == nil || amount == nil {
		return new(big.Int)
	}
	if f.Percentage > 0 {
		fee := new(big.Int).Mul(amount, big.NewInt(int64(f.Percentage)))
		return fee.Quo(fee, big.NewInt(FeeDenominator))
	}
	if f.Amount != nil {
		return new(big.Int).Set(f.Amount)
	}
	return new(big.Int)
}

// LimitKind says which side of the bridge binds a limit
type LimitKind string

const (
	DepositLimit    LimitKind = "DEPOSIT_LIMIT"
	WithdrawalLimit LimitKind = "WITHDRAWAL_LIMIT"
)

// BridgeLimit is the result of a bridgeable amount query
type BridgeLimit struct {
	Amount   *big.Int
	Decimals uint8
	Kind     LimitKind
}

// ContractCall is one hub call inside a payload
type ContractCall struct {
	Address common.Address
	Value   *big.Int
	Data    []byte
}

// TxHandle references a spoke transaction. Raw is set instead of Hash when the
// transaction was only prepared (dry run).
type TxHandle struct {
	ChainID ChainID
	Hash    string
	Raw     any
	// RelayData is the payload the relay must deliver for chains whose
	// transaction commits only a hash of it
	RelayData string
}

// Sent returns true when the transaction was broadcast
func (h *TxHandle) Sent() bool {
	return h != nil && h.Hash != ""
}

// Fee is a chain-specific cost estimate in the native unit of the chain
type Fee struct {
	Amount *big.Int
	Unit   string
	// Detail holds the family-specific breakdown (gas, compute units, steps)
	Detail map[string]string
}
