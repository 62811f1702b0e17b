package parser

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// Request is a parsed transfer command. Chains are empty when the command
// did not name them.
type Request struct {
	Amount    string
	SrcSymbol string
	SrcChain  types.ChainID
	DstSymbol string
	DstChain  types.ChainID
}

// Resolved is a request bound to registry assets
type Resolved struct {
	SrcChain types.ChainID
	DstChain types.ChainID
	Src      registry.Asset
	Dst      registry.Asset
	Amount   *big.Int // Source token base units
}

var commandPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)(?:@([A-Z0-9_.\-]+))?\s+TO\s+([A-Z0-9]+)(?:@([A-Z0-9_.\-]+))?$`)

// ParseCommand parses a transfer command
// Examples:
//   - "1 USDC to USDC"
//   - "1.5 ETH@base to wS@sonic"
//   - "swap 100 USDC@solana to ETH@base"
//   - "bridge 25 USDC@bsc to USDC@base"
func ParseCommand(command string) (*Request, error) {
	command = strings.TrimSpace(strings.ToUpper(command))
	command = strings.TrimPrefix(command, "SWAP ")
	command = strings.TrimPrefix(command, "BRIDGE ")

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid command format. Expected: '<amount> <token>[@chain] to <token>[@chain]' (e.g., '1.5 USDC@base to USDC@solana')")
	}

	return &Request{
		Amount:    matches[1],
		SrcSymbol: NormalizeTokenSymbol(matches[2]),
		SrcChain:  types.ChainID(strings.ToLower(matches[3])),
		DstSymbol: NormalizeTokenSymbol(matches[4]),
		DstChain:  types.ChainID(strings.ToLower(matches[5])),
	}, nil
}

var assetRefPattern = regexp.MustCompile(`^([A-Z0-9]+)@([A-Z0-9_.\-]+)$`)

// ParseAssetRef parses a "<symbol>@<chain>" token reference
func ParseAssetRef(ref string) (string, types.ChainID, error) {
	matches := assetRefPattern.FindStringSubmatch(strings.TrimSpace(strings.ToUpper(ref)))
	if matches == nil {
		return "", "", fmt.Errorf("invalid token reference %q. Expected: '<token>@<chain>' (e.g., 'USDC@base')", ref)
	}
	return NormalizeTokenSymbol(matches[1]), types.ChainID(strings.ToLower(matches[2])), nil
}

// ValidateRequest checks that a request has all required fields
func ValidateRequest(req *Request) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SrcSymbol == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DstSymbol == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.SrcChain == "" || req.DstChain == "" {
		return fmt.Errorf("source and destination chains are required")
	}
	return nil
}

// Resolve binds a request to the registry. Chains missing from the command
// fall back to srcDefault and dstDefault.
func Resolve(reg *registry.Registry, req *Request, srcDefault, dstDefault types.ChainID) (*Resolved, error) {
	bound := *req
	if bound.SrcChain == "" {
		bound.SrcChain = srcDefault
	}
	if bound.DstChain == "" {
		bound.DstChain = dstDefault
	}
	if err := ValidateRequest(&bound); err != nil {
		return nil, err
	}

	src, err := reg.AssetBySymbol(bound.SrcChain, bound.SrcSymbol)
	if err != nil {
		return nil, err
	}
	dst, err := reg.AssetBySymbol(bound.DstChain, bound.DstSymbol)
	if err != nil {
		return nil, err
	}
	amount, err := ToBaseUnits(bound.Amount, src.Decimals)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		SrcChain: bound.SrcChain,
		DstChain: bound.DstChain,
		Src:      src,
		Dst:      dst,
		Amount:   amount,
	}, nil
}

// ToBaseUnits converts a human amount to base units. Digits beyond the
// token precision are rejected rather than rounded.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a human amount
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"USDCE": "USDC",
		"BTCB":  "BTC",
		"WSOL":  "SOL",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
