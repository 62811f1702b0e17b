// Package address converts spoke chain addresses to the canonical bytes the
// hub contracts and transfer messages carry.
package address

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// Options narrows validation for families with several networks
type Options struct {
	Bech32Prefix   string           // Required cosmos prefix, empty accepts any
	BitcoinNetwork *chaincfg.Params // Defaults to mainnet
}

// OptionsFor derives options from a chain config
func OptionsFor(chain registry.ChainConfig) Options {
	opts := Options{Bech32Prefix: chain.Bech32Prefix}
	if chain.Family == types.FamilyBitcoin {
		opts.BitcoinNetwork = BitcoinParams(chain.NetworkID)
	}
	return opts
}

// BitcoinParams maps a network name to chain params
func BitcoinParams(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "simnet":
		return &chaincfg.SimNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// Encode converts address to canonical bytes using default options
func Encode(family types.ChainFamily, address string) ([]byte, error) {
	return EncodeWith(family, address, Options{})
}

// EncodeForChain converts address using the network settings of chain
func EncodeForChain(chain registry.ChainConfig, address string) ([]byte, error) {
	return EncodeWith(chain.Family, address, OptionsFor(chain))
}

// EncodeWith converts address to canonical bytes
func EncodeWith(family types.ChainFamily, address string, opts Options) ([]byte, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is empty")
	}

	switch family {
	case types.FamilyEVM, types.FamilyHub:
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("invalid EVM address: %s", address)
		}
		return common.HexToAddress(address).Bytes(), nil

	case types.FamilySolana:
		pk, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("invalid Solana address: %w", err)
		}
		return pk.Bytes(), nil

	case types.FamilySui:
		return encodeSui(address)

	case types.FamilyStellar:
		if err := validateStrkey(address); err != nil {
			return nil, err
		}
		return []byte(address), nil

	case types.FamilyIcon:
		return encodeIcon(address)

	case types.FamilyCosmos:
		prefix, _, err := bech32.Decode(address)
		if err != nil {
			return nil, fmt.Errorf("invalid bech32 address (checksum failed): %w", err)
		}
		if opts.Bech32Prefix != "" && prefix != opts.Bech32Prefix {
			return nil, fmt.Errorf("bech32 prefix mismatch: got %s, want %s", prefix, opts.Bech32Prefix)
		}
		return []byte(address), nil

	case types.FamilyBitcoin:
		params := opts.BitcoinNetwork
		if params == nil {
			params = &chaincfg.MainNetParams
		}
		decoded, err := btcutil.DecodeAddress(address, params)
		if err != nil {
			return nil, fmt.Errorf("invalid bitcoin address: %w", err)
		}
		if !decoded.IsForNet(params) {
			return nil, fmt.Errorf("bitcoin address %s is not for %s", address, params.Name)
		}
		return []byte(address), nil

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedFamily, family)
	}
}

func encodeSui(address string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(raw) == 0 || len(raw) > 64 {
		return nil, fmt.Errorf("invalid Sui address: %s", address)
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid Sui address: %w", err)
	}
	// Sui addresses are 32 bytes, short forms are left padded
	return common.LeftPadBytes(decoded, 32), nil
}

func encodeIcon(address string) ([]byte, error) {
	if len(address) != 42 {
		return nil, fmt.Errorf("invalid ICON address length: %s", address)
	}
	var prefix byte
	switch strings.ToLower(address[:2]) {
	case "hx":
		prefix = 0x00
	case "cx":
		prefix = 0x01
	default:
		return nil, fmt.Errorf("invalid ICON address prefix: %s", address)
	}
	body, err := hex.DecodeString(address[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid ICON address: %w", err)
	}
	return append([]byte{prefix}, body...), nil
}

// validateStrkey checks the shape of a Stellar account (G...) or contract
// (C...) strkey. The checksum is verified by the network.
func validateStrkey(address string) error {
	if len(address) != 56 {
		return fmt.Errorf("invalid Stellar address length: %s", address)
	}
	if address[0] != 'G' && address[0] != 'C' {
		return fmt.Errorf("invalid Stellar address version: %s", address)
	}
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(address)
	if err != nil {
		return fmt.Errorf("invalid Stellar address: %w", err)
	}
	if len(decoded) != 35 {
		return fmt.Errorf("invalid Stellar address payload: %s", address)
	}
	return nil
}

// IsContract reports whether an ICON or Stellar address names a contract
func IsContract(family types.ChainFamily, address string) bool {
	switch family {
	case types.FamilyIcon:
		return strings.HasPrefix(strings.ToLower(address), "cx")
	case types.FamilyStellar:
		return strings.HasPrefix(address, "C")
	}
	return false
}
