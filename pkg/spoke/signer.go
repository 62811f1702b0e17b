package spoke

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// EVMSigner signs transactions for EVM and hub chains
type EVMSigner interface {
	Address() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// EVMKeySigner signs with a raw secp256k1 private key
type EVMKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewEVMKeySigner parses a hex private key, with or without 0x
func NewEVMKeySigner(hexKey string) (*EVMKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &EVMKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the account of the key
func (s *EVMKeySigner) Address() common.Address {
	return s.address
}

// SignTx signs tx with EIP-155 replay protection
func (s *EVMKeySigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SolanaSigner signs Solana transactions
type SolanaSigner interface {
	PublicKey() solana.PublicKey
	Sign(tx *solana.Transaction) error
}

// SolanaKeySigner signs with an ed25519 key
type SolanaKeySigner struct {
	key solana.PrivateKey
}

// NewSolanaKeySigner parses a base58 private key
func NewSolanaKeySigner(base58Key string) (*SolanaKeySigner, error) {
	key, err := solana.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &SolanaKeySigner{key: key}, nil
}

// PublicKey returns the account of the key
func (s *SolanaKeySigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// Sign adds the key's signature to tx
func (s *SolanaKeySigner) Sign(tx *solana.Transaction) error {
	pub := s.key.PublicKey()
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

// SuiSigner signs Sui transaction bytes. The signature is the serialized
// flag || signature || public key, base64 encoded.
type SuiSigner interface {
	Address() string
	SignTransaction(ctx context.Context, txBytes []byte) (string, error)
}

// StellarInvocation is a Soroban contract call
type StellarInvocation struct {
	Source   string
	Contract string
	Function string
	Args     []interface{}
}

// StellarSigner builds and signs Soroban transaction envelopes
type StellarSigner interface {
	Address() string
	// BuildInvocation returns the unsigned envelope XDR of inv
	BuildInvocation(ctx context.Context, inv StellarInvocation) (string, error)
	// Sign returns the signed envelope XDR, with the simulated resource footprint applied
	Sign(ctx context.Context, envelopeXDR string, simulation json.RawMessage) (string, error)
}

// IconSigner signs ICON v3 transactions
type IconSigner interface {
	Address() string
	// Sign returns the base64 signature of the serialized transaction
	Sign(ctx context.Context, tx map[string]interface{}) (string, error)
}

// CosmosCoin is an amount of a bank denom
type CosmosCoin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// CosmosSigner signs and broadcasts CosmWasm execute messages
type CosmosSigner interface {
	Address() string
	Execute(ctx context.Context, contract string, msg json.RawMessage, funds []CosmosCoin) (string, error)
	Simulate(ctx context.Context, contract string, msg json.RawMessage, funds []CosmosCoin) (uint64, error)
}
