// Package spoke implements the chain adapters that move assets and messages
// from spoke chains to the hub. Each chain family has one adapter; New picks
// it from the chain config.
package spoke

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"hub-settle/pkg/address"
	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "spoke").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "spoke").Logger()
}

// DepositRequest moves Amount of Token from From into the spoke asset manager
// and credits To on the hub, where Data is executed.
type DepositRequest struct {
	From   string // Spoke account in native format
	To     common.Address
	Token  string // Token address in native format
	Amount *big.Int
	Data   []byte
	DryRun bool
}

// CallWalletRequest sends Payload to the hub wallet of From without moving value
type CallWalletRequest struct {
	From      string
	HubWallet common.Address
	Payload   []byte
	DryRun    bool
}

// AllowanceRequest asks whether Owner authorized spending Amount of Token.
// HubWallet is the spender on the hub chain.
type AllowanceRequest struct {
	Owner     string
	Token     string
	Amount    *big.Int
	HubWallet common.Address
}

// Adapter normalizes one chain family
type Adapter interface {
	Family() types.ChainFamily
	ChainID() types.ChainID
	Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error)
	CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error)
	// EstimateFee is informational and never blocks the other operations
	EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error)
	// GetDeposit reads what the spoke asset manager custodies of token
	GetDeposit(ctx context.Context, token string) (*big.Int, error)
	// VerifyTx reports whether hash is final on the spoke chain
	VerifyTx(ctx context.Context, hash string) (bool, error)
	IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error)
	Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error)
}

var (
	_ Adapter = (*EVMAdapter)(nil)
	_ Adapter = (*HubAdapter)(nil)
	_ Adapter = (*SolanaAdapter)(nil)
	_ Adapter = (*SuiAdapter)(nil)
	_ Adapter = (*StellarAdapter)(nil)
	_ Adapter = (*IconAdapter)(nil)
	_ Adapter = (*CosmosAdapter)(nil)
	_ Adapter = (*BitcoinAdapter)(nil)
)

// Simulator dry-runs a wallet payload on the hub
type Simulator interface {
	Simulate(ctx context.Context, relayChainID types.RelayChainID, srcAddress, payload []byte) error
}

// Deps are the collaborators adapters are built from. Only the fields of the
// family being built are read; nil signers leave the adapter read-only.
type Deps struct {
	HubRelayChainID types.RelayChainID
	Simulator       Simulator

	EVMBackend    hub.Backend // Dialed from the chain RPC URL when nil
	EVMSigner     EVMSigner
	SolanaRPC     SolanaRPC // Built from the chain RPC URL when nil
	SolanaSigner  SolanaSigner
	SuiSigner     SuiSigner
	StellarSigner StellarSigner
	IconSigner    IconSigner
	CosmosSigner  CosmosSigner

	// BitcoinUser and BitcoinPassword authenticate against bitcoind
	BitcoinUser     string
	BitcoinPassword string

	HTTPOptions []httpjson.Option
}

// New builds the adapter of the chain's family
func New(chain registry.ChainConfig, deps Deps) (Adapter, error) {
	switch chain.Family {
	case types.FamilyEVM, types.FamilyHub:
		backend := deps.EVMBackend
		if backend == nil {
			client, err := ethclient.Dial(chain.RPCURL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s RPC endpoint: %w", chain.ID, err)
			}
			backend = client
		}
		if chain.Family == types.FamilyHub {
			return NewHubAdapter(chain, backend, deps.EVMSigner), nil
		}
		return NewEVMAdapter(chain, backend, deps.EVMSigner, deps.Simulator, deps.HubRelayChainID), nil

	case types.FamilySolana:
		client := deps.SolanaRPC
		if client == nil {
			client = rpc.New(chain.RPCURL)
		}
		return NewSolanaAdapter(chain, client, deps.SolanaSigner, deps.Simulator, deps.HubRelayChainID), nil

	case types.FamilySui:
		return NewSuiAdapter(chain, deps.SuiSigner, deps.Simulator, deps.HubRelayChainID, deps.HTTPOptions...), nil

	case types.FamilyStellar:
		return NewStellarAdapter(chain, deps.StellarSigner, deps.Simulator, deps.HubRelayChainID, deps.HTTPOptions...), nil

	case types.FamilyIcon:
		return NewIconAdapter(chain, deps.IconSigner, deps.Simulator, deps.HubRelayChainID, deps.HTTPOptions...), nil

	case types.FamilyCosmos:
		return NewCosmosAdapter(chain, deps.CosmosSigner, deps.Simulator, deps.HubRelayChainID, deps.HTTPOptions...), nil

	case types.FamilyBitcoin:
		opts := append([]httpjson.Option(nil), deps.HTTPOptions...)
		if deps.BitcoinUser != "" {
			opts = append(opts, httpjson.WithBasicAuth(deps.BitcoinUser, deps.BitcoinPassword))
		}
		return NewBitcoinAdapter(chain, deps.Simulator, deps.HubRelayChainID, opts...), nil

	default:
		return nil, fmt.Errorf("%w: %q for chain %s", types.ErrUnsupportedFamily, chain.Family, chain.ID)
	}
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}
	return nil
}

// simulateFirst runs the hub simulation for a wallet call from a spoke
func simulateFirst(ctx context.Context, sim Simulator, chain registry.ChainConfig, from []byte, payload []byte) error {
	if sim == nil {
		return types.NewSettlementError(types.CodeSimulationFailed, fmt.Errorf("no hub simulator configured for %s", chain.ID))
	}
	return sim.Simulate(ctx, chain.RelayChainID, from, payload)
}

// checkSender rejects requests on behalf of an account the signer does not
// control. An empty account stands for the signer itself.
func checkSender(chain registry.ChainConfig, account, signer string) error {
	if account == "" || account == signer {
		return nil
	}
	want, errA := address.EncodeForChain(chain, account)
	have, errS := address.EncodeForChain(chain, signer)
	if errA == nil && errS == nil && bytes.Equal(want, have) {
		return nil
	}
	return fmt.Errorf("%w: %s signs as %s, not %s", types.ErrNoProvider, chain.ID, signer, account)
}
