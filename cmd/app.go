package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hub-settle/config"
	"hub-settle/pkg/bridge"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/intent"
	"hub-settle/pkg/journal"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/solver"
	"hub-settle/pkg/spoke"
	"hub-settle/pkg/types"
	"hub-settle/pkg/vault"
	"hub-settle/pkg/wallet"
)

// app holds the collaborators every command is built from
type app struct {
	cfg      *config.Config
	registry *registry.Registry
	hub      *hub.Client
	relay    *relay.Client
	solver   *solver.Client
	wallets  *wallet.Deriver
	journal  *journal.Journal

	accountant *vault.Accountant
	bridge     *bridge.Engine
	intents    *intent.Engine

	evmSigner    *spoke.EVMKeySigner
	solanaSigner *spoke.SolanaKeySigner

	mu       sync.Mutex
	adapters map[types.ChainID]spoke.Adapter
}

// loadRegistry loads the config and registry only
func loadRegistry(cmd *cobra.Command) (*config.Config, *registry.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cmd, cfg)

	reg, err := config.LoadRegistryFile(cfg.RegistryFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

// loadApp wires the full engine stack. The solver client is only built when
// needSolver is set.
func loadApp(cmd *cobra.Command, needSolver bool) (*app, error) {
	cfg, reg, err := loadRegistry(cmd)
	if err != nil {
		return nil, err
	}
	if needSolver {
		if err := cfg.RequireSolver(); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:      cfg,
		registry: reg,
		adapters: make(map[types.ChainID]spoke.Adapter),
	}

	if cfg.EVMPrivateKey != "" {
		if a.evmSigner, err = spoke.NewEVMKeySigner(cfg.EVMPrivateKey); err != nil {
			return nil, err
		}
	}
	if cfg.SolanaPrivateKey != "" {
		if a.solanaSigner, err = spoke.NewSolanaKeySigner(cfg.SolanaPrivateKey); err != nil {
			return nil, err
		}
	}

	hubChain := reg.HubChain()
	backend, err := ethclient.Dial(hubChain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hub RPC endpoint: %w", err)
	}
	a.hub = hub.NewClient(backend, reg.Hub())

	a.relay = relay.NewClient(cfg.RelayURL, relay.WithPollInterval(cfg.RelayPollInterval))
	if needSolver {
		a.solver = solver.NewClient(cfg.SolverURL,
			solver.WithPollInterval(cfg.SolverPollInterval),
			solver.WithNotFoundGrace(cfg.NotFoundGrace),
		)
	}

	a.journal, err = journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	a.wallets = wallet.NewDeriver(reg, a.hub)
	a.accountant = vault.NewAccountant(reg, a.hub, a.custody)
	a.bridge = bridge.NewEngine(reg, a.wallets, a.accountant, a.relay, a.adapter,
		bridge.WithJournal(a.journal),
		bridge.WithVerifyRetry(cfg.VerifyAttempts, cfg.VerifyDelay),
	)
	if a.solver != nil {
		a.intents = intent.NewEngine(reg, a.wallets, a.relay, a.solver, a.adapter,
			intent.WithJournal(a.journal),
			intent.WithVerifyRetry(cfg.VerifyAttempts, cfg.VerifyDelay),
		)
	}

	return a, nil
}

// adapter builds the adapter of a chain on first use
func (a *app) adapter(chainID types.ChainID) (spoke.Adapter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if adapter, ok := a.adapters[chainID]; ok {
		return adapter, nil
	}

	chain, err := a.registry.Chain(chainID)
	if err != nil {
		return nil, err
	}

	deps := spoke.Deps{
		HubRelayChainID: a.registry.HubChain().RelayChainID,
		Simulator:       a.hub,
		BitcoinUser:     a.cfg.BitcoinRPCUser,
		BitcoinPassword: a.cfg.BitcoinRPCPassword,
	}
	if chain.Family == types.FamilyHub {
		deps.EVMBackend = a.hub.Backend()
	}
	if a.evmSigner != nil {
		deps.EVMSigner = a.evmSigner
	}
	if a.solanaSigner != nil {
		deps.SolanaSigner = a.solanaSigner
	}

	adapter, err := spoke.New(chain, deps)
	if err != nil {
		return nil, err
	}
	a.adapters[chainID] = adapter
	return adapter, nil
}

func (a *app) custody(chainID types.ChainID) (vault.CustodyReader, error) {
	adapter, err := a.adapter(chainID)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// sender returns the configured account of the chain family, or "" when no
// key is configured for it
func (a *app) sender(chainID types.ChainID) string {
	chain, err := a.registry.Chain(chainID)
	if err != nil {
		return ""
	}
	switch {
	case chain.Family.IsEVM() && a.evmSigner != nil:
		return a.evmSigner.Address().Hex()
	case chain.Family == types.FamilySolana && a.solanaSigner != nil:
		return a.solanaSigner.PublicKey().String()
	}
	return ""
}

func setupLogging(cmd *cobra.Command, cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput && level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
}

// signalContext is cancelled on Ctrl+C
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
