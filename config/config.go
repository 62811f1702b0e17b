package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hub-settle/pkg/journal"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/solver"
	"hub-settle/pkg/spoke"
)

// Config holds the application configuration
type Config struct {
	RegistryFile string
	JournalPath  string // Empty means ~/.hub-settle-journal.json

	RelayURL  string
	SolverURL string

	EVMPrivateKey    string
	SolanaPrivateKey string

	BitcoinRPCUser     string
	BitcoinRPCPassword string

	Timeout            time.Duration
	RelayPollInterval  time.Duration
	SolverPollInterval time.Duration
	NotFoundGrace      int
	VerifyAttempts     uint
	VerifyDelay        time.Duration
	WatchInterval      time.Duration
	SlippageBps        uint32

	LogLevel string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".hub-settle")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("HUB_SETTLE")
	viper.AutomaticEnv()

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg, err := FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// SetDefaults registers the default values
func SetDefaults(v *viper.Viper) {
	v.SetDefault("registry_file", "hub-settle.toml")
	v.SetDefault("timeout", relay.DefaultTimeout)
	v.SetDefault("relay_poll_interval", relay.DefaultPollInterval)
	v.SetDefault("solver_poll_interval", solver.DefaultPollInterval)
	v.SetDefault("not_found_grace", solver.DefaultNotFoundGrace)
	v.SetDefault("verify_attempts", spoke.DefaultVerifyAttempts)
	v.SetDefault("verify_delay", spoke.DefaultVerifyDelay)
	v.SetDefault("watch_interval", journal.DefaultSweepInterval)
	v.SetDefault("slippage_bps", 100)
	v.SetDefault("log_level", "info")
}

// FromViper builds and validates a config from v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RegistryFile:       v.GetString("registry_file"),
		JournalPath:        v.GetString("journal_path"),
		RelayURL:           strings.TrimRight(v.GetString("relay_url"), "/"),
		SolverURL:          strings.TrimRight(v.GetString("solver_url"), "/"),
		EVMPrivateKey:      v.GetString("evm_private_key"),
		SolanaPrivateKey:   v.GetString("solana_private_key"),
		BitcoinRPCUser:     v.GetString("bitcoin_rpc_user"),
		BitcoinRPCPassword: v.GetString("bitcoin_rpc_password"),
		Timeout:            v.GetDuration("timeout"),
		RelayPollInterval:  v.GetDuration("relay_poll_interval"),
		SolverPollInterval: v.GetDuration("solver_poll_interval"),
		NotFoundGrace:      v.GetInt("not_found_grace"),
		VerifyAttempts:     v.GetUint("verify_attempts"),
		VerifyDelay:        v.GetDuration("verify_delay"),
		WatchInterval:      v.GetDuration("watch_interval"),
		SlippageBps:        v.GetUint32("slippage_bps"),
		LogLevel:           v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return fmt.Errorf("relay URL not found. Please set HUB_SETTLE_RELAY_URL environment variable or create a .hub-settle.yaml config file")
	}
	if c.RegistryFile == "" {
		return fmt.Errorf("registry file is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.VerifyAttempts == 0 {
		return fmt.Errorf("verify_attempts must be at least 1")
	}
	if c.NotFoundGrace < 0 {
		return fmt.Errorf("not_found_grace must not be negative")
	}
	if c.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage_bps must be below 10000, got %d", c.SlippageBps)
	}
	return nil
}

// RequireSolver reports an error when no solver endpoint is configured
func (c *Config) RequireSolver() error {
	if c.SolverURL == "" {
		return fmt.Errorf("solver URL not found. Please set HUB_SETTLE_SOLVER_URL environment variable or solver_url in .hub-settle.yaml")
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
