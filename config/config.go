package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownChain     = errors.New("unknown chain")
	ErrDuplicateChainID = errors.New("duplicate chain id")
	ErrInvalidRoute     = errors.New("invalid route")
	ErrUnknownStorage   = errors.New("unknown storage backend")
	ErrInvalidInterval  = errors.New("invalid interval")
)

type StorageBackend string

const (
	StorageNone     StorageBackend = ""
	StoragePostgres StorageBackend = "postgres"
	StorageRedis    StorageBackend = "redis"
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type ChainConfig struct {
	Name                  string         `yaml:"-"`
	RPC                   *RPCConfig     `yaml:"rpc"`
	ChainID               uint64         `yaml:"chain_id"`
	Disabled              bool           `yaml:"disabled"`
	ExplorerURL           string         `yaml:"explorer_url"`
	BridgeAddress         common.Address `yaml:"bridge_address"`
	SignalServiceAddress  common.Address `yaml:"signal_service_address"`
	CrossChainSyncAddress common.Address `yaml:"cross_chain_sync_address"`
	ERC20VaultAddress     common.Address `yaml:"erc20_vault_address"`
	ERC721VaultAddress    common.Address `yaml:"erc721_vault_address"`
	ERC1155VaultAddress   common.Address `yaml:"erc1155_vault_address"`
	Destinations          []string       `yaml:"destinations"`
	DestChains            []*ChainConfig `yaml:"-"`
}

// GasConfig holds the fixed gas policy. Values are not derived from live
// estimation, a wrong constant under-provisions the relayed message.
type GasConfig struct {
	NoOwnerGasLimit            uint64 `yaml:"no_owner_gas_limit"`
	ERC20NotDeployedGasLimit   uint64 `yaml:"erc20_not_deployed_gas_limit"`
	ERC721NotDeployedGasLimit  uint64 `yaml:"erc721_not_deployed_gas_limit"`
	ERC1155NotDeployedGasLimit uint64 `yaml:"erc1155_not_deployed_gas_limit"`
	UnpredictableGasLimit      uint64 `yaml:"unpredictable_gas_limit"`
	ETHClaimThreshold          uint64 `yaml:"eth_claim_threshold"`
	ERC20ClaimThreshold        uint64 `yaml:"erc20_claim_threshold"`
	ERC721ClaimThreshold       uint64 `yaml:"erc721_claim_threshold"`
	ERC1155ClaimThreshold      uint64 `yaml:"erc1155_claim_threshold"`
	FeeETHGasLimit             uint64 `yaml:"fee_eth_gas_limit"`
	FeeNotDeployedGasLimit     uint64 `yaml:"fee_not_deployed_gas_limit"`
	FeeDeployedGasLimit        uint64 `yaml:"fee_deployed_gas_limit"`
}

type TrackerConfig struct {
	StatusPollInterval  time.Duration `yaml:"status_poll_interval"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	PendingTimeout      time.Duration `yaml:"pending_timeout"`
}

type WatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type WalletConfig struct {
	RPC *RPCConfig `yaml:"rpc"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chains      map[string]*ChainConfig `yaml:"chains"`
	Gas         *GasConfig              `yaml:"gas"`
	Tracker     *TrackerConfig          `yaml:"tracker"`
	Watcher     *WatcherConfig          `yaml:"watcher"`
	Wallet      *WalletConfig           `yaml:"wallet"`
	Storage     StorageBackend          `yaml:"storage"`
	DBConfig    *DBConfig               `yaml:"postgres"`
	RedisConfig *RedisConfig            `yaml:"redis"`
	LogLevel    logrus.Level            `yaml:"log_level"`
	Presenter   *PresenterConfig        `yaml:"presenter"`
	MetricsHost string                  `yaml:"metrics_host"`
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) init() error {
	seen := make(map[uint64]string, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		chain.Name = name
		if prev, ok := seen[chain.ChainID]; ok {
			return fmt.Errorf("chains %s and %s share chain id %d: %w", prev, name, chain.ChainID, ErrDuplicateChainID)
		}
		seen[chain.ChainID] = name
		if chain.RPC != nil && chain.RPC.Timeout == 0 {
			chain.RPC.Timeout = defaultRPCTimeout
		}
	}
	for name, chain := range cfg.Chains {
		chain.DestChains = make([]*ChainConfig, 0, len(chain.Destinations))
		for _, destName := range chain.Destinations {
			dest, ok := cfg.Chains[destName]
			if !ok {
				return fmt.Errorf("chain %s routes to %s: %w", name, destName, ErrUnknownChain)
			}
			if dest == chain {
				return fmt.Errorf("chain %s routes to itself: %w", name, ErrInvalidRoute)
			}
			chain.DestChains = append(chain.DestChains, dest)
		}
	}
	switch cfg.Storage {
	case StorageNone:
	case StoragePostgres:
		if cfg.DBConfig == nil {
			return fmt.Errorf("storage %q requires the postgres section: %w", cfg.Storage, ErrUnknownStorage)
		}
	case StorageRedis:
		if cfg.RedisConfig == nil {
			return fmt.Errorf("storage %q requires the redis section: %w", cfg.Storage, ErrUnknownStorage)
		}
	default:
		return fmt.Errorf("storage %q: %w", cfg.Storage, ErrUnknownStorage)
	}
	cfg.Gas = withGasDefaults(cfg.Gas)
	cfg.Tracker = withTrackerDefaults(cfg.Tracker)
	cfg.Watcher = withWatcherDefaults(cfg.Watcher)
	for name, d := range map[string]time.Duration{
		"tracker.status_poll_interval":  cfg.Tracker.StatusPollInterval,
		"tracker.receipt_poll_interval": cfg.Tracker.ReceiptPollInterval,
		"watcher.poll_interval":         cfg.Watcher.PollInterval,
	} {
		// scheduled jobs only fire on whole seconds
		if d < time.Second {
			return fmt.Errorf("%s is %s, must be at least 1s: %w", name, d, ErrInvalidInterval)
		}
	}
	if cfg.Wallet != nil && cfg.Wallet.RPC != nil && cfg.Wallet.RPC.Timeout == 0 {
		cfg.Wallet.RPC.Timeout = defaultRPCTimeout
	}
	return nil
}

// GetChainConfig returns nil for chains missing from the configuration.
func (cfg *Config) GetChainConfig(chainID uint64) *ChainConfig {
	for _, chain := range cfg.Chains {
		if chain.ChainID == chainID {
			return chain
		}
	}
	return nil
}

func (cfg *Config) IsSupportedChain(chainID uint64) bool {
	chain := cfg.GetChainConfig(chainID)
	return chain != nil && !chain.Disabled
}

func (c *ChainConfig) RoutesTo(chainID uint64) bool {
	for _, dest := range c.DestChains {
		if dest.ChainID == chainID {
			return true
		}
	}
	return false
}
