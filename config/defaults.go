package config

import "time"

const (
	defaultRPCTimeout = 30 * time.Second

	DefaultNoOwnerGasLimit            = 140_000
	DefaultERC20NotDeployedGasLimit   = 3_000_000
	DefaultERC721NotDeployedGasLimit  = 2_400_000
	DefaultERC1155NotDeployedGasLimit = 2_600_000
	DefaultUnpredictableGasLimit      = 1_000_000
	DefaultETHClaimThreshold          = 2_500_000
	DefaultERC20ClaimThreshold        = 2_500_000
	DefaultERC721ClaimThreshold       = 3_000_000
	DefaultERC1155ClaimThreshold      = 3_000_000
	DefaultFeeETHGasLimit             = 900_000
	DefaultFeeNotDeployedGasLimit     = 3_100_000
	DefaultFeeDeployedGasLimit        = 1_100_000

	DefaultStatusPollInterval  = 20 * time.Second
	DefaultReceiptPollInterval = 5 * time.Second
	DefaultPendingTimeout      = 5 * time.Minute
	DefaultWatcherPollInterval = 4 * time.Second
)

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func withGasDefaults(cfg *GasConfig) *GasConfig {
	if cfg == nil {
		cfg = new(GasConfig)
	}
	cfg.NoOwnerGasLimit = orDefault(cfg.NoOwnerGasLimit, DefaultNoOwnerGasLimit)
	cfg.ERC20NotDeployedGasLimit = orDefault(cfg.ERC20NotDeployedGasLimit, DefaultERC20NotDeployedGasLimit)
	cfg.ERC721NotDeployedGasLimit = orDefault(cfg.ERC721NotDeployedGasLimit, DefaultERC721NotDeployedGasLimit)
	cfg.ERC1155NotDeployedGasLimit = orDefault(cfg.ERC1155NotDeployedGasLimit, DefaultERC1155NotDeployedGasLimit)
	cfg.UnpredictableGasLimit = orDefault(cfg.UnpredictableGasLimit, DefaultUnpredictableGasLimit)
	cfg.ETHClaimThreshold = orDefault(cfg.ETHClaimThreshold, DefaultETHClaimThreshold)
	cfg.ERC20ClaimThreshold = orDefault(cfg.ERC20ClaimThreshold, DefaultERC20ClaimThreshold)
	cfg.ERC721ClaimThreshold = orDefault(cfg.ERC721ClaimThreshold, DefaultERC721ClaimThreshold)
	cfg.ERC1155ClaimThreshold = orDefault(cfg.ERC1155ClaimThreshold, DefaultERC1155ClaimThreshold)
	cfg.FeeETHGasLimit = orDefault(cfg.FeeETHGasLimit, DefaultFeeETHGasLimit)
	cfg.FeeNotDeployedGasLimit = orDefault(cfg.FeeNotDeployedGasLimit, DefaultFeeNotDeployedGasLimit)
	cfg.FeeDeployedGasLimit = orDefault(cfg.FeeDeployedGasLimit, DefaultFeeDeployedGasLimit)
	return cfg
}

func withTrackerDefaults(cfg *TrackerConfig) *TrackerConfig {
	if cfg == nil {
		cfg = new(TrackerConfig)
	}
	cfg.StatusPollInterval = orDefault(cfg.StatusPollInterval, DefaultStatusPollInterval)
	cfg.ReceiptPollInterval = orDefault(cfg.ReceiptPollInterval, DefaultReceiptPollInterval)
	cfg.PendingTimeout = orDefault(cfg.PendingTimeout, DefaultPendingTimeout)
	return cfg
}

func withWatcherDefaults(cfg *WatcherConfig) *WatcherConfig {
	if cfg == nil {
		cfg = new(WatcherConfig)
	}
	cfg.PollInterval = orDefault(cfg.PollInterval, DefaultWatcherPollInterval)
	return cfg
}
