package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// -- Endpoints --
	ONEINCH_BASE_URL  = "https://api.1inch.dev/swap/v6.0"
	PARASWAP_BASE_URL = "https://apiv5.paraswap.io"
	ZEROX_BASE_URL    = "https://api.0x.org"

	// -- Default Parameters --
	DEFAULT_PLATFORM_FEE_RATE  = 0.0001 // fraction of zapped USD value
	DEFAULT_REFERRER_FEE_SHARE = 0.7    // fraction of the platform fee
	DEFAULT_DUST_THRESHOLD_USD = 0.005
	DEFAULT_SLIPPAGE_PCT       = 1.0
	DEFAULT_LISTEN_ADDR        = ":8080"
	DEFAULT_TARGET_TOKEN       = "ETH"

	// -- Streaming / lifecycle --
	DEFAULT_HEARTBEAT_INTERVAL_MS = 30_000
	DEFAULT_CONNECTION_TIMEOUT_MS = 300_000
	DEFAULT_CLEANUP_INTERVAL_MS   = 60_000
	DEFAULT_MAX_CONTEXTS          = 1000
	DEFAULT_MAX_CONNECTIONS       = 100
	DEFAULT_MAX_DUST_TOKENS       = 200

	// -- Adapter HTTP --
	ADAPTER_TIMEOUT_SECONDS = 30
	RETRY_MAX_ATTEMPTS      = 3
	RETRY_BASE_DELAY_MS     = 1000
	RETRY_MAX_DELAY_MS      = 5000
)

type Config struct {
	ListenAddr string

	PlatformFeeRate  float64
	ReferrerFeeShare float64
	TreasuryAddress  common.Address

	OneInchAPIKey   string
	ZeroXAPIKey     string
	OneInchBaseURL  string
	ParaswapBaseURL string
	ZeroXBaseURL    string

	PriceAPIURL   string
	BalanceAPIURL string

	DustThresholdUSD float64
	MaxDustTokens    int

	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	CleanupInterval   time.Duration
	MaxContexts       int
	MaxConnections    int
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func getEnvDurationMs(key string, defaultMs int) (time.Duration, error) {
	ms, err := getEnvInt(key, defaultMs)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ParseConfig reads the engine configuration from the environment, applying
// defaults for anything unset.
func ParseConfig() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getEnvOrDefault("LISTEN_ADDR", DEFAULT_LISTEN_ADDR),
		OneInchAPIKey:   os.Getenv("ONEINCH_API_KEY"),
		ZeroXAPIKey:     os.Getenv("ZEROX_API_KEY"),
		OneInchBaseURL:  getEnvOrDefault("ONEINCH_BASE_URL", ONEINCH_BASE_URL),
		ParaswapBaseURL: getEnvOrDefault("PARASWAP_BASE_URL", PARASWAP_BASE_URL),
		ZeroXBaseURL:    getEnvOrDefault("ZEROX_BASE_URL", ZEROX_BASE_URL),
		PriceAPIURL:     os.Getenv("PRICE_API_URL"),
		BalanceAPIURL:   os.Getenv("BALANCE_API_URL"),
	}

	var err error
	if cfg.PlatformFeeRate, err = getEnvFloat("PLATFORM_FEE_RATE", DEFAULT_PLATFORM_FEE_RATE); err != nil {
		return nil, err
	}
	if cfg.ReferrerFeeShare, err = getEnvFloat("REFERRER_FEE_SHARE", DEFAULT_REFERRER_FEE_SHARE); err != nil {
		return nil, err
	}
	if cfg.ReferrerFeeShare < 0 || cfg.ReferrerFeeShare > 1 {
		return nil, fmt.Errorf("REFERRER_FEE_SHARE must be in [0,1], got %f", cfg.ReferrerFeeShare)
	}
	if cfg.DustThresholdUSD, err = getEnvFloat("DUST_THRESHOLD_USD", DEFAULT_DUST_THRESHOLD_USD); err != nil {
		return nil, err
	}
	if cfg.MaxDustTokens, err = getEnvInt("MAX_DUST_TOKENS", DEFAULT_MAX_DUST_TOKENS); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = getEnvDurationMs("SSE_HEARTBEAT_INTERVAL", DEFAULT_HEARTBEAT_INTERVAL_MS); err != nil {
		return nil, err
	}
	if cfg.ConnectionTimeout, err = getEnvDurationMs("SSE_CONNECTION_TIMEOUT", DEFAULT_CONNECTION_TIMEOUT_MS); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getEnvDurationMs("SSE_CLEANUP_INTERVAL", DEFAULT_CLEANUP_INTERVAL_MS); err != nil {
		return nil, err
	}
	if cfg.MaxContexts, err = getEnvInt("SSE_MAX_CONTEXTS", DEFAULT_MAX_CONTEXTS); err != nil {
		return nil, err
	}
	if cfg.MaxConnections, err = getEnvInt("SSE_MAX_CONNECTIONS", DEFAULT_MAX_CONNECTIONS); err != nil {
		return nil, err
	}

	treasury := os.Getenv("TREASURY_ADDRESS")
	if treasury == "" {
		return nil, fmt.Errorf("TREASURY_ADDRESS is required")
	}
	if !common.IsHexAddress(treasury) {
		return nil, fmt.Errorf("invalid TREASURY_ADDRESS: %s", treasury)
	}
	cfg.TreasuryAddress = common.HexToAddress(treasury)

	return cfg, nil
}
