// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"soltrader/internal/domain"
)

// Config holds all engine configuration.
type Config struct {
	// Engine loop
	PollIntervalSec    int
	Mode               domain.Mode
	TradeSizeSOL       float64
	MaxPositions       int
	CooldownMinutes    int
	SimStartBalanceSOL float64
	AccountFloorSOL    float64 // account_stop threshold; <= 0 disables

	// Exit thresholds
	StopLossPct       float64 // fraction, e.g. 0.25 => exit at -25%
	TakeProfitPct     float64 // percent
	TakeProfitUSD     float64
	ExitSoftMinutes   int
	ExitHardMinutes   int
	MinPnLPctToExtend float64

	// Candidate filters
	ScanLimit       int
	MinLiquidityUSD float64
	MinVol24hUSD    float64
	MinVol15mUSD    float64
	MaxHoldersPct   float64
	MaxImpactPct    float64
	MaxRugScore     float64 // < 0 disables the rug gate
	MinCandles      int

	// Signal engine
	SignalMode          string // "signal" or "momentum"
	EMAFastPeriod       int
	EMASlowPeriod       int
	RSIPeriod           int
	RSILow              float64
	BollingerPeriod     int
	BollingerStdMult    float64
	VolSpikeMult        float64
	MomentumShortBars   int
	MomentumLongBars    int
	MomentumMinShortPct float64
	MomentumMinLongPct  float64
	VolatilityBars      int
	MinRangePct         float64

	// Providers
	BirdeyeAPIKey           string
	BirdeyeMinIntervalMs    int
	DexMinIntervalMs        int
	CacheTTLMs              int
	MaxRetries              int
	RequestTimeoutSec       int
	ProviderCooldownMinutes int

	// Swap execution
	JupiterBaseURL string
	SignerURL      string
	WalletPubkey   string
	SlippageBps    int
	SimFeePct      float64

	// Infrastructure
	RPCURL        string
	StreamURL     string
	StateFile     string
	ModelPath     string
	PostgresDSN   string
	ClickHouseDSN string
	RedisAddr     string
	RedisChannel  string
	MetricsAddr   string
	LogLevel      string
}

// Load reads configuration from environment variables, consulting a .env
// file when present. Returns an error only for configurations the engine
// must not start with.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		PollIntervalSec:    getEnvInt("POLL_INTERVAL_SEC", 20),
		Mode:               domain.Mode(getEnv("MODE", string(domain.ModeSimulated))),
		TradeSizeSOL:       getEnvFloat("TRADE_SIZE_SOL", 0.1),
		MaxPositions:       getEnvInt("MAX_POSITIONS", 3),
		CooldownMinutes:    getEnvInt("COOLDOWN_MINUTES", 30),
		SimStartBalanceSOL: getEnvFloat("SIM_START_BALANCE_SOL", 10),
		AccountFloorSOL:    getEnvFloat("ACCOUNT_FLOOR_SOL", 0),

		StopLossPct:       getEnvFloat("STOP_LOSS_PCT", 0.25),
		TakeProfitPct:     getEnvFloat("TAKE_PROFIT_PCT", 40),
		TakeProfitUSD:     getEnvFloat("TAKE_PROFIT_USD", 50),
		ExitSoftMinutes:   getEnvInt("EXIT_SOFT_MINUTES", 30),
		ExitHardMinutes:   getEnvInt("EXIT_HARD_MINUTES", 90),
		MinPnLPctToExtend: getEnvFloat("MIN_PNL_PCT_TO_EXTEND", 10),

		ScanLimit:       getEnvInt("SCAN_LIMIT", 12),
		MinLiquidityUSD: getEnvFloat("MIN_LIQUIDITY_USD", 20000),
		MinVol24hUSD:    getEnvFloat("MIN_VOL24H_USD", 50000),
		MinVol15mUSD:    getEnvFloat("MIN_VOL15M_USD", 500),
		MaxHoldersPct:   getEnvFloat("MAX_HOLDERS_PCT", 35),
		MaxImpactPct:    getEnvFloat("MAX_IMPACT_PCT", 8),
		MaxRugScore:     getEnvFloat("MAX_RUG_SCORE", 6),
		MinCandles:      getEnvInt("MIN_CANDLES", 30),

		SignalMode:          getEnv("SIGNAL_MODE", "momentum"),
		EMAFastPeriod:       getEnvInt("EMA_FAST_PERIOD", 9),
		EMASlowPeriod:       getEnvInt("EMA_SLOW_PERIOD", 21),
		RSIPeriod:           getEnvInt("RSI_PERIOD", 14),
		RSILow:              getEnvFloat("RSI_LOW", 35),
		BollingerPeriod:     getEnvInt("BB_PERIOD", 20),
		BollingerStdMult:    getEnvFloat("BB_STD_MULT", 2),
		VolSpikeMult:        getEnvFloat("VOL_SPIKE_MULT", 1.5),
		MomentumShortBars:   getEnvInt("MOMENTUM_SHORT_BARS", 5),
		MomentumLongBars:    getEnvInt("MOMENTUM_LONG_BARS", 20),
		MomentumMinShortPct: getEnvFloat("MOMENTUM_MIN_SHORT_PCT", 1),
		MomentumMinLongPct:  getEnvFloat("MOMENTUM_MIN_LONG_PCT", 0),
		VolatilityBars:      getEnvInt("VOLATILITY_BARS", 20),
		MinRangePct:         getEnvFloat("MIN_RANGE_PCT", 5),

		BirdeyeAPIKey:           os.Getenv("BIRDEYE_API_KEY"),
		BirdeyeMinIntervalMs:    getEnvInt("BIRDEYE_MIN_INTERVAL_MS", 1100),
		DexMinIntervalMs:        getEnvInt("DEX_MIN_INTERVAL_MS", 350),
		CacheTTLMs:              getEnvInt("CACHE_TTL_MS", 30000),
		MaxRetries:              getEnvInt("MAX_RETRIES", 3),
		RequestTimeoutSec:       getEnvInt("REQUEST_TIMEOUT_SEC", 30),
		ProviderCooldownMinutes: getEnvInt("PROVIDER_COOLDOWN_MINUTES", 10),

		JupiterBaseURL: getEnv("JUPITER_BASE_URL", "https://quote-api.jup.ag/v6"),
		SignerURL:      os.Getenv("SIGNER_URL"),
		WalletPubkey:   os.Getenv("WALLET_PUBKEY"),
		SlippageBps:    getEnvInt("SLIPPAGE_BPS", 250),
		SimFeePct:      getEnvFloat("SIM_FEE_PCT", 0.3),

		RPCURL:        os.Getenv("RPC_URL"),
		StreamURL:     os.Getenv("STREAM_URL"),
		StateFile:     getEnv("STATE_FILE", "state.json"),
		ModelPath:     os.Getenv("MODEL_PATH"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisChannel:  getEnv("REDIS_CHANNEL", "soltrader:snapshot"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mode != domain.ModeLive && c.Mode != domain.ModeSimulated {
		return fmt.Errorf("config: unknown MODE %q", c.Mode)
	}
	if c.Mode == domain.ModeLive {
		if c.RPCURL == "" {
			return fmt.Errorf("config: MODE=live requires RPC_URL")
		}
		if c.SignerURL == "" || c.WalletPubkey == "" {
			return fmt.Errorf("config: MODE=live requires SIGNER_URL and WALLET_PUBKEY")
		}
	}
	if c.SignalMode != "signal" && c.SignalMode != "momentum" {
		return fmt.Errorf("config: unknown SIGNAL_MODE %q", c.SignalMode)
	}
	if c.TradeSizeSOL <= 0 {
		return fmt.Errorf("config: TRADE_SIZE_SOL must be positive")
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("config: MAX_POSITIONS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
