package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Rounding policy names accepted by CHARTS_ROUNDING.
const (
	RoundFloor = "floor"
	RoundCeil  = "ceil"
	RoundHalf  = "round"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Bot configuration
	BotToken    string
	BotUsername string
	MiniAppURL  string

	// Rate provider configuration
	RateProviderURL  string
	RateCacheTTL     time.Duration
	RateFetchTimeout time.Duration
	// DefaultChartsPerStar is the static fallback conversion rate.
	DefaultChartsPerStar decimal.Decimal
	// ChartsRounding is applied once at conversion time: floor, ceil or round.
	ChartsRounding string

	// On-chain payment configuration
	TonWalletAddress string
	TonAPIURL        string
	TonAPIKey        string
	TonPaymentExpiry time.Duration
	// ChartsPerTon is the snapshot rate for on-chain intents.
	ChartsPerTon decimal.Decimal
	TonMinAmount decimal.Decimal
	TonMaxAmount decimal.Decimal

	// Scanner configuration
	ScanInterval time.Duration
	ScanTxLimit  int

	// Leaderboard configuration
	Timezone         string
	LeaderboardLimit int

	// Donation presets (stars)
	Preset1Stars int
	Preset2Stars int
	Preset3Stars int

	// RecoveryMatchEnabled turns on the last-resort confirmation matching
	// heuristic (newest unassigned created payment). Off by default; the
	// invoice payload is the primary correlator.
	RecoveryMatchEnabled bool
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 8080),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "chartsboard"),

		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", ""),
		MiniAppURL:  getEnv("MINI_APP_URL", "https://t.me"),

		RateProviderURL:      getEnv("RATE_PROVIDER_URL", ""),
		RateCacheTTL:         time.Duration(getEnvAsInt("RATE_CACHE_TTL_MINUTES", 5)) * time.Minute,
		RateFetchTimeout:     time.Duration(getEnvAsInt("RATE_FETCH_TIMEOUT_SECONDS", 5)) * time.Second,
		DefaultChartsPerStar: getEnvAsDecimal("DEFAULT_CHARTS_PER_STAR", "0.002"),
		ChartsRounding:       getEnv("CHARTS_ROUNDING", RoundFloor),

		TonWalletAddress: getEnv("TON_WALLET_ADDRESS", ""),
		TonAPIURL:        getEnv("TON_API_URL", "https://toncenter.com/api/v2"),
		TonAPIKey:        getEnv("TON_API_KEY", ""),
		TonPaymentExpiry: time.Duration(getEnvAsInt("TON_PAYMENT_EXPIRY_MINUTES", 30)) * time.Minute,
		ChartsPerTon:     getEnvAsDecimal("CHARTS_PER_TON", "50"),
		TonMinAmount:     getEnvAsDecimal("TON_MIN_AMOUNT", "0.1"),
		TonMaxAmount:     getEnvAsDecimal("TON_MAX_AMOUNT", "10000"),

		ScanInterval: time.Duration(getEnvAsInt("SCAN_INTERVAL_SECONDS", 30)) * time.Second,
		ScanTxLimit:  getEnvAsInt("SCAN_TX_LIMIT", 50),

		Timezone:         getEnv("TIMEZONE", "Europe/Berlin"),
		LeaderboardLimit: getEnvAsInt("LEADERBOARD_LIMIT", 10000),

		Preset1Stars: getEnvAsInt("PRESET_1_STARS", 100),
		Preset2Stars: getEnvAsInt("PRESET_2_STARS", 50),
		Preset3Stars: getEnvAsInt("PRESET_3_STARS", 25),

		RecoveryMatchEnabled: getEnvAsBool("RECOVERY_MATCH_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set.
func (c *Config) Validate() error {
	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	switch c.ChartsRounding {
	case RoundFloor, RoundCeil, RoundHalf:
	default:
		return fmt.Errorf("invalid CHARTS_ROUNDING %q: must be floor, ceil or round", c.ChartsRounding)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	if !c.DefaultChartsPerStar.IsPositive() {
		return fmt.Errorf("DEFAULT_CHARTS_PER_STAR must be positive")
	}

	if !c.ChartsPerTon.IsPositive() {
		return fmt.Errorf("CHARTS_PER_TON must be positive")
	}

	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS must be positive")
	}

	return nil
}

// PresetStars resolves a preset id to its configured stars amount.
// Returns 0 for an unknown preset.
func (c *Config) PresetStars(presetID int) int {
	switch presetID {
	case 1:
		return c.Preset1Stars
	case 2:
		return c.Preset2Stars
	case 3:
		return c.Preset3Stars
	}
	return 0
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDecimal(name string, defaultValue string) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := decimal.NewFromString(valueStr); err == nil {
			return value
		}
	}
	return decimal.RequireFromString(defaultValue)
}
