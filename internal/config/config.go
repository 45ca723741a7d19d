package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CoinGeckoConfig holds upstream API configuration
type CoinGeckoConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"` // 0 = unlimited
	PerPage           int           `mapstructure:"per_page"`
}

// DashboardConfig holds fetch cycle behavior
type DashboardConfig struct {
	DefaultCrypto    string        `mapstructure:"default_crypto"`
	DefaultTimeframe int           `mapstructure:"default_timeframe"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	Timezone         string        `mapstructure:"timezone"`
	Cryptos          []string      `mapstructure:"cryptos"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the cycle journal configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxCycles int    `mapstructure:"max_cycles"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Timeframes are the window lengths, in days, the dashboard offers.
var Timeframes = []int{1, 7, 14, 30, 90, 365}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// CRYPTODASH_DASHBOARD_DEFAULT_CRYPTO overrides dashboard.default_crypto
	v.SetEnvPrefix("CRYPTODASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// CoinGecko defaults
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.timeout", "10s")
	v.SetDefault("coingecko.requests_per_minute", 30) // free tier allows 10-30
	v.SetDefault("coingecko.per_page", 30)

	// Dashboard defaults
	v.SetDefault("dashboard.default_crypto", "bitcoin")
	v.SetDefault("dashboard.default_timeframe", 7)
	v.SetDefault("dashboard.refresh_interval", "2m")
	v.SetDefault("dashboard.retry_max_attempts", 3)
	v.SetDefault("dashboard.retry_delay", "1500ms")
	v.SetDefault("dashboard.timezone", "UTC")
	v.SetDefault("dashboard.cryptos", []string{
		"bitcoin", "ethereum", "binancecoin", "solana", "ripple",
		"cardano", "dogecoin", "polkadot", "avalanche-2", "chainlink",
	})

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/cryptodash.db")
	v.SetDefault("storage.max_cycles", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate CoinGecko config
	if c.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko.base_url is required")
	}
	if c.CoinGecko.Timeout < time.Second {
		return fmt.Errorf("coingecko.timeout must be at least 1 second")
	}
	if c.CoinGecko.RequestsPerMinute < 0 {
		return fmt.Errorf("coingecko.requests_per_minute must not be negative")
	}
	if c.CoinGecko.PerPage < 1 || c.CoinGecko.PerPage > 250 {
		return fmt.Errorf("coingecko.per_page must be between 1 and 250")
	}

	// Validate Dashboard config
	if c.Dashboard.DefaultCrypto == "" {
		return fmt.Errorf("dashboard.default_crypto is required")
	}
	if len(c.Dashboard.Cryptos) > 0 && !slices.Contains(c.Dashboard.Cryptos, c.Dashboard.DefaultCrypto) {
		return fmt.Errorf("dashboard.default_crypto %q is not in dashboard.cryptos", c.Dashboard.DefaultCrypto)
	}
	if !slices.Contains(Timeframes, c.Dashboard.DefaultTimeframe) {
		return fmt.Errorf("dashboard.default_timeframe must be one of %v", Timeframes)
	}
	if c.Dashboard.RefreshInterval < 10*time.Second {
		return fmt.Errorf("dashboard.refresh_interval must be at least 10 seconds")
	}
	if c.Dashboard.RetryMaxAttempts < 1 {
		return fmt.Errorf("dashboard.retry_max_attempts must be at least 1")
	}
	if c.Dashboard.RetryDelay < 0 {
		return fmt.Errorf("dashboard.retry_delay must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("dashboard.timezone is invalid: %w", err)
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxCycles < 1 {
		return fmt.Errorf("storage.max_cycles must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Location resolves dashboard.timezone. An empty value means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Dashboard.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Dashboard.Timezone)
}

// SupportsCrypto reports whether id may be selected. An empty list allows
// any id.
func (c *Config) SupportsCrypto(id string) bool {
	return len(c.Dashboard.Cryptos) == 0 || slices.Contains(c.Dashboard.Cryptos, id)
}
