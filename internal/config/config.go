package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Robinhood Robinhood `mapstructure:"robinhood"`
	CoinGecko CoinGecko `mapstructure:"coingecko"`
	Trading   Trading   `mapstructure:"trading"`
	Risk      Risk      `mapstructure:"risk"`
	Backtest  Backtest  `mapstructure:"backtest"`
	Logger    Logger    `mapstructure:"logger"`
	Database  Database  `mapstructure:"database"`
}

// Robinhood holds the configuration for the Robinhood crypto trading API.
type Robinhood struct {
	ApiKey         string  `mapstructure:"apiKey"`
	PrivateKey     string  `mapstructure:"privateKey"` // base64-encoded Ed25519 seed
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// CoinGecko holds the configuration for the CoinGecko market data API.
type CoinGecko struct {
	BaseURL        string   `mapstructure:"base_url"`
	Coins          []string `mapstructure:"coins"` // coin ids whose prices get archived each tick
	VsCurrency     string   `mapstructure:"vs_currency"`
	CacheTTL       int      `mapstructure:"cache_ttl"` // seconds
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the configuration for the live trading loop.
type Trading struct {
	Symbols      []string `mapstructure:"symbols"`
	TradingFee   float64  `mapstructure:"trading_fee"`
	DryRun       bool     `mapstructure:"dry_run"`
	TickInterval int      `mapstructure:"tick_interval"` // seconds
}

// Risk holds the parameters consumed by the risk manager.
type Risk struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"` // fraction of balance
	MaxDrawdown     float64 `mapstructure:"max_drawdown"`      // fraction of initial capital
	InitialCapital  float64 `mapstructure:"initial_capital"`
}

// Backtest holds the parameters consumed by the backtest engine.
type Backtest struct {
	TradingDays int `mapstructure:"trading_days"` // periods per year for annualization
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("robinhood.base_url", "https://trading.robinhood.com")
	viper.SetDefault("robinhood.rate_limit", 5) // requests per second
	viper.SetDefault("robinhood.rate_limit_burst", 2)
	viper.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("coingecko.vs_currency", "usd")
	viper.SetDefault("coingecko.cache_ttl", 60)
	viper.SetDefault("coingecko.rate_limit", 2)
	viper.SetDefault("coingecko.rate_limit_burst", 1)
	viper.SetDefault("trading.trading_fee", 0.001)
	viper.SetDefault("trading.tick_interval", 60)
	viper.SetDefault("risk.max_position_size", 0.1)
	viper.SetDefault("risk.max_drawdown", 0.05)
	viper.SetDefault("risk.initial_capital", 10000.0)
	viper.SetDefault("backtest.trading_days", 252)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.validate()
	return
}

func (c *Config) validate() error {
	if c.Risk.InitialCapital <= 0 {
		return fmt.Errorf("risk.initial_capital must be positive, got %f", c.Risk.InitialCapital)
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		return fmt.Errorf("risk.max_position_size must be in (0, 1], got %f", c.Risk.MaxPositionSize)
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		return fmt.Errorf("risk.max_drawdown must be in (0, 1], got %f", c.Risk.MaxDrawdown)
	}
	if c.Trading.TradingFee < 0 || c.Trading.TradingFee >= 1 {
		return fmt.Errorf("trading.trading_fee must be in [0, 1), got %f", c.Trading.TradingFee)
	}
	return nil
}
