package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	BaseURL     string
	AccountName string

	// SettlementPollInterval is the delay between settlement checks for a
	// single proxied payment.
	SettlementPollInterval time.Duration

	// DepositPollInterval is the delay between pair-balance checks while
	// waiting for a liquidity deposit to land.
	DepositPollInterval time.Duration

	// QuoteDebounce is the quiet period after the last amount edit before a
	// dry-run quote is recomputed.
	QuoteDebounce time.Duration

	// MinPending is the minimum visible duration of backend calls that drive
	// a progress indicator.
	MinPending time.Duration
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".prs-wallet")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("base_url", "https://prs-bp1.press.one/api")
	viper.SetDefault("settlement_poll_interval", "1s")
	viper.SetDefault("deposit_poll_interval", "5s")
	viper.SetDefault("quote_debounce", "500ms")
	viper.SetDefault("min_pending", "600ms")

	// Read from environment variables
	viper.SetEnvPrefix("PRS_WALLET")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		BaseURL:                viper.GetString("base_url"),
		AccountName:            viper.GetString("account_name"),
		SettlementPollInterval: viper.GetDuration("settlement_poll_interval"),
		DepositPollInterval:    viper.GetDuration("deposit_poll_interval"),
		QuoteDebounce:          viper.GetDuration("quote_debounce"),
		MinPending:             viper.GetDuration("min_pending"),
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL not found. Please set PRS_WALLET_BASE_URL or create a .prs-wallet.yaml config file")
	}

	globalConfig = cfg
	return cfg, nil
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
