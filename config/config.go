package config

import (
	"fmt"
	"os"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file leaves a field empty.
const (
	DefaultDatabasePath    = "stonksbot.db"
	DefaultPendingPath     = "pending.db"
	DefaultPendingTTL      = "15m"
	DefaultRefreshInterval = "5m"
	DefaultLogLevel        = "info"
	DefaultLogTimeFormat   = "2006-01-02 15:04:05"
)

// Environment variables overriding secrets from the file.
const (
	envTelegramToken   = "STONKSBOT_TELEGRAM_TOKEN"
	envAlphaVantageKey = "STONKSBOT_ALPHA_VANTAGE_KEY"
	envBinanceKey      = "STONKSBOT_BINANCE_KEY"
	envBinanceSecret   = "STONKSBOT_BINANCE_SECRET"
)

// Config holds the whole application configuration. Secrets may come from
// the file or be overridden through environment variables after load.
type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`

	Database struct {
		Path        string `yaml:"path"`
		PendingPath string `yaml:"pending_path"`
		PendingTTL  string `yaml:"pending_ttl"`
	} `yaml:"database"`

	Providers struct {
		AlphaVantage struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"alpha_vantage"`
		Binance struct {
			APIKey    string `yaml:"api_key"`
			APISecret string `yaml:"api_secret"`
		} `yaml:"binance"`
	} `yaml:"providers"`

	Refresh struct {
		Interval string `yaml:"interval"`
	} `yaml:"refresh"`

	Logging struct {
		Level      string `yaml:"level"`
		TimeFormat string `yaml:"time_format"`
		Colored    bool   `yaml:"colored"`
		JSON       bool   `yaml:"json"`
	} `yaml:"logging"`
}

// Load reads and parses the config file, applies env overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(envTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(envAlphaVantageKey); v != "" {
		cfg.Providers.AlphaVantage.APIKey = v
	}
	if v := os.Getenv(envBinanceKey); v != "" {
		cfg.Providers.Binance.APIKey = v
	}
	if v := os.Getenv(envBinanceSecret); v != "" {
		cfg.Providers.Binance.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Database.PendingPath == "" {
		cfg.Database.PendingPath = DefaultPendingPath
	}
	if cfg.Database.PendingTTL == "" {
		cfg.Database.PendingTTL = DefaultPendingTTL
	}
	if cfg.Refresh.Interval == "" {
		cfg.Refresh.Interval = DefaultRefreshInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.TimeFormat == "" {
		cfg.Logging.TimeFormat = DefaultLogTimeFormat
	}
}

// Validate checks required fields and duration formats.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", envTelegramToken)
	}
	if _, err := str2duration.ParseDuration(c.Refresh.Interval); err != nil {
		return fmt.Errorf("refresh.interval %q: %w", c.Refresh.Interval, err)
	}
	if _, err := str2duration.ParseDuration(c.Database.PendingTTL); err != nil {
		return fmt.Errorf("database.pending_ttl %q: %w", c.Database.PendingTTL, err)
	}
	return nil
}

// RefreshInterval returns the parsed refresher period.
func (c *Config) RefreshInterval() time.Duration {
	d, err := str2duration.ParseDuration(c.Refresh.Interval)
	if err != nil {
		// Validate rejects unparsable intervals, this is unreachable after Load
		d, _ = str2duration.ParseDuration(DefaultRefreshInterval)
	}
	return d
}

// PendingTTL returns the parsed pending-action expiry.
func (c *Config) PendingTTL() time.Duration {
	d, err := str2duration.ParseDuration(c.Database.PendingTTL)
	if err != nil {
		d, _ = str2duration.ParseDuration(DefaultPendingTTL)
	}
	return d
}
