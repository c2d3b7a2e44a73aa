// Package config defines the top-level configuration for the robot engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ROBOT_* environment variables.
type Config struct {
	Robot    RobotConfig    `toml:"robot"`
	Strategy StrategyConfig `toml:"strategy"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Feed     FeedConfig     `toml:"feed"`
	Notify   NotifyConfig   `toml:"notify"`
	Backtest BacktestConfig `toml:"backtest"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RobotConfig identifies one strategy run.
type RobotConfig struct {
	ID           string `toml:"id"`
	Exchange     string `toml:"exchange"`
	Asset        string `toml:"asset"`
	Currency     string `toml:"currency"`
	Timeframe    int    `toml:"timeframe"` // minutes
	MaxBars      int    `toml:"max_bars"`
	StrictActive bool   `toml:"strict_active"`
}

// StrategyConfig selects and parameterizes the trading strategy. Sweep, when
// non-empty, makes backtest mode run one pass per parameter set instead of a
// single pass with Params.
type StrategyConfig struct {
	Name   string           `toml:"name"`
	Params map[string]any   `toml:"params"`
	Sweep  []map[string]any `toml:"sweep"`
}

// PostgresConfig holds PostgreSQL connection parameters for the state and
// event stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the signal bus and the
// state cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the backtest
// report archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds the live candle feed parameters.
type FeedConfig struct {
	WsURL string `toml:"ws_url"`
}

// NotifyConfig holds operator notification channels. Both fields must be set
// for Telegram delivery; otherwise notifications are disabled.
type NotifyConfig struct {
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
}

// BacktestConfig holds backtest input/output parameters.
type BacktestConfig struct {
	CandlesPath string `toml:"candles_path"`
	ReportDir   string `toml:"report_dir"`
}

// ServerConfig holds the HTTP status API parameters. An empty APIKey
// disables authentication.
type ServerConfig struct {
	Addr   string `toml:"addr"`
	APIKey string `toml:"api_key"`
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		Robot: RobotConfig{
			ID:        "robot-1",
			Exchange:  "binance",
			Asset:     "BTC",
			Currency:  "USDT",
			Timeframe: 60,
			MaxBars:   300,
		},
		Strategy: StrategyConfig{
			Name: "t2TrendFriend",
			Params: map[string]any{
				"sma1":          int64(10),
				"sma2":          int64(25),
				"sma3":          int64(50),
				"minBarsToHold": int64(10),
			},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "robotengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "robotengine-reports",
			ForcePathStyle: true,
		},
		Backtest: BacktestConfig{
			CandlesPath: "candles.csv",
			ReportDir:   "reports",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Mode:     "backtest",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"backtest": true,
	"live":     true,
	"serve":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: backtest, live, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Robot.ID == "" {
		errs = append(errs, "robot: id must not be empty")
	}
	if c.Robot.Timeframe <= 0 {
		errs = append(errs, "robot: timeframe must be positive")
	}
	if c.Robot.MaxBars < 0 {
		errs = append(errs, "robot: max_bars must not be negative")
	}
	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}

	live := c.Mode == "live" || c.Mode == "serve"
	if live {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url is required for mode "+c.Mode)
		}
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: dsn or host is required for mode "+c.Mode)
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr is required for mode "+c.Mode)
		}
	}
	if c.Mode == "backtest" && c.Backtest.CandlesPath == "" {
		errs = append(errs, "backtest: candles_path must not be empty")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if c.Mode == "serve" && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Redacted returns a copy of cfg with sensitive fields replaced by "***" so
// the active configuration can be logged safely.
func Redacted(cfg *Config) Config {
	out := *cfg
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	if cfg.Strategy.Params != nil {
		out.Strategy.Params = make(map[string]any, len(cfg.Strategy.Params))
		for k, v := range cfg.Strategy.Params {
			out.Strategy.Params[k] = v
		}
	}
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
