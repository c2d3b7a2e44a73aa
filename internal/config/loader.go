package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ROBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ROBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ROBOT_MODE")
	setStr(&cfg.LogLevel, "ROBOT_LOG_LEVEL")

	setStr(&cfg.Robot.ID, "ROBOT_ID")
	setStr(&cfg.Robot.Exchange, "ROBOT_EXCHANGE")
	setStr(&cfg.Robot.Asset, "ROBOT_ASSET")
	setStr(&cfg.Robot.Currency, "ROBOT_CURRENCY")
	setInt(&cfg.Robot.Timeframe, "ROBOT_TIMEFRAME")
	setInt(&cfg.Robot.MaxBars, "ROBOT_MAX_BARS")
	setBool(&cfg.Robot.StrictActive, "ROBOT_STRICT_ACTIVE")

	setStr(&cfg.Strategy.Name, "ROBOT_STRATEGY_NAME")

	setStr(&cfg.Postgres.DSN, "ROBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ROBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ROBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ROBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ROBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ROBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ROBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ROBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ROBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ROBOT_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "ROBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ROBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ROBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ROBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ROBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ROBOT_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "ROBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ROBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ROBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ROBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ROBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ROBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ROBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ROBOT_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Feed.WsURL, "ROBOT_FEED_WS_URL")

	setStr(&cfg.Notify.TelegramToken, "ROBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ROBOT_NOTIFY_TELEGRAM_CHAT_ID")

	setStr(&cfg.Backtest.CandlesPath, "ROBOT_BACKTEST_CANDLES_PATH")
	setStr(&cfg.Backtest.ReportDir, "ROBOT_BACKTEST_REPORT_DIR")

	setStr(&cfg.Server.Addr, "ROBOT_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "ROBOT_SERVER_API_KEY")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
