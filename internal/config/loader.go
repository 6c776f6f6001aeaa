package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known PERPD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Oracle sources are list-valued and have no env form.
func applyEnvOverrides(cfg *Config) {
	// ── Oracle ──
	setDuration(&cfg.Oracle.PollInterval, "PERPD_ORACLE_POLL_INTERVAL")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "PERPD_SCANNER_INTERVAL")
	setBool(&cfg.Scanner.AutoLiquidate, "PERPD_SCANNER_AUTO_LIQUIDATE")

	// ── Settlement ──
	setBool(&cfg.Settlement.DryRun, "PERPD_SETTLEMENT_DRY_RUN")
	setStr(&cfg.Settlement.RPCURL, "PERPD_SETTLEMENT_RPC_URL")
	setStr(&cfg.Settlement.ContractAddress, "PERPD_SETTLEMENT_CONTRACT_ADDRESS")
	setStr(&cfg.Settlement.PrivateKey, "PERPD_SETTLEMENT_PRIVATE_KEY")
	setStr(&cfg.Settlement.EncryptedKeyPath, "PERPD_SETTLEMENT_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Settlement.KeyPassword, "PERPD_SETTLEMENT_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PERPD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PERPD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PERPD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PERPD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPD_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PERPD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PERPD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PERPD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PERPD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PERPD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PERPD_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PERPD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PERPD_SERVER_PORT")
	setStr(&cfg.Server.APIToken, "PERPD_SERVER_API_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PERPD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PERPD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PERPD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPD_MODE")
	setStr(&cfg.LogLevel, "PERPD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
