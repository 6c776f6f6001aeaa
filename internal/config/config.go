// Package config defines the top-level configuration for the perpetuals risk
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPD_* environment variables.
type Config struct {
	Oracle     OracleConfig     `toml:"oracle"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Settlement SettlementConfig `toml:"settlement"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// OracleConfig holds the price-oracle aggregation parameters.
type OracleConfig struct {
	PollInterval duration       `toml:"poll_interval"`
	Sources      []SourceConfig `toml:"sources"`
}

// SourceConfig describes one upstream price feed and its blend weight.
type SourceConfig struct {
	Name     string  `toml:"name"`
	Weight   float64 `toml:"weight"`
	Endpoint string  `toml:"endpoint"`
	Enabled  bool    `toml:"enabled"`
}

// ScannerConfig holds the liquidation monitor parameters.
type ScannerConfig struct {
	Interval      duration `toml:"interval"`
	AutoLiquidate bool     `toml:"auto_liquidate"`
}

// SettlementConfig holds the on-chain settlement parameters. When DryRun is
// true no transactions are sent and detected liquidations are only logged.
type SettlementConfig struct {
	DryRun           bool   `toml:"dry_run"`
	RPCURL           string `toml:"rpc_url"`
	ContractAddress  string `toml:"contract_address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters for the liquidation
// history.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIToken    string   `toml:"api_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Oracle: OracleConfig{
			PollInterval: duration{30 * time.Second},
			Sources: []SourceConfig{
				{Name: "Doma Protocol Oracle", Weight: 0.4, Endpoint: "https://oracle.doma.xyz/v1/domainetf/price", Enabled: true},
				{Name: "Chainlink Domain Oracle", Weight: 0.3, Endpoint: "https://feeds.chain.link/v1/domainetf", Enabled: true},
				{Name: "Domain Market Oracle", Weight: 0.2, Endpoint: "https://api.domainmarket.io/v1/index/price", Enabled: true},
				{Name: "Backup Oracle", Weight: 0.1, Endpoint: "https://backup-oracle.domainetf.io/price", Enabled: true},
			},
		},
		Scanner: ScannerConfig{
			Interval:      duration{10 * time.Second},
			AutoLiquidate: false,
		},
		Settlement: SettlementConfig{
			DryRun: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "domainperp",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "domainperp-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"liquidation", "oracle_degraded", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"oracle":    true,
	"monitor":   true,
	"liquidate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: oracle, monitor, liquidate)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Oracle — at least one enabled source with a positive weight.
	if c.Oracle.PollInterval.Duration <= 0 {
		errs = append(errs, "oracle: poll_interval must be positive")
	}
	enabled := 0
	for i, src := range c.Oracle.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if src.Name == "" {
			errs = append(errs, fmt.Sprintf("oracle: sources[%d]: name must not be empty", i))
		}
		if src.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("oracle: sources[%d] (%s): endpoint must not be empty", i, src.Name))
		}
		if src.Weight <= 0 || src.Weight > 1 {
			errs = append(errs, fmt.Sprintf("oracle: sources[%d] (%s): weight must be in (0, 1], got %v", i, src.Name, src.Weight))
		}
	}
	if enabled == 0 {
		errs = append(errs, "oracle: at least one source must be enabled")
	}

	// Scanner
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}

	// Settlement — real settlement needs a chain target and a signing key.
	needsChain := c.Mode == "liquidate" && !c.Settlement.DryRun
	if needsChain {
		if c.Settlement.RPCURL == "" {
			errs = append(errs, "settlement: rpc_url is required for mode liquidate with dry_run = false")
		}
		if c.Settlement.ContractAddress == "" {
			errs = append(errs, "settlement: contract_address is required for mode liquidate with dry_run = false")
		}
		if c.Settlement.PrivateKey == "" && c.Settlement.EncryptedKeyPath == "" {
			errs = append(errs, "settlement: either private_key or encrypted_key_path must be set for mode liquidate with dry_run = false")
		}
		if c.Settlement.EncryptedKeyPath != "" && c.Settlement.KeyPassword == "" {
			errs = append(errs, "settlement: key_password is required when encrypted_key_path is set")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
