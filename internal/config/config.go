// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Bet105   Bet105Config   `toml:"bet105"`
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Engine   EngineConfig   `toml:"engine"`
	Leagues  LeaguesConfig  `toml:"leagues"`
	Audit    AuditConfig    `toml:"audit"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// Bet105Config holds the sportsbook socket endpoint.
type Bet105Config struct {
	BaseURL string `toml:"base_url"`
}

// KalshiConfig holds Kalshi exchange API credentials and endpoints.
type KalshiConfig struct {
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	// RestRateLimit caps catalog REST calls per second across instances.
	RestRateLimit int `toml:"rest_rate_limit"`
}

// EngineConfig holds the detection parameters.
type EngineConfig struct {
	// Bankroll is the notional split across the two legs of a candidate.
	Bankroll float64 `toml:"bankroll"`
	// ProfitThresholdPct is the minimum guaranteed profit, as a percentage
	// of bankroll, for an opportunity to qualify.
	ProfitThresholdPct float64 `toml:"profit_threshold_pct"`
}

// LeaguesConfig selects which leagues are monitored and how each league's
// identifiers map across the two venues.
type LeaguesConfig struct {
	// Active lists the league codes to monitor (e.g. "NBA", "NHL").
	Active []string `toml:"active"`
	// SeriesTickers maps a league code to its Kalshi series ticker.
	SeriesTickers map[string]string `toml:"series_tickers"`
	// SportsbookNames maps a league code to the league name used in the
	// sportsbook catalog feed.
	SportsbookNames map[string]string `toml:"sportsbook_names"`
	// RefreshInterval is how often the cross-venue catalog is rebuilt.
	RefreshInterval duration `toml:"refresh_interval"`
}

// AuditConfig holds the local audit log location and archive cadence.
type AuditConfig struct {
	Path            string   `toml:"path"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters. The store is
// optional; when disabled, closed opportunities live only in the audit log.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters. Redis backs the odds cache,
// the signal bus, the instance lock, and REST rate limiting; it is optional
// for single-instance monitoring.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for audit archives.
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Bet105: Bet105Config{
			BaseURL: "https://api.bet105.com",
		},
		Kalshi: KalshiConfig{
			BaseURL:       "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:         "wss://api.elections.kalshi.com/trade-api/ws/v2",
			RestRateLimit: 5,
		},
		Engine: EngineConfig{
			Bankroll:           1000.0,
			ProfitThresholdPct: 1.0,
		},
		Leagues: LeaguesConfig{
			Active: []string{"NBA", "NHL"},
			SeriesTickers: map[string]string{
				"NBA":       "KXNBAGAME",
				"NHL":       "KXNHLGAME",
				"MLB":       "KXMLBGAME",
				"NCAAMB":    "KXNCAAMBGAME",
				"WOMHOCKEY": "KXWOMHOCKEYGAME",
			},
			SportsbookNames: map[string]string{
				"NBA":       "NBA",
				"NHL":       "NHL",
				"MLB":       "MLB",
				"NCAAMB":    "College Basketball",
				"WOMHOCKEY": "WINTER OLYMPICS HOCKEY - MEN",
			},
			RefreshInterval: duration{10 * time.Minute},
		},
		Audit: AuditConfig{
			Path:            "arbscan-audit.json",
			ArchiveInterval: duration{15 * time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscan-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"arb_opened", "arb_closed", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"record":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, record)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Bet105
	if c.Bet105.BaseURL == "" {
		errs = append(errs, "bet105: base_url must not be empty")
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.WsURL == "" {
		errs = append(errs, "kalshi: ws_url must not be empty")
	}
	if c.Mode == "monitor" {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for monitor mode")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for monitor mode")
		}
	}
	if c.Kalshi.RestRateLimit < 1 {
		errs = append(errs, "kalshi: rest_rate_limit must be >= 1")
	}

	// Engine
	if c.Engine.Bankroll <= 0 {
		errs = append(errs, "engine: bankroll must be > 0")
	}
	if c.Engine.ProfitThresholdPct < 0 {
		errs = append(errs, "engine: profit_threshold_pct must be >= 0")
	}

	// Leagues — every active league needs both venue mappings.
	if len(c.Leagues.Active) == 0 {
		errs = append(errs, "leagues: at least one active league is required")
	}
	for _, league := range c.Leagues.Active {
		if c.Leagues.SeriesTickers[league] == "" {
			errs = append(errs, fmt.Sprintf("leagues: no series ticker mapped for %q", league))
		}
		if c.Leagues.SportsbookNames[league] == "" {
			errs = append(errs, fmt.Sprintf("leagues: no sportsbook name mapped for %q", league))
		}
	}
	if c.Leagues.RefreshInterval.Duration <= 0 {
		errs = append(errs, "leagues: refresh_interval must be > 0")
	}

	// Audit
	if c.Audit.Path == "" {
		errs = append(errs, "audit: path must not be empty")
	}
	if c.S3.Enabled && c.Audit.ArchiveInterval.Duration <= 0 {
		errs = append(errs, "audit: archive_interval must be > 0 when s3 is enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
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
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Record mode replays the signal bus, which lives in Redis.
	if c.Mode == "record" && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for record mode")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
