package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "monitor"

[kalshi]
api_key = "key-id"
rsa_private_key_path = "/tmp/key.pem"

[engine]
bankroll = 2500.0

[leagues]
active = ["NBA"]
refresh_interval = "5m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.Bankroll != 2500.0 {
		t.Errorf("bankroll = %v, want 2500", cfg.Engine.Bankroll)
	}
	// Untouched fields keep their defaults.
	if cfg.Engine.ProfitThresholdPct != 1.0 {
		t.Errorf("profit_threshold_pct = %v, want default 1.0", cfg.Engine.ProfitThresholdPct)
	}
	if cfg.Leagues.RefreshInterval.Duration != 5*time.Minute {
		t.Errorf("refresh_interval = %v, want 5m", cfg.Leagues.RefreshInterval.Duration)
	}
	if cfg.Leagues.SeriesTickers["NBA"] != "KXNBAGAME" {
		t.Errorf("series ticker for NBA = %q", cfg.Leagues.SeriesTickers["NBA"])
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTOML(t, `
[kalshi]
api_key = "from-file"
rsa_private_key_path = "/tmp/key.pem"
`)

	t.Setenv("ARBSCAN_KALSHI_API_KEY", "from-env")
	t.Setenv("ARBSCAN_ENGINE_BANKROLL", "500")
	t.Setenv("ARBSCAN_LEAGUES_ACTIVE", "NBA, NHL ,MLB")
	t.Setenv("ARBSCAN_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Kalshi.ApiKey != "from-env" {
		t.Errorf("api_key = %q, want env value", cfg.Kalshi.ApiKey)
	}
	if cfg.Engine.Bankroll != 500 {
		t.Errorf("bankroll = %v, want 500", cfg.Engine.Bankroll)
	}
	if len(cfg.Leagues.Active) != 3 || cfg.Leagues.Active[2] != "MLB" {
		t.Errorf("active leagues = %v", cfg.Leagues.Active)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis should be enabled via env")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Engine.Bankroll = 0
	cfg.Leagues.Active = []string{"EPL"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{
		`unknown mode "replay"`,
		"bankroll must be > 0",
		`no series ticker mapped for "EPL"`,
		`no sportsbook name mapped for "EPL"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateRecordModeNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "record"
	cfg.Redis.Enabled = false

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "enabled for record mode") {
		t.Errorf("expected redis requirement error, got %v", err)
	}

	cfg.Redis.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Kalshi.ApiKey = "secret-key"
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "s3secret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	if red.Kalshi.ApiKey != "***" || red.Postgres.Password != "***" ||
		red.S3.SecretKey != "***" || red.Notify.TelegramToken != "***" {
		t.Error("secrets not redacted")
	}
	if cfg.Kalshi.ApiKey != "secret-key" {
		t.Error("original mutated")
	}

	// Redacted copy must not share map storage with the original.
	red.Leagues.SeriesTickers["NBA"] = "CHANGED"
	if cfg.Leagues.SeriesTickers["NBA"] != "KXNBAGAME" {
		t.Error("map shared between original and redacted copy")
	}

	// Empty secrets stay empty rather than becoming "***".
	if red.Redis.Password != "" {
		t.Errorf("empty password redacted to %q", red.Redis.Password)
	}
}
