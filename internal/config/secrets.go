package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Kalshi
	out.Kalshi = cfg.Kalshi
	redact(&out.Kalshi.ApiKey)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Leagues.Active != nil {
		out.Leagues.Active = make([]string, len(cfg.Leagues.Active))
		copy(out.Leagues.Active, cfg.Leagues.Active)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Leagues.SeriesTickers != nil {
		out.Leagues.SeriesTickers = make(map[string]string, len(cfg.Leagues.SeriesTickers))
		for k, v := range cfg.Leagues.SeriesTickers {
			out.Leagues.SeriesTickers[k] = v
		}
	}
	if cfg.Leagues.SportsbookNames != nil {
		out.Leagues.SportsbookNames = make(map[string]string, len(cfg.Leagues.SportsbookNames))
		for k, v := range cfg.Leagues.SportsbookNames {
			out.Leagues.SportsbookNames[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
