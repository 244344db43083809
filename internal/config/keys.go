package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DAILYDEEN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_connections", typ: kInt, env: "DAILYDEEN_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "storage.backend", typ: kString, env: "DAILYDEEN_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DAILYDEEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DAILYDEEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "schedule.timezone", typ: kString, env: "DAILYDEEN_SCHEDULE_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Timezone },
	},
	{
		key: "schedule.rotation_cron", typ: kString, env: "DAILYDEEN_SCHEDULE_ROTATION_CRON",
		apply:   func(cfg *Config, v any) { cfg.Schedule.RotationCron = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.RotationCron },
	},
	{
		key: "schedule.prayer_refresh_cron", typ: kString, env: "DAILYDEEN_SCHEDULE_PRAYER_REFRESH_CRON",
		apply:   func(cfg *Config, v any) { cfg.Schedule.PrayerRefreshCron = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.PrayerRefreshCron },
	},
	{
		key: "schedule.retry_interval", typ: kString, env: "DAILYDEEN_SCHEDULE_RETRY_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schedule.RetryInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.RetryInterval },
	},
	{
		key: "prayer.method", typ: kInt, env: "DAILYDEEN_PRAYER_METHOD",
		apply:   func(cfg *Config, v any) { cfg.Prayer.Method = v.(int) },
		extract: func(cfg Config) any { return cfg.Prayer.Method },
	},
	{
		key: "prayer.cache_ttl", typ: kString, env: "DAILYDEEN_PRAYER_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Prayer.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Prayer.CacheTTL },
	},
	{
		key: "default_location.city", typ: kString, env: "DAILYDEEN_DEFAULT_LOCATION_CITY",
		apply:   func(cfg *Config, v any) { cfg.DefaultLocation.City = v.(string) },
		extract: func(cfg Config) any { return cfg.DefaultLocation.City },
	},
	{
		key: "default_location.country", typ: kString, env: "DAILYDEEN_DEFAULT_LOCATION_COUNTRY",
		apply:   func(cfg *Config, v any) { cfg.DefaultLocation.Country = v.(string) },
		extract: func(cfg Config) any { return cfg.DefaultLocation.Country },
	},
	{
		key: "default_location.latitude", typ: kFloat, env: "DAILYDEEN_DEFAULT_LOCATION_LATITUDE",
		apply:   func(cfg *Config, v any) { cfg.DefaultLocation.Latitude = v.(float64) },
		extract: func(cfg Config) any { return cfg.DefaultLocation.Latitude },
	},
	{
		key: "default_location.longitude", typ: kFloat, env: "DAILYDEEN_DEFAULT_LOCATION_LONGITUDE",
		apply:   func(cfg *Config, v any) { cfg.DefaultLocation.Longitude = v.(float64) },
		extract: func(cfg Config) any { return cfg.DefaultLocation.Longitude },
	},
	{
		key: "default_location.timezone", typ: kString, env: "DAILYDEEN_DEFAULT_LOCATION_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.DefaultLocation.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.DefaultLocation.Timezone },
	},
	{
		key: "providers.quran_base_url", typ: kString, env: "DAILYDEEN_PROVIDERS_QURAN_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Providers.QuranBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.QuranBaseURL },
	},
	{
		key: "providers.quran_edition", typ: kString, env: "DAILYDEEN_PROVIDERS_QURAN_EDITION",
		apply:   func(cfg *Config, v any) { cfg.Providers.QuranEdition = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.QuranEdition },
	},
	{
		key: "providers.quran_translation", typ: kString, env: "DAILYDEEN_PROVIDERS_QURAN_TRANSLATION",
		apply:   func(cfg *Config, v any) { cfg.Providers.QuranTranslation = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.QuranTranslation },
	},
	{
		key: "providers.aladhan_base_url", typ: kString, env: "DAILYDEEN_PROVIDERS_ALADHAN_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Providers.AladhanBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.AladhanBaseURL },
	},
	{
		key: "providers.ipapi_base_url", typ: kString, env: "DAILYDEEN_PROVIDERS_IPAPI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Providers.IPAPIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.IPAPIBaseURL },
	},
	{
		key: "providers.nominatim_base_url", typ: kString, env: "DAILYDEEN_PROVIDERS_NOMINATIM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Providers.NominatimBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.NominatimBaseURL },
	},
	{
		key: "providers.timeout", typ: kString, env: "DAILYDEEN_PROVIDERS_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Providers.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.Timeout },
	},
	{
		key: "providers.timezonedb_api_key", typ: kString, env: "DAILYDEEN_TIMEZONEDB_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Providers.TimezoneDBAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.TimezoneDBAPIKey },
	},
	{
		key: "corpus.verse_count", typ: kInt, env: "DAILYDEEN_CORPUS_VERSE_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Corpus.VerseCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Corpus.VerseCount },
	},
	{
		key: "mcp.enabled", typ: kBool, env: "DAILYDEEN_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.MCP.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.MCP.Enabled },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
