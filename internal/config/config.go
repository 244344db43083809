package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server          ServerConfig
	Storage         StorageConfig
	Log             LogConfig
	Schedule        ScheduleConfig
	Prayer          PrayerConfig
	DefaultLocation LocationConfig
	Providers       ProvidersConfig
	Corpus          CorpusConfig
	MCP             MCPConfig
}

type ServerConfig struct {
	Port           int
	MaxConnections int
}

type StorageConfig struct {
	// Backend is "sqlite" or "file".
	Backend string
	DataDir string
}

type LogConfig struct {
	Level string
}

type ScheduleConfig struct {
	Timezone          string
	RotationCron      string
	PrayerRefreshCron string
	RetryInterval     string
}

type PrayerConfig struct {
	Method   int
	CacheTTL string
}

type LocationConfig struct {
	City      string
	Country   string
	Latitude  float64
	Longitude float64
	Timezone  string
}

type ProvidersConfig struct {
	QuranBaseURL     string
	QuranEdition     string
	QuranTranslation string
	AladhanBaseURL   string
	IPAPIBaseURL     string
	NominatimBaseURL string
	Timeout          string
	TimezoneDBAPIKey string
}

type CorpusConfig struct {
	VerseCount int
}

type MCPConfig struct {
	Enabled bool
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           3001,
			MaxConnections: 256,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Schedule: ScheduleConfig{
			Timezone:          "Asia/Karachi",
			RotationCron:      "0 0 * * *",
			PrayerRefreshCron: "0 1 * * *",
			RetryInterval:     "15m",
		},
		Prayer: PrayerConfig{
			Method:   2,
			CacheTTL: "24h",
		},
		DefaultLocation: LocationConfig{
			City:      "Karachi",
			Country:   "Pakistan",
			Latitude:  24.8607,
			Longitude: 67.0011,
			Timezone:  "Asia/Karachi",
		},
		Providers: ProvidersConfig{
			QuranBaseURL:     "https://api.alquran.cloud/v1",
			QuranEdition:     "quran-uthmani",
			QuranTranslation: "ur.jalandhry",
			AladhanBaseURL:   "https://api.aladhan.com/v1",
			IPAPIBaseURL:     "https://ipapi.co",
			NominatimBaseURL: "https://nominatim.openstreetmap.org",
			Timeout:          "10s",
		},
		Corpus: CorpusConfig{
			VerseCount: 6236,
		},
	}
}

// Load reads configuration in layers: built-in defaults, the JSON file at
// $XDG_CONFIG_HOME/dailydeen/config.json, then DAILYDEEN_* environment
// variables. A .env file in the working directory is loaded into the
// environment first; variables already set take precedence over it.
//
// Secrets (the timezonedb API key) are read from the environment only.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env file: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used to start the
// service.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config server.port: %d", c.Server.Port)
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("invalid config server.max_connections: %d", c.Server.MaxConnections)
	}
	switch c.Storage.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("invalid config storage.backend: %q (want sqlite or file)", c.Storage.Backend)
	}
	if c.Corpus.VerseCount <= 0 {
		return fmt.Errorf("invalid config corpus.verse_count: %d", c.Corpus.VerseCount)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.DefaultZone(); err != nil {
		return err
	}
	durations := []struct{ key, raw string }{
		{"schedule.retry_interval", c.Schedule.RetryInterval},
		{"prayer.cache_ttl", c.Prayer.CacheTTL},
		{"providers.timeout", c.Providers.Timeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.key, d.raw); err != nil {
			return err
		}
	}
	return nil
}

// Location returns the scheduler time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid config schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// DefaultZone returns the time zone of the fallback location.
func (c Config) DefaultZone() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DefaultLocation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid config default_location.timezone %q: %w", c.DefaultLocation.Timezone, err)
	}
	return loc, nil
}

func (c Config) RetryInterval() time.Duration {
	d, _ := parseDuration("schedule.retry_interval", c.Schedule.RetryInterval)
	return d
}

func (c Config) PrayerCacheTTL() time.Duration {
	d, _ := parseDuration("prayer.cache_ttl", c.Prayer.CacheTTL)
	return d
}

func (c Config) ProviderTimeout() time.Duration {
	d, _ := parseDuration("providers.timeout", c.Providers.Timeout)
	return d
}

// LogLevel maps log.level onto slog's level names. Unknown values read as
// info.
func (c Config) LogLevel() string {
	switch l := strings.ToLower(strings.TrimSpace(c.Log.Level)); l {
	case "debug", "info", "warn", "error":
		return l
	case "warning":
		return "warn"
	default:
		return "info"
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid config %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid config %s %q: must be positive", key, raw)
	}
	return d, nil
}
