// Package config loads pipeline settings from the environment. A .env file
// in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`

	// ZipTablePath points at the offline geocoding CSV. When empty, the
	// remote Zippopotam backend is used instead.
	ZipTablePath     string
	GeocodeCacheSize int `validate:"gt=0"`

	NWSBaseURL     string `validate:"required,url"`
	NOAABaseURL    string `validate:"required,url"`
	NOAANormalsURL string `validate:"required,url"`
	// NOAAToken authenticates CDO station searches. Required unless an
	// offline table plus cached normals make the pipeline fully local.
	NOAAToken string

	StationRadiusKm float64 `validate:"gt=0"`

	// NormalsPeriod is the reference period in "1981-2010" form.
	NormalsPeriod      string `validate:"required"`
	NormalsPeriodStart int
	NormalsPeriodEnd   int

	CurrentTTL time.Duration `validate:"gt=0"`
	NormalsTTL time.Duration `validate:"gt=0"`

	MaxAttempts    int           `validate:"gte=1"`
	RetryBase      time.Duration `validate:"gt=0"`
	RetryMax       time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	HTTPTimeout    time.Duration `validate:"gt=0"`

	// MetricsAddr enables the ops HTTP server when non-empty, e.g. ":9090".
	MetricsAddr string
}

// Load reads configuration from the environment, applying defaults where
// unset.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ZipTablePath:     os.Getenv("ZIP_TABLE_PATH"),
		GeocodeCacheSize: 1000,
		NWSBaseURL:       envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NOAABaseURL:      envOrDefault("NOAA_BASE_URL", "https://www.ncei.noaa.gov/cdo-web/api/v2"),
		NOAANormalsURL:   envOrDefault("NOAA_NORMALS_URL", "https://www.ncei.noaa.gov/data/normals-daily/1981-2010/access"),
		NOAAToken:        os.Getenv("NOAA_TOKEN"),
		StationRadiusKm:  50,
		NormalsPeriod:    envOrDefault("NORMALS_PERIOD", "1981-2010"),
		CurrentTTL:       10 * time.Minute,
		NormalsTTL:       24 * time.Hour,
		MaxAttempts:      3,
		RetryBase:        200 * time.Millisecond,
		RetryMax:         5 * time.Second,
		RequestTimeout:   30 * time.Second,
		HTTPTimeout:      10 * time.Second,
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
	}

	var err error
	if cfg.GeocodeCacheSize, err = intEnv("GEOCODE_CACHE_SIZE", cfg.GeocodeCacheSize); err != nil {
		return nil, err
	}
	if cfg.StationRadiusKm, err = floatEnv("STATION_RADIUS_KM", cfg.StationRadiusKm); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = intEnv("MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return nil, err
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"CURRENT_TTL", &cfg.CurrentTTL},
		{"NORMALS_TTL", &cfg.NormalsTTL},
		{"RETRY_BASE", &cfg.RetryBase},
		{"RETRY_MAX", &cfg.RetryMax},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
	} {
		if *d.dst, err = durationEnv(d.key, *d.dst); err != nil {
			return nil, err
		}
	}

	if cfg.NormalsPeriodStart, cfg.NormalsPeriodEnd, err = parsePeriod(cfg.NormalsPeriod); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.RetryMax < cfg.RetryBase {
		return nil, fmt.Errorf("RETRY_MAX %s is below RETRY_BASE %s", cfg.RetryMax, cfg.RetryBase)
	}
	return cfg, nil
}

// parsePeriod splits "1981-2010" into its start and end years.
func parsePeriod(period string) (int, int, error) {
	parts := strings.SplitN(period, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("NORMALS_PERIOD %q: want START-END, e.g. 1981-2010", period)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("NORMALS_PERIOD start year %q: %w", parts[0], err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("NORMALS_PERIOD end year %q: %w", parts[1], err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("NORMALS_PERIOD %q: end year must follow start year", period)
	}
	return start, end, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return f, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return d, nil
}
