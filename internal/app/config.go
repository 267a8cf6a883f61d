// Package app builds the weather pipeline shared by the API and worker
// binaries from environment configuration.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Toomja, Estonia.
const (
	DefaultLocationName = "Toomja"
	DefaultLatitude     = 59.0218292
	DefaultLongitude    = 25.0982156
)

// ErrInvalidConfig wraps every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the pipeline configuration.
type Config struct {
	LocationName string
	Latitude     float64
	Longitude    float64

	// CacheTTL is how long an aggregated forecast stays fresh.
	CacheTTL time.Duration

	// StoreBackend is StorePostgres or StoreMemory.
	StoreBackend string

	// OpenAIAPIKey enables generated narratives; without it every
	// narrative is the template fallback.
	OpenAIAPIKey string
	OpenAIModel  string

	// Upstream overrides, for tests and mirrors.
	OpenMeteoURL string
	EstonianURL  string
	OpenAIURL    string
}

// LoadDotEnv loads KEY=value files (".env" when none are named) into the
// environment for local runs. Variables already set win, and missing files
// are not an error.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}

// ConfigFromEnv reads the pipeline configuration from the environment.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		LocationName: getEnvOrDefault("WEATHER_LOCATION_NAME", DefaultLocationName),
		StoreBackend: getEnvOrDefault("STORE_BACKEND", StorePostgres),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		OpenMeteoURL: os.Getenv("OPEN_METEO_URL"),
		EstonianURL:  os.Getenv("ILMATEENISTUS_URL"),
		OpenAIURL:    os.Getenv("OPENAI_BASE_URL"),
	}

	var err error
	if cfg.Latitude, err = floatEnv("WEATHER_LAT", DefaultLatitude, -90, 90); err != nil {
		return Config{}, err
	}
	if cfg.Longitude, err = floatEnv("WEATHER_LON", DefaultLongitude, -180, 180); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = DurationEnv("WEATHER_CACHE_TTL", time.Hour); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("%w: STORE_BACKEND must be %q or %q, got %q",
			ErrInvalidConfig, StorePostgres, StoreMemory, cfg.StoreBackend)
	}

	return cfg, nil
}

// DurationEnv parses a positive Go duration ("30m") from key.
func DurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration, got %q", ErrInvalidConfig, key, raw)
	}
	return d, nil
}

// SetCoordinates overrides Latitude and Longitude from a "lat;lon" pair,
// the format ilmateenistus uses for locations.
func (c *Config) SetCoordinates(raw string) error {
	latRaw, lonRaw, ok := strings.Cut(raw, ";")
	if !ok {
		return fmt.Errorf("%w: coordinates must be \"lat;lon\", got %q", ErrInvalidConfig, raw)
	}
	lat, err := parseFloat("latitude", strings.TrimSpace(latRaw), -90, 90)
	if err != nil {
		return err
	}
	lon, err := parseFloat("longitude", strings.TrimSpace(lonRaw), -180, 180)
	if err != nil {
		return err
	}
	c.Latitude, c.Longitude = lat, lon
	return nil
}

func floatEnv(key string, defaultValue, lo, hi float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	return parseFloat(key, raw, lo, hi)
}

func parseFloat(name, raw string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be a number in [%g, %g], got %q", ErrInvalidConfig, name, lo, hi, raw)
	}
	return v, nil
}

// GetEnvOrDefault returns the value of key, or defaultValue when unset.
func GetEnvOrDefault(key, defaultValue string) string {
	return getEnvOrDefault(key, defaultValue)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
