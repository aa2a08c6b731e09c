// Package config reads the server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort              = "8080"
	defaultGeocoderURL       = "https://nominatim.openstreetmap.org"
	defaultGeocoderUserAgent = "fairprice/1.0"
	defaultGeocodeCacheTTL   = 24 * time.Hour
	defaultClassifierModel   = "souk_items"
	defaultClassifierLabels  = "labels.txt"
	defaultThreshold         = 0.90
	defaultRequestTimeout    = 60 * time.Second
)

var defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// Config holds runtime configuration for the server.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	RegionsFile string

	GeocoderURL       string
	GeocoderUserAgent string
	GeocodeCacheTTL   time.Duration

	ClassifierURL       string
	ClassifierModel     string
	ClassifierLabels    string
	ConfidenceThreshold float64

	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables and applies defaults.
// Variables from envFiles (".env" when none are given) fill in anything the
// environment does not already set; a missing file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		Port:                defaultPort,
		GeocoderURL:         defaultGeocoderURL,
		GeocoderUserAgent:   defaultGeocoderUserAgent,
		GeocodeCacheTTL:     defaultGeocodeCacheTTL,
		ClassifierModel:     defaultClassifierModel,
		ClassifierLabels:    defaultClassifierLabels,
		ConfidenceThreshold: defaultThreshold,
		RequestTimeout:      defaultRequestTimeout,
		CORSAllowedOrigins:  defaultCORSOrigins,
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RegionsFile = os.Getenv("REGIONS_FILE")

	if v := os.Getenv("GEOCODER_URL"); v != "" {
		cfg.GeocoderURL = v
	}
	if v := os.Getenv("GEOCODER_USER_AGENT"); v != "" {
		cfg.GeocoderUserAgent = v
	}
	if v, err := readIntEnv("GEOCODE_CACHE_TTL_SECONDS"); err != nil {
		return Config{}, fmt.Errorf("parse GEOCODE_CACHE_TTL_SECONDS: %w", err)
	} else if v != nil {
		cfg.GeocodeCacheTTL = time.Duration(*v) * time.Second
	}

	cfg.ClassifierURL = os.Getenv("CLASSIFIER_URL")
	if v := os.Getenv("CLASSIFIER_MODEL"); v != "" {
		cfg.ClassifierModel = v
	}
	if v := os.Getenv("CLASSIFIER_LABELS"); v != "" {
		cfg.ClassifierLabels = v
	}
	if v, err := readFloatEnv("CONFIDENCE_THRESHOLD"); err != nil {
		return Config{}, fmt.Errorf("parse CONFIDENCE_THRESHOLD: %w", err)
	} else if v != nil {
		cfg.ConfidenceThreshold = *v
	}

	if v, err := readIntEnv("REQUEST_TIMEOUT_SECONDS"); err != nil {
		return Config{}, fmt.Errorf("parse REQUEST_TIMEOUT_SECONDS: %w", err)
	} else if v != nil {
		cfg.RequestTimeout = time.Duration(*v) * time.Second
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	if cfg.GeocodeCacheTTL <= 0 {
		return Config{}, fmt.Errorf("GEOCODE_CACHE_TTL_SECONDS must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func readFloatEnv(name string) (*float64, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
