// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} expansion
//  2. Environment variables (fallback), optionally seeded from a .env file
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	matcherCfg, err := cfg.MatcherConfig()
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Matching      MatchingConfig      `yaml:"matching"`
	Duplicates    DuplicatesConfig    `yaml:"duplicates"`
	Cache         CacheConfig         `yaml:"cache"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds confidence scoring and similarity settings.
// Decimal values are strings so they never pass through float64.
type MatchingConfig struct {
	Threshold          float64      `yaml:"threshold"`
	Weights            WeightConfig `yaml:"weights"`
	DateWindowDays     int          `yaml:"date_window_days"`
	AmountPolicy       string       `yaml:"amount_policy"`        // "ladder" or "percent_band"
	AmountBandPercent  string       `yaml:"amount_band_percent"`  // e.g. "0.05"
	AmountDecayPercent string       `yaml:"amount_decay_percent"` // Defaults to the band percent
	AmountTiers        []TierConfig `yaml:"amount_tiers"`

	MinSubstringLength   int  `yaml:"min_substring_length"`
	MaxEditDistance      int  `yaml:"max_edit_distance"`
	DistanceScaleDivisor int  `yaml:"distance_scale_divisor"`
	MinLengthPerEdit     int  `yaml:"min_length_per_edit"` // 0 disables
	KeepPunctuation      bool `yaml:"keep_punctuation"`

	ScoreWorkers   int `yaml:"score_workers"`
	CandidateLimit int `yaml:"candidate_limit"`
}

// WeightConfig holds the sub-score weights
type WeightConfig struct {
	Amount   float64 `yaml:"amount"`
	Date     float64 `yaml:"date"`
	Merchant float64 `yaml:"merchant"`
}

// TierConfig is one rung of the amount ladder
type TierConfig struct {
	MaxDiff string  `yaml:"max_diff"`
	Score   float64 `yaml:"score"`
}

// DuplicatesConfig holds duplicate detection settings
type DuplicatesConfig struct {
	AmountTolerance string  `yaml:"amount_tolerance"`
	MinConfidence   float64 `yaml:"min_confidence"`
	WindowDays      int     `yaml:"window_days"`
}

// CacheConfig holds in-memory cache sizes
type CacheConfig struct {
	MerchantVariants int `yaml:"merchant_variants"`
}

// SchedulerConfig holds sweep settings. Intervals use Go duration syntax.
type SchedulerConfig struct {
	Enabled              bool    `yaml:"enabled"`
	RunOnStart           bool    `yaml:"run_on_start"`
	ReceiptsInterval     string  `yaml:"receipts_interval"`
	TransactionsInterval string  `yaml:"transactions_interval"`
	BatchSize            int     `yaml:"batch_size"`
	RecordsPerSecond     float64 `yaml:"records_per_second"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILER_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables that are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILER_DB_PATH", "reconciler.db"),
		},
		Matching: MatchingConfig{
			Threshold:         getEnvFloat("MATCH_THRESHOLD", 0),
			DateWindowDays:    getEnvInt("MATCH_DATE_WINDOW_DAYS", 0),
			AmountPolicy:      getEnv("MATCH_AMOUNT_POLICY", ""),
			AmountBandPercent: getEnv("MATCH_AMOUNT_BAND_PERCENT", ""),
			ScoreWorkers:      getEnvInt("MATCH_SCORE_WORKERS", 0),
		},
		Cache: CacheConfig{
			MerchantVariants: getEnvInt("MERCHANT_CACHE_SIZE", 0),
		},
		Scheduler: SchedulerConfig{
			Enabled:              getEnvBool("SCHEDULER_ENABLED", true),
			RunOnStart:           getEnvBool("SCHEDULER_RUN_ON_START", false),
			ReceiptsInterval:     getEnv("SCHEDULER_RECEIPTS_INTERVAL", ""),
			TransactionsInterval: getEnv("SCHEDULER_TRANSACTIONS_INTERVAL", ""),
			BatchSize:            getEnvInt("SCHEDULER_BATCH_SIZE", 0),
			RecordsPerSecond:     getEnvFloat("SCHEDULER_RECORDS_PER_SECOND", 0),
		},
		API: APIConfig{
			Port:           getEnvInt("API_PORT", 0),
			AllowedOrigins: splitList(getEnv("API_ALLOWED_ORIGINS", "")),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills zero values. A zero threshold or weight set counts as unset.
func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "reconciler.db"
	}

	m := &c.Matching
	if m.Threshold == 0 {
		m.Threshold = 0.8
	}
	if m.Weights == (WeightConfig{}) {
		m.Weights = WeightConfig{Amount: 0.4, Date: 0.3, Merchant: 0.3}
	}
	if m.DateWindowDays == 0 {
		m.DateWindowDays = 3
	}
	if m.AmountPolicy == "" {
		m.AmountPolicy = "ladder"
	}
	if m.AmountBandPercent == "" {
		m.AmountBandPercent = "0.05"
	}
	if len(m.AmountTiers) == 0 {
		m.AmountTiers = []TierConfig{
			{MaxDiff: "0.01", Score: 0.9},
			{MaxDiff: "0.10", Score: 0.8},
			{MaxDiff: "1.00", Score: 0.6},
		}
	}
	if m.MinSubstringLength == 0 {
		m.MinSubstringLength = 5
	}
	if m.MaxEditDistance == 0 {
		m.MaxEditDistance = 2
	}
	if m.DistanceScaleDivisor == 0 {
		m.DistanceScaleDivisor = 8
	}
	if m.ScoreWorkers == 0 {
		m.ScoreWorkers = 4
	}

	d := &c.Duplicates
	if d.AmountTolerance == "" {
		d.AmountTolerance = "0.01"
	}
	if d.WindowDays == 0 {
		d.WindowDays = 7
	}

	if c.Cache.MerchantVariants == 0 {
		c.Cache.MerchantVariants = 4096
	}

	s := &c.Scheduler
	if s.ReceiptsInterval == "" {
		s.ReceiptsInterval = "1h"
	}
	if s.TransactionsInterval == "" {
		s.TransactionsInterval = "24h"
	}
	if s.BatchSize == 0 {
		s.BatchSize = 100
	}

	if c.API.Port == 0 {
		c.API.Port = 8085
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable with a fallback default
func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
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

func parseInterval(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("scheduler.%s: %w", name, err)
	}
	return d, nil
}
