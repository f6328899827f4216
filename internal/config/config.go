package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Memory and cache
	StorageDir       string        `envconfig:"STORAGE_DIR" default:"./data"`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	MaxHistory       int           `envconfig:"SHORT_TERM_MAX_HISTORY" default:"10"`
	PatternThreshold int           `envconfig:"PATTERN_THRESHOLD" default:"3"`
	PatternCacheSize int           `envconfig:"PATTERN_CACHE_SIZE" default:"1000"`

	// Session persistence. Without Redis a file store under STORAGE_DIR
	// is used.
	RedisURL   string        `envconfig:"REDIS_URL"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// Classification
	CatalogPath         string  `envconfig:"CATEGORY_CATALOG_PATH"`
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.5"`

	// Text generation service. Without it the agent starts with static
	// generation in offline mode.
	GeneratorURL    string `envconfig:"GENERATOR_URL"`
	GeneratorAPIKey string `envconfig:"GENERATOR_API_KEY"`

	// Document retrieval service. Without it there is no relevance signal.
	RetrieverURL string `envconfig:"RETRIEVER_URL"`
}

// RedisEnabled returns true if Redis-backed session persistence is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// GeneratorEnabled returns true if a generation service is configured.
func (c *Config) GeneratorEnabled() bool {
	return c.GeneratorURL != ""
}

// RetrieverEnabled returns true if a retrieval service is configured.
func (c *Config) RetrieverEnabled() bool {
	return c.RetrieverURL != ""
}

// Load reads configuration from the environment, after folding in a local
// .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
