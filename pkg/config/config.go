// Package config holds process-level configuration for the enrichment engine:
// database connection, provider credentials, and concurrency defaults. All of
// it can be set via environment variables; secrets must only come from the
// environment, never from the enrichment config file.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/doctrail-go/enrichment-engine/pkg/apperrors"
)

// Config holds process-level settings loaded from the environment.
// The enrichment run itself (strategies, prompts, schemas) is described by a
// separate YAML file loaded by LoadEnrichmentFile (enrichment_file.go), not
// by this struct.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Run      RunConfig      `yaml:"run"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `env:"PGHOST" env-default:"localhost"`
	Port           int    `env:"PGPORT" env-default:"5432"`
	User           string `env:"PGUSER" env-default:"postgres"`
	Password       string `env:"PGPASSWORD"`
	Database       string `env:"PGDATABASE" env-default:"doctrail"`
	SSLMode        string `env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// ConnectionString returns a libpq-style DSN for pgxpool.ParseConfig.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ProviderConfig holds API credentials for the LLM providers the Provider
// Adapter can dispatch to. A provider whose key is empty is simply
// unavailable; the factory only errors if a run actually asks for it.
type ProviderConfig struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIEndpoint  string `env:"OPENAI_ENDPOINT"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
}

// RunConfig holds the concurrency and resilience defaults described in the
// spec's concurrency model. Enrichment-specific overrides (per-run model,
// temperature, etc.) live in the enrichment config file, not here.
type RunConfig struct {
	APISemaphoreLimit  int `env:"API_SEMAPHORE_LIMIT" env-default:"30"`
	DBSemaphoreLimit   int `env:"DB_SEMAPHORE_LIMIT" env-default:"2"`
	CheckpointInterval int `env:"CHECKPOINT_INTERVAL" env-default:"1000"`
}

// Load reads process configuration from the environment. It never reads a
// YAML file for this struct — environment variables are the sole source, so
// the same binary behaves identically in a shell, a container, or CI.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read process configuration: %w", err)
	}
	if err := cfg.Run.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces that the semaphore shapes spec.md §5 requires (a bounded
// API concurrency, a bounded DB concurrency, a positive checkpoint cadence)
// are actually positive; a zero or negative env override would otherwise
// silently deadlock or checkpoint every row.
func (r RunConfig) validate() error {
	if r.APISemaphoreLimit <= 0 {
		return fmt.Errorf("%w: API_SEMAPHORE_LIMIT must be positive, got %d", apperrors.ErrInvalidConfig, r.APISemaphoreLimit)
	}
	if r.DBSemaphoreLimit <= 0 {
		return fmt.Errorf("%w: DB_SEMAPHORE_LIMIT must be positive, got %d", apperrors.ErrInvalidConfig, r.DBSemaphoreLimit)
	}
	if r.CheckpointInterval <= 0 {
		return fmt.Errorf("%w: CHECKPOINT_INTERVAL must be positive, got %d", apperrors.ErrInvalidConfig, r.CheckpointInterval)
	}
	return nil
}
