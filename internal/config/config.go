// Package config loads process configuration from the environment.
//
// Variables are read with github.com/caarlos0/env; a .env file in the working
// directory is loaded first when present (development).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP     HTTPConfig
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Queue    QueueConfig    `envPrefix:"QUEUE_"`
	Worker   WorkerConfig
	Provider ProviderConfig `envPrefix:"PROVIDER_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Archive  ArchiveConfig  `envPrefix:"ARCHIVE_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type PostgresConfig struct {
	DSN      string `env:"DSN,required,notEmpty"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

type QueueConfig struct {
	Key            string        `env:"KEY"             envDefault:"places:jobs:queue"`
	ProcessingKey  string        `env:"PROCESSING_KEY"  envDefault:"places:jobs:processing"`
	ClaimsKey      string        `env:"CLAIMS_KEY"      envDefault:"places:jobs:claims"`
	StaleAfter     time.Duration `env:"STALE_AFTER"     envDefault:"30m"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
}

type WorkerConfig struct {
	Count int `env:"WORKERS" envDefault:"4"`
}

// ProviderConfig configures the place-search provider client.
type ProviderConfig struct {
	BaseURL           string        `env:"BASE_URL"            envDefault:"https://maps.googleapis.com/maps/api/place"`
	CredentialDefault string        `env:"CREDENTIAL_DEFAULT"`
	MaxRetryAttempts  int           `env:"MAX_RETRY_ATTEMPTS"  envDefault:"5"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY"    envDefault:"2s"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY"     envDefault:"8s"`
	PaginationWarmup  time.Duration `env:"PAGINATION_WARMUP"   envDefault:"2s"`
	Timeout           time.Duration `env:"TIMEOUT"             envDefault:"30s"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Empty disables caller
	// identification; every request then uses the default credential.
	JWTSecret string `env:"JWT_SECRET"`
}

// ArchiveConfig enables copying completed snapshots to S3-compatible
// storage. Leave Bucket empty to disable.
type ArchiveConfig struct {
	Bucket          string `env:"BUCKET"`
	Endpoint        string `env:"ENDPOINT"`
	Region          string `env:"REGION"            envDefault:"auto"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"            envDefault:"snapshots/"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize replaces out-of-range values with defaults.
func (c *Config) Sanitize() {
	if c.Worker.Count <= 0 {
		c.Worker.Count = 4
	}
	if c.Provider.MaxRetryAttempts <= 0 {
		c.Provider.MaxRetryAttempts = 1
	}
	if c.Provider.RetryBaseDelay < 0 {
		c.Provider.RetryBaseDelay = 0
	}
	if c.Provider.RetryMaxDelay < c.Provider.RetryBaseDelay {
		c.Provider.RetryMaxDelay = c.Provider.RetryBaseDelay
	}
	if c.Provider.PaginationWarmup < 0 {
		c.Provider.PaginationWarmup = 0
	}
	if c.Queue.StaleAfter <= 0 {
		c.Queue.StaleAfter = 30 * time.Minute
	}
	if c.Queue.ReaperInterval <= 0 {
		c.Queue.ReaperInterval = time.Minute
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
}

// ArchiveEnabled reports whether snapshot archiving is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != "" && c.Archive.AccessKeyID != "" && c.Archive.SecretAccessKey != ""
}
