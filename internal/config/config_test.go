package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/places")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 5, cfg.Provider.MaxRetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Provider.RetryBaseDelay)
	assert.Equal(t, 8*time.Second, cfg.Provider.RetryMaxDelay)
	assert.Equal(t, 2*time.Second, cfg.Provider.PaginationWarmup)
	assert.Equal(t, "places:jobs:queue", cfg.Queue.Key)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/places")
	t.Setenv("PROVIDER_CREDENTIAL_DEFAULT", "k-123")
	t.Setenv("PROVIDER_MAX_RETRY_ATTEMPTS", "3")
	t.Setenv("PROVIDER_RETRY_BASE_DELAY", "100ms")
	t.Setenv("PROVIDER_PAGINATION_WARMUP", "0s")
	t.Setenv("WORKERS", "8")
	t.Setenv("ARCHIVE_BUCKET", "snapshots")
	t.Setenv("ARCHIVE_ACCESS_KEY_ID", "id")
	t.Setenv("ARCHIVE_SECRET_ACCESS_KEY", "secret")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "k-123", cfg.Provider.CredentialDefault)
	assert.Equal(t, 3, cfg.Provider.MaxRetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Provider.RetryBaseDelay)
	assert.Equal(t, time.Duration(0), cfg.Provider.PaginationWarmup)
	assert.Equal(t, 8, cfg.Worker.Count)
	assert.True(t, cfg.ArchiveEnabled())
}

func TestParse_RequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	var cfg Config
	assert.Error(t, env.Parse(&cfg))
}

func TestSanitize(t *testing.T) {
	cfg := Config{
		Worker:   WorkerConfig{Count: -1},
		Provider: ProviderConfig{MaxRetryAttempts: 0, RetryBaseDelay: time.Second, RetryMaxDelay: time.Millisecond},
	}

	cfg.Sanitize()

	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 1, cfg.Provider.MaxRetryAttempts)
	assert.Equal(t, time.Second, cfg.Provider.RetryMaxDelay)
	assert.Equal(t, 30*time.Minute, cfg.Queue.StaleAfter)
}
