package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	require.NoError(t, os.Unsetenv("STORE_DRIVER"))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	require.Equal(t, 3, cfg.StoreMaxRetries)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.True(t, cfg.MigrateOnStart)
	require.False(t, cfg.IsProduction())
	require.False(t, cfg.UsesPostgres())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("PG_DSN", "postgres://pos@db/pos")
	t.Setenv("INVENTORY_CACHE_TTL", "2m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "600")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.UsesPostgres())
	require.Equal(t, "postgres://pos@db/pos", cfg.PGDSN)
	require.Equal(t, 2*time.Minute, cfg.InventoryCacheTTL)
	require.Equal(t, 600, cfg.RateLimitPerMinute)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = StorePostgres; c.PGDSN = "" }},
		{name: "negative retries", mutate: func(c *Config) { c.StoreMaxRetries = -1 }},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimitPerMinute = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{StoreDriver: StoreMemory, RateLimitPerMinute: 60}
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Setenv("STORE_DRIVER", "mongo")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json"}, &buf).Info("sale recorded")
	require.Contains(t, buf.String(), `"msg":"sale recorded"`)

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty"}, &buf).Info("sale recorded")
	require.Contains(t, buf.String(), `msg="sale recorded"`)
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockledger.env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_DRIVER=postgres\nPG_DSN=postgres://env@db/pos\n"), 0o600))
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PG_DSN", "")
	require.NoError(t, os.Unsetenv("PG_DSN"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	require.Equal(t, "memory", os.Getenv("STORE_DRIVER"))
	require.Equal(t, "postgres://env@db/pos", os.Getenv("PG_DSN"))
}
