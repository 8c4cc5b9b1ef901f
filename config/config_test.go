package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-card-server/store"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
port: "8081"
db_name: cards
store_backend: sqlite
allowed_origins:
  - http://a.example
  - http://b.example
rate_limit: 30
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "cards", cfg.DBName)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.RateLimit)
	// Unset keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 20, cfg.RateBurst)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":            "9000",
		"DB_NAME":         "other",
		"ALLOWED_ORIGINS": "http://x.example, http://y.example",
		"RATE_LIMIT":      "5",
		"EXPOSE_STACK":    "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "other", cfg.DBName)
	assert.Equal(t, []string{"http://x.example", "http://y.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.True(t, cfg.ExposeStack)

	env = map[string]string{"RATE_BURST": "lots"}
	cfg = Default()
	require.Error(t, cfg.applyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.DBName = "" }},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"no port", func(c *Config) { c.Port = "" }},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }},
		{"rate without burst", func(c *Config) { c.RateLimit = 10; c.RateBurst = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.DBName = ""
	require.ErrorIs(t, cfg.Validate(), store.ErrNameRequired)
}
