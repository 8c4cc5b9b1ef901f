// Package config loads the server configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stevemurr/simple-card-server/store"
)

// Config holds everything main needs to build the store and the server.
type Config struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	DataDir        string   `yaml:"data_dir"`
	DBName         string   `yaml:"db_name"`
	Backend        string   `yaml:"store_backend"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	// RateLimit is the number of mutating requests allowed per client per
	// minute. 0 disables rate limiting.
	RateLimit   int  `yaml:"rate_limit"`
	RateBurst   int  `yaml:"rate_burst"`
	ExposeStack bool `yaml:"expose_stack"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           "3000",
		DataDir:        ".",
		DBName:         "test",
		Backend:        "json",
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
		RateBurst:      20,
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	env("HOST", &c.Host)
	env("PORT", &c.Port)
	env("DATA_DIR", &c.DataDir)
	env("DB_NAME", &c.DBName)
	env("STORE_BACKEND", &c.Backend)
	env("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = SplitOrigins(v)
	}
	for key, dst := range map[string]*int{"RATE_LIMIT": &c.RateLimit, "RATE_BURST": &c.RateBurst} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("EXPOSE_STACK"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EXPOSE_STACK %q: %w", v, err)
		}
		c.ExposeStack = b
	}
	return nil
}

// SplitOrigins parses a comma separated origin list.
func SplitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DBName == "" {
		return store.ErrNameRequired
	}
	if c.Backend != "" && !slices.Contains(store.Backends, c.Backend) {
		return fmt.Errorf("unknown store backend: %q (supported: %s)", c.Backend, strings.Join(store.Backends, ", "))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		return errors.New("rate_burst must be positive when rate_limit is set")
	}
	return nil
}
