// Package config reads server settings from the environment (and optionally
// a config file) with spf13/viper.
//
// PRECEDENCE (highest first):
//
//	explicit Set (flags, tests) → environment variable → config file → default
//
// Every key is an upper-case env name, e.g. LEADERBOARD_CEILING=25. A config
// file uses the same keys:
//
//	PORT: 9090
//	LOG_LEVEL: debug
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config wraps a viper instance so callers get typed getters instead of
// stringly-typed lookups scattered across main.
type Config struct{ v *viper.Viper }

// New returns a Config reading the environment, with defaults applied.
func New() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "data/skillboard.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVICE_NAME", "skillboard")
	v.SetDefault("LEADERBOARD_CEILING", 50)
	v.SetDefault("SUBSCRIBER_BUFFER", 64)
	v.SetDefault("LEDGER_REQUIRE_KNOWN_USER", true)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	return &Config{v: v}
}

// ReadFile merges settings from a YAML, TOML or JSON file. Environment
// variables still win over the file.
func (c *Config) ReadFile(path string) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	return nil
}

func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

func (c *Config) Port() int      { return c.v.GetInt("PORT") }
func (c *Config) DBPath() string { return c.v.GetString("DB_PATH") }

// JWTSecret is empty when unset; the server then runs with auth disabled.
func (c *Config) JWTSecret() string { return c.v.GetString("JWT_SECRET") }

func (c *Config) GitHubClientID() string     { return c.v.GetString("GITHUB_CLIENT_ID") }
func (c *Config) GitHubClientSecret() string { return c.v.GetString("GITHUB_CLIENT_SECRET") }

// GitHubCallbackURL defaults to the local callback on the configured port.
func (c *Config) GitHubCallbackURL() string {
	if u := c.v.GetString("GITHUB_CALLBACK_URL"); u != "" {
		return u
	}
	return fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Port())
}

// LogLevel maps LOG_LEVEL to a slog.Level.
// Recognized values: debug, info (default), warn|warning, error.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.v.GetString("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) LeaderboardCeiling() int { return c.v.GetInt("LEADERBOARD_CEILING") }
func (c *Config) SubscriberBuffer() int   { return c.v.GetInt("SUBSCRIBER_BUFFER") }
func (c *Config) RequireKnownUser() bool  { return c.v.GetBool("LEDGER_REQUIRE_KNOWN_USER") }
func (c *Config) RateLimitRPS() float64   { return c.v.GetFloat64("RATE_LIMIT_RPS") }
func (c *Config) RateLimitBurst() int     { return c.v.GetInt("RATE_LIMIT_BURST") }
func (c *Config) OTLPEndpoint() string    { return c.v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT") }
func (c *Config) ServiceName() string     { return c.v.GetString("SERVICE_NAME") }

// StoreTimeout bounds each ledger call. Unparseable values fall back to 5s.
func (c *Config) StoreTimeout() time.Duration {
	const def = 5 * time.Second
	d := c.v.GetDuration("STORE_TIMEOUT")
	if d <= 0 {
		return def
	}
	return d
}
