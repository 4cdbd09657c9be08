// Package config loads taskctl settings from the environment, optionally
// seeded from a YAML file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the optional YAML file.
const FileEnv = "TASKDESK_CONFIG"

const DefaultBaseURL = "https://taskback-d1788b8581c9.herokuapp.com"

type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Token    TokenConfig    `yaml:"token"`

	RedisURL    string `env:"REDIS_URL" yaml:"redis_url"`
	LogLevel    string `env:"LOG_LEVEL, default=info" yaml:"log_level"`
	Debug       bool   `env:"DEBUG" yaml:"debug"`
	MetricsAddr string `env:"METRICS_ADDR" yaml:"metrics_addr"`
}

type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL, default=https://taskback-d1788b8581c9.herokuapp.com" yaml:"base_url"`
	Timeout time.Duration `env:"HTTP_TIMEOUT, default=15s" yaml:"timeout"`
}

type RealtimeConfig struct {
	// Transport is "sse" or "redis".
	Transport         string        `env:"REALTIME_TRANSPORT, default=sse" yaml:"transport"`
	URL               string        `env:"REALTIME_URL" yaml:"url"`
	RedisPrefix       string        `env:"REALTIME_REDIS_PREFIX, default=taskdesk" yaml:"redis_prefix"`
	ReconnectAttempts int           `env:"REALTIME_RECONNECT_ATTEMPTS, default=5" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `env:"REALTIME_RECONNECT_DELAY, default=1s" yaml:"reconnect_delay"`
	StableAfter       time.Duration `env:"REALTIME_STABLE_AFTER, default=1m" yaml:"stable_after"`
}

type TokenConfig struct {
	// Backend is "file", "redis" or "memory".
	Backend  string        `env:"TOKEN_BACKEND, default=file" yaml:"backend"`
	File     string        `env:"TOKEN_FILE" yaml:"file"`
	RedisKey string        `env:"TOKEN_REDIS_KEY, default=taskdesk:token" yaml:"redis_key"`
	TTL      time.Duration `env:"TOKEN_TTL" yaml:"ttl"`
}

// Load reads the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith seeds the configuration from the YAML file named by FileEnv, then
// applies l on top of it. Environment values win over the file; defaults fill
// whatever neither sets.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if path, ok := l.Lookup(FileEnv); ok && path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           &cfg,
		Lookuper:         l,
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) finish() error {
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.Realtime.URL == "" {
		c.Realtime.URL = c.API.BaseURL
	}
	c.Realtime.Transport = strings.ToLower(c.Realtime.Transport)
	c.Token.Backend = strings.ToLower(c.Token.Backend)

	switch c.Realtime.Transport {
	case "sse":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis realtime transport")
		}
	default:
		return fmt.Errorf("unknown realtime transport %q", c.Realtime.Transport)
	}
	switch c.Token.Backend {
	case "memory":
	case "file":
		if c.Token.File == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("resolve token file: %w", err)
			}
			c.Token.File = filepath.Join(dir, "taskdesk", "token")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis token backend")
		}
	default:
		return fmt.Errorf("unknown token backend %q", c.Token.Backend)
	}
	return nil
}

// Level resolves the log level; Debug forces debug output.
func (c *Config) Level() log.Level {
	if c.Debug {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
