// SPDX-License-Identifier: MIT

// Package config provides configuration management for soundloom.
// Precedence is ENV > file > defaults; reloads are atomic.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the validated runtime configuration.
type Config struct {
	Listen   string
	LogLevel string

	Engine    EngineConfig
	Streaming StreamingConfig
	Registry  RegistryConfig
	RateLimit RateLimitConfig
}

// EngineConfig holds the upstream composition backend settings.
type EngineConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StreamingConfig holds the SSE tunables.
type StreamingConfig struct {
	HeartbeatInterval time.Duration
	RetryHint         time.Duration
}

// RegistryConfig holds the request registry tunables.
type RegistryConfig struct {
	OwnerLimit    int
	RequestTTL    time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig holds the per-owner creation rate limits.
type RateLimitConfig struct {
	PerOwnerRate  float64
	PerOwnerBurst int
}

// FileConfig is the YAML shape of the config file. Durations are strings
// ("20s", "5m") so the file stays human-editable.
type FileConfig struct {
	Listen   string `yaml:"listen,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Engine struct {
		BaseURL string `yaml:"baseUrl,omitempty"`
		Timeout string `yaml:"timeout,omitempty"`
	} `yaml:"engine,omitempty"`

	Streaming struct {
		HeartbeatInterval string `yaml:"heartbeatInterval,omitempty"`
		RetryHint         string `yaml:"retryHint,omitempty"`
	} `yaml:"streaming,omitempty"`

	Registry struct {
		OwnerLimit    int    `yaml:"ownerLimit,omitempty"`
		RequestTTL    string `yaml:"requestTtl,omitempty"`
		SweepInterval string `yaml:"sweepInterval,omitempty"`
	} `yaml:"registry,omitempty"`

	RateLimit struct {
		PerOwnerRate  float64 `yaml:"perOwnerRate,omitempty"`
		PerOwnerBurst int     `yaml:"perOwnerBurst,omitempty"`
	} `yaml:"rateLimit,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Engine: EngineConfig{
			BaseURL: "http://127.0.0.1:9090",
			Timeout: 10 * time.Minute,
		},
		Streaming: StreamingConfig{
			HeartbeatInterval: 20 * time.Second,
			RetryHint:         3 * time.Second,
		},
		Registry: RegistryConfig{
			OwnerLimit:    5,
			RequestTTL:    300 * time.Second,
			SweepInterval: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerOwnerRate:  1,
			PerOwnerBurst: 10,
		},
	}
}

// Loader loads configuration from an optional file plus the environment.
type Loader struct {
	path string
}

// NewLoader creates a loader. An empty path means ENV-only configuration.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load produces a validated Config with ENV > file > defaults precedence.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.path != "" {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var fc FileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		if err := applyFile(&cfg, fc); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc FileConfig) error {
	setString(&cfg.Listen, fc.Listen)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.Engine.BaseURL, fc.Engine.BaseURL)
	if err := setDuration(&cfg.Engine.Timeout, fc.Engine.Timeout, "engine.timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Streaming.HeartbeatInterval, fc.Streaming.HeartbeatInterval, "streaming.heartbeatInterval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Streaming.RetryHint, fc.Streaming.RetryHint, "streaming.retryHint"); err != nil {
		return err
	}
	if fc.Registry.OwnerLimit != 0 {
		cfg.Registry.OwnerLimit = fc.Registry.OwnerLimit
	}
	if err := setDuration(&cfg.Registry.RequestTTL, fc.Registry.RequestTTL, "registry.requestTtl"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Registry.SweepInterval, fc.Registry.SweepInterval, "registry.sweepInterval"); err != nil {
		return err
	}
	if fc.RateLimit.PerOwnerRate != 0 {
		cfg.RateLimit.PerOwnerRate = fc.RateLimit.PerOwnerRate
	}
	if fc.RateLimit.PerOwnerBurst != 0 {
		cfg.RateLimit.PerOwnerBurst = fc.RateLimit.PerOwnerBurst
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Listen = ParseString("SOUNDLOOM_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("SOUNDLOOM_LOG_LEVEL", cfg.LogLevel)
	cfg.Engine.BaseURL = ParseString("SOUNDLOOM_ENGINE_URL", cfg.Engine.BaseURL)

	var err error
	if cfg.Engine.Timeout, err = ParseDuration("SOUNDLOOM_ENGINE_TIMEOUT", cfg.Engine.Timeout); err != nil {
		return err
	}
	if cfg.Streaming.HeartbeatInterval, err = ParseDuration("SOUNDLOOM_HEARTBEAT_INTERVAL", cfg.Streaming.HeartbeatInterval); err != nil {
		return err
	}
	if cfg.Streaming.RetryHint, err = ParseDuration("SOUNDLOOM_RETRY_HINT", cfg.Streaming.RetryHint); err != nil {
		return err
	}
	if cfg.Registry.OwnerLimit, err = ParseInt("SOUNDLOOM_OWNER_LIMIT", cfg.Registry.OwnerLimit); err != nil {
		return err
	}
	if cfg.Registry.RequestTTL, err = ParseDuration("SOUNDLOOM_REQUEST_TTL", cfg.Registry.RequestTTL); err != nil {
		return err
	}
	if cfg.Registry.SweepInterval, err = ParseDuration("SOUNDLOOM_SWEEP_INTERVAL", cfg.Registry.SweepInterval); err != nil {
		return err
	}
	if cfg.RateLimit.PerOwnerBurst, err = ParseInt("SOUNDLOOM_CREATE_BURST", cfg.RateLimit.PerOwnerBurst); err != nil {
		return err
	}
	if raw := os.Getenv("SOUNDLOOM_CREATE_RATE"); raw != "" {
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return fmt.Errorf("SOUNDLOOM_CREATE_RATE: %w", perr)
		}
		cfg.RateLimit.PerOwnerRate = v
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Engine.BaseURL); err != nil {
		return fmt.Errorf("engine.baseUrl: %w", err)
	}
	if cfg.Streaming.HeartbeatInterval <= 0 {
		return fmt.Errorf("streaming.heartbeatInterval must be positive")
	}
	if cfg.Streaming.RetryHint <= 0 {
		return fmt.Errorf("streaming.retryHint must be positive")
	}
	if cfg.Registry.OwnerLimit < 1 {
		return fmt.Errorf("registry.ownerLimit must be at least 1")
	}
	if cfg.Registry.RequestTTL <= 0 {
		return fmt.Errorf("registry.requestTtl must be positive")
	}
	if cfg.Registry.SweepInterval <= 0 {
		return fmt.Errorf("registry.sweepInterval must be positive")
	}
	if cfg.RateLimit.PerOwnerRate <= 0 {
		return fmt.Errorf("rateLimit.perOwnerRate must be positive")
	}
	if cfg.RateLimit.PerOwnerBurst < 1 {
		return fmt.Errorf("rateLimit.perOwnerBurst must be at least 1")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// ParseString returns the env value for key, or fallback when unset.
func ParseString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ParseInt returns the env value for key parsed as int, or fallback.
func ParseInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// ParseDuration returns the env value for key parsed as duration, or fallback.
func ParseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
