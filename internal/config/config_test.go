// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soundloom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 5, cfg.Registry.OwnerLimit)
	assert.Equal(t, 300*time.Second, cfg.Registry.RequestTTL)
	assert.Equal(t, 60*time.Second, cfg.Registry.SweepInterval)
	assert.Equal(t, 20*time.Second, cfg.Streaming.HeartbeatInterval)
	assert.Equal(t, 3*time.Second, cfg.Streaming.RetryHint)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
logLevel: debug
engine:
  baseUrl: "http://engine.internal:7000"
  timeout: 2m
streaming:
  heartbeatInterval: 5s
registry:
  ownerLimit: 2
  requestTtl: 90s
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://engine.internal:7000", cfg.Engine.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Streaming.HeartbeatInterval)
	assert.Equal(t, 2, cfg.Registry.OwnerLimit)
	assert.Equal(t, 90*time.Second, cfg.Registry.RequestTTL)
	// Untouched fields keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Registry.SweepInterval)
	assert.Equal(t, 3*time.Second, cfg.Streaming.RetryHint)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
registry:
  ownerLimit: 2
`)
	t.Setenv("SOUNDLOOM_OWNER_LIMIT", "7")
	t.Setenv("SOUNDLOOM_HEARTBEAT_INTERVAL", "45s")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Registry.OwnerLimit, "env wins over file")
	assert.Equal(t, 45*time.Second, cfg.Streaming.HeartbeatInterval)
}

func TestLoad_InvalidDurationInFile(t *testing.T) {
	path := writeConfig(t, `
streaming:
  heartbeatInterval: soon
`)
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeatInterval")
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("SOUNDLOOM_OWNER_LIMIT", "many")
	_, err := NewLoader("").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOUNDLOOM_OWNER_LIMIT")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = " " }},
		{"bad engine url", func(c *Config) { c.Engine.BaseURL = "not a url" }},
		{"zero heartbeat", func(c *Config) { c.Streaming.HeartbeatInterval = 0 }},
		{"zero retry hint", func(c *Config) { c.Streaming.RetryHint = 0 }},
		{"zero owner limit", func(c *Config) { c.Registry.OwnerLimit = 0 }},
		{"negative ttl", func(c *Config) { c.Registry.RequestTTL = -time.Second }},
		{"zero sweep interval", func(c *Config) { c.Registry.SweepInterval = 0 }},
		{"zero rate", func(c *Config) { c.RateLimit.PerOwnerRate = 0 }},
		{"zero burst", func(c *Config) { c.RateLimit.PerOwnerBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestHolder_ReloadSwapsAtomically(t *testing.T) {
	path := writeConfig(t, "registry:\n  ownerLimit: 3\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)
	assert.Equal(t, 3, holder.Get().Registry.OwnerLimit)

	require.NoError(t, os.WriteFile(path, []byte("registry:\n  ownerLimit: 8\n"), 0o644))
	require.NoError(t, holder.Reload(context.Background()))
	assert.Equal(t, 8, holder.Get().Registry.OwnerLimit)
}

func TestHolder_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "registry:\n  ownerLimit: 3\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("registry:\n  ownerLimit: -1\n"), 0o644))
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, 3, holder.Get().Registry.OwnerLimit, "invalid reload must not replace the config")
}

func TestHolder_NotifiesListeners(t *testing.T) {
	path := writeConfig(t, "registry:\n  ownerLimit: 3\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)
	updates := make(chan Config, 1)
	holder.RegisterListener(updates)

	require.NoError(t, os.WriteFile(path, []byte("registry:\n  ownerLimit: 4\n"), 0o644))
	require.NoError(t, holder.Reload(context.Background()))

	select {
	case cfg := <-updates:
		assert.Equal(t, 4, cfg.Registry.OwnerLimit)
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "registry:\n  ownerLimit: 3\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, holder.StartWatcher(ctx))
	defer holder.Stop()

	require.NoError(t, os.WriteFile(path, []byte("registry:\n  ownerLimit: 6\n"), 0o644))

	require.Eventually(t, func() bool {
		return holder.Get().Registry.OwnerLimit == 6
	}, 5*time.Second, 50*time.Millisecond, "watcher should pick up the file change")
}
