// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/config"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Directory.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ChannelListTTL)
	assert.Equal(t, 10, cfg.Cache.MaxMessageChannels)
	assert.Equal(t, 6, cfg.Realtime.ReconnectAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "relaydesk.yaml")

	content := `
server:
  listen: "0.0.0.0:9999"
directory:
  backend: mongo
  uri: "mongodb://db.internal:27017"
cache:
  message_ttl: 45s
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, "mongo", cfg.Directory.Backend)
	assert.Equal(t, "mongodb://db.internal:27017", cfg.Directory.URI)
	assert.Equal(t, 45*time.Second, cfg.Cache.MessageTTL)
	// Untouched sections keep their defaults.
	assert.Equal(t, "relaydesk", cfg.Directory.Database)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RELAYDESK_SERVER_LISTEN", "10.0.0.1:8080")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "relaydesk.yaml")

	content := `
storage:
  backend: "oracle"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestValidate_MongoRequiresURI(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Directory.Backend = "mongo"
	cfg.Directory.URI = ""
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "directory.uri")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Server.Listen = "no-port"
	cfg.Logging.Level = "loud"
	cfg.Cache.MaxMessageChannels = 0

	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 3)
}

func TestValidate_ReconnectDelays(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Realtime.ReconnectBaseDelay = time.Minute
	cfg.Realtime.ReconnectMaxDelay = time.Second
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "reconnect_max_delay")
}

func TestBootstrapDefaultConfigParses(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "relaydesk.yaml")
	require.NoError(t, os.WriteFile(cfgPath, config.DefaultConfigYAML, 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
}
