// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/config"
)

func TestInitCommand_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaydesk.yaml")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"init", "--path", path})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The written template must round-trip through the loader.
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestInitCommand_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaydesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \"127.0.0.1:9999\"\n"), 0o600))

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"init", "--path", path})

	err := root.Execute()
	assert.Error(t, err)

	// Existing content untouched.
	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(raw), "9999")
}

func TestInitCommand_ForceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaydesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale: true\n"), 0o600))

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"init", "--path", path, "--force"})

	err := root.Execute()
	require.NoError(t, err)

	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.NotContains(t, string(raw), "stale")
}

func TestInitCommand_Print(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"init", "--print"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "listen")
}

func TestValidateTemplate(t *testing.T) {
	require.NoError(t, validateTemplate(config.DefaultConfigYAML))
	assert.Error(t, validateTemplate([]byte("server: [unclosed")))
}
