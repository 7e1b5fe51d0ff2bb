// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file is group- or
// world-readable. The config may carry a document-store URI with embedded
// credentials. Best-effort: startup continues either way.
func WarnInsecurePermissions(path string) {
	if path == "" {
		// Defaults only, no file to check.
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	mode := info.Mode()
	if mode.Perm()&(groupRead|otherRead) != 0 {
		slog.Warn(
			"config file is readable by other users and may expose credentials",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
