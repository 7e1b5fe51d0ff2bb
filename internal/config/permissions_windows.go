// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

//go:build windows

package config

// WarnInsecurePermissions is a no-op on Windows, where POSIX permission
// bits do not apply.
func WarnInsecurePermissions(path string) {}
