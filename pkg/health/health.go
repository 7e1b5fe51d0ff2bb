// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package health

import "time"

// Snapshot exposes the current health state of the server for monitoring
// and operator visibility. All fields are point-in-time values safe to
// serialize to JSON.
type Snapshot struct {
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Connections   int       `json:"connections"`
}

// Now builds a Snapshot relative to the given start time.
func Now(version string, startedAt time.Time, connections int) Snapshot {
	return Snapshot{
		Status:        "ok",
		Version:       version,
		StartedAt:     startedAt,
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		Connections:   connections,
	}
}
