// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package sqlite

import (
	"path/filepath"

	"github.com/relaydesk/relaydesk/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newChannelStore)
}

func newChannelStore(dataPath string) (store.ChannelStore, error) {
	return NewChannelStore(filepath.Join(dataPath, "channels.db"))
}
