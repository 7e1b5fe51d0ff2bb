// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package store

import (
	"sync"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string
}

// ChannelStoreFactory creates a channel store rooted at dataPath.
type ChannelStoreFactory func(dataPath string) (ChannelStore, error)

var (
	factories   = map[string]ChannelStoreFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend. Backend
// packages call this from init(). Goroutine-safe.
func RegisterBackend(name string, factory ChannelStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewChannelStore creates the channel store for the configured backend.
func NewChannelStore(cfg *StorageConfig, dataPath string) (ChannelStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, rderr.Errorf(rderr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
