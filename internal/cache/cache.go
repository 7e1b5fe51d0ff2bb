// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package cache implements the in-process TTL cache layer: a generic
// key-value store plus the specialized channel-list, message-window, and
// user-snapshot caches. The cache is always subordinate to the repository;
// a miss is never an error.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry struct {
	data      any
	timestamp time.Time
	expiresAt time.Time
}

// Store is a concurrency-safe TTL key-value store. Expired entries are
// evicted lazily on read; a periodic sweep is housekeeping only.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   clock.Clock
}

// NewStore creates a Store using clk for all expiry decisions. Pass
// clock.New() outside tests.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		entries: make(map[string]entry),
		clock:   clk,
	}
}

// Get returns the value for key, or false if the key is missing or past
// its TTL. A read past expiry deletes the entry.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.clock.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.data, true
}

// Set stores value under key, overwriting unconditionally.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{
		data:      value,
		timestamp: now,
		expiresAt: now.Add(ttl),
	}
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Invalidate deletes every key matching pattern and returns how many were
// removed. A pattern may contain one "*" wildcard; without one it is an
// exact-match delete and no matcher is built.
func (s *Store) Invalidate(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		if _, ok := s.entries[pattern]; ok {
			delete(s.entries, pattern)
			return 1
		}
		return 0
	}

	prefix, suffix := pattern[:star], pattern[star+1:]
	removed := 0
	for key := range s.entries {
		if len(key) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including any not yet lazily evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PurgeExpired removes every expired entry and returns how many were
// dropped. Called by the sweeper; correctness never depends on it.
func (s *Store) PurgeExpired() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// GetAs reads key from s and type-asserts the value to T.
func GetAs[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
