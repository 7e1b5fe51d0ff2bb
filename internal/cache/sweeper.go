// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSweepInterval is how often the housekeeping pass runs.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically purges expired entries across the cache layer.
// It is started only in long-lived server processes; reads self-evict, so
// skipping it never affects correctness.
type Sweeper struct {
	caches   *Caches
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a sweeper over c. Zero interval selects the default.
func NewSweeper(c *Caches, clk clock.Clock, interval time.Duration, log *slog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{caches: c, clock: clk, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.log.Debug("cache sweep", "removed", removed)
			}
		}
	}
}

// Sweep runs one purge pass and returns how many entries were dropped.
func (s *Sweeper) Sweep() int {
	removed := s.caches.store.PurgeExpired()
	s.caches.Messages.compact()
	return removed
}
