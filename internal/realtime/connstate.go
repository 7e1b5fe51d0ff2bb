// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ConnState is the client connection lifecycle state.
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateReconnecting ConnState = "reconnecting"
	StateError        ConnState = "error"
)

// validConnTransitions defines the allowed transitions as an adjacency
// list. Manual reconnects bypass it: a reconnect request enters
// reconnecting from any state.
var validConnTransitions = map[ConnState]map[ConnState]bool{
	StateConnected: {
		StateDisconnected: true,
		StateReconnecting: true,
	},
	StateDisconnected: {
		StateReconnecting: true,
	},
	StateReconnecting: {
		StateConnected:    true,
		StateReconnecting: true,
		StateDisconnected: true,
		StateError:        true,
	},
	StateError: {
		StateReconnecting: true,
	},
}

// ValidConnTransition reports whether moving between the two states is an
// allowed automatic transition.
func ValidConnTransition(from, to ConnState) bool {
	allowed, exists := validConnTransitions[from][to]
	return exists && allowed
}

const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 6
)

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// Dial performs one reconnect handshake. Required.
	Dial func(ctx context.Context) error

	Clock       clock.Clock
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Log         *slog.Logger

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to ConnState, attempt int)
}

// Tracker maintains the connected/disconnected/reconnecting/error state
// machine for one client connection. Transitions happen on a single
// logical timeline; a manual reconnect supersedes any in-flight automatic
// attempt via a generation counter; the stale attempt's outcome is
// ignored.
type Tracker struct {
	dial         func(ctx context.Context) error
	clock        clock.Clock
	baseDelay    time.Duration
	maxDelay     time.Duration
	maxAttempts  int
	log          *slog.Logger
	onTransition func(from, to ConnState, attempt int)

	mu      sync.Mutex
	state   ConnState
	attempt int

	// generation invalidates in-flight reconnect loops.
	generation int
	cancel     context.CancelFunc

	stopped bool
}

// NewTracker creates a tracker in the connected state.
func NewTracker(opts TrackerOptions) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Tracker{
		dial:         opts.Dial,
		clock:        opts.Clock,
		baseDelay:    opts.BaseDelay,
		maxDelay:     opts.MaxDelay,
		maxAttempts:  opts.MaxAttempts,
		log:          opts.Log,
		onTransition: opts.OnTransition,
		state:        StateConnected,
	}
}

// State returns the current connection state.
func (t *Tracker) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Attempt returns the current reconnect attempt counter.
func (t *Tracker) Attempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt
}

// HandleDisconnect records a transport loss and starts the automatic
// reconnect loop. Ignored unless currently connected.
func (t *Tracker) HandleDisconnect() {
	t.mu.Lock()
	if t.stopped || t.state != StateConnected {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateDisconnected)
	gen := t.startReconnectLocked(false)
	t.mu.Unlock()

	go t.reconnectLoop(gen)
}

// Reconnect is a manual reconnect request. It enters reconnecting from
// any state, cancels any in-flight automatic attempt, and resets the
// attempt counter.
func (t *Tracker) Reconnect() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	gen := t.startReconnectLocked(true)
	t.mu.Unlock()

	go t.reconnectLoop(gen)
}

// Stop cancels any in-flight attempt and freezes the tracker.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.generation++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// startReconnectLocked transitions into reconnecting, superseding any
// in-flight loop, and returns the new generation.
func (t *Tracker) startReconnectLocked(manual bool) int {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if manual {
		t.attempt = 0
	}
	t.generation++
	t.setStateLocked(StateReconnecting)
	return t.generation
}

func (t *Tracker) setStateLocked(to ConnState) {
	from := t.state
	if from == to {
		return
	}
	t.state = to
	if t.onTransition != nil {
		t.onTransition(from, to, t.attempt)
	}
}

func (t *Tracker) reconnectLoop(gen int) {
	for {
		t.mu.Lock()
		if t.stopped || t.generation != gen || t.state != StateReconnecting {
			t.mu.Unlock()
			return
		}
		t.attempt++
		attempt := t.attempt

		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.mu.Unlock()

		delay := t.backoff(attempt)
		if !t.sleep(ctx, delay) {
			cancel()
			return
		}

		err := t.dial(ctx)
		cancel()

		t.mu.Lock()
		if t.stopped || t.generation != gen {
			// A newer request superseded this attempt; discard its result.
			t.mu.Unlock()
			return
		}
		t.cancel = nil

		if err == nil {
			t.attempt = 0
			t.setStateLocked(StateConnected)
			t.mu.Unlock()
			return
		}

		t.log.Debug("reconnect attempt failed", "attempt", attempt, "error", err)

		if attempt >= t.maxAttempts {
			t.setStateLocked(StateError)
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
	}
}

// backoff returns the wait before the given attempt: base doubled per
// attempt, capped at max. The first attempt goes out immediately.
func (t *Tracker) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := t.baseDelay << (attempt - 2)
	if delay > t.maxDelay || delay <= 0 {
		delay = t.maxDelay
	}
	return delay
}

// sleep waits for d or until ctx is cancelled; returns false on cancel.
func (t *Tracker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := t.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
