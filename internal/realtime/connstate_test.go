// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/realtime"
)

// transitionRecorder captures every state change the tracker makes.
type transitionRecorder struct {
	mu    sync.Mutex
	moves []string
}

func (r *transitionRecorder) record(from, to realtime.ConnState, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves = append(r.moves, string(from)+">"+string(to))
}

func (r *transitionRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.moves))
	copy(out, r.moves)
	return out
}

// scriptedDial returns the next queued result, or blocks until one is
// queued or the attempt is cancelled.
func scriptedDial(results chan error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case err := <-results:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func newTestTracker(results chan error, rec *transitionRecorder) *realtime.Tracker {
	return realtime.NewTracker(realtime.TrackerOptions{
		Dial:         scriptedDial(results),
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  3,
		OnTransition: rec.record,
	})
}

func TestTrackerStartsConnected(t *testing.T) {
	tr := newTestTracker(make(chan error), &transitionRecorder{})
	defer tr.Stop()

	assert.Equal(t, realtime.StateConnected, tr.State())
	assert.Equal(t, 0, tr.Attempt())
}

func TestTransportLossThenAutomaticRecovery(t *testing.T) {
	results := make(chan error, 1)
	rec := &transitionRecorder{}
	tr := newTestTracker(results, rec)
	defer tr.Stop()

	tr.HandleDisconnect()
	results <- nil

	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateConnected
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, tr.Attempt())
	moves := rec.all()
	require.GreaterOrEqual(t, len(moves), 3)
	assert.Equal(t, "connected>disconnected", moves[0])
	assert.Equal(t, "disconnected>reconnecting", moves[1])
	assert.Equal(t, "reconnecting>connected", moves[2])
}

func TestRetriesExhaustedEntersError(t *testing.T) {
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		results <- errors.New("refused")
	}
	tr := newTestTracker(results, &transitionRecorder{})
	defer tr.Stop()

	tr.HandleDisconnect()

	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateError
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, tr.Attempt())
}

func TestManualReconnectFromErrorResetsAttempts(t *testing.T) {
	results := make(chan error, 4)
	for i := 0; i < 3; i++ {
		results <- errors.New("refused")
	}
	tr := newTestTracker(results, &transitionRecorder{})
	defer tr.Stop()

	tr.HandleDisconnect()
	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateError
	}, time.Second, time.Millisecond)

	tr.Reconnect()
	results <- nil

	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateConnected
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, tr.Attempt())
}

func TestManualReconnectSupersedesInFlightAttempt(t *testing.T) {
	// No results queued: the automatic attempt blocks in dial until its
	// context is cancelled by the manual request.
	results := make(chan error, 2)
	rec := &transitionRecorder{}
	tr := newTestTracker(results, rec)
	defer tr.Stop()

	tr.HandleDisconnect()
	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateReconnecting
	}, time.Second, time.Millisecond)

	tr.Reconnect()

	// Two successes queued: even if the superseded attempt consumes one
	// on its way out, the manual attempt still gets a success.
	results <- nil
	results <- nil

	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateConnected
	}, time.Second, time.Millisecond)

	// The cancelled automatic attempt must not have produced an error
	// state behind the manual one.
	assert.Equal(t, realtime.StateConnected, tr.State())
	assert.Equal(t, 0, tr.Attempt())
	assert.NotContains(t, rec.all(), "reconnecting>error")
}

func TestDisconnectIgnoredUnlessConnected(t *testing.T) {
	results := make(chan error)
	tr := newTestTracker(results, &transitionRecorder{})
	defer tr.Stop()

	tr.HandleDisconnect()
	require.Eventually(t, func() bool {
		return tr.State() == realtime.StateReconnecting
	}, time.Second, time.Millisecond)

	// A second loss report while already reconnecting changes nothing.
	tr.HandleDisconnect()
	assert.Equal(t, realtime.StateReconnecting, tr.State())
}

func TestValidConnTransitions(t *testing.T) {
	tests := []struct {
		from, to realtime.ConnState
		ok       bool
	}{
		{realtime.StateConnected, realtime.StateDisconnected, true},
		{realtime.StateConnected, realtime.StateReconnecting, true},
		{realtime.StateConnected, realtime.StateError, false},
		{realtime.StateDisconnected, realtime.StateReconnecting, true},
		{realtime.StateDisconnected, realtime.StateConnected, false},
		{realtime.StateReconnecting, realtime.StateConnected, true},
		{realtime.StateReconnecting, realtime.StateError, true},
		{realtime.StateError, realtime.StateReconnecting, true},
		{realtime.StateError, realtime.StateConnected, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, realtime.ValidConnTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}
