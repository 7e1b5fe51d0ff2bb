// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package chat_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/cache"
	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/directory"
	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/store/sqlite"
)

// recorder is a synchronous Publisher standing in for the broadcaster so
// tests can assert on events without draining an async queue.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	topic string
	event realtime.Event
}

func (r *recorder) Publish(topic string, event realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: topic, event: event})
}

func (r *recorder) ofType(t realtime.EventType) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakePresence map[string]bool

func (f fakePresence) Online(memberID string) bool { return f[memberID] }

type fixture struct {
	mgr      *chat.Manager
	store    store.ChannelStore
	dir      *directory.Memory
	caches   *cache.Caches
	events   *recorder
	clk      *clock.Mock
	presence fakePresence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewChannelStore(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{
		store:    st,
		dir:      directory.NewMemory(),
		caches:   cache.New(clk, cache.Options{}),
		events:   &recorder{},
		clk:      clk,
		presence: fakePresence{},
	}
	f.mgr, err = chat.NewManager(chat.Options{
		Store:     f.store,
		Directory: f.dir,
		Caches:    f.caches,
		Events:    f.events,
		Presence:  f.presence,
		Clock:     clk,
	})
	require.NoError(t, err)
	return f
}

// newGroup creates a group channel owned by owner with the given extra
// members, advancing the clock between joins so join order is unambiguous.
func (f *fixture) newGroup(t *testing.T, owner string, members ...string) *store.Channel {
	t.Helper()
	ch, err := f.mgr.CreateChannel(context.Background(), owner, chat.CreateChannelParams{
		Kind: store.KindGroup,
		Name: "general",
	})
	require.NoError(t, err)
	for _, id := range members {
		f.clk.Add(time.Minute)
		_, err := f.mgr.AddMember(context.Background(), ch.ID, owner, id, "")
		require.NoError(t, err)
	}
	f.events.reset()
	got, err := f.store.GetChannel(context.Background(), ch.ID)
	require.NoError(t, err)
	return got
}

// requireCountConsistent asserts the denormalized member count equals the
// live membership rows.
func (f *fixture) requireCountConsistent(t *testing.T, channelID string) {
	t.Helper()
	ch, err := f.store.GetChannel(context.Background(), channelID)
	require.NoError(t, err)
	rows, err := f.store.CountMembers(context.Background(), channelID)
	require.NoError(t, err)
	require.Equal(t, rows, ch.MemberCount, "member count out of sync with rows")
}

// requirePrivilegedPresent asserts a non-archived channel with members
// still has at least one admin or owner.
func (f *fixture) requirePrivilegedPresent(t *testing.T, channelID string) {
	t.Helper()
	ch, err := f.store.GetChannel(context.Background(), channelID)
	require.NoError(t, err)
	if ch.IsArchived || ch.MemberCount == 0 {
		return
	}
	privileged, err := f.store.CountMembers(context.Background(), channelID, store.RoleOwner, store.RoleAdmin)
	require.NoError(t, err)
	require.Positive(t, privileged, "members remain but no admin or owner")
}
