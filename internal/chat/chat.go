// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package chat implements the channel and membership lifecycle: creation,
// role transitions, the leave/archive algorithm, permission-gated
// membership changes, and message posting. Every mutation runs inside a
// single repository transaction serialized per channel; cache updates and
// event publishes happen only after commit and are best-effort.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relaydesk/relaydesk/internal/cache"
	"github.com/relaydesk/relaydesk/internal/directory"
	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// DefaultRepoTimeout bounds every repository transaction. A dependency
// that stays silent past it fails the mutation with a timeout error.
const DefaultRepoTimeout = 5 * time.Second

// DefaultMessageWindow is how many recent messages a read fetches when the
// caller does not say.
const DefaultMessageWindow = 50

// Publisher is the event fan-out the manager hands committed mutations to.
// Satisfied by *realtime.Broadcaster.
type Publisher interface {
	Publish(topic string, event realtime.Event)
}

// Presence reports whether a member has a live connection right now. The
// flag is ephemeral and never authoritative. Satisfied by *realtime.Hub.
type Presence interface {
	Online(memberID string) bool
}

// Options wires a Manager. Store, Directory, Caches, and Events are
// required.
type Options struct {
	Store     store.ChannelStore
	Directory directory.Directory
	Caches    *cache.Caches
	Events    Publisher
	Presence  Presence

	Clock       clock.Clock
	Log         *slog.Logger
	RepoTimeout time.Duration
}

// Manager enforces the channel and membership rules.
type Manager struct {
	store    store.ChannelStore
	dir      directory.Directory
	caches   *cache.Caches
	events   Publisher
	presence Presence

	clock       clock.Clock
	log         *slog.Logger
	repoTimeout time.Duration

	locks channelLocks
}

// NewManager validates opts and returns a ready Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, rderr.New(rderr.CodeStoreInvalidInput, "chat manager requires a channel store")
	}
	if opts.Directory == nil {
		return nil, rderr.New(rderr.CodeStoreInvalidInput, "chat manager requires a directory")
	}
	if opts.Caches == nil {
		return nil, rderr.New(rderr.CodeStoreInvalidInput, "chat manager requires caches")
	}
	if opts.Events == nil {
		return nil, rderr.New(rderr.CodeStoreInvalidInput, "chat manager requires an event publisher")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.RepoTimeout <= 0 {
		opts.RepoTimeout = DefaultRepoTimeout
	}
	return &Manager{
		store:       opts.Store,
		dir:         opts.Directory,
		caches:      opts.Caches,
		events:      opts.Events,
		presence:    opts.Presence,
		clock:       opts.Clock,
		log:         opts.Log,
		repoTimeout: opts.RepoTimeout,
		locks:       newChannelLocks(),
	}, nil
}

// mutate serializes a mutation per channel id and runs fn inside one
// repository transaction bounded by the repo timeout. Two concurrent
// leaves on the same channel must not both observe "not last member".
func (m *Manager) mutate(ctx context.Context, channelID string, fn func(ctx context.Context, tx store.ChannelTx) error) error {
	unlock := m.locks.lock(channelID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, m.repoTimeout)
	defer cancel()

	err := m.store.WithTx(ctx, func(tx store.ChannelTx) error {
		return fn(ctx, tx)
	})
	return mapTimeout(err)
}

// readCtx bounds a read-only repository call.
func (m *Manager) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.repoTimeout)
}

// mapTimeout converts a deadline overrun anywhere in a repository call
// chain into the caller-facing timeout error; everything else passes
// through untouched.
func mapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return rderr.Wrap(err, rderr.CodeChatRepositoryTimeout, "channel repository did not respond in time")
	}
	return err
}

// activeChannel loads a channel and rejects archived ones. Archived is
// terminal for mutations; reads go through tx.GetChannel directly.
func activeChannel(ctx context.Context, tx store.ChannelTx, channelID string) (*store.Channel, error) {
	ch, err := tx.GetChannel(ctx, channelID)
	if err != nil {
		if rderr.IsNotFound(err) {
			return nil, rderr.Wrap(err, rderr.CodeChatChannelNotFound, "channel not found",
				rderr.FieldChannelID(channelID))
		}
		return nil, err
	}
	if ch.IsArchived {
		return nil, rderr.New(rderr.CodeChatChannelArchived, "channel is archived",
			rderr.FieldChannelID(channelID))
	}
	return ch, nil
}

// actorMembership loads the acting member's row, optionally requiring an
// admin or owner role.
func actorMembership(ctx context.Context, tx store.ChannelTx, channelID, actorID string, privileged bool) (*store.Membership, error) {
	mem, err := tx.FindMembership(ctx, channelID, actorID)
	if err != nil {
		if rderr.IsNotFound(err) {
			return nil, rderr.Wrap(err, rderr.CodeChatMembershipNotFound, "actor is not a channel member",
				rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
		}
		return nil, err
	}
	if privileged && !mem.Role.Privileged() {
		return nil, rderr.New(rderr.CodeChatRoleForbidden, "operation requires an admin or owner role",
			rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
	}
	return mem, nil
}

// publish stamps and enqueues an event. Never blocks, never fails the
// mutation that produced it.
func (m *Manager) publish(topic string, ev realtime.Event) {
	ev.OccurredAt = m.clock.Now().UTC()
	m.events.Publish(topic, ev)
}

// listKey is the per-member channel-list cache key. Membership mutations
// delete the affected members' entries; the exact-match fast path of
// Invalidate covers single keys.
func listKey(memberID string) string {
	return "channels:" + memberID
}

// invalidateLists drops the cached channel lists of the given members.
func (m *Manager) invalidateLists(memberIDs ...string) {
	for _, id := range memberIDs {
		m.caches.Store().Delete(listKey(id))
	}
}

// invalidateAllLists drops every cached channel list. Used when the set of
// affected members is the whole channel.
func (m *Manager) invalidateAllLists() {
	m.caches.Store().Invalidate("channels:*")
}
