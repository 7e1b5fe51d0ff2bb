// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package chat

import (
	"context"

	"github.com/relaydesk/relaydesk/internal/cache"
	"github.com/relaydesk/relaydesk/internal/directory"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// ChannelView is the read projection of a channel for one actor.
type ChannelView struct {
	Channel store.Channel

	// CurrentUserRole is empty when the actor is not a member.
	CurrentUserRole store.Role
	IsAdmin         bool
	IsOwner         bool
}

// MemberView is a membership enriched with directory profile fields and
// the ephemeral presence flag.
type MemberView struct {
	store.Membership

	Name   string
	Email  string
	Avatar string
	Online bool
}

// GetChannel returns the channel with the actor's computed role triple.
// Archived channels stay readable.
func (m *Manager) GetChannel(ctx context.Context, channelID, actorID string) (*ChannelView, error) {
	ctx, cancel := m.readCtx(ctx)
	defer cancel()

	ch, err := m.store.GetChannel(ctx, channelID)
	if err != nil {
		if rderr.IsNotFound(err) {
			return nil, rderr.Wrap(err, rderr.CodeChatChannelNotFound, "channel not found",
				rderr.FieldChannelID(channelID))
		}
		return nil, mapTimeout(err)
	}

	view := &ChannelView{Channel: *ch}
	mem, err := m.store.FindMembership(ctx, channelID, actorID)
	switch {
	case err == nil:
		view.CurrentUserRole = mem.Role
		view.IsAdmin = mem.Role.Privileged()
		view.IsOwner = mem.Role == store.RoleOwner
	case rderr.IsNotFound(err):
		if ch.IsPrivate {
			return nil, rderr.New(rderr.CodeChatChannelNotFound, "channel not found",
				rderr.FieldChannelID(channelID))
		}
	default:
		return nil, mapTimeout(err)
	}
	return view, nil
}

// ListChannels returns the actor's channels newest-activity first, served
// from the per-member list cache when fresh.
func (m *Manager) ListChannels(ctx context.Context, actorID string) ([]store.Channel, error) {
	if cached, ok := cache.GetAs[[]store.Channel](m.caches.Store(), listKey(actorID)); ok {
		out := make([]store.Channel, len(cached))
		copy(out, cached)
		return out, nil
	}

	ctx, cancel := m.readCtx(ctx)
	defer cancel()

	channels, err := m.store.ListChannelsForMember(ctx, actorID)
	if err != nil {
		return nil, mapTimeout(err)
	}

	list := make([]store.Channel, len(channels))
	for i, ch := range channels {
		list[i] = *ch
	}
	m.caches.Store().Set(listKey(actorID), list, cache.DefaultChannelListTTL)

	out := make([]store.Channel, len(list))
	copy(out, list)
	return out, nil
}

// ListMembers returns the channel's memberships in join order, enriched
// with directory profiles and presence. The actor must be a member.
func (m *Manager) ListMembers(ctx context.Context, channelID, actorID string) ([]MemberView, error) {
	ctx, cancel := m.readCtx(ctx)
	defer cancel()

	if _, err := m.store.GetChannel(ctx, channelID); err != nil {
		if rderr.IsNotFound(err) {
			return nil, rderr.Wrap(err, rderr.CodeChatChannelNotFound, "channel not found",
				rderr.FieldChannelID(channelID))
		}
		return nil, mapTimeout(err)
	}
	if _, err := actorMembership(ctx, m.store, channelID, actorID, false); err != nil {
		return nil, mapTimeout(err)
	}

	members, err := m.store.ListMembers(ctx, channelID)
	if err != nil {
		return nil, mapTimeout(err)
	}

	views := make([]MemberView, 0, len(members))
	for _, mem := range members {
		view := MemberView{Membership: *mem}
		if profile := m.lookupProfile(ctx, mem.MemberID); profile != nil {
			view.Name = profile.Name
			view.Email = profile.Email
			view.Avatar = profile.Avatar
		}
		if m.presence != nil {
			view.Online = m.presence.Online(mem.MemberID)
		}
		views = append(views, view)
	}
	return views, nil
}

// lookupProfile reads through the user cache. Enrichment is best-effort:
// a directory failure yields a bare membership, not an error.
func (m *Manager) lookupProfile(ctx context.Context, memberID string) *directory.Profile {
	if p, ok := m.caches.Users.Get(memberID); ok {
		return p
	}
	p, err := m.dir.GetProfile(ctx, memberID)
	if err != nil {
		if !rderr.IsNotFound(err) {
			m.log.Warn("directory lookup failed", "member_id", memberID, "error", err)
		}
		return nil
	}
	m.caches.Users.Set(*p)
	return p
}
