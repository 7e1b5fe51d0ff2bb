// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package client holds the subscriber-side building blocks an embedding
// application uses to mirror server state: a locally cached channel list
// kept current by applying the events arriving on the user topic.
package client

import (
	"context"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/cache"
	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// Fetcher loads channel state from the API on cache misses. The embedding
// application supplies it on top of whatever HTTP client it already has.
type Fetcher interface {
	ListChannels(ctx context.Context) ([]store.Channel, error)
	GetChannel(ctx context.Context, channelID string) (*store.Channel, error)
}

// ChannelList is a read-through view over the single-slot channel cache.
// Reads hit the cache first; events invalidate or patch it in place so
// the sidebar stays current without refetching the whole list.
type ChannelList struct {
	cache   *cache.Caches
	fetcher Fetcher
	log     *slog.Logger
}

// NewChannelList creates the view. Both the cache layer and the fetcher
// are required.
func NewChannelList(caches *cache.Caches, fetcher Fetcher, log *slog.Logger) (*ChannelList, error) {
	if caches == nil {
		return nil, rderr.New(rderr.CodeClientInvalidInput, "cache layer is required")
	}
	if fetcher == nil {
		return nil, rderr.New(rderr.CodeClientInvalidInput, "fetcher is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChannelList{cache: caches, fetcher: fetcher, log: log}, nil
}

// Channels returns the cached channel list, fetching and priming the
// cache on a miss or after expiry.
func (v *ChannelList) Channels(ctx context.Context) ([]store.Channel, error) {
	if list, ok := v.cache.Channels.Get(); ok {
		return list, nil
	}

	list, err := v.fetcher.ListChannels(ctx)
	if err != nil {
		return nil, rderr.Wrap(err, rderr.CodeClientFetchFailure, "fetching channel list")
	}
	v.cache.Channels.Set(list)
	return list, nil
}

// Apply folds one received event into the cached list. Unknown event
// types are ignored; fetch failures fall back to invalidating the slot
// so the next read reloads.
func (v *ChannelList) Apply(ctx context.Context, evt realtime.Event) {
	switch evt.Type {
	case realtime.EventChannelCreated, realtime.EventNewChannel:
		v.refresh(ctx, evt.ChannelID, true)

	case realtime.EventChannelRemoved, realtime.EventChannelArchived:
		v.cache.Channels.RemoveChannel(evt.ChannelID)

	case realtime.EventSettingsUpdated, realtime.EventMemberAdded,
		realtime.EventMemberRemoved, realtime.EventMemberLeft:
		v.refresh(ctx, evt.ChannelID, false)

	case realtime.EventMessagePosted:
		at := evt.OccurredAt
		v.cache.Channels.UpdateChannelFields(evt.ChannelID, store.ChannelUpdate{
			LastActivityAt: &at,
		})
	}
}

// Run applies events from the subscriber until ctx is cancelled. Callers
// that need the raw events too should fan them out before Run.
func (v *ChannelList) Run(ctx context.Context, sub *realtime.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			v.Apply(ctx, evt)
		}
	}
}

// refresh reloads one channel and patches it into the cached list. added
// distinguishes a channel the actor just gained from an in-place change.
func (v *ChannelList) refresh(ctx context.Context, channelID string, added bool) {
	ch, err := v.fetcher.GetChannel(ctx, channelID)
	if err != nil {
		v.log.Debug("refresh failed, invalidating channel list", "channel_id", channelID, "error", err)
		v.cache.Channels.Invalidate()
		return
	}

	if added {
		v.cache.Channels.AddChannel(*ch)
		return
	}
	v.cache.Channels.UpdateChannelFields(channelID, store.ChannelUpdate{
		Name:           &ch.Name,
		AvatarRef:      &ch.AvatarRef,
		IsPrivate:      &ch.IsPrivate,
		MemberCount:    &ch.MemberCount,
		LastActivityAt: &ch.LastActivityAt,
		Settings:       &ch.Settings,
	})
}
