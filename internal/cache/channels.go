// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relaydesk/relaydesk/internal/directory"
	"github.com/relaydesk/relaydesk/internal/store"
)

const (
	channelListKey = "channels"

	messageKeyPrefix = "messages:"
	userKeyPrefix    = "user:"

	// DefaultChannelListTTL keeps the sidebar fresh without a repository
	// round-trip on every render.
	DefaultChannelListTTL = 2 * time.Minute
	DefaultMessageTTL     = 1 * time.Minute
	DefaultUserTTL        = 5 * time.Minute

	// DefaultMaxMessageChannels bounds how many channels keep a cached
	// message window at once.
	DefaultMaxMessageChannels = 10
)

// Options tunes the specialized caches. Zero values select the defaults.
type Options struct {
	ChannelListTTL     time.Duration
	MessageTTL         time.Duration
	UserTTL            time.Duration
	MaxMessageChannels int
}

func (o Options) withDefaults() Options {
	if o.ChannelListTTL <= 0 {
		o.ChannelListTTL = DefaultChannelListTTL
	}
	if o.MessageTTL <= 0 {
		o.MessageTTL = DefaultMessageTTL
	}
	if o.UserTTL <= 0 {
		o.UserTTL = DefaultUserTTL
	}
	if o.MaxMessageChannels <= 0 {
		o.MaxMessageChannels = DefaultMaxMessageChannels
	}
	return o
}

// Caches bundles the generic store with the three specialized views. One
// instance is constructed at process start and injected wherever caching
// is needed; there is no package-level singleton.
type Caches struct {
	store    *Store
	Channels *ChannelCache
	Messages *MessageCache
	Users    *UserCache
}

// New creates the cache layer on a shared backing store.
func New(clk clock.Clock, opts Options) *Caches {
	opts = opts.withDefaults()
	s := NewStore(clk)

	messages := &MessageCache{
		store: s,
		ttl:   opts.MessageTTL,
		max:   opts.MaxMessageChannels,
	}
	channels := &ChannelCache{
		store:    s,
		ttl:      opts.ChannelListTTL,
		messages: messages,
	}
	users := &UserCache{store: s, ttl: opts.UserTTL}

	return &Caches{
		store:    s,
		Channels: channels,
		Messages: messages,
		Users:    users,
	}
}

// Store exposes the backing store for pattern invalidation and sweeping.
func (c *Caches) Store() *Store {
	return c.store
}

// --- channel-list cache ---

// ChannelCache is the single-slot cache of the member-visible channel
// list. Values are copied on both read and write so cached entries never
// alias caller-owned slices.
type ChannelCache struct {
	store    *Store
	ttl      time.Duration
	messages *MessageCache
}

// Get returns a copy of the cached list, or false on miss/expiry.
func (c *ChannelCache) Get() ([]store.Channel, bool) {
	list, ok := GetAs[[]store.Channel](c.store, channelListKey)
	if !ok {
		return nil, false
	}
	return copyChannels(list), true
}

// Set replaces the cached list.
func (c *ChannelCache) Set(list []store.Channel) {
	c.store.Set(channelListKey, copyChannels(list), c.ttl)
}

// AddChannel prepends ch to the cached list. An empty slot is initialized
// to a one-element list so a real-time addition is not lost before the
// first full fetch.
func (c *ChannelCache) AddChannel(ch store.Channel) {
	list, ok := GetAs[[]store.Channel](c.store, channelListKey)
	if !ok {
		c.store.Set(channelListKey, []store.Channel{ch}, c.ttl)
		return
	}

	next := make([]store.Channel, 0, len(list)+1)
	next = append(next, ch)
	for _, existing := range list {
		if existing.ID != ch.ID {
			next = append(next, existing)
		}
	}
	c.store.Set(channelListKey, next, c.ttl)
}

// UpdateChannelFields applies upd to the cached entry for channelID, if
// the list is cached and contains it.
func (c *ChannelCache) UpdateChannelFields(channelID string, upd store.ChannelUpdate) {
	list, ok := GetAs[[]store.Channel](c.store, channelListKey)
	if !ok {
		return
	}

	next := copyChannels(list)
	for i := range next {
		if next[i].ID == channelID {
			applyUpdate(&next[i], upd)
			break
		}
	}
	c.store.Set(channelListKey, next, c.ttl)
}

// RemoveChannel drops channelID from the cached list and cascades to the
// channel's message window.
func (c *ChannelCache) RemoveChannel(channelID string) {
	c.messages.Remove(channelID)

	list, ok := GetAs[[]store.Channel](c.store, channelListKey)
	if !ok {
		return
	}

	next := make([]store.Channel, 0, len(list))
	for _, ch := range list {
		if ch.ID != channelID {
			next = append(next, ch)
		}
	}
	c.store.Set(channelListKey, next, c.ttl)
}

// Invalidate drops the cached list entirely.
func (c *ChannelCache) Invalidate() {
	c.store.Delete(channelListKey)
}

func applyUpdate(ch *store.Channel, upd store.ChannelUpdate) {
	if upd.Name != nil {
		ch.Name = *upd.Name
	}
	if upd.AvatarRef != nil {
		ch.AvatarRef = *upd.AvatarRef
	}
	if upd.IsPrivate != nil {
		ch.IsPrivate = *upd.IsPrivate
	}
	if upd.MemberCount != nil {
		ch.MemberCount = *upd.MemberCount
	}
	if upd.LastActivityAt != nil {
		ch.LastActivityAt = *upd.LastActivityAt
	}
	if upd.IsArchived != nil {
		ch.IsArchived = *upd.IsArchived
	}
	if upd.ArchivedAt != nil {
		ch.ArchivedAt = *upd.ArchivedAt
	}
	if upd.ArchivedBy != nil {
		ch.ArchivedBy = *upd.ArchivedBy
	}
	if upd.Settings != nil {
		ch.Settings = *upd.Settings
	}
}

func copyChannels(list []store.Channel) []store.Channel {
	out := make([]store.Channel, len(list))
	copy(out, list)
	return out
}

// --- per-channel message window cache ---

// MessageCache holds the recent message window per channel, bounded to the
// max most recently inserted channels. Eviction is FIFO on insertion
// order, not LRU, to stay O(1) and predictable.
type MessageCache struct {
	store *Store
	ttl   time.Duration
	max   int

	// order tracks channel ids by first insertion.
	orderMu sync.Mutex
	order   []string
}

// Get returns a copy of the cached window for channelID.
func (c *MessageCache) Get(channelID string) ([]store.Message, bool) {
	msgs, ok := GetAs[[]store.Message](c.store, messageKey(channelID))
	if !ok {
		return nil, false
	}
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out, true
}

// Set stores the window for channelID, evicting the oldest-inserted
// channel when the bound is exceeded.
func (c *MessageCache) Set(channelID string, msgs []store.Message) {
	stored := make([]store.Message, len(msgs))
	copy(stored, msgs)

	c.orderMu.Lock()
	known := false
	for _, id := range c.order {
		if id == channelID {
			known = true
			break
		}
	}
	if !known {
		c.order = append(c.order, channelID)
		if len(c.order) > c.max {
			evicted := c.order[0]
			c.order = c.order[1:]
			c.store.Delete(messageKey(evicted))
		}
	}
	c.orderMu.Unlock()

	c.store.Set(messageKey(channelID), stored, c.ttl)
}

// Append adds msg to an existing cached window. A miss is ignored; the
// next read repopulates from the repository.
func (c *MessageCache) Append(channelID string, msg store.Message) {
	msgs, ok := GetAs[[]store.Message](c.store, messageKey(channelID))
	if !ok {
		return
	}
	next := make([]store.Message, 0, len(msgs)+1)
	next = append(next, msgs...)
	next = append(next, msg)
	c.store.Set(messageKey(channelID), next, c.ttl)
}

// Remove drops the cached window for channelID.
func (c *MessageCache) Remove(channelID string) {
	c.orderMu.Lock()
	for i, id := range c.order {
		if id == channelID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.orderMu.Unlock()

	c.store.Delete(messageKey(channelID))
}

// Cached returns how many channels currently have a cached window.
func (c *MessageCache) Cached() int {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	n := 0
	for _, id := range c.order {
		if _, ok := c.store.Get(messageKey(id)); ok {
			n++
		}
	}
	return n
}

// compact drops bookkeeping for windows the sweep already removed.
func (c *MessageCache) compact() {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	kept := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.store.Get(messageKey(id)); ok {
			kept = append(kept, id)
		}
	}
	c.order = kept
}

func messageKey(channelID string) string {
	return messageKeyPrefix + channelID
}

// --- user snapshot cache ---

// UserCache holds per-member profile snapshots.
type UserCache struct {
	store *Store
	ttl   time.Duration
}

// Get returns a copy of the cached profile for memberID.
func (c *UserCache) Get(memberID string) (*directory.Profile, bool) {
	p, ok := GetAs[directory.Profile](c.store, userKeyPrefix+memberID)
	if !ok {
		return nil, false
	}
	out := p
	return &out, true
}

// Set stores a snapshot of p.
func (c *UserCache) Set(p directory.Profile) {
	c.store.Set(userKeyPrefix+p.MemberID, p, c.ttl)
}

// Invalidate drops the snapshot for memberID.
func (c *UserCache) Invalidate(memberID string) {
	c.store.Delete(userKeyPrefix + memberID)
}
