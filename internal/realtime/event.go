// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package realtime carries lifecycle events from committed mutations to
// connected clients: topic naming, the outbox broadcaster, the websocket
// hub, and the client-side connection tracker.
package realtime

import "time"

// EventType names a lifecycle event.
type EventType string

const (
	EventChannelCreated  EventType = "channel_created"
	EventNewChannel      EventType = "new_channel"
	EventMemberAdded     EventType = "member_added"
	EventMemberUpdated   EventType = "member_updated"
	EventMemberRemoved   EventType = "member_removed"
	EventMemberLeft      EventType = "member_left"
	EventChannelRemoved  EventType = "channel_removed"
	EventSettingsUpdated EventType = "channel_settings_updated"
	EventChannelArchived EventType = "channel_archived"
	EventMessagePosted   EventType = "message_posted"
)

// Event is the payload published to a topic. The field names are the
// cross-component contract: the notification dispatcher builds durable
// notifications from them without querying the core.
type Event struct {
	Type       EventType      `json:"eventType"`
	ChannelID  string         `json:"channelId"`
	MemberIDs  []string       `json:"memberIds,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// ChannelTopic is the broadcast address for everyone in a channel.
func ChannelTopic(channelID string) string {
	return "channel:" + channelID
}

// UserTopic is a member's personal channel-list address.
func UserTopic(memberID string) string {
	return "user:" + memberID + ":channels"
}
