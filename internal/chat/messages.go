// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// MaxMessageLength caps a single message body.
const MaxMessageLength = 8192

// PostMessage appends a message to the channel and bumps its activity
// timestamp. The adminOnlyPost setting restricts who may post.
func (m *Manager) PostMessage(ctx context.Context, channelID, actorID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, rderr.New(rderr.CodeChatMessageInvalid, "message content is empty",
			rderr.FieldChannelID(channelID))
	}
	if len(content) > MaxMessageLength {
		return nil, rderr.Errorf(rderr.CodeChatMessageInvalid, "message exceeds %d bytes", MaxMessageLength)
	}

	now := m.clock.Now().UTC()
	msg := &store.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		AuthorID:  actorID,
		Content:   content,
		CreatedAt: now,
	}

	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		ch, err := activeChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		actor, err := actorMembership(ctx, tx, channelID, actorID, false)
		if err != nil {
			return err
		}
		if ch.Settings.AdminOnlyPost && !actor.Role.Privileged() {
			return rderr.New(rderr.CodeChatPostForbidden, "only admins may post in this channel",
				rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
		}

		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		return tx.UpdateChannel(ctx, channelID, store.ChannelUpdate{LastActivityAt: &now})
	})
	if err != nil {
		return nil, err
	}

	m.caches.Messages.Append(channelID, *msg)
	m.caches.Channels.UpdateChannelFields(channelID, store.ChannelUpdate{LastActivityAt: &now})
	m.invalidateAllLists()
	m.publish(realtime.ChannelTopic(channelID), realtime.Event{
		Type:      realtime.EventMessagePosted,
		ChannelID: channelID,
		MemberIDs: []string{actorID},
		ActorID:   actorID,
		Payload:   map[string]any{"messageId": msg.ID},
	})

	out := *msg
	return &out, nil
}

// GetMessages returns the channel's recent message window, oldest first,
// served from the message cache when fresh. The actor must be a member;
// archived channels stay readable.
func (m *Manager) GetMessages(ctx context.Context, channelID, actorID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageWindow
	}

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

	if cached, ok := m.caches.Messages.Get(channelID); ok {
		return tail(cached, limit), nil
	}

	msgs, err := m.store.ListMessages(ctx, channelID, limit)
	if err != nil {
		return nil, mapTimeout(err)
	}
	window := make([]store.Message, len(msgs))
	for i, msg := range msgs {
		window[i] = *msg
	}
	m.caches.Messages.Set(channelID, window)
	return tail(window, limit), nil
}

// tail returns the last n messages of window, preserving order.
func tail(window []store.Message, n int) []store.Message {
	if len(window) > n {
		window = window[len(window)-n:]
	}
	out := make([]store.Message, len(window))
	copy(out, window)
	return out
}
