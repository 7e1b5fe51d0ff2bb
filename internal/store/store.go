// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package store defines the channel repository contract: the domain types
// for channels, memberships, and messages, plus the transactional interface
// the lifecycle manager mutates them through.
package store

import "context"

// ChannelTx is the set of repository operations available both directly and
// inside a transaction. The leave algorithm's read-then-write sequences run
// entirely within one WithTx scope.
type ChannelTx interface {
	CreateChannel(ctx context.Context, ch *Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error)
	UpdateChannel(ctx context.Context, id string, upd ChannelUpdate) error
	ListChannelsForMember(ctx context.Context, memberID string) ([]*Channel, error)

	// ListMembers returns memberships ordered by JoinedAt ascending, ties
	// broken by member id, so promotion picks are deterministic.
	ListMembers(ctx context.Context, channelID string) ([]*Membership, error)
	FindMembership(ctx context.Context, channelID, memberID string) (*Membership, error)
	InsertMembership(ctx context.Context, m *Membership) error
	UpdateMembershipRole(ctx context.Context, channelID, memberID string, role Role) error
	DeleteMembership(ctx context.Context, channelID, memberID string) error

	// CountMembers counts live membership rows, optionally restricted to
	// the given roles.
	CountMembers(ctx context.Context, channelID string, roles ...Role) (int, error)

	InsertMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the most recent limit messages, oldest first.
	ListMessages(ctx context.Context, channelID string, limit int) ([]*Message, error)
}

// ChannelStore is the channel repository adapter. WithTx runs fn inside a
// single transaction: fn returning an error rolls everything back.
type ChannelStore interface {
	ChannelTx

	WithTx(ctx context.Context, fn func(tx ChannelTx) error) error
	Close() error
}
