// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package store

import "time"

// --- Channel types ---

// ChannelKind classifies a channel. It is immutable after creation.
type ChannelKind string

const (
	KindDirect     ChannelKind = "direct"
	KindGroup      ChannelKind = "group"
	KindProject    ChannelKind = "project"
	KindDepartment ChannelKind = "department"
	KindSupport    ChannelKind = "client_support"
)

// Valid reports whether k is one of the known channel kinds.
func (k ChannelKind) Valid() bool {
	switch k {
	case KindDirect, KindGroup, KindProject, KindDepartment, KindSupport:
		return true
	}
	return false
}

// DirectMemberCount is the fixed membership size of a direct channel.
const DirectMemberCount = 2

// ChannelSettings holds the per-channel toggles. Direct channels never
// deviate from the defaults.
type ChannelSettings struct {
	AutoSyncEnabled      bool
	AllowExternalMembers bool
	AdminOnlyPost        bool
	AdminOnlyAdd         bool
}

// DefaultSettings returns the settings applied when a channel row carries
// no explicit values. Auto-sync defaults on; everything else off.
func DefaultSettings() ChannelSettings {
	return ChannelSettings{AutoSyncEnabled: true}
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	AutoSyncEnabled      *bool
	AllowExternalMembers *bool
	AdminOnlyPost        *bool
	AdminOnlyAdd         *bool
}

// Apply returns a copy of s with the non-nil patch fields applied.
func (p SettingsPatch) Apply(s ChannelSettings) ChannelSettings {
	if p.AutoSyncEnabled != nil {
		s.AutoSyncEnabled = *p.AutoSyncEnabled
	}
	if p.AllowExternalMembers != nil {
		s.AllowExternalMembers = *p.AllowExternalMembers
	}
	if p.AdminOnlyPost != nil {
		s.AdminOnlyPost = *p.AdminOnlyPost
	}
	if p.AdminOnlyAdd != nil {
		s.AdminOnlyAdd = *p.AdminOnlyAdd
	}
	return s
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.AutoSyncEnabled == nil && p.AllowExternalMembers == nil &&
		p.AdminOnlyPost == nil && p.AdminOnlyAdd == nil
}

// Channel is a conversation container. Channels are never hard-deleted;
// they transition to archived when membership reaches zero or by explicit
// admin action, and archived is terminal for mutations.
type Channel struct {
	ID           string
	Kind         ChannelKind
	Name         string
	AvatarRef    string
	DepartmentID string
	ProjectID    string
	IsPrivate    bool

	// MemberCount is denormalized and must equal the live membership row
	// count after every committed operation.
	MemberCount int

	LastActivityAt time.Time
	IsArchived     bool
	ArchivedAt     time.Time
	ArchivedBy     string

	Settings ChannelSettings

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- Membership types ---

// Role is a membership privilege tier.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// Privileged reports whether r may manage membership and settings.
func (r Role) Privileged() bool {
	return r == RoleOwner || r == RoleAdmin
}

// AddedVia records how a membership came to exist.
type AddedVia string

const (
	ViaManual   AddedVia = "manual"
	ViaAutoSync AddedVia = "auto_sync"
	ViaCreation AddedVia = "creation"
)

// Membership joins one member to one channel. Identity is the
// (ChannelID, MemberID) pair.
type Membership struct {
	ChannelID string
	MemberID  string
	Role      Role
	JoinedAt  time.Time
	AddedBy   string
	AddedVia  AddedVia
}

// --- Message types ---

// Message is a single channel message. Only the recent window is ever
// served by the core; history pagination lives with the presentation layer.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// --- Update descriptors ---

// ChannelUpdate names the channel fields a mutation may change. Nil fields
// are left untouched.
type ChannelUpdate struct {
	Name           *string
	AvatarRef      *string
	IsPrivate      *bool
	MemberCount    *int
	LastActivityAt *time.Time
	IsArchived     *bool
	ArchivedAt     *time.Time
	ArchivedBy     *string
	Settings       *ChannelSettings
}
