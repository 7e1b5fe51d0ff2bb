// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// CreateChannelParams describes a channel to create. MemberIDs lists the
// initial members besides the creator; duplicates and the creator's own id
// are ignored.
type CreateChannelParams struct {
	Kind         store.ChannelKind
	Name         string
	AvatarRef    string
	DepartmentID string
	ProjectID    string
	IsPrivate    bool
	MemberIDs    []string
}

// CreateChannel creates the channel row, inserts the creator as owner and
// the remaining ids as members, and fans a channel_created event out to
// each member's personal topic.
func (m *Manager) CreateChannel(ctx context.Context, actorID string, p CreateChannelParams) (*store.Channel, error) {
	if !p.Kind.Valid() {
		return nil, rderr.Errorf(rderr.CodeStoreInvalidInput, "unknown channel kind %q", p.Kind)
	}

	others := dedupe(p.MemberIDs, actorID)
	if p.Kind == store.KindDirect && len(others)+1 != store.DirectMemberCount {
		return nil, rderr.Errorf(rderr.CodeChatDirectMemberCount,
			"a direct channel has exactly %d members, got %d", store.DirectMemberCount, len(others)+1)
	}

	now := m.clock.Now().UTC()
	ch := &store.Channel{
		ID:             uuid.NewString(),
		Kind:           p.Kind,
		Name:           p.Name,
		AvatarRef:      p.AvatarRef,
		DepartmentID:   p.DepartmentID,
		ProjectID:      p.ProjectID,
		IsPrivate:      p.IsPrivate,
		MemberCount:    len(others) + 1,
		LastActivityAt: now,
		Settings:       store.DefaultSettings(),
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := m.mutate(ctx, ch.ID, func(ctx context.Context, tx store.ChannelTx) error {
		if err := tx.CreateChannel(ctx, ch); err != nil {
			return err
		}
		owner := &store.Membership{
			ChannelID: ch.ID, MemberID: actorID, Role: store.RoleOwner,
			JoinedAt: now, AddedBy: actorID, AddedVia: store.ViaCreation,
		}
		if err := tx.InsertMembership(ctx, owner); err != nil {
			return err
		}
		for _, id := range others {
			mem := &store.Membership{
				ChannelID: ch.ID, MemberID: id, Role: store.RoleMember,
				JoinedAt: now, AddedBy: actorID, AddedVia: store.ViaCreation,
			}
			if err := tx.InsertMembership(ctx, mem); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	members := append([]string{actorID}, others...)
	m.invalidateLists(members...)
	for _, id := range members {
		m.publish(realtime.UserTopic(id), realtime.Event{
			Type:      realtime.EventChannelCreated,
			ChannelID: ch.ID,
			MemberIDs: members,
			ActorID:   actorID,
		})
	}

	m.log.Info("channel created", "channel_id", ch.ID, "kind", ch.Kind, "members", ch.MemberCount)
	out := *ch
	return &out, nil
}

// AddMember inserts targetID into the channel with the given role (member
// when empty). The adminOnlyAdd setting restricts who may add; the
// allowExternalMembers setting restricts whom.
func (m *Manager) AddMember(ctx context.Context, channelID, actorID, targetID string, role store.Role) (*store.Membership, error) {
	if role == "" {
		role = store.RoleMember
	}
	if !role.Valid() {
		return nil, rderr.Errorf(rderr.CodeStoreInvalidInput, "unknown role %q", role)
	}
	if role == store.RoleOwner {
		return nil, rderr.New(rderr.CodeChatOwnerImmutable, "a channel has exactly one owner, assigned at creation",
			rderr.FieldChannelID(channelID))
	}

	now := m.clock.Now().UTC()
	mem := &store.Membership{
		ChannelID: channelID, MemberID: targetID, Role: role,
		JoinedAt: now, AddedBy: actorID, AddedVia: store.ViaManual,
	}

	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		ch, err := activeChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if ch.Kind == store.KindDirect {
			return rderr.New(rderr.CodeChatDirectMemberCount, "direct channel membership is fixed",
				rderr.FieldChannelID(channelID))
		}

		actor, err := actorMembership(ctx, tx, channelID, actorID, false)
		if err != nil {
			return err
		}
		if ch.Settings.AdminOnlyAdd && !actor.Role.Privileged() {
			return rderr.New(rderr.CodeChatRoleForbidden, "only admins may add members to this channel",
				rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
		}
		if err := m.checkExternalPolicy(ctx, ch, targetID); err != nil {
			return err
		}

		if _, err := tx.FindMembership(ctx, channelID, targetID); err == nil {
			return rderr.New(rderr.CodeChatMembershipConflict, "already a channel member",
				rderr.FieldChannelID(channelID), rderr.FieldMemberID(targetID))
		} else if !rderr.IsNotFound(err) {
			return err
		}

		if err := tx.InsertMembership(ctx, mem); err != nil {
			if rderr.IsConflict(err) {
				return rderr.Wrap(err, rderr.CodeChatMembershipConflict, "already a channel member",
					rderr.FieldChannelID(channelID), rderr.FieldMemberID(targetID))
			}
			return err
		}
		count := ch.MemberCount + 1
		return tx.UpdateChannel(ctx, channelID, store.ChannelUpdate{MemberCount: &count})
	})
	if err != nil {
		return nil, err
	}

	m.invalidateAllLists()
	m.caches.Messages.Remove(channelID)
	m.publish(realtime.ChannelTopic(channelID), realtime.Event{
		Type:      realtime.EventMemberAdded,
		ChannelID: channelID,
		MemberIDs: []string{targetID},
		ActorID:   actorID,
	})
	m.publish(realtime.UserTopic(targetID), realtime.Event{
		Type:      realtime.EventNewChannel,
		ChannelID: channelID,
		MemberIDs: []string{targetID},
		ActorID:   actorID,
	})

	out := *mem
	return &out, nil
}

// checkExternalPolicy rejects a target whose org affiliation is outside
// the channel's linked department/project when external members are not
// allowed. Channels without a link admit anyone.
func (m *Manager) checkExternalPolicy(ctx context.Context, ch *store.Channel, targetID string) error {
	if ch.Settings.AllowExternalMembers {
		return nil
	}
	if ch.DepartmentID == "" && ch.ProjectID == "" {
		return nil
	}

	profile, err := m.dir.GetProfile(ctx, targetID)
	if err != nil {
		if rderr.IsNotFound(err) {
			return rderr.Wrap(err, rderr.CodeChatExternalMemberDenied, "member has no directory profile",
				rderr.FieldChannelID(ch.ID), rderr.FieldMemberID(targetID))
		}
		return err
	}
	// An empty affiliation means an internal account.
	if profile.OrgAffiliation == "" ||
		profile.OrgAffiliation == ch.DepartmentID ||
		profile.OrgAffiliation == ch.ProjectID {
		return nil
	}
	return rderr.New(rderr.CodeChatExternalMemberDenied, "external members are not allowed in this channel",
		rderr.FieldChannelID(ch.ID), rderr.FieldMemberID(targetID))
}

// UpdateMemberRole changes targetID's role. Requires admin/owner; the
// owner role itself never changes through this path, in either direction.
// Actors cannot change their own role: self-demotion would sidestep the
// promotion/archive algorithm that keeps a privileged member in place.
func (m *Manager) UpdateMemberRole(ctx context.Context, channelID, actorID, targetID string, newRole store.Role) (*store.Membership, error) {
	if newRole != store.RoleAdmin && newRole != store.RoleMember {
		return nil, rderr.Errorf(rderr.CodeChatRoleInvalid, "role %q cannot be assigned", newRole)
	}
	if targetID == actorID {
		return nil, rderr.New(rderr.CodeChatSelfTarget, "cannot change your own role",
			rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
	}

	var updated store.Membership
	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		if _, err := activeChannel(ctx, tx, channelID); err != nil {
			return err
		}
		if _, err := actorMembership(ctx, tx, channelID, actorID, true); err != nil {
			return err
		}

		target, err := tx.FindMembership(ctx, channelID, targetID)
		if err != nil {
			if rderr.IsNotFound(err) {
				return rderr.Wrap(err, rderr.CodeChatMembershipNotFound, "target is not a channel member",
					rderr.FieldChannelID(channelID), rderr.FieldMemberID(targetID))
			}
			return err
		}
		if target.Role == store.RoleOwner {
			return rderr.New(rderr.CodeChatOwnerImmutable, "the owner role is immutable",
				rderr.FieldChannelID(channelID), rderr.FieldMemberID(targetID))
		}

		if err := tx.UpdateMembershipRole(ctx, channelID, targetID, newRole); err != nil {
			return err
		}
		updated = *target
		updated.Role = newRole
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(realtime.ChannelTopic(channelID), realtime.Event{
		Type:      realtime.EventMemberUpdated,
		ChannelID: channelID,
		MemberIDs: []string{targetID},
		ActorID:   actorID,
		Payload:   map[string]any{"role": string(newRole)},
	})
	return &updated, nil
}

// RemoveMember removes targetID from the channel. Requires admin/owner;
// the owner cannot be removed, they can only leave. Actors cannot remove
// themselves either: self-exit goes through LeaveChannel so the
// promotion/archive algorithm runs.
func (m *Manager) RemoveMember(ctx context.Context, channelID, actorID, targetID string) error {
	if targetID == actorID {
		return rderr.New(rderr.CodeChatSelfTarget, "cannot remove yourself, leave the channel instead",
			rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
	}
	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		ch, err := activeChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if _, err := actorMembership(ctx, tx, channelID, actorID, true); err != nil {
			return err
		}

		target, err := tx.FindMembership(ctx, channelID, targetID)
		if err != nil {
			if rderr.IsNotFound(err) {
				return rderr.Wrap(err, rderr.CodeChatMembershipNotFound, "target is not a channel member",
					rderr.FieldChannelID(channelID), rderr.FieldMemberID(targetID))
			}
			return err
		}
		if target.Role == store.RoleOwner {
			return rderr.New(rderr.CodeChatOwnerImmutable, "the owner cannot be removed",
				rderr.FieldChannelID(channelID), rderr.FieldMemberID(targetID))
		}

		if err := tx.DeleteMembership(ctx, channelID, targetID); err != nil {
			return err
		}
		count := ch.MemberCount - 1
		return tx.UpdateChannel(ctx, channelID, store.ChannelUpdate{MemberCount: &count})
	})
	if err != nil {
		return err
	}

	m.invalidateAllLists()
	m.publish(realtime.UserTopic(targetID), realtime.Event{
		Type:      realtime.EventChannelRemoved,
		ChannelID: channelID,
		MemberIDs: []string{targetID},
		ActorID:   actorID,
	})
	m.publish(realtime.ChannelTopic(channelID), realtime.Event{
		Type:      realtime.EventMemberRemoved,
		ChannelID: channelID,
		MemberIDs: []string{targetID},
		ActorID:   actorID,
	})
	return nil
}

// LeaveResult reports what leaving a channel did beyond removing the
// actor's membership.
type LeaveResult struct {
	Archived         bool
	PromotedMemberID string
}

// LeaveChannel removes the actor's own membership. When the actor is the
// last admin/owner, the oldest remaining member is promoted to admin
// first; when no member remains at all, the channel is archived instead
// and no member_left event goes out, since no audience remains. A second
// zero-membership check runs after the removal regardless, covering the
// last plain member leaving a channel whose privileged members are gone.
func (m *Manager) LeaveChannel(ctx context.Context, channelID, actorID string) (*LeaveResult, error) {
	now := m.clock.Now().UTC()
	res := &LeaveResult{}
	archivedEmpty := false

	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		if _, err := activeChannel(ctx, tx, channelID); err != nil {
			return err
		}

		mem, err := tx.FindMembership(ctx, channelID, actorID)
		if err != nil {
			if rderr.IsNotFound(err) {
				return rderr.Wrap(err, rderr.CodeChatNotAMember, "cannot leave a channel you are not a member of",
					rderr.FieldChannelID(channelID), rderr.FieldActorID(actorID))
			}
			return err
		}

		if mem.Role.Privileged() {
			privileged, err := tx.CountMembers(ctx, channelID, store.RoleOwner, store.RoleAdmin)
			if err != nil {
				return err
			}
			if privileged-1 == 0 {
				members, err := tx.ListMembers(ctx, channelID)
				if err != nil {
					return err
				}
				var successor *store.Membership
				for _, other := range members {
					if other.MemberID != actorID {
						successor = other
						break
					}
				}
				if successor == nil {
					// Sole member of the channel: archive instead.
					archivedEmpty = true
					res.Archived = true
					if err := archive(ctx, tx, channelID, actorID, now, 0); err != nil {
						return err
					}
					return tx.DeleteMembership(ctx, channelID, actorID)
				}
				if err := tx.UpdateMembershipRole(ctx, channelID, successor.MemberID, store.RoleAdmin); err != nil {
					return err
				}
				res.PromotedMemberID = successor.MemberID
			}
		}

		if err := tx.DeleteMembership(ctx, channelID, actorID); err != nil {
			return err
		}
		remaining, err := tx.CountMembers(ctx, channelID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			archivedEmpty = true
			res.Archived = true
			return archive(ctx, tx, channelID, actorID, now, 0)
		}
		return tx.UpdateChannel(ctx, channelID, store.ChannelUpdate{MemberCount: &remaining})
	})
	if err != nil {
		return nil, err
	}

	m.invalidateAllLists()
	if res.Archived {
		m.caches.Messages.Remove(channelID)
	}
	if res.PromotedMemberID != "" {
		m.publish(realtime.ChannelTopic(channelID), realtime.Event{
			Type:      realtime.EventMemberUpdated,
			ChannelID: channelID,
			MemberIDs: []string{res.PromotedMemberID},
			ActorID:   actorID,
			Payload:   map[string]any{"role": string(store.RoleAdmin)},
		})
	}
	if !archivedEmpty {
		m.publish(realtime.ChannelTopic(channelID), realtime.Event{
			Type:      realtime.EventMemberLeft,
			ChannelID: channelID,
			MemberIDs: []string{actorID},
			ActorID:   actorID,
		})
	}

	m.log.Info("member left channel", "channel_id", channelID, "member_id", actorID,
		"archived", res.Archived, "promoted", res.PromotedMemberID)
	return res, nil
}

// UpdateSettings applies a partial settings change. Direct channels never
// accept one.
func (m *Manager) UpdateSettings(ctx context.Context, channelID, actorID string, patch store.SettingsPatch) (*store.Channel, error) {
	var updated store.Channel
	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		ch, err := activeChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if ch.Kind == store.KindDirect {
			return rderr.New(rderr.CodeChatSettingsImmutable, "direct channel settings are immutable",
				rderr.FieldChannelID(channelID))
		}
		if _, err := actorMembership(ctx, tx, channelID, actorID, true); err != nil {
			return err
		}

		updated = *ch
		if patch.Empty() {
			return nil
		}
		settings := patch.Apply(ch.Settings)
		if err := tx.UpdateChannel(ctx, channelID, store.ChannelUpdate{Settings: &settings}); err != nil {
			return err
		}
		updated.Settings = settings
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !patch.Empty() {
		m.invalidateAllLists()
		m.publish(realtime.ChannelTopic(channelID), realtime.Event{
			Type:      realtime.EventSettingsUpdated,
			ChannelID: channelID,
			ActorID:   actorID,
			Payload: map[string]any{
				"autoSyncEnabled":      updated.Settings.AutoSyncEnabled,
				"allowExternalMembers": updated.Settings.AllowExternalMembers,
				"adminOnlyPost":        updated.Settings.AdminOnlyPost,
				"adminOnlyAdd":         updated.Settings.AdminOnlyAdd,
			},
		})
	}
	return &updated, nil
}

// ArchiveChannel archives explicitly, by admin/owner action. Members keep
// read access; every further mutation fails as a conflict.
func (m *Manager) ArchiveChannel(ctx context.Context, channelID, actorID string) (*store.Channel, error) {
	now := m.clock.Now().UTC()
	var updated store.Channel
	err := m.mutate(ctx, channelID, func(ctx context.Context, tx store.ChannelTx) error {
		ch, err := activeChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if _, err := actorMembership(ctx, tx, channelID, actorID, true); err != nil {
			return err
		}
		if err := archive(ctx, tx, channelID, actorID, now, ch.MemberCount); err != nil {
			return err
		}
		updated = *ch
		updated.IsArchived = true
		updated.ArchivedAt = now
		updated.ArchivedBy = actorID
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidateAllLists()
	m.caches.Messages.Remove(channelID)
	m.publish(realtime.ChannelTopic(channelID), realtime.Event{
		Type:      realtime.EventChannelArchived,
		ChannelID: channelID,
		ActorID:   actorID,
	})
	return &updated, nil
}

func archive(ctx context.Context, tx store.ChannelTx, channelID, actorID string, now time.Time, memberCount int) error {
	archived := true
	return tx.UpdateChannel(ctx, channelID, store.ChannelUpdate{
		IsArchived:  &archived,
		ArchivedAt:  &now,
		ArchivedBy:  &actorID,
		MemberCount: &memberCount,
	})
}

// dedupe drops duplicates and the excluded id while preserving order.
func dedupe(ids []string, exclude string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
