// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/directory"
	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

func TestCreateChannelAssignsOwnerAndFansOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{
		Kind:      store.KindGroup,
		Name:      "announcements",
		MemberIDs: []string{"usr-2", "usr-3", "usr-2", "usr-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ch.MemberCount)
	assert.True(t, ch.Settings.AutoSyncEnabled)

	owner, err := f.store.FindMembership(ctx, ch.ID, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, store.RoleOwner, owner.Role)
	assert.Equal(t, store.ViaCreation, owner.AddedVia)

	member, err := f.store.FindMembership(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, member.Role)

	created := f.events.ofType(realtime.EventChannelCreated)
	require.Len(t, created, 3)
	topics := map[string]bool{}
	for _, e := range created {
		topics[e.topic] = true
		assert.Equal(t, ch.ID, e.event.ChannelID)
		assert.Equal(t, "usr-1", e.event.ActorID)
	}
	assert.True(t, topics[realtime.UserTopic("usr-1")])
	assert.True(t, topics[realtime.UserTopic("usr-2")])
	assert.True(t, topics[realtime.UserTopic("usr-3")])

	f.requireCountConsistent(t, ch.ID)
}

func TestCreateDirectChannelMemberCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{Kind: store.KindDirect})
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatDirectMemberCount))

	_, err = f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{
		Kind:      store.KindDirect,
		MemberIDs: []string{"usr-2", "usr-3"},
	})
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))

	ch, err := f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{
		Kind:      store.KindDirect,
		MemberIDs: []string{"usr-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ch.MemberCount)
}

func TestAddMemberIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1")

	_, err := f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-2", "")
	require.NoError(t, err)

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-2", "")
	require.Error(t, err)
	assert.True(t, rderr.IsConflict(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatMembershipConflict))

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)
	f.requireCountConsistent(t, ch.ID)
}

func TestAddMemberPublishesBothTopics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1")

	_, err := f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-2", "")
	require.NoError(t, err)

	added := f.events.ofType(realtime.EventMemberAdded)
	require.Len(t, added, 1)
	assert.Equal(t, realtime.ChannelTopic(ch.ID), added[0].topic)
	assert.Equal(t, []string{"usr-2"}, added[0].event.MemberIDs)

	fresh := f.events.ofType(realtime.EventNewChannel)
	require.Len(t, fresh, 1)
	assert.Equal(t, realtime.UserTopic("usr-2"), fresh[0].topic)
}

func TestAddMemberAdminOnlyAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2")

	on := true
	_, err := f.mgr.UpdateSettings(ctx, ch.ID, "usr-1", store.SettingsPatch{AdminOnlyAdd: &on})
	require.NoError(t, err)

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-2", "usr-3", "")
	require.Error(t, err)
	assert.True(t, rderr.IsForbidden(err))

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-3", "")
	require.NoError(t, err)
}

func TestAddMemberExternalPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{
		Kind:         store.KindProject,
		Name:         "atlas",
		ProjectID:    "prj-atlas",
		DepartmentID: "",
	})
	require.NoError(t, err)

	f.dir.Put(directory.Profile{MemberID: "usr-ext", Name: "Dana", OrgAffiliation: "acme-corp"})
	f.dir.Put(directory.Profile{MemberID: "usr-int", Name: "Ines"})
	f.dir.Put(directory.Profile{MemberID: "usr-prj", Name: "Noor", OrgAffiliation: "prj-atlas"})

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-ext", "")
	require.Error(t, err)
	assert.True(t, rderr.IsForbidden(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatExternalMemberDenied))

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-int", "")
	require.NoError(t, err)
	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-prj", "")
	require.NoError(t, err)

	// Flipping allowExternalMembers admits the outsider.
	on := true
	_, err = f.mgr.UpdateSettings(ctx, ch.ID, "usr-1", store.SettingsPatch{AllowExternalMembers: &on})
	require.NoError(t, err)
	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-ext", "")
	require.NoError(t, err)
}

func TestAddMemberToDirectChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{
		Kind:      store.KindDirect,
		MemberIDs: []string{"usr-2"},
	})
	require.NoError(t, err)

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-3", "")
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2", "usr-3")

	mem, err := f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-1", "usr-2", store.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, mem.Role)

	got, err := f.store.FindMembership(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, got.Role)

	updated := f.events.ofType(realtime.EventMemberUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "admin", updated[0].event.Payload["role"])

	// A plain member cannot change roles.
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-3", "usr-2", store.RoleMember)
	require.Error(t, err)
	assert.True(t, rderr.IsForbidden(err))

	// The owner role is immutable, in either direction.
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-2", "usr-1", store.RoleMember)
	require.Error(t, err)
	assert.True(t, rderr.IsForbidden(err))
	// Assigning the owner role, or any unknown role, is a bad request.
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-1", "usr-2", store.RoleOwner)
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatRoleInvalid))
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-1", "usr-2", store.Role("moderator"))
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2", "usr-3")

	require.NoError(t, f.mgr.RemoveMember(ctx, ch.ID, "usr-1", "usr-2"))

	_, err := f.store.FindMembership(ctx, ch.ID, "usr-2")
	assert.True(t, rderr.IsNotFound(err))
	f.requireCountConsistent(t, ch.ID)

	removed := f.events.ofType(realtime.EventMemberRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, realtime.ChannelTopic(ch.ID), removed[0].topic)

	gone := f.events.ofType(realtime.EventChannelRemoved)
	require.Len(t, gone, 1)
	assert.Equal(t, realtime.UserTopic("usr-2"), gone[0].topic)

	// The owner cannot be removed, and plain members cannot remove.
	err = f.mgr.RemoveMember(ctx, ch.ID, "usr-3", "usr-1")
	require.Error(t, err)
	assert.True(t, rderr.IsForbidden(err))
}

func TestRemoveMemberSelfRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2", "usr-3")

	// The owner leaves; usr-2 is promoted and is now the only admin.
	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-1")
	require.NoError(t, err)
	require.Equal(t, "usr-2", res.PromotedMemberID)

	// Self-removal by the last admin would leave live members with no
	// privileged member; it must go through LeaveChannel instead.
	err = f.mgr.RemoveMember(ctx, ch.ID, "usr-2", "usr-2")
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatSelfTarget))

	got, err := f.store.FindMembership(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, got.Role)
	f.requireCountConsistent(t, ch.ID)
	f.requirePrivilegedPresent(t, ch.ID)
}

func TestUpdateMemberRoleSelfRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2", "usr-3")

	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-1")
	require.NoError(t, err)
	require.Equal(t, "usr-2", res.PromotedMemberID)

	// Self-demotion by the last admin is rejected outright.
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-2", "usr-2", store.RoleMember)
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatSelfTarget))

	got, err := f.store.FindMembership(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, got.Role)
	f.requirePrivilegedPresent(t, ch.ID)

	// Self-promotion is equally rejected for plain members.
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-3", "usr-3", store.RoleAdmin)
	require.Error(t, err)
	assert.True(t, rderr.HasCode(err, rderr.CodeChatSelfTarget))
}

func TestLeavePromotesOldestRemainingMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2", "usr-3")

	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-1")
	require.NoError(t, err)
	assert.False(t, res.Archived)
	assert.Equal(t, "usr-2", res.PromotedMemberID, "oldest remaining member is promoted")

	promoted, err := f.store.FindMembership(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, promoted.Role)

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.IsArchived)
	assert.Equal(t, 2, got.MemberCount)

	left := f.events.ofType(realtime.EventMemberLeft)
	require.Len(t, left, 1)
	assert.Equal(t, []string{"usr-1"}, left[0].event.MemberIDs)

	f.requireCountConsistent(t, ch.ID)
	f.requirePrivilegedPresent(t, ch.ID)
}

func TestLeaveLastMemberArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1")

	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-1")
	require.NoError(t, err)
	assert.True(t, res.Archived)
	assert.Empty(t, res.PromotedMemberID)

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived)
	assert.Equal(t, "usr-1", got.ArchivedBy)
	assert.Equal(t, 0, got.MemberCount)

	// No audience remains, so nothing goes out.
	assert.Empty(t, f.events.ofType(realtime.EventMemberLeft))
	f.requireCountConsistent(t, ch.ID)
}

func TestLeavePlainMemberNoPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2", "usr-3")

	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.False(t, res.Archived)
	assert.Empty(t, res.PromotedMemberID)

	u3, err := f.store.FindMembership(ctx, ch.ID, "usr-3")
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, u3.Role)

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)

	require.Len(t, f.events.ofType(realtime.EventMemberLeft), 1)
	f.requireCountConsistent(t, ch.ID)
}

func TestLeaveTieBreakByMemberID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// All members join in the same instant; promotion must still be
	// deterministic.
	ch, err := f.mgr.CreateChannel(ctx, "usr-9", chat.CreateChannelParams{
		Kind:      store.KindGroup,
		MemberIDs: []string{"usr-5", "usr-3"},
	})
	require.NoError(t, err)

	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-9")
	require.NoError(t, err)
	assert.Equal(t, "usr-3", res.PromotedMemberID)
}

func TestLeaveArchivesWhenLastPlainMemberLeaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed a channel whose only member is unprivileged, a state the
	// normal operations cannot produce but the removal re-check must
	// still handle.
	now := f.clk.Now().UTC()
	ch := &store.Channel{
		ID: "ch-orphan", Kind: store.KindGroup, Name: "orphan",
		MemberCount: 1, LastActivityAt: now,
		Settings: store.DefaultSettings(), CreatedBy: "usr-gone",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateChannel(ctx, ch))
	require.NoError(t, f.store.InsertMembership(ctx, &store.Membership{
		ChannelID: ch.ID, MemberID: "usr-2", Role: store.RoleMember,
		JoinedAt: now, AddedBy: "usr-gone", AddedVia: store.ViaManual,
	}))

	res, err := f.mgr.LeaveChannel(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.True(t, res.Archived)

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived)
	assert.Equal(t, "usr-2", got.ArchivedBy)
	assert.Empty(t, f.events.ofType(realtime.EventMemberLeft))
}

func TestLeaveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1")

	_, err := f.mgr.LeaveChannel(ctx, "ch-missing", "usr-1")
	require.Error(t, err)
	assert.True(t, rderr.IsNotFound(err))

	_, err = f.mgr.LeaveChannel(ctx, ch.ID, "usr-9")
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatNotAMember))
}

func TestConcurrentLeavesArchiveOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2")

	var wg sync.WaitGroup
	for _, actor := range []string{"usr-1", "usr-2"} {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			_, err := f.mgr.LeaveChannel(ctx, ch.ID, actor)
			// The second leaver may find the channel already archived.
			if err != nil {
				assert.True(t, rderr.IsConflict(err))
			}
		}(actor)
	}
	wg.Wait()

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	if got.MemberCount == 0 {
		assert.True(t, got.IsArchived, "empty channel must end archived")
	}
	f.requireCountConsistent(t, ch.ID)
	f.requirePrivilegedPresent(t, ch.ID)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2")

	on := true
	updated, err := f.mgr.UpdateSettings(ctx, ch.ID, "usr-1", store.SettingsPatch{AdminOnlyPost: &on})
	require.NoError(t, err)
	assert.True(t, updated.Settings.AdminOnlyPost)
	assert.True(t, updated.Settings.AutoSyncEnabled, "untouched fields keep their values")

	got, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.Settings.AdminOnlyPost)

	events := f.events.ofType(realtime.EventSettingsUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].event.Payload["adminOnlyPost"])

	// Plain members may not change settings.
	_, err = f.mgr.UpdateSettings(ctx, ch.ID, "usr-2", store.SettingsPatch{AdminOnlyPost: &on})
	require.Error(t, err)
	assert.True(t, rderr.IsForbidden(err))
}

func TestUpdateSettingsDirectChannelImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.mgr.CreateChannel(ctx, "usr-1", chat.CreateChannelParams{
		Kind:      store.KindDirect,
		MemberIDs: []string{"usr-2"},
	})
	require.NoError(t, err)

	on := true
	_, err = f.mgr.UpdateSettings(ctx, ch.ID, "usr-1", store.SettingsPatch{AdminOnlyPost: &on})
	require.Error(t, err)
	assert.True(t, rderr.IsValidation(err))
}

func TestArchivedChannelRejectsMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.newGroup(t, "usr-1", "usr-2")

	archived, err := f.mgr.ArchiveChannel(ctx, ch.ID, "usr-1")
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.Equal(t, "usr-1", archived.ArchivedBy)
	require.Len(t, f.events.ofType(realtime.EventChannelArchived), 1)

	_, err = f.mgr.AddMember(ctx, ch.ID, "usr-1", "usr-3", "")
	assert.True(t, rderr.IsConflict(err))
	_, err = f.mgr.UpdateMemberRole(ctx, ch.ID, "usr-1", "usr-2", store.RoleAdmin)
	assert.True(t, rderr.IsConflict(err))
	err = f.mgr.RemoveMember(ctx, ch.ID, "usr-1", "usr-2")
	assert.True(t, rderr.IsConflict(err))
	_, err = f.mgr.LeaveChannel(ctx, ch.ID, "usr-2")
	assert.True(t, rderr.IsConflict(err))
	_, err = f.mgr.PostMessage(ctx, ch.ID, "usr-1", "hello")
	assert.True(t, rderr.IsConflict(err))
	_, err = f.mgr.ArchiveChannel(ctx, ch.ID, "usr-1")
	assert.True(t, rderr.IsConflict(err))

	// Reads stay valid.
	view, err := f.mgr.GetChannel(ctx, ch.ID, "usr-2")
	require.NoError(t, err)
	assert.True(t, view.Channel.IsArchived)
}
