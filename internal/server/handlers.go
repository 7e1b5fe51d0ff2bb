// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

func (s *Server) registerChannelRoutes(r chi.Router) {
	r.Route("/channels", func(r chi.Router) {
		r.Get("/", s.handleListChannels)
		r.Post("/", s.handleCreateChannel)

		r.Route("/{channelID}", func(r chi.Router) {
			r.Get("/", s.handleGetChannel)
			r.Post("/leave", s.handleLeaveChannel)
			r.Post("/archive", s.handleArchiveChannel)
			r.Patch("/settings", s.handleUpdateSettings)

			r.Get("/members", s.handleListMembers)
			r.Post("/members", s.handleAddMember)
			r.Patch("/members/{memberID}", s.handleUpdateMemberRole)
			r.Delete("/members/{memberID}", s.handleRemoveMember)

			r.Get("/messages", s.handleGetMessages)
			r.Post("/messages", s.handlePostMessage)
		})
	})
}

// --- DTOs ---

type settingsDTO struct {
	AutoSyncEnabled      bool `json:"autoSyncEnabled"`
	AllowExternalMembers bool `json:"allowExternalMembers"`
	AdminOnlyPost        bool `json:"adminOnlyPost"`
	AdminOnlyAdd         bool `json:"adminOnlyAdd"`
}

type channelDTO struct {
	ID             string      `json:"id"`
	Kind           string      `json:"kind"`
	Name           string      `json:"name,omitempty"`
	AvatarRef      string      `json:"avatarRef,omitempty"`
	DepartmentID   string      `json:"departmentId,omitempty"`
	ProjectID      string      `json:"projectId,omitempty"`
	IsPrivate      bool        `json:"isPrivate"`
	MemberCount    int         `json:"memberCount"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
	IsArchived     bool        `json:"isArchived"`
	ArchivedAt     *time.Time  `json:"archivedAt,omitempty"`
	ArchivedBy     string      `json:"archivedBy,omitempty"`
	Settings       settingsDTO `json:"settings"`
	CreatedBy      string      `json:"createdBy"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type channelViewDTO struct {
	channelDTO

	CurrentUserRole string `json:"currentUserRole,omitempty"`
	IsAdmin         bool   `json:"isAdmin"`
	IsOwner         bool   `json:"isOwner"`
}

type memberDTO struct {
	MemberID string    `json:"memberId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	AddedBy  string    `json:"addedBy"`
	AddedVia string    `json:"addedVia"`
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	Online   bool      `json:"online"`
}

type messageDTO struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func toChannelDTO(ch store.Channel) channelDTO {
	dto := channelDTO{
		ID:             ch.ID,
		Kind:           string(ch.Kind),
		Name:           ch.Name,
		AvatarRef:      ch.AvatarRef,
		DepartmentID:   ch.DepartmentID,
		ProjectID:      ch.ProjectID,
		IsPrivate:      ch.IsPrivate,
		MemberCount:    ch.MemberCount,
		LastActivityAt: ch.LastActivityAt,
		IsArchived:     ch.IsArchived,
		ArchivedBy:     ch.ArchivedBy,
		Settings: settingsDTO{
			AutoSyncEnabled:      ch.Settings.AutoSyncEnabled,
			AllowExternalMembers: ch.Settings.AllowExternalMembers,
			AdminOnlyPost:        ch.Settings.AdminOnlyPost,
			AdminOnlyAdd:         ch.Settings.AdminOnlyAdd,
		},
		CreatedBy: ch.CreatedBy,
		CreatedAt: ch.CreatedAt,
	}
	if !ch.ArchivedAt.IsZero() {
		at := ch.ArchivedAt
		dto.ArchivedAt = &at
	}
	return dto
}

func toMemberDTO(m chat.MemberView) memberDTO {
	return memberDTO{
		MemberID: m.MemberID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
		AddedBy:  m.AddedBy,
		AddedVia: string(m.AddedVia),
		Name:     m.Name,
		Email:    m.Email,
		Avatar:   m.Avatar,
		Online:   m.Online,
	}
}

func toMessageDTO(m store.Message) messageDTO {
	return messageDTO{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// --- Channel handlers ---

type createChannelRequest struct {
	Kind         string   `json:"kind"`
	Name         string   `json:"name"`
	AvatarRef    string   `json:"avatarRef"`
	DepartmentID string   `json:"departmentId"`
	ProjectID    string   `json:"projectId"`
	IsPrivate    bool     `json:"isPrivate"`
	MemberIDs    []string `json:"memberIds"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ch, err := s.chat.CreateChannel(r.Context(), actorFrom(r), chat.CreateChannelParams{
		Kind:         store.ChannelKind(req.Kind),
		Name:         req.Name,
		AvatarRef:    req.AvatarRef,
		DepartmentID: req.DepartmentID,
		ProjectID:    req.ProjectID,
		IsPrivate:    req.IsPrivate,
		MemberIDs:    req.MemberIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChannelDTO(*ch))
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.chat.ListChannels(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]channelDTO, len(channels))
	for i, ch := range channels {
		out[i] = toChannelDTO(ch)
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": out})
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	view, err := s.chat.GetChannel(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channelViewDTO{
		channelDTO:      toChannelDTO(view.Channel),
		CurrentUserRole: string(view.CurrentUserRole),
		IsAdmin:         view.IsAdmin,
		IsOwner:         view.IsOwner,
	})
}

func (s *Server) handleLeaveChannel(w http.ResponseWriter, r *http.Request) {
	res, err := s.chat.LeaveChannel(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archived": res.Archived,
		"promoted": res.PromotedMemberID,
	})
}

func (s *Server) handleArchiveChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.chat.ArchiveChannel(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelDTO(*ch))
}

type updateSettingsRequest struct {
	AutoSyncEnabled      *bool `json:"autoSyncEnabled"`
	AllowExternalMembers *bool `json:"allowExternalMembers"`
	AdminOnlyPost        *bool `json:"adminOnlyPost"`
	AdminOnlyAdd         *bool `json:"adminOnlyAdd"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ch, err := s.chat.UpdateSettings(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r), store.SettingsPatch{
		AutoSyncEnabled:      req.AutoSyncEnabled,
		AllowExternalMembers: req.AllowExternalMembers,
		AdminOnlyPost:        req.AdminOnlyPost,
		AdminOnlyAdd:         req.AdminOnlyAdd,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelDTO(*ch))
}

// --- Membership handlers ---

type addMemberRequest struct {
	MemberID string `json:"memberId"`
	Role     string `json:"role"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	mem, err := s.chat.AddMember(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r),
		req.MemberID, store.Role(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberDTO{
		MemberID: mem.MemberID,
		Role:     string(mem.Role),
		JoinedAt: mem.JoinedAt,
		AddedBy:  mem.AddedBy,
		AddedVia: string(mem.AddedVia),
	})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.chat.ListMembers(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]memberDTO, len(members))
	for i, m := range members {
		out[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	mem, err := s.chat.UpdateMemberRole(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r),
		chi.URLParam(r, "memberID"), store.Role(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberDTO{
		MemberID: mem.MemberID,
		Role:     string(mem.Role),
		JoinedAt: mem.JoinedAt,
		AddedBy:  mem.AddedBy,
		AddedVia: string(mem.AddedVia),
	})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := s.chat.RemoveMember(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r),
		chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Message handlers ---

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := s.chat.PostMessage(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageDTO(*msg))
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, rderr.New(rderr.CodeServerRequestInvalid, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	msgs, err := s.chat.GetMessages(r.Context(), chi.URLParam(r, "channelID"), actorFrom(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]messageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageDTO(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}
