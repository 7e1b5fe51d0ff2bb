// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package directory provides read access to the user/profile records held
// in the document store. The chat core uses it for projection enrichment
// and the external-member policy check; it never writes profiles.
package directory

import (
	"context"
	"sync"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// Profile is the projection of a user document the chat core needs.
type Profile struct {
	MemberID       string
	Name           string
	Email          string
	Avatar         string
	OrgAffiliation string
}

// Directory resolves member ids to profiles.
type Directory interface {
	GetProfile(ctx context.Context, memberID string) (*Profile, error)
	Close(ctx context.Context) error
}

// --- in-memory implementation ---

// Memory is an in-memory Directory for tests and standalone runs.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

var _ Directory = (*Memory)(nil)

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]Profile)}
}

// Put stores or replaces a profile.
func (m *Memory) Put(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.MemberID] = p
}

func (m *Memory) GetProfile(_ context.Context, memberID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[memberID]
	if !ok {
		return nil, rderr.New(rderr.CodeDirectoryProfileNotFound, "profile not found", rderr.FieldMemberID(memberID))
	}
	out := p
	return &out, nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}
