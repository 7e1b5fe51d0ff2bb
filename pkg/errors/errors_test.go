// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := rderr.New(
		rderr.CodeChatMembershipConflict,
		"already a member",
		rderr.FieldChannelID("ch-1"),
		rderr.Field("target", "usr-2"),
	)

	require.Error(t, err)
	assert.Equal(t, rderr.CodeChatMembershipConflict, rderr.CodeOf(err))
	assert.True(t, rderr.HasCode(err, rderr.CodeChatMembershipConflict))

	fields := rderr.FieldsOf(err)
	assert.Equal(t, "ch-1", fields["channel_id"])
	assert.Equal(t, "usr-2", fields["target"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("database locked")
	err := rderr.Errorf(rderr.CodeStoreDatabaseFailure, "inserting membership: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, rderr.CodeStoreDatabaseFailure, rderr.CodeOf(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, rderr.Wrap(nil, rderr.CodeStoreDatabaseFailure, "noop"))
	assert.NoError(t, rderr.Wrapf(nil, rderr.CodeStoreDatabaseFailure, "noop"))
	assert.NoError(t, rderr.With(nil))
}

func TestWrapPreservesChain(t *testing.T) {
	inner := rderr.New(rderr.CodeStoreChannelNotFound, "no such channel")
	err := rderr.Wrap(inner, rderr.CodeChatChannelNotFound, "loading channel", rderr.FieldChannelID("ch-9"))

	require.Error(t, err)
	assert.Equal(t, rderr.CodeChatChannelNotFound, rderr.CodeOf(err))
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "ch-9", rderr.FieldsOf(err)["channel_id"])
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind rderr.Kind
	}{
		{"not found", rderr.New(rderr.CodeChatChannelNotFound, "x"), rderr.KindNotFound},
		{"conflict", rderr.New(rderr.CodeChatMembershipConflict, "x"), rderr.KindConflict},
		{"archived conflict", rderr.New(rderr.CodeChatChannelArchived, "x"), rderr.KindConflict},
		{"validation", rderr.New(rderr.CodeChatDirectMemberCount, "x"), rderr.KindValidation},
		{"forbidden", rderr.New(rderr.CodeChatRoleForbidden, "x"), rderr.KindForbidden},
		{"owner forbidden", rderr.New(rderr.CodeChatOwnerImmutable, "x"), rderr.KindForbidden},
		{"timeout", rderr.New(rderr.CodeChatRepositoryTimeout, "x"), rderr.KindTimeout},
		{"internal", rderr.New(rderr.CodeStoreDatabaseFailure, "x"), rderr.KindInternal},
		{"plain error", stderrors.New("plain"), rderr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, rderr.KindOf(tt.err))
		})
	}
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, rderr.IsNotFound(rderr.New(rderr.CodeChatMembershipNotFound, "x")))
	assert.True(t, rderr.IsConflict(rderr.New(rderr.CodeChatChannelArchived, "x")))
	assert.True(t, rderr.IsValidation(rderr.New(rderr.CodeChatNotAMember, "x")))
	assert.True(t, rderr.IsForbidden(rderr.New(rderr.CodeChatExternalMemberDenied, "x")))
	assert.True(t, rderr.IsTimeout(rderr.New(rderr.CodeRealtimePublishTimeout, "x")))
	assert.False(t, rderr.IsNotFound(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{rderr.New(rderr.CodeChatChannelNotFound, "x"), http.StatusNotFound},
		{rderr.New(rderr.CodeChatMembershipConflict, "x"), http.StatusConflict},
		{rderr.New(rderr.CodeChatDirectMemberCount, "x"), http.StatusBadRequest},
		{rderr.New(rderr.CodeChatRoleForbidden, "x"), http.StatusForbidden},
		{rderr.New(rderr.CodeChatRepositoryTimeout, "x"), http.StatusGatewayTimeout},
		{rderr.New(rderr.CodeStoreDatabaseFailure, "x"), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, rderr.HTTPStatus(tt.err), "for %v", tt.err)
	}
}

func TestCodeOfNonOopsError(t *testing.T) {
	assert.Equal(t, rderr.Code(""), rderr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, rderr.Code(""), rderr.CodeOf(nil))
}
