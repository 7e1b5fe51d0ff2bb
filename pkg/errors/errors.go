// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package errors defines the machine-readable error codes used across the
// chat core and helpers for creating, wrapping, and classifying errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeChatChannelNotFound      Code = "chat.channel.not_found"
	CodeChatMembershipNotFound   Code = "chat.membership.not_found"
	CodeChatMembershipConflict   Code = "chat.membership.add.conflict"
	CodeChatChannelArchived      Code = "chat.channel.mutate.conflict"
	CodeChatDirectMemberCount    Code = "chat.channel.create.invalid_input"
	CodeChatNotAMember           Code = "chat.leave.invalid_input"
	CodeChatSettingsImmutable    Code = "chat.settings.update.invalid_input"
	CodeChatRoleInvalid          Code = "chat.role.update.invalid_input"
	CodeChatSelfTarget           Code = "chat.member.self.invalid_input"
	CodeChatRoleForbidden        Code = "chat.role.forbidden"
	CodeChatOwnerImmutable       Code = "chat.role.owner.forbidden"
	CodeChatExternalMemberDenied Code = "chat.membership.external.forbidden"
	CodeChatPostForbidden        Code = "chat.message.post.forbidden"
	CodeChatMessageInvalid       Code = "chat.message.post.invalid_input"
	CodeChatRepositoryTimeout    Code = "chat.repository.timeout"

	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreChannelNotFound    Code = "store.channel.get.not_found"
	CodeStoreMembershipNotFound Code = "store.membership.get.not_found"
	CodeStoreMembershipConflict Code = "store.membership.insert.conflict"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeDirectoryProfileNotFound Code = "directory.profile.get.not_found"
	CodeDirectoryBackendFailure  Code = "directory.backend.failure"
	CodeDirectoryTimeout         Code = "directory.profile.get.timeout"

	CodeCacheKeyInvalid Code = "cache.key.invalid_input"

	CodeRealtimeTransportFailure  Code = "realtime.transport.failure"
	CodeRealtimePublishTimeout    Code = "realtime.publish.timeout"
	CodeRealtimeTransitionInvalid Code = "realtime.connection.transition.invalid_input"
	CodeRealtimeRetriesExhausted  Code = "realtime.reconnect.exhausted.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeClientInvalidInput Code = "client.invalid_input"
	CodeClientFetchFailure Code = "client.fetch.failure"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
)

// Kind groups codes into the five caller-facing error classes.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldChannelID(value string) Attr {
	return Field("channel_id", value)
}

func FieldMemberID(value string) Attr {
	return Field("member_id", value)
}

func FieldActorID(value string) Attr {
	return Field("actor_id", value)
}

func FieldTopic(value string) Attr {
	return Field("topic", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// KindOf classifies an error by the final segment of its code. Callers
// branch on kinds rather than matching individual codes.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	switch reason(CodeOf(err)) {
	case "not_found":
		return KindNotFound
	case "conflict":
		return KindConflict
	case "invalid", "invalid_input", "invalid_value", "invalid_format":
		return KindValidation
	case "forbidden", "denied":
		return KindForbidden
	case "timeout":
		return KindTimeout
	default:
		return KindInternal
	}
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

func IsForbidden(err error) bool {
	return KindOf(err) == KindForbidden
}

func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
