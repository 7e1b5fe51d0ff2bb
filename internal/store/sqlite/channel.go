// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

// Package sqlite implements the channel repository on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/relaydesk/relaydesk/internal/store"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// Compile-time interface check.
var _ store.ChannelStore = (*ChannelStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx so the same query code
// runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ChannelStore implements store.ChannelStore backed by SQLite.
type ChannelStore struct {
	queries
	db *sql.DB
}

// NewChannelStore opens (or creates) a SQLite database at dbPath and
// initialises the channels, memberships, and messages tables.
func NewChannelStore(dbPath string) (*ChannelStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &ChannelStore{queries: queries{q: db}, db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS channels (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	avatar_ref       TEXT NOT NULL DEFAULT '',
	department_id    TEXT NOT NULL DEFAULT '',
	project_id       TEXT NOT NULL DEFAULT '',
	is_private       INTEGER NOT NULL DEFAULT 0,
	member_count     INTEGER NOT NULL DEFAULT 0,
	last_activity_at TEXT NOT NULL DEFAULT '',
	is_archived      INTEGER NOT NULL DEFAULT 0,
	archived_at      TEXT NOT NULL DEFAULT '',
	archived_by      TEXT NOT NULL DEFAULT '',
	auto_sync_enabled      INTEGER,
	allow_external_members INTEGER,
	admin_only_post        INTEGER,
	admin_only_add         INTEGER,
	created_by       TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memberships (
	channel_id TEXT NOT NULL,
	member_id  TEXT NOT NULL,
	role       TEXT NOT NULL,
	joined_at  TEXT NOT NULL,
	added_by   TEXT NOT NULL DEFAULT '',
	added_via  TEXT NOT NULL DEFAULT 'manual',
	PRIMARY KEY (channel_id, member_id),
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE INDEX IF NOT EXISTS idx_memberships_member ON memberships(member_id);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	author_id  TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *ChannelStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single transaction. SQLite serializes writers, so
// combined with the manager's per-channel lock this gives the leave
// algorithm a consistent read-then-write scope.
func (s *ChannelStore) WithTx(ctx context.Context, fn func(tx store.ChannelTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "beginning transaction")
	}

	if err := fn(queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return rderr.Join(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "committing transaction")
	}
	return nil
}

// queries implements store.ChannelTx over a querier.
type queries struct {
	q querier
}

var _ store.ChannelTx = queries{}

const channelColumns = `id, kind, name, avatar_ref, department_id, project_id, is_private, member_count,
last_activity_at, is_archived, archived_at, archived_by,
auto_sync_enabled, allow_external_members, admin_only_post, admin_only_add,
created_by, created_at, updated_at`

func (s queries) CreateChannel(ctx context.Context, ch *store.Channel) error {
	const q = `INSERT INTO channels (` + channelColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, q,
		ch.ID,
		string(ch.Kind),
		ch.Name,
		ch.AvatarRef,
		ch.DepartmentID,
		ch.ProjectID,
		boolToInt(ch.IsPrivate),
		ch.MemberCount,
		formatTime(ch.LastActivityAt),
		boolToInt(ch.IsArchived),
		formatTime(ch.ArchivedAt),
		ch.ArchivedBy,
		boolToInt(ch.Settings.AutoSyncEnabled),
		boolToInt(ch.Settings.AllowExternalMembers),
		boolToInt(ch.Settings.AdminOnlyPost),
		boolToInt(ch.Settings.AdminOnlyAdd),
		ch.CreatedBy,
		formatTime(ch.CreatedAt),
		formatTime(ch.UpdatedAt),
	)
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "creating channel %s", ch.ID)
	}
	return nil
}

func (s queries) GetChannel(ctx context.Context, id string) (*store.Channel, error) {
	const q = `SELECT ` + channelColumns + ` FROM channels WHERE id = ?`

	ch, err := scanChannel(s.q.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rderr.New(rderr.CodeStoreChannelNotFound, "channel not found", rderr.FieldChannelID(id))
	}
	if err != nil {
		return nil, rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "getting channel %s", id)
	}
	return ch, nil
}

func (s queries) UpdateChannel(ctx context.Context, id string, upd store.ChannelUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.AvatarRef != nil {
		sets = append(sets, "avatar_ref = ?")
		args = append(args, *upd.AvatarRef)
	}
	if upd.IsPrivate != nil {
		sets = append(sets, "is_private = ?")
		args = append(args, boolToInt(*upd.IsPrivate))
	}
	if upd.MemberCount != nil {
		sets = append(sets, "member_count = ?")
		args = append(args, *upd.MemberCount)
	}
	if upd.LastActivityAt != nil {
		sets = append(sets, "last_activity_at = ?")
		args = append(args, formatTime(*upd.LastActivityAt))
	}
	if upd.IsArchived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, boolToInt(*upd.IsArchived))
	}
	if upd.ArchivedAt != nil {
		sets = append(sets, "archived_at = ?")
		args = append(args, formatTime(*upd.ArchivedAt))
	}
	if upd.ArchivedBy != nil {
		sets = append(sets, "archived_by = ?")
		args = append(args, *upd.ArchivedBy)
	}
	if upd.Settings != nil {
		sets = append(sets,
			"auto_sync_enabled = ?", "allow_external_members = ?",
			"admin_only_post = ?", "admin_only_add = ?")
		args = append(args,
			boolToInt(upd.Settings.AutoSyncEnabled), boolToInt(upd.Settings.AllowExternalMembers),
			boolToInt(upd.Settings.AdminOnlyPost), boolToInt(upd.Settings.AdminOnlyAdd))
	}

	args = append(args, id)
	q := "UPDATE channels SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := s.q.ExecContext(ctx, q, args...)
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "updating channel %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "checking rows affected for channel %s", id)
	}
	if rows == 0 {
		return rderr.New(rderr.CodeStoreChannelNotFound, "channel not found", rderr.FieldChannelID(id))
	}
	return nil
}

func (s queries) ListChannelsForMember(ctx context.Context, memberID string) ([]*store.Channel, error) {
	const q = `SELECT ` + channelColumns + ` FROM channels
WHERE id IN (SELECT channel_id FROM memberships WHERE member_id = ?)
ORDER BY last_activity_at DESC, id ASC`

	rows, err := s.q.QueryContext(ctx, q, memberID)
	if err != nil {
		return nil, rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "listing channels for member %s", memberID)
	}
	defer rows.Close()

	var channels []*store.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "scanning channel row")
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "iterating channel rows")
	}
	return channels, nil
}

func (s queries) ListMembers(ctx context.Context, channelID string) ([]*store.Membership, error) {
	const q = `SELECT channel_id, member_id, role, joined_at, added_by, added_via
FROM memberships WHERE channel_id = ? ORDER BY joined_at ASC, member_id ASC`

	rows, err := s.q.QueryContext(ctx, q, channelID)
	if err != nil {
		return nil, rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "listing members of channel %s", channelID)
	}
	defer rows.Close()

	var members []*store.Membership
	for rows.Next() {
		var m store.Membership
		var joinedAt string
		if err := rows.Scan(&m.ChannelID, &m.MemberID, &m.Role, &joinedAt, &m.AddedBy, &m.AddedVia); err != nil {
			return nil, rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "scanning membership row")
		}
		m.JoinedAt = parseTime(joinedAt)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "iterating membership rows")
	}
	return members, nil
}

func (s queries) FindMembership(ctx context.Context, channelID, memberID string) (*store.Membership, error) {
	const q = `SELECT channel_id, member_id, role, joined_at, added_by, added_via
FROM memberships WHERE channel_id = ? AND member_id = ?`

	var m store.Membership
	var joinedAt string
	err := s.q.QueryRowContext(ctx, q, channelID, memberID).Scan(
		&m.ChannelID, &m.MemberID, &m.Role, &joinedAt, &m.AddedBy, &m.AddedVia,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rderr.New(rderr.CodeStoreMembershipNotFound, "membership not found",
			rderr.FieldChannelID(channelID), rderr.FieldMemberID(memberID))
	}
	if err != nil {
		return nil, rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "finding membership %s/%s", channelID, memberID)
	}
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

func (s queries) InsertMembership(ctx context.Context, m *store.Membership) error {
	const q = `INSERT INTO memberships (channel_id, member_id, role, joined_at, added_by, added_via)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, q,
		m.ChannelID, m.MemberID, string(m.Role), formatTime(m.JoinedAt), m.AddedBy, string(m.AddedVia))
	if isConstraintErr(err) {
		return rderr.New(rderr.CodeStoreMembershipConflict, "membership already exists",
			rderr.FieldChannelID(m.ChannelID), rderr.FieldMemberID(m.MemberID))
	}
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "inserting membership %s/%s", m.ChannelID, m.MemberID)
	}
	return nil
}

func (s queries) UpdateMembershipRole(ctx context.Context, channelID, memberID string, role store.Role) error {
	const q = `UPDATE memberships SET role = ? WHERE channel_id = ? AND member_id = ?`

	result, err := s.q.ExecContext(ctx, q, string(role), channelID, memberID)
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "updating role of %s/%s", channelID, memberID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "checking rows affected for role update")
	}
	if rows == 0 {
		return rderr.New(rderr.CodeStoreMembershipNotFound, "membership not found",
			rderr.FieldChannelID(channelID), rderr.FieldMemberID(memberID))
	}
	return nil
}

func (s queries) DeleteMembership(ctx context.Context, channelID, memberID string) error {
	const q = `DELETE FROM memberships WHERE channel_id = ? AND member_id = ?`

	result, err := s.q.ExecContext(ctx, q, channelID, memberID)
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "deleting membership %s/%s", channelID, memberID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "checking rows affected for membership delete")
	}
	if rows == 0 {
		return rderr.New(rderr.CodeStoreMembershipNotFound, "membership not found",
			rderr.FieldChannelID(channelID), rderr.FieldMemberID(memberID))
	}
	return nil
}

func (s queries) CountMembers(ctx context.Context, channelID string, roles ...store.Role) (int, error) {
	q := `SELECT COUNT(*) FROM memberships WHERE channel_id = ?`
	args := []any{channelID}

	if len(roles) > 0 {
		placeholders := make([]string, len(roles))
		for i, r := range roles {
			placeholders[i] = "?"
			args = append(args, string(r))
		}
		q += " AND role IN (" + strings.Join(placeholders, ", ") + ")"
	}

	var count int
	if err := s.q.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "counting members of channel %s", channelID)
	}
	return count, nil
}

func (s queries) InsertMessage(ctx context.Context, msg *store.Message) error {
	const q = `INSERT INTO messages (id, channel_id, author_id, content, created_at)
VALUES (?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, q, msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, formatTime(msg.CreatedAt))
	if err != nil {
		return rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "inserting message %s", msg.ID)
	}
	return nil
}

func (s queries) ListMessages(ctx context.Context, channelID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	// Inner query selects the newest rows; outer flips them oldest-first.
	const q = `SELECT id, channel_id, author_id, content, created_at FROM (
	SELECT id, channel_id, author_id, content, created_at
	FROM messages WHERE channel_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, q, channelID, limit)
	if err != nil {
		return nil, rderr.Wrapf(err, rderr.CodeStoreDatabaseFailure, "listing messages of channel %s", channelID)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var m store.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &createdAt); err != nil {
			return nil, rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "scanning message row")
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, rderr.Wrap(err, rderr.CodeStoreDatabaseFailure, "iterating message rows")
	}
	return msgs, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*store.Channel, error) {
	var ch store.Channel
	var kind string
	var isPrivate, isArchived int
	var lastActivity, archivedAt, createdAt, updatedAt string
	var autoSync, allowExternal, adminPost, adminAdd sql.NullBool

	err := row.Scan(
		&ch.ID,
		&kind,
		&ch.Name,
		&ch.AvatarRef,
		&ch.DepartmentID,
		&ch.ProjectID,
		&isPrivate,
		&ch.MemberCount,
		&lastActivity,
		&isArchived,
		&archivedAt,
		&ch.ArchivedBy,
		&autoSync,
		&allowExternal,
		&adminPost,
		&adminAdd,
		&ch.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ch.Kind = store.ChannelKind(kind)
	ch.IsPrivate = isPrivate != 0
	ch.IsArchived = isArchived != 0
	ch.LastActivityAt = parseTime(lastActivity)
	ch.ArchivedAt = parseTime(archivedAt)
	ch.CreatedAt = parseTime(createdAt)
	ch.UpdatedAt = parseTime(updatedAt)

	// Settings columns predate the typed struct and may be NULL on rows
	// written by earlier schema versions; defaults are applied here, at the
	// read boundary.
	defaults := store.DefaultSettings()
	ch.Settings = store.ChannelSettings{
		AutoSyncEnabled:      nullBool(autoSync, defaults.AutoSyncEnabled),
		AllowExternalMembers: nullBool(allowExternal, defaults.AllowExternalMembers),
		AdminOnlyPost:        nullBool(adminPost, defaults.AdminOnlyPost),
		AdminOnlyAdd:         nullBool(adminAdd, defaults.AdminOnlyAdd),
	}

	return &ch, nil
}

func nullBool(v sql.NullBool, def bool) bool {
	if v.Valid {
		return v.Bool
	}
	return def
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
