package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"concord/internal/app/db"
	"concord/internal/app/perm"
)

// Postgres implements every store contract against a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// RolesOf returns the member's assigned roles plus the server's implicit
// default role, which every member holds.
func (s *Postgres) RolesOf(ctx context.Context, userID, serverID string) ([]perm.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.permissions, r.is_default
		FROM roles r
		WHERE r.server_id = $2
		  AND (r.is_default OR EXISTS (
			SELECT 1 FROM member_roles mr
			WHERE mr.role_id = r.id AND mr.user_id = $1
		  ))`,
		userID, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []perm.Role
	for rows.Next() {
		var (
			id   string
			bits int64
			def  bool
		)
		if err := rows.Scan(&id, &bits, &def); err != nil {
			return nil, err
		}
		roles = append(roles, perm.Role{ID: id, Bits: perm.Permission(uint64(bits)), IsDefault: def})
	}
	return roles, rows.Err()
}

// OverridesOf returns every role override on the channel.
func (s *Postgres) OverridesOf(ctx context.Context, channelID string) ([]perm.Override, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role_id, allow, deny
		FROM channel_role_overrides
		WHERE channel_id = $1`,
		channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []perm.Override
	for rows.Next() {
		var (
			roleID      string
			allow, deny int64
		)
		if err := rows.Scan(&roleID, &allow, &deny); err != nil {
			return nil, err
		}
		overrides = append(overrides, perm.Override{
			RoleID: roleID,
			Allow:  perm.Permission(uint64(allow)),
			Deny:   perm.Permission(uint64(deny)),
		})
	}
	return overrides, rows.Err()
}

// IsOwner reports whether the user owns the server.
func (s *Postgres) IsOwner(ctx context.Context, userID, serverID string) (bool, error) {
	var owner bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM servers WHERE id = $2 AND owner_id = $1)`,
		userID, serverID).Scan(&owner)
	return owner, err
}

// IsBanned reports whether the member row carries the banned flag.
func (s *Postgres) IsBanned(ctx context.Context, userID, serverID string) (bool, error) {
	var banned bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM members
			WHERE server_id = $2 AND user_id = $1 AND banned)`,
		userID, serverID).Scan(&banned)
	return banned, err
}

// IsMember reports whether the user is a member of the server.
func (s *Postgres) IsMember(ctx context.Context, userID, serverID string) (bool, error) {
	var member bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM members
			WHERE server_id = $2 AND user_id = $1)`,
		userID, serverID).Scan(&member)
	return member, err
}

// ChannelByID returns the channel or ErrNotFound.
func (s *Postgres) ChannelByID(ctx context.Context, channelID string) (*Channel, error) {
	ch := &Channel{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, server_id, type, slow_mode_seconds
		FROM channels
		WHERE id = $1`,
		channelID).Scan(&ch.ID, &ch.ServerID, &ch.Type, &ch.SlowModeSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Create persists a new message, assigning id and timestamps.
func (s *Postgres) Create(ctx context.Context, msg *Message) (*Message, error) {
	out := *msg
	out.ID = uuid.NewString()
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, conversation_id, author_id, content, parent_id, created_at, updated_at, deleted)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $7, FALSE)`,
		out.ID, out.ChannelID, out.ConversationID, out.AuthorID, out.Content, out.ParentID, now)
	if db.IsForeignKeyViolation(err) {
		// Channel, conversation, or parent vanished after the permission check.
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the message by id, deleted or not.
func (s *Postgres) Get(ctx context.Context, messageID string) (*Message, error) {
	msg := &Message{}
	var channelID, conversationID, parentID *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, channel_id, conversation_id, author_id, content, parent_id, created_at, updated_at, deleted
		FROM messages
		WHERE id = $1`,
		messageID).Scan(&msg.ID, &channelID, &conversationID, &msg.AuthorID, &msg.Content, &parentID, &msg.CreatedAt, &msg.UpdatedAt, &msg.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if channelID != nil {
		msg.ChannelID = *channelID
	}
	if conversationID != nil {
		msg.ConversationID = *conversationID
	}
	if parentID != nil {
		msg.ParentID = *parentID
	}
	return msg, nil
}

// Update replaces the content of a non-deleted message.
func (s *Postgres) Update(ctx context.Context, messageID, content string) (*Message, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET content = $2, updated_at = NOW()
		WHERE id = $1 AND NOT deleted`,
		messageID, content)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, messageID)
}

// SoftDelete marks the message deleted, keeping the row for history queries.
func (s *Postgres) SoftDelete(ctx context.Context, messageID string) (*Message, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT deleted`,
		messageID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, messageID)
}

// LastMessageTimestamp returns the creation time of the author's most recent
// non-deleted message in the channel.
func (s *Postgres) LastMessageTimestamp(ctx context.Context, channelID, authorID string) (time.Time, bool, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT created_at
		FROM messages
		WHERE channel_id = $1 AND author_id = $2 AND NOT deleted
		ORDER BY created_at DESC
		LIMIT 1`,
		channelID, authorID).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *Postgres) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`,
		conversationID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}

	var participant bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID).Scan(&participant)
	return participant, err
}
