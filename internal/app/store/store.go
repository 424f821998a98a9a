/*
Package store defines the persistence collaborator contracts consumed by the
gateway, plus their PostgreSQL implementations.

The gateway never caches what these return: role and override state may change
between actions, so every gated action re-reads through these interfaces.
Tests substitute in-memory fakes.
*/
package store

import (
	"context"
	"errors"
	"time"

	"concord/internal/app/perm"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ChannelType discriminates channel behavior.
type ChannelType string

const (
	ChannelText     ChannelType = "TEXT"
	ChannelVoice    ChannelType = "VOICE"
	ChannelCategory ChannelType = "CATEGORY"
)

// Channel is the gateway-relevant slice of a channel row.
type Channel struct {
	ID       string
	ServerID string
	Type     ChannelType

	// SlowModeSeconds is the per-author cooldown for TEXT channels; 0 disables slow mode.
	SlowModeSeconds int
}

// Message is a persisted chat message. Exactly one of ChannelID and
// ConversationID is set, depending on where the message lives.
type Message struct {
	ID             string
	ChannelID      string
	ConversationID string
	AuthorID       string
	Content        string
	ParentID       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Deleted        bool
}

// InChannel reports whether the message belongs to the given channel.
func (m *Message) InChannel(channelID string) bool {
	return m.ChannelID != "" && m.ChannelID == channelID
}

// InConversation reports whether the message belongs to the given conversation.
func (m *Message) InConversation(conversationID string) bool {
	return m.ConversationID != "" && m.ConversationID == conversationID
}

// RoleStore supplies membership and permission inputs for one server.
type RoleStore interface {
	// RolesOf returns every role assigned to the user on the server,
	// including the server's implicit default role.
	RolesOf(ctx context.Context, userID, serverID string) ([]perm.Role, error)

	// OverridesOf returns every channel role override rows for the channel,
	// regardless of role; the permission engine filters by the member's role set.
	OverridesOf(ctx context.Context, channelID string) ([]perm.Override, error)

	// IsOwner reports whether the user owns the server.
	IsOwner(ctx context.Context, userID, serverID string) (bool, error)

	// IsBanned reports whether the user is banned from the server.
	IsBanned(ctx context.Context, userID, serverID string) (bool, error)

	// IsMember reports whether the user is a member of the server.
	IsMember(ctx context.Context, userID, serverID string) (bool, error)
}

// ChannelStore resolves channels for gating decisions.
type ChannelStore interface {
	// ChannelByID returns the channel or ErrNotFound.
	ChannelByID(ctx context.Context, channelID string) (*Channel, error)
}

// MessageStore is the durable message collaborator.
type MessageStore interface {
	// Create persists a new message and returns it with server-assigned fields.
	Create(ctx context.Context, msg *Message) (*Message, error)

	// Get returns the message by id (deleted or not) or ErrNotFound.
	Get(ctx context.Context, messageID string) (*Message, error)

	// Update replaces the content of a non-deleted message.
	Update(ctx context.Context, messageID, content string) (*Message, error)

	// SoftDelete marks the message deleted, keeping the row.
	SoftDelete(ctx context.Context, messageID string) (*Message, error)

	// LastMessageTimestamp returns the creation time of the author's most
	// recent non-deleted message in the channel. ok is false when the author
	// has no messages there.
	LastMessageTimestamp(ctx context.Context, channelID, authorID string) (t time.Time, ok bool, err error)
}

// ConversationStore resolves direct-conversation membership.
type ConversationStore interface {
	// IsParticipant reports whether the user belongs to the conversation.
	// A missing conversation returns ErrNotFound.
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}
