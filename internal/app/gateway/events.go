/*
Package gateway implements the real-time access-controlled gateway: it binds
authenticated identities to WebSocket connections, gates every action behind
effective permission computation, tracks ephemeral voice presence, and relays
WebRTC signaling between connections.

This file defines the outbound event envelope and payload shapes.
*/
package gateway

import (
	"encoding/json"

	"concord/internal/app/store"
)

// Outbound event names.
const (
	EventError          = "error"
	EventChannelJoined  = "channel.joined"
	EventConvoJoined    = "conversation.joined"
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
	EventVoiceRoster    = "voice.roster"
	EventSignal         = "webrtc.signal"
)

// Event is the envelope for every frame the gateway sends to a client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ErrorPayload is sent to the originating connection only, never broadcast.
// Scope names the action that failed; Message is human-readable and carries
// no internal identifiers.
type ErrorPayload struct {
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

// JoinedPayload confirms a room subscription to the caller.
type JoinedPayload struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// MessagePayload is the wire shape of a persisted message.
type MessagePayload struct {
	ID              string `json:"id"`
	ChannelID       string `json:"channelId,omitempty"`
	ConversationID  string `json:"conversationId,omitempty"`
	AuthorID        string `json:"authorId"`
	Content         string `json:"content,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt"`
	Deleted         bool   `json:"deleted,omitempty"`
}

// messagePayload converts a stored message to its wire shape.
// Deleted messages keep their id and placement but drop the content.
func messagePayload(m *store.Message) MessagePayload {
	p := MessagePayload{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		ConversationID:  m.ConversationID,
		AuthorID:        m.AuthorID,
		Content:         m.Content,
		ParentMessageID: m.ParentID,
		CreatedAt:       m.CreatedAt.UnixMilli(),
		UpdatedAt:       m.UpdatedAt.UnixMilli(),
		Deleted:         m.Deleted,
	}
	if m.Deleted {
		p.Content = ""
	}
	return p
}

// RosterPayload carries a voice room's ordered participant snapshot.
type RosterPayload struct {
	ChannelID    string        `json:"channelId"`
	Participants []Participant `json:"participants"`
}

// SignalPayload is the relayed form of a WebRTC signaling frame. The gateway
// never inspects Payload.
type SignalPayload struct {
	FromConnectionID string          `json:"fromConnectionId"`
	Type             string          `json:"type"`
	Payload          json.RawMessage `json:"payload"`
}
