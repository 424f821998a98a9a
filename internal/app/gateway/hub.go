package gateway

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"concord/internal/pkg/logx"
)

// RoomKey identifies a logical room. Keys are namespaced so a connection can
// hold one text-channel subscription and one voice-room subscription at once
// without collisions.
type RoomKey string

// ChannelRoom returns the room key for a text channel's subscribers.
func ChannelRoom(channelID string) RoomKey {
	return RoomKey("channel:" + channelID)
}

// ConversationRoom returns the room key for a direct conversation.
func ConversationRoom(conversationID string) RoomKey {
	return RoomKey("conversation:" + conversationID)
}

// VoiceRoom returns the room key for a voice channel's participants.
func VoiceRoom(channelID string) RoomKey {
	return RoomKey("voice:" + channelID)
}

// Hub owns the room membership tables and the live connection registry. All
// mutations on a room's membership set are linearized under one mutex; the
// authorization decision for a join happens in the gateway before the hub is
// touched, so the hub itself never admits or rejects.
type Hub struct {
	mu sync.RWMutex

	// conns maps connection id to connection; the signaling relay resolves
	// targets here.
	conns map[string]*Conn

	// rooms maps room key to member set.
	rooms map[RoomKey]map[*Conn]struct{}

	// membership is the reverse index used for disconnect cleanup.
	membership map[*Conn]map[RoomKey]struct{}

	logger zerolog.Logger
}

// NewHub returns an empty hub. State is injected into the gateway at
// construction so tests can run isolated instances.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*Conn),
		rooms:      make(map[RoomKey]map[*Conn]struct{}),
		membership: make(map[*Conn]map[RoomKey]struct{}),
		logger:     logx.With("hub"),
	}
}

// Register adds the connection to the registry.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.ID] = c
	h.membership[c] = make(map[RoomKey]struct{})
}

// Unregister removes the connection from the registry and from every room it
// belongs to. It returns the keys it was removed from. Safe to call more than
// once; subsequent calls return nil.
func (h *Hub) Unregister(c *Conn) []RoomKey {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.ID]; !ok {
		return nil
	}
	delete(h.conns, c.ID)

	var keys []RoomKey
	for key := range h.membership[c] {
		h.removeLocked(c, key)
		keys = append(keys, key)
	}
	delete(h.membership, c)

	return keys
}

// Connection returns the live connection with the given id, or nil.
func (h *Hub) Connection(id string) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id]
}

// Join records the connection as a member of the room. Idempotent.
// Unregistered connections are ignored so a join racing a disconnect cannot
// leak a membership entry.
func (h *Hub) Join(c *Conn, key RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.membership[c]
	if !ok {
		h.logger.Warn().Str("connection_id", c.ID).Str("room", string(key)).
			Msg("Join ignored for unregistered connection.")
		return
	}

	room := h.rooms[key]
	if room == nil {
		room = make(map[*Conn]struct{})
		h.rooms[key] = room
	}
	room[c] = struct{}{}
	members[key] = struct{}{}
}

// Leave removes the connection from the room. Idempotent: leaving a room the
// connection is not in is a no-op.
func (h *Hub) Leave(c *Conn, key RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c, key)
	if members, ok := h.membership[c]; ok {
		delete(members, key)
	}
}

// removeLocked prunes empty rooms so abandoned keys do not accumulate.
func (h *Hub) removeLocked(c *Conn, key RoomKey) {
	room, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, key)
	}
}

// InRoom reports whether the connection currently belongs to the room.
func (h *Hub) InRoom(c *Conn, key RoomKey) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.rooms[key][c]
	return ok
}

// Broadcast sends the event to every member of the room. Fire-and-forget: a
// member with a full outbound queue drops the frame rather than stalling the
// others.
func (h *Hub) Broadcast(key RoomKey, event Event) {
	h.BroadcastExcept(key, event, nil)
}

// BroadcastExcept sends the event to every member of the room except exclude.
func (h *Hub) BroadcastExcept(key RoomKey, event Event, exclude *Conn) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", event.Type).Msg("Error marshaling event for broadcast.")
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[key]))
	for c := range h.rooms[key] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}
