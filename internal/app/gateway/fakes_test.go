package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"concord/internal/app/perm"
	"concord/internal/app/store"
)

// memStore is an in-memory implementation of every store contract, letting
// gateway tests run without postgres.
type memStore struct {
	mu sync.Mutex

	owners       map[string]string          // serverID -> owner userID
	banned       map[string]bool            // serverID|userID
	members      map[string]bool            // serverID|userID
	roles        map[string][]perm.Role     // serverID|userID
	overrides    map[string][]perm.Override // channelID
	channels     map[string]*store.Channel
	messages     map[string]*store.Message
	participants map[string]map[string]bool // conversationID -> userID set
}

func newMemStore() *memStore {
	return &memStore{
		owners:       make(map[string]string),
		banned:       make(map[string]bool),
		members:      make(map[string]bool),
		roles:        make(map[string][]perm.Role),
		overrides:    make(map[string][]perm.Override),
		channels:     make(map[string]*store.Channel),
		messages:     make(map[string]*store.Message),
		participants: make(map[string]map[string]bool),
	}
}

func key(serverID, userID string) string { return serverID + "|" + userID }

func (m *memStore) addChannel(serverID string, t store.ChannelType, slowMode int) *store.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := &store.Channel{ID: uuid.NewString(), ServerID: serverID, Type: t, SlowModeSeconds: slowMode}
	m.channels[ch.ID] = ch
	return ch
}

func (m *memStore) addMember(serverID, userID string, roles ...perm.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[key(serverID, userID)] = true
	m.roles[key(serverID, userID)] = roles
}

func (m *memStore) grantRole(serverID, userID string, role perm.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(serverID, userID)
	m.roles[k] = append(m.roles[k], role)
}

func (m *memStore) addOverride(channelID string, o perm.Override) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[channelID] = append(m.overrides[channelID], o)
}

func (m *memStore) addConversation(users ...string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	set := make(map[string]bool)
	for _, u := range users {
		set[u] = true
	}
	m.participants[id] = set
	return id
}

func (m *memStore) RolesOf(_ context.Context, userID, serverID string) ([]perm.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]perm.Role(nil), m.roles[key(serverID, userID)]...), nil
}

func (m *memStore) OverridesOf(_ context.Context, channelID string) ([]perm.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]perm.Override(nil), m.overrides[channelID]...), nil
}

func (m *memStore) IsOwner(_ context.Context, userID, serverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[serverID] == userID, nil
}

func (m *memStore) IsBanned(_ context.Context, userID, serverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banned[key(serverID, userID)], nil
}

func (m *memStore) IsMember(_ context.Context, userID, serverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[key(serverID, userID)], nil
}

func (m *memStore) ChannelByID(_ context.Context, channelID string) (*store.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *ch
	return &out, nil
}

func (m *memStore) Create(_ context.Context, msg *store.Message) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *msg
	out.ID = uuid.NewString()
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now
	m.messages[out.ID] = &out
	copied := out
	return &copied, nil
}

func (m *memStore) Get(_ context.Context, messageID string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *msg
	return &out, nil
}

func (m *memStore) Update(_ context.Context, messageID, content string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.Deleted {
		return nil, store.ErrNotFound
	}
	msg.Content = content
	msg.UpdatedAt = time.Now().UTC()
	out := *msg
	return &out, nil
}

func (m *memStore) SoftDelete(_ context.Context, messageID string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.Deleted {
		return nil, store.ErrNotFound
	}
	msg.Deleted = true
	msg.UpdatedAt = time.Now().UTC()
	out := *msg
	return &out, nil
}

func (m *memStore) LastMessageTimestamp(_ context.Context, channelID, authorID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	found := false
	for _, msg := range m.messages {
		if msg.ChannelID == channelID && msg.AuthorID == authorID && !msg.Deleted {
			if !found || msg.CreatedAt.After(latest) {
				latest = msg.CreatedAt
				found = true
			}
		}
	}
	return latest, found, nil
}

func (m *memStore) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.participants[conversationID]
	if !ok {
		return false, store.ErrNotFound
	}
	return set[userID], nil
}

// --- harness ---

func newTestGateway() (*Gateway, *memStore) {
	ms := newMemStore()
	gw := New(NewHub(), NewVoiceState(), Stores{
		Roles:         ms,
		Channels:      ms,
		Messages:      ms,
		Conversations: ms,
	})
	return gw, ms
}

func testConn(gw *Gateway, name string) *Conn {
	return gw.Connect(nil, Identity{
		UserID:      uuid.NewString(),
		DisplayName: name,
	})
}

// frame builds an inbound action frame.
func frame(t *testing.T, kind string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	out, err := json.Marshal(map[string]json.RawMessage{
		"type":    json.RawMessage(fmt.Sprintf("%q", kind)),
		"payload": raw,
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return out
}

type recvedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// recvEvent pops one queued outbound event, failing if none is pending.
func recvEvent(t *testing.T, c *Conn) recvedEvent {
	t.Helper()
	select {
	case raw := <-c.send:
		var ev recvedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatal("no pending event")
		return recvedEvent{}
	}
}

// expectNoEvent asserts the connection's queue is empty.
func expectNoEvent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected event: %s", raw)
	default:
	}
}

// expectError pops one event and asserts it is an error with the given scope.
func expectError(t *testing.T, c *Conn, scope string) ErrorPayload {
	t.Helper()
	ev := recvEvent(t, c)
	if ev.Type != EventError {
		t.Fatalf("event type = %q, want %q (payload %s)", ev.Type, EventError, ev.Payload)
	}
	var p ErrorPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.Scope != scope {
		t.Fatalf("error scope = %q, want %q", p.Scope, scope)
	}
	return p
}
