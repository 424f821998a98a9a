package gateway

import (
	"testing"
)

func TestHubJoinLeaveBroadcast(t *testing.T) {
	gw, _ := newTestGateway()
	h := gw.hub

	a := testConn(gw, "a")
	b := testConn(gw, "b")
	c := testConn(gw, "c")

	room := ChannelRoom("ch-1")
	h.Join(a, room)
	h.Join(b, room)

	h.Broadcast(room, Event{Type: "ping"})
	if ev := recvEvent(t, a); ev.Type != "ping" {
		t.Fatalf("a got %q", ev.Type)
	}
	if ev := recvEvent(t, b); ev.Type != "ping" {
		t.Fatalf("b got %q", ev.Type)
	}
	expectNoEvent(t, c)
}

func TestHubBroadcastExcept(t *testing.T) {
	gw, _ := newTestGateway()
	h := gw.hub

	a := testConn(gw, "a")
	b := testConn(gw, "b")
	room := ChannelRoom("ch-1")
	h.Join(a, room)
	h.Join(b, room)

	h.BroadcastExcept(room, Event{Type: "ping"}, a)
	expectNoEvent(t, a)
	if ev := recvEvent(t, b); ev.Type != "ping" {
		t.Fatalf("b got %q", ev.Type)
	}
}

func TestHubLeaveIdempotent(t *testing.T) {
	gw, _ := newTestGateway()
	h := gw.hub

	a := testConn(gw, "a")
	room := ChannelRoom("ch-1")

	h.Leave(a, room) // never joined
	h.Join(a, room)
	h.Leave(a, room)
	h.Leave(a, room)

	if h.InRoom(a, room) {
		t.Fatal("still in room after leave")
	}
}

func TestHubNamespacedKeysDoNotCollide(t *testing.T) {
	gw, _ := newTestGateway()
	h := gw.hub

	a := testConn(gw, "a")
	h.Join(a, ChannelRoom("x"))
	h.Join(a, VoiceRoom("x"))

	h.Leave(a, VoiceRoom("x"))
	if !h.InRoom(a, ChannelRoom("x")) {
		t.Fatal("leaving the voice room evicted the channel room membership")
	}
}

func TestHubUnregisterRemovesEverywhere(t *testing.T) {
	gw, _ := newTestGateway()
	h := gw.hub

	a := testConn(gw, "a")
	h.Join(a, ChannelRoom("x"))
	h.Join(a, ConversationRoom("y"))
	h.Join(a, VoiceRoom("z"))

	keys := h.Unregister(a)
	if len(keys) != 3 {
		t.Fatalf("unregistered from %d rooms, want 3", len(keys))
	}
	for _, k := range []RoomKey{ChannelRoom("x"), ConversationRoom("y"), VoiceRoom("z")} {
		if h.InRoom(a, k) {
			t.Fatalf("still in %s after unregister", k)
		}
	}
	if h.Connection(a.ID) != nil {
		t.Fatal("still resolvable after unregister")
	}

	// Second unregister is a no-op.
	if keys := h.Unregister(a); keys != nil {
		t.Fatalf("second unregister returned %v", keys)
	}

	// Joins after unregister must not leak membership.
	h.Join(a, ChannelRoom("x"))
	if h.InRoom(a, ChannelRoom("x")) {
		t.Fatal("join after unregister recorded membership")
	}
}
