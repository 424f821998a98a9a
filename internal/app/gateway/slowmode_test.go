package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"concord/internal/app/perm"
	"concord/internal/app/store"
	"concord/internal/pkg/errs"
)

func slowModeHarness(t *testing.T, cooldown int) (*SlowMode, *memStore, *store.Channel, func(time.Time)) {
	t.Helper()
	ms := newMemStore()
	ch := ms.addChannel(serverID, store.ChannelText, cooldown)
	s := NewSlowMode(ms)
	setNow := func(now time.Time) { s.now = func() time.Time { return now } }
	return s, ms, ch, setNow
}

func TestSlowModeDisabledAlwaysAllows(t *testing.T) {
	s, _, ch, _ := slowModeHarness(t, 0)

	cerr, err := s.Check(context.Background(), ch, "author", perm.SendMessage)
	if err != nil || cerr != nil {
		t.Fatalf("check = %v, %v, want allow", cerr, err)
	}
}

func TestSlowModeBoundary(t *testing.T) {
	s, ms, ch, setNow := slowModeHarness(t, 5)
	base := time.Now().UTC()

	// No prior message: allowed.
	setNow(base)
	if cerr, _ := s.Check(context.Background(), ch, "author", perm.SendMessage); cerr != nil {
		t.Fatalf("first send rejected: %v", cerr)
	}

	created, _ := ms.Create(context.Background(), &store.Message{ChannelID: ch.ID, AuthorID: "author", Content: "x"})
	ms.messages[created.ID].CreatedAt = base

	tests := []struct {
		name       string
		elapsed    time.Duration
		wantReject bool
	}{
		{"immediately after", 0, true},
		{"mid window", 2500 * time.Millisecond, true},
		{"just under cooldown", 4999 * time.Millisecond, true},
		{"exactly at cooldown", 5 * time.Second, false},
		{"after cooldown", 6 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setNow(base.Add(tt.elapsed))
			cerr, err := s.Check(context.Background(), ch, "author", perm.SendMessage)
			if err != nil {
				t.Fatalf("check error: %v", err)
			}
			if !tt.wantReject {
				if cerr != nil {
					t.Fatalf("rejected, want allow: %v", cerr)
				}
				return
			}
			if cerr == nil {
				t.Fatal("allowed, want rejection")
			}
			if cerr.Code != errs.ErrSlowMode {
				t.Fatalf("code = %d, want %d", cerr.Code, errs.ErrSlowMode)
			}
		})
	}
}

func TestSlowModeWaitSecondsFlooredAtOne(t *testing.T) {
	s, ms, ch, setNow := slowModeHarness(t, 5)
	base := time.Now().UTC()

	created, _ := ms.Create(context.Background(), &store.Message{ChannelID: ch.ID, AuthorID: "author", Content: "x"})
	ms.messages[created.ID].CreatedAt = base

	// 4.999s elapsed leaves 1ms remaining: whole-second floor would be 0,
	// the caller is told to wait 1 instead.
	setNow(base.Add(4999 * time.Millisecond))
	cerr, _ := s.Check(context.Background(), ch, "author", perm.SendMessage)
	if cerr == nil {
		t.Fatal("allowed, want rejection")
	}
	if want := "Wait 1 seconds"; !strings.Contains(cerr.Message, want) {
		t.Fatalf("message = %q, want substring %q", cerr.Message, want)
	}

	// 2.5s remaining floors to 2 whole seconds.
	setNow(base.Add(2500 * time.Millisecond))
	cerr, _ = s.Check(context.Background(), ch, "author", perm.SendMessage)
	if cerr == nil {
		t.Fatal("allowed, want rejection")
	}
	if want := "Wait 2 seconds"; !strings.Contains(cerr.Message, want) {
		t.Fatalf("message = %q, want substring %q", cerr.Message, want)
	}
}

func TestSlowModeIgnoresDeletedMessages(t *testing.T) {
	s, ms, ch, setNow := slowModeHarness(t, 5)
	base := time.Now().UTC()

	created, _ := ms.Create(context.Background(), &store.Message{ChannelID: ch.ID, AuthorID: "author", Content: "x"})
	ms.messages[created.ID].CreatedAt = base
	if _, err := ms.SoftDelete(context.Background(), created.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	setNow(base.Add(1 * time.Second))
	if cerr, _ := s.Check(context.Background(), ch, "author", perm.SendMessage); cerr != nil {
		t.Fatalf("rejected on deleted history: %v", cerr)
	}
}

func TestSlowModeManageServerSkipsLookup(t *testing.T) {
	ms := newMemStore()
	ch := ms.addChannel(serverID, store.ChannelText, 60)
	s := NewSlowMode(lookupPanicStore{ms})

	// The exemption is checked before the timestamp lookup; a privileged
	// sender must not cost a query.
	cerr, err := s.Check(context.Background(), ch, "admin", perm.SendMessage|perm.ManageServer)
	if err != nil || cerr != nil {
		t.Fatalf("check = %v, %v, want allow without lookup", cerr, err)
	}
}

// lookupPanicStore fails the test if the timestamp lookup runs.
type lookupPanicStore struct {
	*memStore
}

func (lookupPanicStore) LastMessageTimestamp(_ context.Context, _, _ string) (time.Time, bool, error) {
	panic("timestamp lookup ran for a MANAGE_SERVER sender")
}
