package perm

import (
	"math/rand"
	"testing"
)

func TestEffectiveOwnerOverride(t *testing.T) {
	// An owner with zero roles still computes to the full set.
	got := Effective(true, nil, nil)
	if got != All {
		t.Fatalf("owner effective = %v, want ALL", got)
	}

	// Owner wins even when overrides deny everything.
	overrides := []Override{{RoleID: "r1", Deny: All}}
	roles := []Role{{ID: "r1", Bits: 0}}
	if got := Effective(true, roles, overrides); got != All {
		t.Fatalf("owner with deny-all override = %v, want ALL", got)
	}
}

func TestEffectiveBaseIsUnionOfRoles(t *testing.T) {
	roles := []Role{
		{ID: "default", Bits: ViewChannel | SendMessage, IsDefault: true},
		{ID: "dj", Bits: ConnectVoice | Speak},
	}

	got := Effective(false, roles, nil)
	want := ViewChannel | SendMessage | ConnectVoice | Speak
	if got != want {
		t.Fatalf("effective = %v, want %v", got, want)
	}
}

func TestEffectiveNoRoles(t *testing.T) {
	if got := Effective(false, nil, nil); got != 0 {
		t.Fatalf("effective with no roles = %v, want 0", got)
	}
}

func TestEffectiveDenyThenAllow(t *testing.T) {
	// The same bit both denied and allowed on the same channel: allow wins.
	roles := []Role{{ID: "default", Bits: SendMessage}}
	overrides := []Override{{RoleID: "default", Allow: SendMessage, Deny: SendMessage}}

	got := Effective(false, roles, overrides)
	if !got.Has(SendMessage) {
		t.Fatalf("effective = %v, want SEND_MESSAGE present (allow wins over deny)", got)
	}
}

func TestEffectiveDenyRemovesBase(t *testing.T) {
	roles := []Role{{ID: "default", Bits: ViewChannel | SendMessage}}
	overrides := []Override{{RoleID: "default", Deny: SendMessage}}

	got := Effective(false, roles, overrides)
	if got.Has(SendMessage) {
		t.Fatalf("effective = %v, want SEND_MESSAGE denied", got)
	}
	if !got.Has(ViewChannel) {
		t.Fatalf("effective = %v, want VIEW_CHANNEL retained", got)
	}
}

func TestEffectiveAllowGrantsBeyondBase(t *testing.T) {
	roles := []Role{{ID: "default", Bits: ViewChannel}}
	overrides := []Override{{RoleID: "default", Allow: SendMessage}}

	got := Effective(false, roles, overrides)
	if !got.Has(ViewChannel | SendMessage) {
		t.Fatalf("effective = %v, want view+send", got)
	}
}

func TestEffectiveIgnoresForeignRoleOverrides(t *testing.T) {
	// Overrides for roles the member does not hold must not apply.
	roles := []Role{{ID: "default", Bits: ViewChannel | SendMessage}}
	overrides := []Override{
		{RoleID: "moderator", Allow: ManageServer},
		{RoleID: "muted", Deny: SendMessage},
	}

	got := Effective(false, roles, overrides)
	want := ViewChannel | SendMessage
	if got != want {
		t.Fatalf("effective = %v, want %v", got, want)
	}
}

func TestEffectiveOrderIndependent(t *testing.T) {
	// Bitwise OR is commutative, so role and override order must not matter.
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(6)
		roles := make([]Role, n)
		overrides := make([]Override, 0, n)
		for i := range roles {
			roles[i] = Role{
				ID:   string(rune('a' + i)),
				Bits: Permission(rng.Uint64()),
			}
			if rng.Intn(2) == 0 {
				overrides = append(overrides, Override{
					RoleID: roles[i].ID,
					Allow:  Permission(rng.Uint64()),
					Deny:   Permission(rng.Uint64()),
				})
			}
		}

		want := Effective(false, roles, overrides)

		shuffledRoles := append([]Role(nil), roles...)
		rng.Shuffle(len(shuffledRoles), func(i, j int) {
			shuffledRoles[i], shuffledRoles[j] = shuffledRoles[j], shuffledRoles[i]
		})
		shuffledOverrides := append([]Override(nil), overrides...)
		rng.Shuffle(len(shuffledOverrides), func(i, j int) {
			shuffledOverrides[i], shuffledOverrides[j] = shuffledOverrides[j], shuffledOverrides[i]
		})

		if got := Effective(false, shuffledRoles, shuffledOverrides); got != want {
			t.Fatalf("trial %d: effective order-dependent: %v != %v", trial, got, want)
		}
	}
}

func TestPermissionString(t *testing.T) {
	tests := []struct {
		p    Permission
		want string
	}{
		{0, "NONE"},
		{ViewChannel, "VIEW_CHANNEL"},
		{ViewChannel | SendMessage, "VIEW_CHANNEL|SEND_MESSAGE"},
		{All, "ALL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("Permission(%d).String() = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}

func TestHas(t *testing.T) {
	p := ViewChannel | SendMessage
	if !p.Has(ViewChannel) || !p.Has(SendMessage) || !p.Has(ViewChannel|SendMessage) {
		t.Fatal("Has should report present bits")
	}
	if p.Has(ManageServer) || p.Has(SendMessage|ManageServer) {
		t.Fatal("Has should require every requested bit")
	}
}
