/*
Package perm implements effective permission computation for members against channels.

A permission set is a fixed-width bitmask; each bit grants one capability. The
effective set for a (member, channel) pair combines the member's role bitmasks
with the channel's per-role allow/deny overrides. Computation is pure: the
caller supplies a snapshot of roles and overrides, and the result is
deterministic for that snapshot.
*/
package perm

import "strings"

// Permission is a capability bitmask. Each bit grants one discrete capability.
type Permission uint64

const (
	// ViewChannel allows seeing a channel and subscribing to its room.
	ViewChannel Permission = 1 << iota

	// SendMessage allows creating messages in text channels.
	SendMessage

	// ManageMessages allows pinning and removing other members' messages.
	ManageMessages

	// ConnectVoice allows joining voice channels.
	ConnectVoice

	// Speak allows transmitting audio once connected to voice.
	Speak

	// CreateInvite allows creating server invites.
	CreateInvite

	// KickMembers allows removing members from the server.
	KickMembers

	// BanMembers allows banning members from the server.
	BanMembers

	// ManageChannels allows creating, editing, and deleting channels.
	ManageChannels

	// ManageRoles allows creating and assigning roles.
	ManageRoles

	// ManageServer grants administrative control: editing/deleting any
	// message and bypassing slow mode.
	ManageServer
)

// All is the full permission set. Server owners always compute to All.
const All = ^Permission(0)

// Default is the set granted by a server's implicit default role.
const Default = ViewChannel | SendMessage | ConnectVoice | Speak | CreateInvite

var names = []struct {
	bit  Permission
	name string
}{
	{ViewChannel, "VIEW_CHANNEL"},
	{SendMessage, "SEND_MESSAGE"},
	{ManageMessages, "MANAGE_MESSAGES"},
	{ConnectVoice, "CONNECT_VOICE"},
	{Speak, "SPEAK"},
	{CreateInvite, "CREATE_INVITE"},
	{KickMembers, "KICK_MEMBERS"},
	{BanMembers, "BAN_MEMBERS"},
	{ManageChannels, "MANAGE_CHANNELS"},
	{ManageRoles, "MANAGE_ROLES"},
	{ManageServer, "MANAGE_SERVER"},
}

// Has reports whether every bit in want is present in p.
func (p Permission) Has(want Permission) bool {
	return p&want == want
}

// String returns a pipe-separated list of the named bits set in p, for logs.
func (p Permission) String() string {
	if p == All {
		return "ALL"
	}

	var set []string
	for _, n := range names {
		if p&n.bit != 0 {
			set = append(set, n.name)
		}
	}

	if len(set) == 0 {
		return "NONE"
	}
	return strings.Join(set, "|")
}

// Role is the permission-relevant slice of a server role.
type Role struct {
	ID        string
	Bits      Permission
	IsDefault bool
}

// Override is a per-channel, per-role allow/deny pair layered on top of the
// role-derived base permission for that channel only.
type Override struct {
	RoleID string
	Allow  Permission
	Deny   Permission
}

// Effective computes the member's effective permission for one channel.
//
// Owners bypass role logic entirely and always get All. Otherwise the base is
// the OR of every assigned role's bits, and the channel overrides belonging to
// the member's roles are folded in as (base &^ deny) | allow. Deny is applied
// before allow, so an explicit per-channel allow always wins over any deny.
//
// Callers must reject banned or non-member identities before calling; a zero
// result here means "no capability", not "not a member".
func Effective(isOwner bool, roles []Role, overrides []Override) Permission {
	if isOwner {
		return All
	}

	var base Permission
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		base |= r.Bits
		roleSet[r.ID] = struct{}{}
	}

	var allow, deny Permission
	for _, o := range overrides {
		if _, ok := roleSet[o.RoleID]; !ok {
			continue
		}
		allow |= o.Allow
		deny |= o.Deny
	}

	return (base &^ deny) | allow
}
