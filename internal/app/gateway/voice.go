package gateway

import (
	"sync"

	"github.com/rs/zerolog"

	"concord/internal/pkg/logx"
)

// Participant is one entry in a voice room roster.
type Participant struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
}

// VoiceState is the in-memory registry of who is present in which voice room.
// It is a liveness signal, never persisted: a process restart drops every
// connection, so dropping the rosters with it is correct.
//
// A connection occupies at most one voice room at a time. Both the roster map
// and the per-connection current-room index mutate under one mutex, so the
// single-room invariant holds even under rapid repeated joins.
type VoiceState struct {
	mu sync.Mutex

	// rosters maps voice channel id to its ordered participant list.
	// Join order is preserved; the entry is pruned when the list empties.
	rosters map[string][]Participant

	// current maps connection id to the voice channel it occupies.
	// Absence means the connection is in no voice room.
	current map[string]string

	logger zerolog.Logger
}

// NewVoiceState returns an empty tracker. Injected into the gateway at
// construction so tests can run isolated instances.
func NewVoiceState() *VoiceState {
	return &VoiceState{
		rosters: make(map[string][]Participant),
		current: make(map[string]string),
		logger:  logx.With("voice"),
	}
}

// Join moves the connection into the channel's roster. If the connection
// already occupies a different room it is removed from that one first; the
// returned previous id lets the caller broadcast the old room's shrunken
// roster. changed is false when the connection was already in the channel.
func (v *VoiceState) Join(connID string, identity Identity, channelID string) (previous string, changed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	previous = v.current[connID]
	if previous == channelID {
		return "", false
	}

	if previous != "" {
		v.removeLocked(connID, previous)
	}

	v.rosters[channelID] = append(v.rosters[channelID], Participant{
		ConnectionID: connID,
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
	})
	v.current[connID] = channelID

	v.logger.Debug().
		Str("connection_id", connID).
		Str("channel_id", channelID).
		Str("previous_channel_id", previous).
		Msg("Voice join recorded")

	return previous, true
}

// Leave removes the connection from whatever voice room it occupies and
// returns that room's channel id. No-op (empty return) when the connection is
// in no voice room, so teardown can call it unconditionally.
func (v *VoiceState) Leave(connID string) (previous string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	previous = v.current[connID]
	if previous == "" {
		return ""
	}

	v.removeLocked(connID, previous)
	delete(v.current, connID)

	return previous
}

// removeLocked drops the connection from one roster, pruning the entry when
// the roster empties.
func (v *VoiceState) removeLocked(connID, channelID string) {
	roster := v.rosters[channelID]
	for i, p := range roster {
		if p.ConnectionID == connID {
			roster = append(roster[:i], roster[i+1:]...)
			break
		}
	}

	if len(roster) == 0 {
		delete(v.rosters, channelID)
	} else {
		v.rosters[channelID] = roster
	}
}

// RosterOf returns a snapshot of the channel's participants in join order.
func (v *VoiceState) RosterOf(channelID string) []Participant {
	v.mu.Lock()
	defer v.mu.Unlock()

	roster := v.rosters[channelID]
	out := make([]Participant, len(roster))
	copy(out, roster)
	return out
}

// CurrentRoom returns the voice channel the connection occupies, or "".
func (v *VoiceState) CurrentRoom(connID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current[connID]
}
