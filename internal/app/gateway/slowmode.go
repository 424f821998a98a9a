package gateway

import (
	"context"
	"time"

	"concord/internal/app/perm"
	"concord/internal/app/store"
	"concord/internal/pkg/errs"
)

// SlowMode gates message creation against a channel's per-author cooldown.
// The timer derives from the author's most recent non-deleted message, so no
// separate timer state is kept.
type SlowMode struct {
	messages store.MessageStore

	// now is replaceable in tests.
	now func() time.Time
}

// NewSlowMode returns an enforcer reading timestamps through the message store.
func NewSlowMode(messages store.MessageStore) *SlowMode {
	return &SlowMode{
		messages: messages,
		now:      time.Now,
	}
}

// Check returns nil when the author may send now, or a RateLimited error
// carrying the remaining whole seconds to wait.
//
// MANAGE_SERVER holders bypass slow mode entirely; the exemption is checked
// before the timestamp lookup so privileged senders cost no query. The check
// and the subsequent write are not atomic: two concurrent sends from the same
// author may both pass inside the window. Accepted looseness.
func (s *SlowMode) Check(ctx context.Context, channel *store.Channel, authorID string, effective perm.Permission) (*errs.CustomError, error) {
	if channel.SlowModeSeconds <= 0 {
		return nil, nil
	}

	if effective.Has(perm.ManageServer) {
		return nil, nil
	}

	lastSentAt, ok, err := s.messages.LastMessageTimestamp(ctx, channel.ID, authorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	cooldown := time.Duration(channel.SlowModeSeconds) * time.Second
	elapsed := s.now().Sub(lastSentAt)
	if elapsed >= cooldown {
		return nil, nil
	}

	// Whole seconds, rounded down, floored at 1 so the client is never told
	// to wait zero.
	wait := int((cooldown - elapsed) / time.Second)
	if wait < 1 {
		wait = 1
	}

	return errs.NewError(errs.ErrSlowMode, wait), nil
}
