package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"concord/internal/app/perm"
	"concord/internal/app/store"
	"concord/internal/pkg/errs"
	"concord/internal/pkg/logx"
)

// MaxContentBytes is the maximum allowed size for message content after trimming.
const MaxContentBytes = 4000

// Signal types the relay will forward. Anything else is rejected before lookup.
var signalTypes = map[string]struct{}{
	"offer":         {},
	"answer":        {},
	"ice-candidate": {},
}

// Stores bundles the persistence collaborators the gateway consumes. The
// gateway owns none of them and re-reads on every gated action; permission
// state is never cached across calls.
type Stores struct {
	Roles         store.RoleStore
	Channels      store.ChannelStore
	Messages      store.MessageStore
	Conversations store.ConversationStore
}

// Gateway coordinates authenticated connections: room membership, permission
// gating, slow mode, voice presence, and signaling relay. All mutable state
// (hub, voice) is injected at construction; there are no package-level tables.
type Gateway struct {
	hub    *Hub
	voice  *VoiceState
	slow   *SlowMode
	stores Stores
	logger zerolog.Logger
}

// New wires a gateway from its injected state and collaborators.
func New(hub *Hub, voice *VoiceState, stores Stores) *Gateway {
	return &Gateway{
		hub:    hub,
		voice:  voice,
		slow:   NewSlowMode(stores.Messages),
		stores: stores,
		logger: logx.With("gateway"),
	}
}

// Connect binds an authenticated identity to a websocket link and registers
// the connection. The caller starts the pumps.
func (g *Gateway) Connect(ws *websocket.Conn, identity Identity) *Conn {
	c := newConn(g, ws, identity)
	g.hub.Register(c)

	g.logger.Info().
		Str("connection_id", c.ID).
		Str("user_id", identity.UserID).
		Msg("Connection authenticated and registered")

	return c
}

// Dispatch routes one inbound frame. Every rejection surfaces as a scoped
// error event to the originating connection only; unexpected faults are
// caught here so a bad frame can never crash the process.
func (g *Gateway) Dispatch(c *Conn, frame []byte) {
	action, err := ParseAction(frame)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
		c.SendError("payload", errs.NewError(errs.ErrInvalidParams).Message)
		return
	}

	scope := action.Kind.String()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().
				Interface("panic", r).
				Str("scope", scope).
				Str("connection_id", c.ID).
				Msg("Recovered from panic in action handler")
			c.SendError(scope, errs.NewError(errs.ErrUnknown).Message)
		}
	}()

	ctx := context.Background()

	switch action.Kind {
	case ActionChannelJoin:
		g.handleChannelJoin(ctx, c, action.Payload)
	case ActionChannelLeave:
		g.handleChannelLeave(c, action.Payload)
	case ActionConversationJoin:
		g.handleConversationJoin(ctx, c, action.Payload)
	case ActionConversationLeave:
		g.handleConversationLeave(c, action.Payload)
	case ActionMessageCreate:
		g.handleMessageCreate(ctx, c, action.Payload)
	case ActionMessageEdit:
		g.handleMessageEdit(ctx, c, action.Payload)
	case ActionMessageDelete:
		g.handleMessageDelete(ctx, c, action.Payload)
	case ActionVoiceJoin:
		g.handleVoiceJoin(ctx, c, action.Payload)
	case ActionVoiceLeave:
		g.handleVoiceLeave(c)
	case ActionSignal:
		g.handleSignal(c, action.Payload)
	case ActionUnknown:
		c.logger.Warn().Msg("Client sent unsupported action type")
		c.SendError("unknown", errs.NewError(errs.ErrInvalidParams).Message)
	}
}

// reject delivers a business rejection to the caller. The connection stays
// open unless the rejection is an authentication failure.
func (g *Gateway) reject(c *Conn, scope string, cerr *errs.CustomError) {
	c.SendError(scope, cerr.Message)
	if errs.IsFatal(cerr) {
		c.teardown()
	}
}

// fail logs an internal fault and surfaces a generic failure. Clients never
// see internal identifiers or error chains.
func (g *Gateway) fail(c *Conn, scope string, err error) {
	g.logger.Error().Err(err).Str("scope", scope).Str("connection_id", c.ID).Msg("Internal fault during action")
	c.SendError(scope, errs.NewError(errs.ErrUnknown).Message)
}

// effectiveChannelPermission resolves the caller's effective permission for
// the channel, re-reading role and override state. Banned and non-member
// identities are rejected before the permission engine runs; a zero bitmask
// for an admitted member is a legitimate result, not a membership failure.
func (g *Gateway) effectiveChannelPermission(ctx context.Context, identity Identity, ch *store.Channel) (perm.Permission, *errs.CustomError, error) {
	banned, err := g.stores.Roles.IsBanned(ctx, identity.UserID, ch.ServerID)
	if err != nil {
		return 0, nil, err
	}
	if banned {
		return 0, errs.NewError(errs.ErrBanned), nil
	}

	member, err := g.stores.Roles.IsMember(ctx, identity.UserID, ch.ServerID)
	if err != nil {
		return 0, nil, err
	}
	if !member {
		return 0, errs.NewError(errs.ErrNotAMember), nil
	}

	owner, err := g.stores.Roles.IsOwner(ctx, identity.UserID, ch.ServerID)
	if err != nil {
		return 0, nil, err
	}

	roles, err := g.stores.Roles.RolesOf(ctx, identity.UserID, ch.ServerID)
	if err != nil {
		return 0, nil, err
	}

	overrides, err := g.stores.Roles.OverridesOf(ctx, ch.ID)
	if err != nil {
		return 0, nil, err
	}

	return perm.Effective(owner, roles, overrides), nil, nil
}

// channelForAction loads the channel, mapping a missing row to NotFound.
func (g *Gateway) channelForAction(ctx context.Context, channelID string) (*store.Channel, *errs.CustomError, error) {
	ch, err := g.stores.Channels.ChannelByID(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrChannelNotFound), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return ch, nil, nil
}

func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// --- channel rooms ---

func (g *Gateway) handleChannelJoin(ctx context.Context, c *Conn, payload []byte) {
	const scope = "channel.join"

	var req channelTarget
	if err := decodeStrict(payload, &req); err != nil || !validID(req.ChannelID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	ch, cerr, err := g.channelForAction(ctx, req.ChannelID)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	effective, cerr, err := g.effectiveChannelPermission(ctx, c.Identity, ch)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	// The coordinator never admits an unauthorized listener: the permission
	// check precedes the membership record.
	if !effective.Has(perm.ViewChannel) {
		g.reject(c, scope, errs.NewError(errs.ErrPermissionDenied))
		return
	}

	g.hub.Join(c, ChannelRoom(ch.ID))
	c.SendEvent(Event{Type: EventChannelJoined, Payload: JoinedPayload{ChannelID: ch.ID}})
}

func (g *Gateway) handleChannelLeave(c *Conn, payload []byte) {
	const scope = "channel.leave"

	var req channelTarget
	if err := decodeStrict(payload, &req); err != nil || !validID(req.ChannelID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	// Idempotent: leaving a room the caller never joined is a no-op.
	g.hub.Leave(c, ChannelRoom(req.ChannelID))
}

// --- conversation rooms ---

// conversationAccess admits only participants; a missing conversation and a
// non-participant caller are indistinguishable to the client.
func (g *Gateway) conversationAccess(ctx context.Context, c *Conn, conversationID string) (*errs.CustomError, error) {
	participant, err := g.stores.Conversations.IsParticipant(ctx, conversationID, c.Identity.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrConversationNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	if !participant {
		return errs.NewError(errs.ErrConversationNotFound), nil
	}
	return nil, nil
}

func (g *Gateway) handleConversationJoin(ctx context.Context, c *Conn, payload []byte) {
	const scope = "conversation.join"

	var req conversationTarget
	if err := decodeStrict(payload, &req); err != nil || !validID(req.ConversationID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	cerr, err := g.conversationAccess(ctx, c, req.ConversationID)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	g.hub.Join(c, ConversationRoom(req.ConversationID))
	c.SendEvent(Event{Type: EventConvoJoined, Payload: JoinedPayload{ConversationID: req.ConversationID}})
}

func (g *Gateway) handleConversationLeave(c *Conn, payload []byte) {
	const scope = "conversation.leave"

	var req conversationTarget
	if err := decodeStrict(payload, &req); err != nil || !validID(req.ConversationID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	g.hub.Leave(c, ConversationRoom(req.ConversationID))
}

// --- messages ---

// validContent trims and bounds message content.
func validContent(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(trimmed) > MaxContentBytes {
		return "", false
	}
	return trimmed, true
}

func (g *Gateway) handleMessageCreate(ctx context.Context, c *Conn, payload []byte) {
	const scope = "message.create"

	var req messageCreateRequest
	if err := decodeStrict(payload, &req); err != nil {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	content, ok := validContent(req.Content)
	if !ok {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	inChannel := req.ChannelID != ""
	inConversation := req.ConversationID != ""
	if inChannel == inConversation {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}
	if inChannel && !validID(req.ChannelID) || inConversation && !validID(req.ConversationID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}
	if req.ParentMessageID != "" && !validID(req.ParentMessageID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	msg := &store.Message{
		AuthorID: c.Identity.UserID,
		Content:  content,
		ParentID: req.ParentMessageID,
	}

	var roomKey RoomKey

	if inChannel {
		ch, cerr, err := g.channelForAction(ctx, req.ChannelID)
		if err != nil {
			g.fail(c, scope, err)
			return
		}
		if cerr != nil {
			g.reject(c, scope, cerr)
			return
		}
		if ch.Type != store.ChannelText {
			g.reject(c, scope, errs.NewError(errs.ErrChannelTypeInvalid))
			return
		}

		effective, cerr, err := g.effectiveChannelPermission(ctx, c.Identity, ch)
		if err != nil {
			g.fail(c, scope, err)
			return
		}
		if cerr != nil {
			g.reject(c, scope, cerr)
			return
		}
		if !effective.Has(perm.SendMessage) {
			g.reject(c, scope, errs.NewError(errs.ErrPermissionDenied))
			return
		}

		slowErr, err := g.slow.Check(ctx, ch, c.Identity.UserID, effective)
		if err != nil {
			g.fail(c, scope, err)
			return
		}
		if slowErr != nil {
			g.reject(c, scope, slowErr)
			return
		}

		msg.ChannelID = ch.ID
		roomKey = ChannelRoom(ch.ID)
	} else {
		cerr, err := g.conversationAccess(ctx, c, req.ConversationID)
		if err != nil {
			g.fail(c, scope, err)
			return
		}
		if cerr != nil {
			g.reject(c, scope, cerr)
			return
		}

		msg.ConversationID = req.ConversationID
		roomKey = ConversationRoom(req.ConversationID)
	}

	if req.ParentMessageID != "" {
		if cerr, err := g.checkParent(ctx, req.ParentMessageID, msg); err != nil {
			g.fail(c, scope, err)
			return
		} else if cerr != nil {
			g.reject(c, scope, cerr)
			return
		}
	}

	created, err := g.stores.Messages.Create(ctx, msg)
	if err != nil {
		g.fail(c, scope, err)
		return
	}

	g.hub.Broadcast(roomKey, Event{Type: EventMessageCreated, Payload: messagePayload(created)})
}

// checkParent enforces that a reply references a live message in the same
// channel or conversation. Cross-channel parents are rejected.
func (g *Gateway) checkParent(ctx context.Context, parentID string, msg *store.Message) (*errs.CustomError, error) {
	parent, err := g.stores.Messages.Get(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrMessageNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	if parent.Deleted {
		return errs.NewError(errs.ErrMessageDeleted), nil
	}

	sameChannel := msg.ChannelID != "" && parent.InChannel(msg.ChannelID)
	sameConversation := msg.ConversationID != "" && parent.InConversation(msg.ConversationID)
	if !sameChannel && !sameConversation {
		return errs.NewError(errs.ErrParentMismatch), nil
	}

	return nil, nil
}

// resolveMessageTarget loads the message and checks it lives where the
// payload says it does. A mismatched target reads as NotFound so callers
// cannot probe other channels' message ids.
func (g *Gateway) resolveMessageTarget(ctx context.Context, messageID, channelID, conversationID string) (*store.Message, *errs.CustomError, error) {
	msg, err := g.stores.Messages.Get(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrMessageNotFound), nil
	}
	if err != nil {
		return nil, nil, err
	}

	switch {
	case channelID != "" && msg.InChannel(channelID):
	case conversationID != "" && msg.InConversation(conversationID):
	default:
		return nil, errs.NewError(errs.ErrMessageNotFound), nil
	}

	if msg.Deleted {
		// Distinct from NotFound: the row exists but the action cannot apply.
		return nil, errs.NewError(errs.ErrMessageDeleted), nil
	}

	return msg, nil, nil
}

// authorizeMessageMutation re-checks, at call time, that the caller may edit
// or delete the message: authorship always suffices; in channels MANAGE_SERVER
// does too. Permission is never cached across actions.
func (g *Gateway) authorizeMessageMutation(ctx context.Context, c *Conn, msg *store.Message) (*errs.CustomError, error) {
	if msg.ChannelID != "" {
		ch, cerr, err := g.channelForAction(ctx, msg.ChannelID)
		if err != nil {
			return nil, err
		}
		if cerr != nil {
			return cerr, nil
		}

		effective, cerr, err := g.effectiveChannelPermission(ctx, c.Identity, ch)
		if err != nil {
			return nil, err
		}
		if cerr != nil {
			return cerr, nil
		}

		if msg.AuthorID == c.Identity.UserID || effective.Has(perm.ManageServer) {
			return nil, nil
		}
		return errs.NewError(errs.ErrPermissionDenied), nil
	}

	// Conversations have no roles; only the author may mutate.
	cerr, err := g.conversationAccess(ctx, c, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return cerr, nil
	}
	if msg.AuthorID != c.Identity.UserID {
		return errs.NewError(errs.ErrPermissionDenied), nil
	}
	return nil, nil
}

func (g *Gateway) handleMessageEdit(ctx context.Context, c *Conn, payload []byte) {
	const scope = "message.edit"

	var req messageEditRequest
	if err := decodeStrict(payload, &req); err != nil || !validID(req.MessageID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	content, ok := validContent(req.Content)
	if !ok {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	msg, cerr, err := g.resolveMessageTarget(ctx, req.MessageID, req.ChannelID, req.ConversationID)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	cerr, err = g.authorizeMessageMutation(ctx, c, msg)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	updated, err := g.stores.Messages.Update(ctx, msg.ID, content)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between the read and the write.
		g.reject(c, scope, errs.NewError(errs.ErrMessageDeleted))
		return
	}
	if err != nil {
		g.fail(c, scope, err)
		return
	}

	g.hub.Broadcast(g.roomKeyFor(updated), Event{Type: EventMessageUpdated, Payload: messagePayload(updated)})
}

func (g *Gateway) handleMessageDelete(ctx context.Context, c *Conn, payload []byte) {
	const scope = "message.delete"

	var req messageDeleteRequest
	if err := decodeStrict(payload, &req); err != nil || !validID(req.MessageID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	msg, cerr, err := g.resolveMessageTarget(ctx, req.MessageID, req.ChannelID, req.ConversationID)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	cerr, err = g.authorizeMessageMutation(ctx, c, msg)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}

	deleted, err := g.stores.Messages.SoftDelete(ctx, msg.ID)
	if errors.Is(err, store.ErrNotFound) {
		g.reject(c, scope, errs.NewError(errs.ErrMessageDeleted))
		return
	}
	if err != nil {
		g.fail(c, scope, err)
		return
	}

	g.hub.Broadcast(g.roomKeyFor(deleted), Event{Type: EventMessageDeleted, Payload: messagePayload(deleted)})
}

func (g *Gateway) roomKeyFor(msg *store.Message) RoomKey {
	if msg.ChannelID != "" {
		return ChannelRoom(msg.ChannelID)
	}
	return ConversationRoom(msg.ConversationID)
}

// --- voice ---

func (g *Gateway) handleVoiceJoin(ctx context.Context, c *Conn, payload []byte) {
	const scope = "voice.join"

	var req voiceJoinRequest
	if err := decodeStrict(payload, &req); err != nil || !validID(req.ChannelID) {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	ch, cerr, err := g.channelForAction(ctx, req.ChannelID)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}
	if ch.Type != store.ChannelVoice {
		g.reject(c, scope, errs.NewError(errs.ErrChannelTypeInvalid))
		return
	}

	effective, cerr, err := g.effectiveChannelPermission(ctx, c.Identity, ch)
	if err != nil {
		g.fail(c, scope, err)
		return
	}
	if cerr != nil {
		g.reject(c, scope, cerr)
		return
	}
	if !effective.Has(perm.ConnectVoice) {
		g.reject(c, scope, errs.NewError(errs.ErrPermissionDenied))
		return
	}

	// All gating passed; only now does presence state mutate.
	previous, changed := g.voice.Join(c.ID, c.Identity, ch.ID)
	if !changed {
		return
	}

	if previous != "" {
		g.hub.Leave(c, VoiceRoom(previous))
		g.broadcastRoster(previous)
	}

	g.hub.Join(c, VoiceRoom(ch.ID))
	g.broadcastRoster(ch.ID)
}

func (g *Gateway) handleVoiceLeave(c *Conn) {
	previous := g.voice.Leave(c.ID)
	if previous == "" {
		return
	}

	g.hub.Leave(c, VoiceRoom(previous))
	g.broadcastRoster(previous)
}

// broadcastRoster pushes the channel's current participant snapshot to the
// voice room. Fire-and-forget.
func (g *Gateway) broadcastRoster(channelID string) {
	g.hub.Broadcast(VoiceRoom(channelID), Event{
		Type: EventVoiceRoster,
		Payload: RosterPayload{
			ChannelID:    channelID,
			Participants: g.voice.RosterOf(channelID),
		},
	})
}

// --- signaling ---

// handleSignal forwards a WebRTC negotiation frame to the target connection.
// The relay is a dumb pipe: no permission check and no payload inspection.
// A vanished target is an expected race, not a fault; the frame drops
// silently and the sender hears nothing.
func (g *Gateway) handleSignal(c *Conn, payload []byte) {
	const scope = "webrtc.signal"

	var req signalRequest
	if err := decodeStrict(payload, &req); err != nil || req.ToConnectionID == "" {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}
	if _, ok := signalTypes[req.Type]; !ok {
		g.reject(c, scope, errs.NewError(errs.ErrValidationFailed))
		return
	}

	target := g.hub.Connection(req.ToConnectionID)
	if target == nil {
		g.logger.Debug().
			Str("from_connection_id", c.ID).
			Str("to_connection_id", req.ToConnectionID).
			Msg("Signal target gone, dropping frame")
		return
	}

	target.SendEvent(Event{
		Type: EventSignal,
		Payload: SignalPayload{
			FromConnectionID: c.ID,
			Type:             req.Type,
			Payload:          req.Payload,
		},
	})
}

// --- teardown ---

// handleDisconnect removes the connection from every room and from its voice
// roster, then notifies remaining voice peers. Runs exactly once per
// connection via Conn.teardownOnce.
func (g *Gateway) handleDisconnect(c *Conn) {
	previous := g.voice.Leave(c.ID)
	rooms := g.hub.Unregister(c)

	if previous != "" {
		g.broadcastRoster(previous)
	}

	g.logger.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Int("rooms_left", len(rooms)).
		Str("voice_room_left", previous).
		Msg("Connection cleanup complete")
}
