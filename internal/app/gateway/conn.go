package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"concord/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 16384

	// sendQueueSize bounds the per-connection outbound queue.
	sendQueueSize = 256

	// maxConsecutiveDrops is how many frames in a row a slow client may miss
	// before the gateway gives up and disconnects it.
	maxConsecutiveDrops = 64
)

// Identity is the authenticated principal bound to a connection at handshake.
// Immutable for the connection's lifetime.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"-"`
}

// Conn is one live client connection: a physical link with a bound identity.
// One identity may hold several connections, each with its own id.
type Conn struct {
	// ID uniquely identifies this physical link, not the user.
	ID string

	// Identity is bound once during the handshake.
	Identity Identity

	gw *Gateway
	ws *websocket.Conn

	// send is the bounded outbound queue drained by WritePump.
	send chan []byte

	// drops counts consecutive frames lost to a full queue.
	drops atomic.Int32

	// closing is set when the connection decides to terminate, so enqueue
	// stops accepting frames.
	closing atomic.Bool

	// teardownOnce guarantees disconnect cleanup runs exactly once even when
	// a transport error and an explicit close race each other.
	teardownOnce sync.Once

	logger zerolog.Logger
}

// newConn binds an identity to a websocket link.
func newConn(gw *Gateway, ws *websocket.Conn, identity Identity) *Conn {
	id := uuid.NewString()

	return &Conn{
		ID:       id,
		Identity: identity,
		gw:       gw,
		ws:       ws,
		send:     make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().
			Str("connection_id", id).
			Str("user_id", identity.UserID).
			Logger(),
	}
}

// ReadPump reads frames off the socket and dispatches them until the link
// dies, then runs teardown.
func (c *Conn) ReadPump() {
	defer c.teardown()

	c.ws.SetReadLimit(maxFrameSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.gw.Dispatch(c, frame)
	}
}

// WritePump drains the send queue onto the socket and keeps the heartbeat alive.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Error().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// enqueue queues a frame for delivery without blocking. Broadcasts are
// best-effort: a full queue drops the frame, and a client that keeps missing
// frames is torn down rather than allowed to grow the queue unboundedly.
func (c *Conn) enqueue(frame []byte) {
	if c.closing.Load() {
		return
	}

	select {
	case c.send <- frame:
		c.drops.Store(0)
	default:
		dropped := c.drops.Add(1)
		c.logger.Warn().Int32("consecutive_drops", dropped).Msg("Connection send queue full, dropping frame")

		if dropped >= maxConsecutiveDrops {
			c.logger.Warn().Msg("Connection persistently slow, disconnecting")
			go c.teardown()
		}
	}
}

// SendEvent marshals and queues one event for this connection only.
func (c *Conn) SendEvent(event Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", event.Type).Msg("Error marshaling event")
		return
	}

	c.enqueue(frame)
}

// SendError delivers a scoped error event to this connection only. Rejections
// never broadcast and never close the link.
func (c *Conn) SendError(scope, message string) {
	c.SendEvent(Event{
		Type: EventError,
		Payload: ErrorPayload{
			Scope:   scope,
			Message: message,
		},
	})
}

// teardown runs disconnect cleanup exactly once: the gateway removes the
// connection from every room and from its voice roster, peers are notified,
// and the transport is closed.
func (c *Conn) teardown() {
	c.teardownOnce.Do(func() {
		c.closing.Store(true)
		c.logger.Info().Msg("Connection cleanup starting.")

		c.gw.handleDisconnect(c)

		if c.ws != nil {
			if err := c.ws.Close(); err != nil {
				c.logger.Debug().Err(err).Msg("Connection close error")
			}
		}
	})
}
