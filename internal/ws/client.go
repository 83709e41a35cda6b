package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/models"
	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client owns one websocket connection on the server side. It is created
// after the credential has been verified and destroyed on socket close;
// nothing about it is persisted.
type Client struct {
	registry *Registry
	relay    *Relay
	conn     *websocket.Conn
	send     chan []byte
	identity models.Identity
	cfg      config.GatewayConfig

	// roomID is the currently watched room, mutated only by Registry
	// join/leave. Empty means the connection is ready but not in a room.
	mu     sync.Mutex
	roomID string
}

func NewClient(registry *Registry, relay *Relay, conn *websocket.Conn, identity models.Identity, cfg config.GatewayConfig) *Client {
	return &Client{
		registry: registry,
		relay:    relay,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		identity: identity,
		cfg:      cfg,
	}
}

func (c *Client) Identity() models.Identity {
	return c.identity
}

// Start sends the ready frame and launches the read/write pumps.
func (c *Client) Start() {
	c.SendFrame(ReadyFrame{Type: FrameReady, User: c.identity})
	go c.writePump()
	go c.readPump()
}

func (c *Client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// enqueue hands a payload to the write pump without blocking. A client that
// cannot keep up simply misses the payload; live fan-out is best-effort and
// history fetch is the recovery path.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		logger.Debug("dropping frame for slow connection %s", c.identity.Name)
	}
}

func (c *Client) SendFrame(v interface{}) {
	if data := marshalFrame(v); data != nil {
		c.enqueue(data)
	}
}

func (c *Client) sendError(message string) {
	c.SendFrame(ErrorFrame{Type: FrameError, Message: message})
}

// readPump processes inbound frames strictly in arrival order. Whatever way
// the connection ends, the deferred leave releases the registry entry
// exactly once.
func (c *Client) readPump() {
	defer func() {
		c.registry.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(4*c.cfg.MaxMessageLen + 512))
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for %s: %v", c.identity.Name, err)
			}
			return
		}

		frame := ClientFrame{}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			c.sendError("invalid frame")
			continue
		}

		c.handleFrame(&frame)
	}
}

func (c *Client) handleFrame(frame *ClientFrame) {
	ctx := context.Background()

	switch frame.Type {
	case FrameJoin:
		roomID := strings.TrimSpace(frame.RoomID)
		if roomID == "" {
			c.sendError(ErrRoomRequired.Error())
			return
		}
		if err := c.relay.Join(ctx, c, roomID); err != nil {
			c.replyError(err)
			return
		}
		c.SendFrame(JoinedFrame{Type: FrameJoined, RoomID: roomID})

	case FrameSend:
		if err := c.relay.Send(ctx, c, frame.RoomID, frame.Text); err != nil {
			c.replyError(err)
		}

	case FrameTyping:
		// fire-and-forget, validation failures are not reported
		c.relay.Typing(ctx, c, frame.RoomID, frame.IsTyping)

	default:
		c.sendError("unknown frame type")
	}
}

// replyError converts a relay error into an error frame. Unexpected errors
// are reported generically so internals do not leak to clients.
func (c *Client) replyError(err error) {
	switch {
	case errors.Is(err, ErrRoomRequired),
		errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrNotAMember),
		errors.Is(err, ErrRoomPrivate),
		errors.Is(err, ErrNoRoom),
		errors.Is(err, ErrMessageTooLong):
		c.sendError(err.Error())
	default:
		logger.Error("relay error for %s: %v", c.identity.Name, err)
		c.sendError("server error")
	}
}

// writePump serializes all writes to the connection and keeps the liveness
// probe running. A connection that misses two consecutive probes exceeds the
// read deadline in readPump and is torn down through the same leave path.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
