// Package chatclient maintains one logical connection to the chat gateway.
// It reconnects with capped backoff on unexpected drops, queues outbound
// frames while disconnected and replays the join intent on reconnect.
package chatclient

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	defaultQueueSize = 300
	backoffStep      = 500 * time.Millisecond
	backoffCeiling   = 5 * time.Second
)

type Frame struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId,omitempty"`
	Text     string `json:"text,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL   string
	Token string

	// OnFrame receives every raw frame from the server.
	OnFrame func([]byte)

	// QueueSize bounds the outbound queue kept while disconnected; once
	// full, the oldest entries are dropped. Defaults to 300.
	QueueSize int
}

type Client struct {
	opts Options
	done chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	queue    [][]byte
	room     string
	attempts int
	closed   bool
}

// New starts the connection loop and returns immediately.
func New(opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	c := &Client{
		opts: opts,
		done: make(chan struct{}),
	}
	go c.run()
	return c
}

// backoffDelay grows linearly with consecutive failures up to a fixed
// ceiling.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * backoffStep
	if d > backoffCeiling {
		d = backoffCeiling
	}
	return d
}

func (c *Client) buildURL() string {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return c.opts.URL
	}
	q := u.Query()
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) run() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.buildURL(), nil)
		if err != nil {
			c.mu.Lock()
			c.attempts++
			delay := backoffDelay(c.attempts)
			c.mu.Unlock()
			logger.Debug("dial failed, retrying in %s: %v", delay, err)
			select {
			case <-time.After(delay):
				continue
			case <-c.done:
				return
			}
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.attempts = 0
		room := c.room
		pending := c.queue
		c.queue = nil
		c.mu.Unlock()

		// The server holds no cross-connection session state: a fresh
		// socket is a blank slate and must rejoin before anything queued.
		if room != "" {
			c.writeFrame(Frame{Type: "join", RoomID: room})
		}
		for _, payload := range pending {
			c.write(payload)
		}

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(raw)
		}
	}
}

// Join records the room as the active one and requests to watch it. The
// recorded room is re-joined automatically after every reconnect.
func (c *Client) Join(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
	c.writeFrame(Frame{Type: "join", RoomID: roomID})
}

// SendText sends a chat message to the current room.
func (c *Client) SendText(text string) {
	c.writeFrame(Frame{Type: "send", Text: text})
}

// Typing sends an ephemeral typing signal.
func (c *Client) Typing(isTyping bool) {
	c.writeFrame(Frame{Type: "typing", IsTyping: isTyping})
}

func (c *Client) writeFrame(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.write(payload)
}

// write delivers the payload immediately when connected, otherwise appends
// it to the bounded queue, dropping the oldest entry when full.
func (c *Client) write(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.conn != nil {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err == nil {
			return
		}
		c.conn.Close()
		c.conn = nil
	}

	c.queue = append(c.queue, payload)
	if len(c.queue) > c.opts.QueueSize {
		c.queue = c.queue[1:]
	}
}

// Connected reports whether the underlying socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close ends the logical connection; no further reconnect is attempted.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.Close()
	}
}
