package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

// outgoing is the wire form of one contextual update. The item layout mirrors the
// realtime conversation APIs so a relay can forward it unchanged.
type outgoing struct {
	Type      string      `json:"type"`
	EventID   string      `json:"event_id"`
	SessionID string      `json:"session_id"`
	Item      messageItem `json:"item"`
}

type messageItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WebSocketChannel sends updates over a websocket to the conversation relay.
// The connection is dialed on first use and redialed after a failure.
type WebSocketChannel struct {
	url    string
	header http.Header
	dialer websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool

	sent   atomic.Int64
	failed atomic.Int64
}

// NewWebSocketChannel creates a channel for url. header is sent on every dial.
func NewWebSocketChannel(url string, header http.Header) *WebSocketChannel {
	return &WebSocketChannel{
		url:    url,
		header: header,
		dialer: websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		logger: slog.With("component", "conversation.ws"),
	}
}

// SendContextualUpdate implements Channel. It never retries: a failed send drops
// the connection and reports ErrChannelUnavailable.
func (c *WebSocketChannel) SendContextualUpdate(ctx context.Context, sessionID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return unavailable(errors.New("channel closed"))
	}
	if err := c.ensureConn(ctx); err != nil {
		c.failed.Add(1)
		return unavailable(err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	_ = c.conn.SetWriteDeadline(deadline)

	msg := outgoing{
		Type:      "conversation.item.create",
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		Item: messageItem{
			Type:    "message",
			Role:    "system",
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.failed.Add(1)
		c.dropConn()
		return unavailable(fmt.Errorf("write: %w", err))
	}
	c.sent.Add(1)
	return nil
}

func (c *WebSocketChannel) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		select {
		case <-c.done:
			c.dropConn()
		default:
			return nil
		}
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)
	c.logger.Info("Connected to conversation relay", "url", c.url)
	return nil
}

// readLoop drains incoming frames so control messages are processed, and marks the
// connection dead when the peer goes away.
func (c *WebSocketChannel) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("Conversation relay read ended", "error", err)
			}
			return
		}
	}
}

// dropConn must be called with mu held.
func (c *WebSocketChannel) dropConn() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	<-c.done
	c.conn = nil
	c.done = nil
}

// Connected reports whether a connection is currently open.
func (c *WebSocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Stats returns the number of delivered and failed updates.
func (c *WebSocketChannel) Stats() (sent, failed int64) {
	return c.sent.Load(), c.failed.Load()
}

// Close sends a close frame and releases the connection.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.dropConn()
	}
	return nil
}
