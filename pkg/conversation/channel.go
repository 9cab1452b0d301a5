// Package conversation delivers contextual updates to the live conversational AI session.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"wanderguide/pkg/config"
)

// ErrChannelUnavailable is returned when an update could not be delivered.
var ErrChannelUnavailable = errors.New("conversation channel unavailable")

// Channel is the one operation the engine needs from a conversation.
type Channel interface {
	SendContextualUpdate(ctx context.Context, sessionID, text string) error
}

// Closer is implemented by channels holding a connection.
type Closer interface {
	Close() error
}

// unavailable wraps a cause so callers can match ErrChannelUnavailable.
func unavailable(cause error) error {
	if cause == nil || errors.Is(cause, ErrChannelUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrChannelUnavailable, cause)
}

// New builds the channel named in the config.
func New(cfg config.ChannelConfig) (Channel, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "log":
		return NewLogChannel(0), nil
	case "websocket", "ws":
		if cfg.URL == "" {
			return nil, fmt.Errorf("channel provider %q requires a url", cfg.Provider)
		}
		return NewWebSocketChannel(cfg.URL, nil), nil
	default:
		return nil, fmt.Errorf("unknown channel provider %q", cfg.Provider)
	}
}

// Message is an update as recorded by LogChannel.
type Message struct {
	SessionID string
	Text      string
}

// LogChannel writes updates to the server log and keeps the most recent ones.
// It is the channel used when no live conversation is wired.
type LogChannel struct {
	logger *slog.Logger

	mu     sync.Mutex
	keep   int
	recent []Message
}

// NewLogChannel creates a channel remembering the last keep messages (16 when zero).
func NewLogChannel(keep int) *LogChannel {
	if keep <= 0 {
		keep = 16
	}
	return &LogChannel{logger: slog.With("component", "conversation"), keep: keep}
}

// SendContextualUpdate implements Channel.
func (c *LogChannel) SendContextualUpdate(ctx context.Context, sessionID, text string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	c.logger.Info("Contextual update", "session_id", sessionID, "text", text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, Message{SessionID: sessionID, Text: text})
	if len(c.recent) > c.keep {
		c.recent = c.recent[len(c.recent)-c.keep:]
	}
	return nil
}

// Recent returns the remembered messages, oldest first.
func (c *LogChannel) Recent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.recent))
	copy(out, c.recent)
	return out
}
