package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wanderguide/pkg/config"
)

func TestNew(t *testing.T) {
	ch, err := New(config.ChannelConfig{Provider: "log"})
	require.NoError(t, err)
	assert.IsType(t, &LogChannel{}, ch)

	ch, err = New(config.ChannelConfig{Provider: "websocket", URL: "ws://localhost:1/relay"})
	require.NoError(t, err)
	assert.IsType(t, &WebSocketChannel{}, ch)

	_, err = New(config.ChannelConfig{Provider: "websocket"})
	assert.Error(t, err)
	_, err = New(config.ChannelConfig{Provider: "pigeon"})
	assert.Error(t, err)
}

func TestLogChannel(t *testing.T) {
	c := NewLogChannel(2)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, c.SendContextualUpdate(ctx, "s1", text))
	}
	assert.Equal(t, []Message{{"s1", "two"}, {"s1", "three"}}, c.Recent())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := c.SendContextualUpdate(cancelled, "s1", "four")
	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

var upgrader = websocket.Upgrader{}

func relayServer(t *testing.T, got chan<- outgoing) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg outgoing
			if json.Unmarshal(data, &msg) == nil {
				got <- msg
			}
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestWebSocketChannel_Send(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	got := make(chan outgoing, 4)
	ts := relayServer(t, got)
	defer ts.Close()

	c := NewWebSocketChannel(wsURL(ts), nil)
	assert.False(t, c.Connected(), "dialed lazily")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.SendContextualUpdate(ctx, "s1", "hello"))
	require.NoError(t, c.SendContextualUpdate(ctx, "s1", "again"))
	assert.True(t, c.Connected())

	for _, want := range []string{"hello", "again"} {
		select {
		case msg := <-got:
			assert.Equal(t, "conversation.item.create", msg.Type)
			assert.Equal(t, "s1", msg.SessionID)
			assert.NotEmpty(t, msg.EventID)
			require.Len(t, msg.Item.Content, 1)
			assert.Equal(t, want, msg.Item.Content[0].Text)
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not receive the update")
		}
	}

	sent, failed := c.Stats()
	assert.Equal(t, int64(2), sent)
	assert.Zero(t, failed)

	require.NoError(t, c.Close())
	err := c.SendContextualUpdate(ctx, "s1", "late")
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestWebSocketChannel_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	c := NewWebSocketChannel(wsURL(ts), nil)
	defer c.Close()

	err := c.SendContextualUpdate(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChannelUnavailable))
	_, failed := c.Stats()
	assert.Equal(t, int64(1), failed)
}
