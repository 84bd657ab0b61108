package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades and echoes every text frame back.
func echoServer(t *testing.T) string {
	t.Helper()

	var upgrader websocket.Upgrader
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialSendReceive(t *testing.T) {
	conn, err := Dial(context.Background(), echoServer(t), Options{})
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.Open())
	require.NoError(t, conn.Send([]byte(`{"messageType":0}`)))

	select {
	case frame := <-conn.Frames():
		assert.JSONEq(t, `{"messageType":0}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/control", Options{
		HandshakeTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, err := Dial(context.Background(), echoServer(t), Options{})
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.False(t, conn.Open())
	assert.NoError(t, conn.Close())
}

func TestFramesClosedWhenServerDisconnects(t *testing.T) {
	var upgrader websocket.Upgrader
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(server.Close)

	conn, err := Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), Options{})
	require.NoError(t, err)
	defer conn.Close()

	select {
	case _, ok := <-conn.Frames():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("frame channel not closed")
	}
}
