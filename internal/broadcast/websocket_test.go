package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLiveServer(t *testing.T, r *Registry, sessionID uuid.UUID, opts ServeOptions) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		_ = Serve(context.Background(), r, sessionID, ws, opts)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var m Message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestServe_DeliversPublishedMessages(t *testing.T) {
	r := NewRegistry(nil)
	s := uuid.New()
	srv := newLiveServer(t, r, s, ServeOptions{})

	ws := dial(t, srv)
	require.Eventually(t, func() bool { return r.Count(s) == 1 }, 2*time.Second, 10*time.Millisecond)

	r.Publish(context.Background(), Message{Type: TypeSimulationStarted, SessionID: s})

	m := readMessage(t, ws)
	assert.Equal(t, TypeSimulationStarted, m.Type)
	assert.Equal(t, s, m.SessionID)
}

func TestServe_AcknowledgesInboundText(t *testing.T) {
	r := NewRegistry(nil)
	s := uuid.New()
	srv := newLiveServer(t, r, s, ServeOptions{})

	ws := dial(t, srv)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hello")))

	m := readMessage(t, ws)
	assert.Equal(t, TypeAck, m.Type)
	assert.Equal(t, "hello", m.Payload.(map[string]any)["received"])
}

func TestServe_DisconnectRemovesSubscriber(t *testing.T) {
	r := NewRegistry(nil)
	s := uuid.New()
	srv := newLiveServer(t, r, s, ServeOptions{})

	ws := dial(t, srv)
	require.Eventually(t, func() bool { return r.Count(s) == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	assert.Eventually(t, func() bool { return r.Count(s) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_IdleConnectionIsReaped(t *testing.T) {
	r := NewRegistry(nil)
	s := uuid.New()
	srv := newLiveServer(t, r, s, ServeOptions{IdleTimeout: 100 * time.Millisecond})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	// Never reading means pings are never answered with pongs.
	ws.SetPingHandler(func(string) error { return nil })

	require.Eventually(t, func() bool { return r.Count(s) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return r.Count(s) == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestServe_CancelledPublishLeavesConnectionsOpen(t *testing.T) {
	r := NewRegistry(nil)
	s := uuid.New()
	srv := newLiveServer(t, r, s, ServeOptions{})

	first, second := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return r.Count(s) == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Publish(ctx, Message{Type: TypeSimulationEvent, SessionID: s})
	assert.Equal(t, 2, r.Count(s))

	n := r.Publish(context.Background(), Message{Type: TypeSimulationEvent, SessionID: s, Payload: map[string]any{"seq": 2}})
	assert.Equal(t, 2, n)
	assert.Equal(t, TypeSimulationEvent, readMessage(t, first).Type)
	assert.Equal(t, TypeSimulationEvent, readMessage(t, second).Type)
}
