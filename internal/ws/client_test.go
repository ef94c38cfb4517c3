package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newSocketServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		c := NewClient(h, conn, r.URL.Query().Get("userId"), ClientOptions{})
		c.Start(ctx, cancel)
		h.Register(c)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want EventType) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == want {
			return f
		}
	}
}

// waitOnline reads presence frames until the online list has n entries.
func waitOnline(t *testing.T, conn *websocket.Conn, n int) []string {
	t.Helper()
	for {
		f := readUntil(t, conn, EventGetOnlineUsers)
		var online []string
		require.NoError(t, json.Unmarshal(f.Payload, &online))
		if len(online) == n {
			return online
		}
	}
}

func TestSocketPresenceAndTyping(t *testing.T) {
	h := startHub(t, 0, nil)
	srv := newSocketServer(t, h)

	alice := dial(t, srv, "alice")
	f := readUntil(t, alice, EventInit)
	var initPayload InitPayload
	require.NoError(t, json.Unmarshal(f.Payload, &initPayload))
	require.Equal(t, []string{"alice"}, initPayload.OnlineUsers)

	bob := dial(t, srv, "bob")
	readUntil(t, bob, EventInit)

	require.Equal(t, []string{"alice", "bob"}, waitOnline(t, alice, 2))

	require.NoError(t, bob.WriteJSON(IncomingMessage{Type: EventTyping, PeerID: "alice"}))
	f = readUntil(t, alice, EventTyping)
	var from string
	require.NoError(t, json.Unmarshal(f.Payload, &from))
	require.Equal(t, "bob", from)

	require.NoError(t, bob.Close())
	require.Equal(t, []string{"alice"}, waitOnline(t, alice, 1))
}
