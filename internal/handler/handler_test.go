package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/auth"
	"github.com/directchat/internal/blob"
	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/config"
	"github.com/directchat/internal/model"
	"github.com/directchat/internal/repository/memstore"
	"github.com/directchat/internal/startup"
	"github.com/directchat/internal/ws"
)

var (
	alice = startup.DemoUsers[0].ID
	bob   = startup.DemoUsers[1].ID
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	users := memstore.NewUserStore()
	require.NoError(t, startup.Seed(context.Background(), users))

	hub := ws.NewHub(ws.NewRegistry(), 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	files := blob.NewLocalStore(t.TempDir(), 1<<20, "")
	svc := chat.NewService(memstore.NewMessageStore(), users, files, hub, chat.Options{})
	cfg := &config.Config{MaxUploadSize: 1 << 20, CORSAllowedOrigins: "*", HistoryPageSize: 20, HistoryMaxPageSize: 100}

	srv := httptest.NewServer(NewRouter(Deps{Config: cfg, Auth: auth.DevAuthenticator{}, Chat: svc, Hub: hub, Files: files}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, as string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if as != "" {
		req.Header.Set(auth.DevHeader, as)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestSendToOfflineReceiverThenFetch(t *testing.T) {
	srv := newTestServer(t)

	resp, body := call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, chat.SendInput{Text: "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent model.EnrichedMessage
	require.NoError(t, json.Unmarshal(body, &sent))
	require.Equal(t, "hi", sent.Text)
	require.Equal(t, alice, sent.SenderID)
	require.NotNil(t, sent.Sender)
	require.Equal(t, "Alice Example", sent.Sender.FullName)

	resp, body = call(t, srv, http.MethodGet, "/api/messages/conversation/"+alice, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page []model.EnrichedMessage
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page, 1)
	require.Equal(t, sent.ID, page[0].ID)
	require.False(t, page[0].IsRead)
}

func TestSendValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, body := call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, chat.SendInput{Text: "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), chat.ErrEmptyMessage.Error())

	resp, _ = call(t, srv, http.MethodPost, "/api/messages/send/not-a-user", alice, chat.SendInput{Text: "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPost, "/api/messages/send/44444444-4444-4444-8444-444444444444", alice, chat.SendInput{Text: "hi"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodGet, "/api/messages/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnreadAndMarkRead(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		resp, _ := call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, chat.SendInput{Text: "ping"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := call(t, srv, http.MethodGet, "/api/messages/unread-messages", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[{"userId":"`+alice+`","unreadCount":3}]`, string(body))

	for i := 0; i < 2; i++ {
		resp, body = call(t, srv, http.MethodPatch, "/api/messages/mark-read/"+alice, bob, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"success":true}`, string(body))
	}

	resp, body = call(t, srv, http.MethodGet, "/api/messages/unread-messages", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[]`, string(body))
}

func TestUsersExcludeCaller(t *testing.T) {
	srv := newTestServer(t)
	resp, body := call(t, srv, http.MethodGet, "/api/messages/users", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []model.UserPublic
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, len(startup.DemoUsers)-1)
	for _, u := range users {
		require.NotEqual(t, alice, u.ID)
	}
	require.NotContains(t, string(body), "password")
}

func TestImageMessageIsServed(t *testing.T) {
	srv := newTestServer(t)
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3}
	in := chat.SendInput{Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)}

	resp, body := call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, in)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent model.EnrichedMessage
	require.NoError(t, json.Unmarshal(body, &sent))
	require.Empty(t, sent.Text)
	require.True(t, strings.HasPrefix(sent.ImageURL, "/api/files/"))

	resp, body = call(t, srv, http.MethodGet, "/api/files/"+path.Base(sent.ImageURL), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, png, body)

	resp, _ = call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, chat.SendInput{Image: "data:image/png;base64,aGVsbG8="})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dialAs(srv *httptest.Server, header, query string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + query
	h := http.Header{}
	h.Set(auth.DevHeader, header)
	return websocket.DefaultDialer.Dial(url, h)
}

func TestSocketReceivesNewMessage(t *testing.T) {
	srv := newTestServer(t)

	_, resp, err := dialAs(srv, bob, alice)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialAs(srv, bob, bob)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	type frame struct {
		Type    ws.EventType    `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	readUntil := func(want ws.EventType) frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			var f frame
			require.NoError(t, conn.ReadJSON(&f))
			if f.Type == want {
				return f
			}
		}
	}
	readUntil(ws.EventInit)

	resp, body := call(t, srv, http.MethodPost, "/api/messages/send/"+bob, alice, chat.SendInput{Text: "live"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent model.EnrichedMessage
	require.NoError(t, json.Unmarshal(body, &sent))

	f := readUntil(ws.EventNewMessage)
	var pushed model.Message
	require.NoError(t, json.Unmarshal(f.Payload, &pushed))
	require.Equal(t, sent.Message, pushed)
	// raw message: no enrichment over the socket
	require.NotContains(t, string(f.Payload), "sender\"")
}
