package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/ws"
)

const socketWriteWait = 10 * time.Second

var ErrSocketClosed = errors.New("socket closed")

// Event is one frame pushed by the server.
type Event struct {
	Type    ws.EventType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventSource delivers server events to subscribers. The returned func
// removes the subscription.
type EventSource interface {
	On(t ws.EventType, fn func(json.RawMessage)) func()
}

// Emitter sends a signal addressed to one peer.
type Emitter interface {
	Emit(t ws.EventType, peerID string) error
}

// Socket is a websocket connection to the api service. Handlers run on the
// read goroutine, one event at a time, in arrival order.
type Socket struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[ws.EventType]map[int]func(json.RawMessage)
	nextID   int

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the socket for userID. serverURL is the http(s) base of the api
// service. Nothing is read until Start, so handlers registered in between
// see the init snapshot.
func Dial(ctx context.Context, serverURL, userID string, header http.Header) (*Socket, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("socket.Dial: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"userId": {userID}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("socket.Dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("socket.Dial: %w", err)
	}
	return &Socket{
		conn:     conn,
		handlers: make(map[ws.EventType]map[int]func(json.RawMessage)),
		done:     make(chan struct{}),
	}, nil
}

func (s *Socket) On(t ws.EventType, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[t] == nil {
		s.handlers[t] = make(map[int]func(json.RawMessage))
	}
	s.handlers[t][id] = fn
	return func() {
		s.mu.Lock()
		delete(s.handlers[t], id)
		s.mu.Unlock()
	}
}

// Start begins reading events. Calling it again is a no-op.
func (s *Socket) Start() {
	s.startOnce.Do(func() { go s.readLoop() })
}

// Done is closed once the connection is gone.
func (s *Socket) Done() <-chan struct{} { return s.done }

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		var ev Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Errorf("socket read: %v", err)
			}
			return
		}
		s.dispatch(ev)
	}
}

func (s *Socket) dispatch(ev Event) {
	s.mu.RLock()
	fns := make([]func(json.RawMessage), 0, len(s.handlers[ev.Type]))
	for _, fn := range s.handlers[ev.Type] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	if len(fns) == 0 && ev.Type == ws.EventError {
		logger.Errorf("socket: server error %s", ev.Payload)
	}
	for _, fn := range fns {
		fn(ev.Payload)
	}
}

// Emit sends a typing signal. Delivery is at most once; nothing is retried.
func (s *Socket) Emit(t ws.EventType, peerID string) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return fmt.Errorf("socket.Emit: %w", err)
	}
	return s.conn.WriteJSON(ws.IncomingMessage{Type: t, PeerID: peerID})
}

// Close sends a close frame and drops the connection.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
