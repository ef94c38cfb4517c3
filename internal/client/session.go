package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
)

type SessionOptions struct {
	// ServerURL is the http(s) base of the api service.
	ServerURL string
	UserID    string
	// Token, when set, authenticates as a bearer token instead of the dev
	// identity header.
	Token string

	Sync   SyncOptions
	Typing TypingOptions
}

// Session is one signed-in client: the socket plus every store fed by it.
type Session struct {
	API      *API
	Socket   *Socket
	Sync     *Sync
	Presence *Presence
	Typing   *Typing

	ready atomic.Bool
	offs  []func()
}

// Connect dials the socket, subscribes the stores, then loads unread counts.
// The session is chat-ready once all of that succeeded.
func Connect(ctx context.Context, opts SessionOptions) (*Session, error) {
	defer logger.DeferLogDuration("client.Connect", time.Now())()

	api := NewAPI(opts.ServerURL, opts.UserID, opts.Token)
	sock, err := Dial(ctx, opts.ServerURL, opts.UserID, api.Header())
	if err != nil {
		return nil, err
	}

	s := &Session{
		API:      api,
		Socket:   sock,
		Sync:     NewSync(api, opts.Sync),
		Presence: NewPresence(),
		Typing:   NewTyping(sock, opts.Typing),
	}
	s.offs = append(s.offs, s.Presence.Subscribe(sock), s.Typing.Subscribe(sock))
	s.Sync.Subscribe(sock)
	sock.Start()

	if err := s.Sync.RefreshUnread(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.ready.Store(true)
	return s, nil
}

// IsChatReady reports whether Connect completed.
func (s *Session) IsChatReady() bool { return s.ready.Load() }

func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	if prev := s.Sync.ActivePeer(); prev != "" && prev != peerID {
		s.Typing.Sent(prev)
	}
	return s.Sync.SelectPeer(ctx, peerID)
}

// InputChanged reports a local edit of the message being composed.
func (s *Session) InputChanged() {
	s.Typing.InputChanged(s.Sync.ActivePeer())
}

// Send stops the typing signal, then posts the message to the active peer.
func (s *Session) Send(ctx context.Context, in chat.SendInput) (*model.EnrichedMessage, error) {
	s.Typing.Sent(s.Sync.ActivePeer())
	return s.Sync.Send(ctx, in)
}

func (s *Session) Close() error {
	s.ready.Store(false)
	s.Sync.Unsubscribe()
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
	s.Typing.Close()
	return s.Socket.Close()
}
