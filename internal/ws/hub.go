package ws

import (
	"context"
	"time"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
)

// PresenceMirror publishes the online set outside the process. Optional.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userIDs []string) error
}

// Hub owns the registry. Register and unregister requests are applied one
// at a time by Run, and each mutation is followed by its presence broadcast
// in the same turn, so no reader sees a half-applied change.
type Hub struct {
	registry   *Registry
	router     *Router
	mirror     PresenceMirror
	maxConns   int
	register   chan Conn
	unregister chan Conn
	mirrorCh   chan []string
	done       chan struct{}
}

func NewHub(registry *Registry, maxConns int, mirror PresenceMirror) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		registry:   registry,
		router:     NewRouter(registry),
		mirror:     mirror,
		maxConns:   maxConns,
		register:   make(chan Conn, 64),
		unregister: make(chan Conn, 64),
		mirrorCh:   make(chan []string, 1),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Router() *Router { return h.router }

func (h *Hub) Registry() *Registry { return h.registry }

// DeliverMessage lets the hub serve as the message pipeline's dispatcher.
func (h *Hub) DeliverMessage(m model.Message) int {
	return h.router.DeliverMessage(m)
}

func (h *Hub) Run(ctx context.Context) {
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	mirrorDone := make(chan struct{})
	go h.runMirror(mirrorCtx, mirrorDone)
	defer func() {
		stopMirror()
		<-mirrorDone
	}()

	for {
		select {
		case <-ctx.Done():
			// closing done first unblocks pumps that unregister while we wait on them
			close(h.done)
			h.shutdown()
			return
		case c := <-h.register:
			h.addConn(c)
		case c := <-h.unregister:
			h.removeConn(c)
		}
	}
}

func (h *Hub) shutdown() {
	all := h.registry.reset()
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		if w, ok := c.(interface{ Wait() }); ok {
			w.Wait()
		}
	}
	h.publishPresence([]string{})
}

func (h *Hub) addConn(c Conn) {
	// dropped before its register was applied; the unregister already passed
	if c.Closed() {
		return
	}
	if h.registry.Len() >= h.maxConns {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.UserID())
		c.Close()
		return
	}
	if !h.registry.Register(c.UserID(), c) {
		return
	}
	online := h.router.BroadcastPresence(c)
	h.publishPresence(online)
}

func (h *Hub) removeConn(c Conn) {
	if !h.registry.Unregister(c.UserID(), c) {
		return
	}
	c.Close()
	online := h.router.BroadcastPresence(nil)
	h.publishPresence(online)
}

// publishPresence hands the newest online set to the mirror worker,
// replacing any set it has not picked up yet. Only Run calls it.
func (h *Hub) publishPresence(online []string) {
	if h.mirror == nil {
		return
	}
	select {
	case <-h.mirrorCh:
	default:
	}
	select {
	case h.mirrorCh <- online:
	default:
	}
}

func (h *Hub) runMirror(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			// flush the final state left by shutdown
			select {
			case online := <-h.mirrorCh:
				h.writeMirror(online)
			default:
			}
			return
		case online := <-h.mirrorCh:
			h.writeMirror(online)
		}
	}
}

func (h *Hub) writeMirror(online []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.mirror.SetOnline(ctx, online); err != nil {
		logger.Errorf("ws presence mirror: %v", err)
	}
}

// HandleMessage relays typing signals. The server keeps no typing state.
func (h *Hub) HandleMessage(ctx context.Context, c Conn, msg IncomingMessage) {
	switch msg.Type {
	case EventTyping, EventStopTyping:
		if msg.PeerID == "" || msg.PeerID == c.UserID() {
			return
		}
		h.router.DeliverToUser(msg.PeerID, msg.Type, c.UserID())
	default:
		c.Send(OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) Register(c Conn) {
	select {
	case <-h.done:
		c.Close()
		return
	default:
	}
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
