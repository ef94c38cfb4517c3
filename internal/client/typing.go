package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/ws"
)

const DefaultTypingIdle = 2 * time.Second

type TypingOptions struct {
	// Idle is how long after the last keystroke stopTyping is sent.
	Idle time.Duration
	// Expire clears a peer's typing state when no stop signal arrives in
	// time. Zero keeps it until the peer's stopTyping.
	Expire time.Duration
}

// Typing is both ends of the typing signal: it emits debounced
// typing/stopTyping for local input and tracks which peers are typing.
type Typing struct {
	emit   Emitter
	idle   time.Duration
	expire time.Duration

	mu       sync.Mutex
	target   string
	gen      uint64
	timer    *time.Timer
	peers    map[string]bool
	expiry   map[string]*time.Timer
	onChange func(peerID string, typing bool)
}

func NewTyping(emit Emitter, opts TypingOptions) *Typing {
	if opts.Idle <= 0 {
		opts.Idle = DefaultTypingIdle
	}
	return &Typing{
		emit:   emit,
		idle:   opts.Idle,
		expire: opts.Expire,
		peers:  make(map[string]bool),
		expiry: make(map[string]*time.Timer),
	}
}

func (t *Typing) OnChange(fn func(peerID string, typing bool)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Typing) send(ev ws.EventType, peerID string) {
	if err := t.emit.Emit(ev, peerID); err != nil {
		logger.Debugf("typing emit %s: %v", ev, err)
	}
}

// InputChanged is called on every local edit of the message being composed
// for peerID.
func (t *Typing) InputChanged(peerID string) {
	if peerID == "" {
		return
	}
	t.mu.Lock()
	prev := ""
	if t.timer != nil && t.timer.Stop() && t.target != peerID {
		prev = t.target
	}
	t.gen++
	gen := t.gen
	t.target = peerID
	t.timer = time.AfterFunc(t.idle, func() { t.idleExpired(gen, peerID) })
	t.mu.Unlock()

	if prev != "" {
		t.send(ws.EventStopTyping, prev)
	}
	t.send(ws.EventTyping, peerID)
}

func (t *Typing) idleExpired(gen uint64, peerID string) {
	t.mu.Lock()
	current := gen == t.gen
	if current {
		t.timer = nil
		t.target = ""
	}
	t.mu.Unlock()
	if current {
		t.send(ws.EventStopTyping, peerID)
	}
}

// Sent is called when the composed message goes out. stopTyping is emitted
// whether or not a typing signal is pending.
func (t *Typing) Sent(peerID string) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.target = ""
	t.mu.Unlock()
	if peerID != "" {
		t.send(ws.EventStopTyping, peerID)
	}
}

// Subscribe applies typing and stopTyping events from src.
func (t *Typing) Subscribe(src EventSource) (unsubscribe func()) {
	handle := func(typing bool) func(json.RawMessage) {
		return func(raw json.RawMessage) {
			var from string
			if err := json.Unmarshal(raw, &from); err != nil {
				logger.Errorf("typing event: %v", err)
				return
			}
			t.set(from, typing)
		}
	}
	offStart := src.On(ws.EventTyping, handle(true))
	offStop := src.On(ws.EventStopTyping, handle(false))
	return func() {
		offStart()
		offStop()
	}
}

func (t *Typing) set(peerID string, typing bool) {
	t.mu.Lock()
	if old := t.expiry[peerID]; old != nil {
		old.Stop()
		delete(t.expiry, peerID)
	}
	changed := t.peers[peerID] != typing
	if typing {
		t.peers[peerID] = true
		if t.expire > 0 {
			var timer *time.Timer
			timer = time.AfterFunc(t.expire, func() { t.expired(peerID, &timer) })
			t.expiry[peerID] = timer
		}
	} else {
		delete(t.peers, peerID)
	}
	fn := t.onChange
	t.mu.Unlock()
	if changed && fn != nil {
		fn(peerID, typing)
	}
}

// expired clears peerID unless a newer signal replaced the timer.
func (t *Typing) expired(peerID string, timer **time.Timer) {
	t.mu.Lock()
	if t.expiry[peerID] != *timer {
		t.mu.Unlock()
		return
	}
	delete(t.expiry, peerID)
	delete(t.peers, peerID)
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(peerID, false)
	}
}

func (t *Typing) IsTyping(peerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers[peerID]
}

// Close stops every pending timer without emitting.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	for id, timer := range t.expiry {
		timer.Stop()
		delete(t.expiry, id)
	}
}
