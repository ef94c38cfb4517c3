package client

import (
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/ws"
)

type emitted struct {
	Type ws.EventType
	Peer string
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *fakeEmitter) Emit(t ws.EventType, peerID string) error {
	e.mu.Lock()
	e.events = append(e.events, emitted{t, peerID})
	e.mu.Unlock()
	return nil
}

func (e *fakeEmitter) got() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

// fakeSource is an EventSource fed by hand.
type fakeSource struct {
	mu       sync.Mutex
	handlers map[ws.EventType][]func(json.RawMessage)
}

func (s *fakeSource) On(t ws.EventType, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[ws.EventType][]func(json.RawMessage))
	}
	s.handlers[t] = append(s.handlers[t], fn)
	return func() {
		s.mu.Lock()
		delete(s.handlers, t)
		s.mu.Unlock()
	}
}

func (s *fakeSource) fire(t *testing.T, ev ws.EventType, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	s.mu.Lock()
	fns := slices.Clone(s.handlers[ev])
	s.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

func TestTypingDebouncesStop(t *testing.T) {
	em := &fakeEmitter{}
	typing := NewTyping(em, TypingOptions{Idle: 30 * time.Millisecond})
	defer typing.Close()

	typing.InputChanged(peerA)
	typing.InputChanged(peerA)
	require.Equal(t, []emitted{{ws.EventTyping, peerA}, {ws.EventTyping, peerA}}, em.got())

	require.Eventually(t, func() bool { return len(em.got()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, emitted{ws.EventStopTyping, peerA}, em.got()[2])

	time.Sleep(90 * time.Millisecond)
	require.Len(t, em.got(), 3)
}

func TestTypingSentStopsImmediately(t *testing.T) {
	em := &fakeEmitter{}
	typing := NewTyping(em, TypingOptions{Idle: 30 * time.Millisecond})
	defer typing.Close()

	typing.InputChanged(peerA)
	typing.Sent(peerA)
	require.Equal(t, []emitted{{ws.EventTyping, peerA}, {ws.EventStopTyping, peerA}}, em.got())

	// the idle timer was cancelled
	time.Sleep(90 * time.Millisecond)
	require.Len(t, em.got(), 2)

	// sending without typing first still signals stop
	typing.Sent(peerB)
	require.Equal(t, emitted{ws.EventStopTyping, peerB}, em.got()[2])
}

func TestTypingSwitchingPeerStopsPrevious(t *testing.T) {
	em := &fakeEmitter{}
	typing := NewTyping(em, TypingOptions{Idle: time.Minute})
	defer typing.Close()

	typing.InputChanged(peerA)
	typing.InputChanged(peerB)
	require.Equal(t, []emitted{
		{ws.EventTyping, peerA},
		{ws.EventStopTyping, peerA},
		{ws.EventTyping, peerB},
	}, em.got())
}

func TestTypingStateFromPeers(t *testing.T) {
	src := &fakeSource{}
	typing := NewTyping(&fakeEmitter{}, TypingOptions{})
	defer typing.Close()
	typing.Subscribe(src)

	src.fire(t, ws.EventTyping, peerA)
	require.True(t, typing.IsTyping(peerA))
	require.False(t, typing.IsTyping(peerB))

	// no receiver timeout by default
	time.Sleep(30 * time.Millisecond)
	require.True(t, typing.IsTyping(peerA))

	src.fire(t, ws.EventStopTyping, peerA)
	require.False(t, typing.IsTyping(peerA))
}

func TestTypingReceiverExpiry(t *testing.T) {
	src := &fakeSource{}
	typing := NewTyping(&fakeEmitter{}, TypingOptions{Expire: 30 * time.Millisecond})
	defer typing.Close()
	typing.Subscribe(src)

	changes := make(chan bool, 4)
	typing.OnChange(func(_ string, on bool) { changes <- on })

	src.fire(t, ws.EventTyping, peerA)
	require.True(t, <-changes)
	require.Eventually(t, func() bool { return !typing.IsTyping(peerA) }, time.Second, 5*time.Millisecond)
	require.False(t, <-changes)
}
