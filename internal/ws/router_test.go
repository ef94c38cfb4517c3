package ws

import (
	"testing"
	"time"

	"github.com/directchat/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDeliverToOfflineUserIsNoop(t *testing.T) {
	r := NewRouter(NewRegistry())
	require.NotPanics(t, func() {
		require.Equal(t, 0, r.DeliverToUser("nobody", EventNewMessage, "x"))
	})
}

func TestDeliverFansOutToEveryConnection(t *testing.T) {
	reg := NewRegistry()
	phone, laptop, other := newFakeConn("b"), newFakeConn("b"), newFakeConn("c")
	reg.Register("b", phone)
	reg.Register("b", laptop)
	reg.Register("c", other)
	r := NewRouter(reg)

	m := model.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Text: "hi", CreatedAt: time.Now()}
	require.Equal(t, 2, r.DeliverMessage(m))

	for _, c := range []*fakeConn{phone, laptop} {
		got, ok := c.last(EventNewMessage)
		require.True(t, ok)
		require.Equal(t, m, got.Payload)
	}
	require.Empty(t, other.messages())
}

func TestDeliverCountsOnlyAcceptingConnections(t *testing.T) {
	reg := NewRegistry()
	ok, stuck := newFakeConn("b"), newFakeConn("b")
	stuck.refuse = true
	reg.Register("b", ok)
	reg.Register("b", stuck)

	require.Equal(t, 1, NewRouter(reg).DeliverToUser("b", EventTyping, "a"))
}

func TestBroadcastPresence(t *testing.T) {
	reg := NewRegistry()
	a, b := newFakeConn("a"), newFakeConn("b")
	reg.Register("a", a)
	reg.Register("b", b)
	r := NewRouter(reg)

	online := r.BroadcastPresence(b)
	require.Equal(t, []string{"a", "b"}, online)

	for _, c := range []*fakeConn{a, b} {
		got, ok := c.last(EventGetOnlineUsers)
		require.True(t, ok)
		require.Equal(t, []string{"a", "b"}, got.Payload)
	}
	_, ok := a.last(EventInit)
	require.False(t, ok)
	initMsg, ok := b.last(EventInit)
	require.True(t, ok)
	require.Equal(t, InitPayload{OnlineUsers: []string{"a", "b"}}, initMsg.Payload)
}

func TestBroadcastPresenceEmptyListIsNotNil(t *testing.T) {
	online := NewRouter(NewRegistry()).BroadcastPresence(nil)
	require.NotNil(t, online)
	require.Empty(t, online)
}
