package ws

import (
	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
)

// Router delivers events to every live connection of a user. Delivery is
// at-most-once: an offline user simply misses the event and catches up on
// the next history fetch.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// DeliverToUser sends the event to all of userID's connections and returns
// how many accepted it. Zero means a delivery miss, which is not an error.
func (r *Router) DeliverToUser(userID string, event EventType, payload any) int {
	targets := r.registry.Resolve(userID)
	if len(targets) == 0 {
		logger.Debugf("ws deliver %s: user=%s offline, dropped", event, userID)
		return 0
	}
	out := OutgoingMessage{Type: event, Payload: payload}
	delivered := 0
	for _, c := range targets {
		if c.Send(out) {
			delivered++
		}
	}
	return delivered
}

// DeliverMessage pushes a persisted message to its receiver as newMessage.
func (r *Router) DeliverMessage(m model.Message) int {
	return r.DeliverToUser(m.ReceiverID, EventNewMessage, m)
}

// BroadcastPresence pushes the full online list to every connection. When
// newConn is set it also gets an init snapshot with the same list. It
// returns the list that was sent.
func (r *Router) BroadcastPresence(newConn Conn) []string {
	online := r.registry.OnlineUserIDs()
	out := OutgoingMessage{Type: EventGetOnlineUsers, Payload: online}
	for _, c := range r.registry.All() {
		c.Send(out)
	}
	if newConn != nil {
		newConn.Send(OutgoingMessage{Type: EventInit, Payload: InitPayload{OnlineUsers: online}})
	}
	return online
}
