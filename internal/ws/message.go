package ws

type EventType string

const (
	EventNewMessage     EventType = "newMessage"
	EventGetOnlineUsers EventType = "getOnlineUsers"
	EventInit           EventType = "init"
	EventTyping         EventType = "typing"
	EventStopTyping     EventType = "stopTyping"
	EventError          EventType = "error"
)

// IncomingMessage is what a client sends over the socket. Only the typing
// signals travel client to server; messages are sent over HTTP.
type IncomingMessage struct {
	Type   EventType `json:"type"`
	PeerID string    `json:"peerId,omitempty"`
}

// OutgoingMessage is what the server pushes to a connection.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// InitPayload is sent once to a freshly registered connection.
type InitPayload struct {
	OnlineUsers []string `json:"onlineUsers"`
}
