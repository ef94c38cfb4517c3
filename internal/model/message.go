package model

import "time"

// Message is the persisted record. SenderID and ReceiverID are bare user ids;
// this is the shape pushed over the socket as newMessage.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasContent reports whether the message carries text or an image.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.ImageURL != ""
}

// PeerOf returns the other participant of the conversation from userID's side.
func (m *Message) PeerOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Between reports whether the message belongs to the conversation of a and b.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// EnrichedMessage is a Message with both participants expanded to their
// public profiles, returned by the HTTP API.
type EnrichedMessage struct {
	Message
	Sender   *UserPublic `json:"sender,omitempty"`
	Receiver *UserPublic `json:"receiver,omitempty"`
}

// UnreadCount is one row of the unread aggregation: messages from UserID
// addressed to the caller that are not read yet.
type UnreadCount struct {
	UserID      string `json:"userId"`
	UnreadCount int    `json:"unreadCount"`
}
