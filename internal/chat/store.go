package chat

import (
	"context"

	"github.com/directchat/internal/model"
)

// MessageStore is the persistent owner of messages.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	// GetByID returns repository.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// Conversation returns up to limit messages exchanged between userID and
	// peerID, newest first. A non-nil before restricts the page to messages
	// strictly older than it in (createdAt, id) order.
	Conversation(ctx context.Context, userID, peerID string, before *model.Message, limit int) ([]model.Message, error)
	// UnreadCounts groups unread messages addressed to userID by sender.
	UnreadCounts(ctx context.Context, userID string) ([]model.UnreadCount, error)
	// MarkRead flips isRead for every unread message from peerID to userID
	// and returns how many changed.
	MarkRead(ctx context.Context, userID, peerID string) (int64, error)
}

type UserStore interface {
	// GetByID returns repository.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetPublicByIDs(ctx context.Context, ids []string) (map[string]model.UserPublic, error)
	// ListExcept returns every other user, newest account first.
	ListExcept(ctx context.Context, userID string) ([]model.UserPublic, error)
}

// BlobStore turns a raw image payload into a stable URL.
type BlobStore interface {
	Upload(ctx context.Context, payload string) (string, error)
}

// Dispatcher pushes a persisted message to the receiver's live connections
// and returns how many were reached.
type Dispatcher interface {
	DeliverMessage(m model.Message) int
}

// OfflineNotifier is told about messages whose receiver had no live
// connection. Optional.
type OfflineNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}
