// Package storage holds the shared ephemeral state: the presence mirror read
// by other services and the web push subscriptions.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
package storage

import (
	"context"

	"github.com/directchat/internal/model"
)

// MaxSubscriptionsPerUser bounds how many browsers one user can register.
const MaxSubscriptionsPerUser = 10

// PresenceStore mirrors the api service's online set. The in-process
// registry stays authoritative; the mirror only lags it.
type PresenceStore interface {
	SetOnline(ctx context.Context, userIDs []string) error
	Online(ctx context.Context) ([]string, error)
	Close() error
}

type SubscriptionStore interface {
	// AddSubscription stores sub, replacing any entry with the same
	// endpoint and dropping the oldest past MaxSubscriptionsPerUser.
	AddSubscription(ctx context.Context, userID string, sub model.PushSubscription) error
	Subscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error)
	RemoveSubscription(ctx context.Context, userID, endpoint string) error
	Close() error
}
