package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/directchat/internal/model"
	"github.com/directchat/internal/storage"
)

type Client struct {
	mu     sync.RWMutex
	online []string
	subs   map[string][]model.PushSubscription
}

func New() *Client {
	return &Client{subs: make(map[string][]model.PushSubscription)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetOnline(_ context.Context, userIDs []string) error {
	ids := append([]string{}, userIDs...)
	sort.Strings(ids)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = ids
	return nil
}

func (c *Client) Online(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.online...), nil
}

func (c *Client) AddSubscription(_ context.Context, userID string, sub model.PushSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := withoutEndpoint(c.subs[userID], sub.Endpoint)
	kept = append(kept, sub)
	if len(kept) > storage.MaxSubscriptionsPerUser {
		kept = kept[len(kept)-storage.MaxSubscriptionsPerUser:]
	}
	c.subs[userID] = kept
	return nil
}

func (c *Client) Subscriptions(_ context.Context, userID string) ([]model.PushSubscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.PushSubscription{}, c.subs[userID]...), nil
}

func (c *Client) RemoveSubscription(_ context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := withoutEndpoint(c.subs[userID], endpoint)
	if len(kept) == 0 {
		delete(c.subs, userID)
		return nil
	}
	c.subs[userID] = kept
	return nil
}

func withoutEndpoint(subs []model.PushSubscription, endpoint string) []model.PushSubscription {
	kept := make([]model.PushSubscription, 0, len(subs))
	for _, s := range subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	return kept
}

var (
	_ storage.PresenceStore     = (*Client)(nil)
	_ storage.SubscriptionStore = (*Client)(nil)
)
