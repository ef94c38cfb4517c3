package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/directchat/internal/model"
	"github.com/directchat/internal/storage"
)

const (
	PresenceKey     = "presence:online"
	SubsKeyPrefix   = "push:subs:"
	SubscriptionTTL = 30 * 24 * time.Hour
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetOnline replaces the presence set in one transaction so readers never
// see it half written.
func (c *Client) SetOnline(ctx context.Context, userIDs []string) error {
	_, err := c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, PresenceKey)
		if len(userIDs) > 0 {
			members := make([]any, len(userIDs))
			for i, id := range userIDs {
				members[i] = id
			}
			pipe.SAdd(ctx, PresenceKey, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis SetOnline: %w", err)
	}
	return nil
}

func (c *Client) Online(ctx context.Context) ([]string, error) {
	ids, err := c.cli.SMembers(ctx, PresenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis Online: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) AddSubscription(ctx context.Context, userID string, sub model.PushSubscription) error {
	if err := c.RemoveSubscription(ctx, userID, sub.Endpoint); err != nil {
		return err
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("redis AddSubscription encode: %w", err)
	}
	key := SubsKeyPrefix + userID
	pipe := c.cli.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -storage.MaxSubscriptionsPerUser, -1)
	pipe.Expire(ctx, key, SubscriptionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis AddSubscription: %w", err)
	}
	return nil
}

func (c *Client) Subscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	list, err := c.cli.LRange(ctx, SubsKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis Subscriptions: %w", err)
	}
	subs := make([]model.PushSubscription, 0, len(list))
	for _, item := range list {
		var sub model.PushSubscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (c *Client) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	key := SubsKeyPrefix + userID
	list, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis RemoveSubscription: %w", err)
	}
	for _, item := range list {
		var sub model.PushSubscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint == endpoint {
			if err := c.cli.LRem(ctx, key, 0, item).Err(); err != nil {
				return fmt.Errorf("redis RemoveSubscription: %w", err)
			}
		}
	}
	return nil
}

// FlushDB clears the current database; used to reset state in tests.
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}

var (
	_ storage.PresenceStore     = (*Client)(nil)
	_ storage.SubscriptionStore = (*Client)(nil)
)
