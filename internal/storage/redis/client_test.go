package redis

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/model"
)

// Runs against a real server: REDIS_TEST_URL=redis://localhost:6379/15
func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	c, err := New(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, c.FlushDB(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisPresence(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SetOnline(ctx, []string{"b", "a"}))
	got, err := c.Online(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, c.SetOnline(ctx, nil))
	got, err = c.Online(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRedisSubscriptions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	var s model.PushSubscription
	s.Endpoint, s.Keys.P256dh, s.Keys.Auth = "https://push.example/1", "p", "a"

	require.NoError(t, c.AddSubscription(ctx, "u", s))
	require.NoError(t, c.AddSubscription(ctx, "u", s))
	subs, err := c.Subscriptions(ctx, "u")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, c.RemoveSubscription(ctx, "u", s.Endpoint))
	subs, err = c.Subscriptions(ctx, "u")
	require.NoError(t, err)
	require.Empty(t, subs)
}
