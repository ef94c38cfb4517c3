package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/model"
	"github.com/directchat/internal/storage"
)

func sub(endpoint string) model.PushSubscription {
	var s model.PushSubscription
	s.Endpoint = endpoint
	s.Keys.P256dh = "p"
	s.Keys.Auth = "a"
	return s
}

func TestPresenceReplacesSet(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.SetOnline(ctx, []string{"b", "a"}))
	got, err := c.Online(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, c.SetOnline(ctx, []string{}))
	got, err = c.Online(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSubscriptionsDedupeAndCap(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.AddSubscription(ctx, "u", sub("e1")))
	require.NoError(t, c.AddSubscription(ctx, "u", sub("e1")))
	subs, err := c.Subscriptions(ctx, "u")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	for i := 0; i < storage.MaxSubscriptionsPerUser+3; i++ {
		require.NoError(t, c.AddSubscription(ctx, "u", sub(fmt.Sprintf("x%d", i))))
	}
	subs, err = c.Subscriptions(ctx, "u")
	require.NoError(t, err)
	require.Len(t, subs, storage.MaxSubscriptionsPerUser)
	require.Equal(t, fmt.Sprintf("x%d", storage.MaxSubscriptionsPerUser+2), subs[len(subs)-1].Endpoint)

	require.NoError(t, c.RemoveSubscription(ctx, "u", subs[0].Endpoint))
	subs, err = c.Subscriptions(ctx, "u")
	require.NoError(t, err)
	require.Len(t, subs, storage.MaxSubscriptionsPerUser-1)
}
