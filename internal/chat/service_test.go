package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/model"
	"github.com/directchat/internal/repository/memstore"
)

type fakeBlobs struct {
	url   string
	err   error
	calls int
}

func (b *fakeBlobs) Upload(context.Context, string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.url, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	online    map[string]int
	delivered []model.Message
}

func (d *fakeDispatcher) DeliverMessage(m model.Message) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, m)
	return d.online[m.ReceiverID]
}

type recordingNotifier struct {
	got chan string
}

func (n *recordingNotifier) Notify(_ context.Context, userID, _, _ string, _ map[string]string) {
	n.got <- userID
}

type fixture struct {
	svc      *Service
	messages *memstore.MessageStore
	blobs    *fakeBlobs
	dispatch *fakeDispatcher
	alice    string
	bob      string
	clock    time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		messages: memstore.NewMessageStore(),
		blobs:    &fakeBlobs{url: "http://files/image.png"},
		dispatch: &fakeDispatcher{online: map[string]int{}},
		alice:    uuid.NewString(),
		bob:      uuid.NewString(),
		clock:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	users := memstore.NewUserStore()
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &model.User{ID: f.alice, Email: "alice@example.com", FullName: "Alice", CreatedAt: f.clock}))
	require.NoError(t, users.Create(ctx, &model.User{ID: f.bob, Email: "bob@example.com", FullName: "Bob", CreatedAt: f.clock.Add(time.Hour)}))

	opts.Now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	f.svc = NewService(f.messages, users, f.blobs, f.dispatch, opts)
	return f
}

func (f *fixture) send(t *testing.T, from, to, text string) *model.EnrichedMessage {
	t.Helper()
	m, err := f.svc.Send(context.Background(), from, to, SendInput{Text: text})
	require.NoError(t, err)
	return m
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t, Options{})
	for _, in := range []SendInput{{}, {Text: "   \n\t"}} {
		_, err := f.svc.Send(context.Background(), f.alice, f.bob, in)
		require.ErrorIs(t, err, ErrEmptyMessage)
		require.True(t, IsValidation(err))
	}
	page, err := f.svc.Conversation(context.Background(), f.alice, f.bob, "", 0)
	require.NoError(t, err)
	require.Empty(t, page)
	require.Empty(t, f.dispatch.delivered)
}

func TestSendRejectsInvalidReceiver(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Send(context.Background(), f.alice, "not-a-uuid", SendInput{Text: "hi"})
	require.ErrorIs(t, err, ErrInvalidReceiver)

	_, err = f.svc.Send(context.Background(), f.alice, uuid.NewString(), SendInput{Text: "hi"})
	require.ErrorIs(t, err, ErrReceiverNotFound)
	require.Zero(t, f.blobs.calls)
}

func TestSendImageOnly(t *testing.T) {
	f := newFixture(t, Options{})
	m, err := f.svc.Send(context.Background(), f.alice, f.bob, SendInput{Image: "data:image/png;base64,AAAA"})
	require.NoError(t, err)
	require.Empty(t, m.Text)
	require.Equal(t, "http://files/image.png", m.ImageURL)

	stored, err := f.messages.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Text)
	require.Equal(t, "http://files/image.png", stored.ImageURL)
}

func TestSendBlobFailureDoesNotPersist(t *testing.T) {
	f := newFixture(t, Options{})
	f.blobs.err = errors.New("disk full")

	_, err := f.svc.Send(context.Background(), f.alice, f.bob, SendInput{Text: "look", Image: "AAAA"})
	require.ErrorIs(t, err, ErrUpstream)
	require.False(t, IsValidation(err))

	page, err := f.svc.Conversation(context.Background(), f.alice, f.bob, "", 0)
	require.NoError(t, err)
	require.Empty(t, page)
	require.Empty(t, f.dispatch.delivered)
}

func TestSendInvalidImageIsValidation(t *testing.T) {
	f := newFixture(t, Options{})
	f.blobs.err = ErrInvalidImage

	_, err := f.svc.Send(context.Background(), f.alice, f.bob, SendInput{Image: "garbage"})
	require.ErrorIs(t, err, ErrInvalidImage)
	require.True(t, IsValidation(err))
}

func TestSendToOfflineReceiver(t *testing.T) {
	notifier := &recordingNotifier{got: make(chan string, 1)}
	f := newFixture(t, Options{Notifier: notifier})

	m := f.send(t, f.alice, f.bob, "  hello  ")
	require.Equal(t, "hello", m.Text)
	require.False(t, m.IsRead)
	require.NotNil(t, m.Sender)
	require.Equal(t, "Alice", m.Sender.FullName)
	require.NotNil(t, m.Receiver)
	require.Equal(t, "Bob", m.Receiver.FullName)

	// dispatched raw, addressed to the receiver
	require.Len(t, f.dispatch.delivered, 1)
	require.Equal(t, m.Message, f.dispatch.delivered[0])

	select {
	case id := <-notifier.got:
		require.Equal(t, f.bob, id)
	case <-time.After(time.Second):
		t.Fatal("offline receiver was not notified")
	}

	page, err := f.svc.Conversation(context.Background(), f.bob, f.alice, "", 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, m.ID, page[0].ID)
	require.False(t, page[0].IsRead)
}

func TestSendToOnlineReceiverSkipsNotifier(t *testing.T) {
	notifier := &recordingNotifier{got: make(chan string, 1)}
	f := newFixture(t, Options{Notifier: notifier})
	f.dispatch.online[f.bob] = 2

	f.send(t, f.alice, f.bob, "hi")
	select {
	case <-notifier.got:
		t.Fatal("online receiver should not be notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.send(t, f.alice, f.bob, "one")
	f.send(t, f.alice, f.bob, "two")
	f.send(t, f.bob, f.alice, "reply")

	counts, err := f.svc.UnreadCounts(ctx, f.bob)
	require.NoError(t, err)
	require.Equal(t, []model.UnreadCount{{UserID: f.alice, UnreadCount: 2}}, counts)

	require.NoError(t, f.svc.MarkRead(ctx, f.bob, f.alice))
	require.NoError(t, f.svc.MarkRead(ctx, f.bob, f.alice))

	counts, err = f.svc.UnreadCounts(ctx, f.bob)
	require.NoError(t, err)
	require.Empty(t, counts)
	require.NotNil(t, counts)

	// alice's side is untouched
	counts, err = f.svc.UnreadCounts(ctx, f.alice)
	require.NoError(t, err)
	require.Equal(t, []model.UnreadCount{{UserID: f.bob, UnreadCount: 1}}, counts)

	require.ErrorIs(t, f.svc.MarkRead(ctx, f.bob, "nope"), ErrInvalidPeer)
}

func TestConversationPaging(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ids := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		from, to := f.alice, f.bob
		if i%2 == 1 {
			from, to = f.bob, f.alice
		}
		ids = append(ids, f.send(t, from, to, "msg").ID)
	}

	newest, err := f.svc.Conversation(ctx, f.alice, f.bob, "", 0)
	require.NoError(t, err)
	require.Len(t, newest, DefaultPageSize)
	require.Equal(t, ids[5], newest[0].ID)
	require.Equal(t, ids[24], newest[19].ID)

	older, err := f.svc.Conversation(ctx, f.alice, f.bob, newest[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, older, 5)

	merged := append(older, newest...)
	require.Len(t, merged, 25)
	for i := range merged {
		require.Equal(t, ids[i], merged[i].ID)
		if i > 0 {
			require.False(t, merged[i].CreatedAt.Before(merged[i-1].CreatedAt))
		}
	}

	oldest, err := f.svc.Conversation(ctx, f.alice, f.bob, older[0].ID, 0)
	require.NoError(t, err)
	require.Empty(t, oldest)
}

func TestConversationLimitAndCursor(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2, MaxPageSize: 3})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.send(t, f.alice, f.bob, "msg")
	}

	page, err := f.svc.Conversation(ctx, f.alice, f.bob, "", 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	page, err = f.svc.Conversation(ctx, f.alice, f.bob, "", 50)
	require.NoError(t, err)
	require.Len(t, page, 3)

	// unknown or malformed cursors fall back to the newest page
	page, err = f.svc.Conversation(ctx, f.alice, f.bob, uuid.NewString(), 5)
	require.NoError(t, err)
	require.Len(t, page, 3)
	page, err = f.svc.Conversation(ctx, f.alice, f.bob, "garbage", 5)
	require.NoError(t, err)
	require.Len(t, page, 3)

	_, err = f.svc.Conversation(ctx, f.alice, "garbage", "", 0)
	require.ErrorIs(t, err, ErrInvalidPeer)
}

func TestListUsersExcludesCaller(t *testing.T) {
	f := newFixture(t, Options{})
	users, err := f.svc.ListUsers(context.Background(), f.alice)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, f.bob, users[0].ID)
}
