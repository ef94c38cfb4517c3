package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
	"github.com/directchat/internal/ws"
)

// ErrStale is returned when the active peer changed while a fetch was in
// flight; its result was dropped.
var ErrStale = errors.New("active peer changed, result discarded")

var ErrNoPeer = errors.New("no conversation selected")

// Notification keys. A UI shows one toast per key, so repeats collapse.
const (
	NoticeFetchMessages = "fetch-messages-error"
	NoticeSendMessage   = "send-message-error"
	NoticeUnread        = "unread-messages-error"
)

// HistoryAPI is the slice of the chat API the sync engine needs.
type HistoryAPI interface {
	Conversation(ctx context.Context, peerID, beforeID string, limit int) ([]model.EnrichedMessage, error)
	Send(ctx context.Context, peerID string, in chat.SendInput) (*model.EnrichedMessage, error)
	UnreadCounts(ctx context.Context) ([]model.UnreadCount, error)
	MarkRead(ctx context.Context, peerID string) error
}

// Viewport is the scrollable surface the conversation is drawn in.
type Viewport interface {
	ContentHeight() int
	ScrollTop() int
	SetScrollTop(top int)
}

// Scheduler runs fn once the UI has committed what was just changed.
type Scheduler interface {
	AfterRender(fn func())
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(key, message string)
}

// DelayScheduler approximates a render pass with a fixed delay.
type DelayScheduler time.Duration

func (d DelayScheduler) AfterRender(fn func()) { time.AfterFunc(time.Duration(d), fn) }

type noopViewport struct{}

func (noopViewport) ContentHeight() int { return 0 }
func (noopViewport) ScrollTop() int     { return 0 }
func (noopViewport) SetScrollTop(int)   {}

type logNotifier struct{}

func (logNotifier) Notify(key, message string) { logger.Errorf("%s: %s", key, message) }

type SyncOptions struct {
	PageSize  int
	Viewport  Viewport
	Scheduler Scheduler
	Notifier  Notifier
}

// Sync keeps the active conversation consistent across history pages, live
// pushes and local sends. Messages are ascending by createdAt, ties in
// arrival order, and never repeat an id.
type Sync struct {
	api      HistoryAPI
	pageSize int
	view     Viewport
	sched    Scheduler
	notify   Notifier

	mu         sync.Mutex
	peer       string
	epoch      uint64
	messages   []model.EnrichedMessage
	hasMore    bool
	loaded     bool
	pending    []model.EnrichedMessage
	loading    bool
	loadingOld bool
	marker     string
	unread     map[string]int
	firstSeen  map[string]string
	off        func()
}

func NewSync(api HistoryAPI, opts SyncOptions) *Sync {
	if opts.PageSize <= 0 {
		opts.PageSize = chat.DefaultPageSize
	}
	if opts.Viewport == nil {
		opts.Viewport = noopViewport{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = DelayScheduler(100 * time.Millisecond)
	}
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{}
	}
	return &Sync{
		api:       api,
		pageSize:  opts.PageSize,
		view:      opts.Viewport,
		sched:     opts.Scheduler,
		notify:    opts.Notifier,
		unread:    make(map[string]int),
		firstSeen: make(map[string]string),
	}
}

// Subscribe starts applying newMessage pushes from src. Subscribing twice
// keeps the first subscription.
func (s *Sync) Subscribe(src EventSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.off != nil {
		return
	}
	s.off = src.On(ws.EventNewMessage, func(raw json.RawMessage) {
		var m model.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			logger.Errorf("sync newMessage: %v", err)
			return
		}
		s.Push(m)
	})
}

func (s *Sync) Unsubscribe() {
	s.mu.Lock()
	off := s.off
	s.off = nil
	s.mu.Unlock()
	if off != nil {
		off()
	}
}

// SelectPeer opens the conversation with peerID, replacing the view with its
// newest page. An empty peerID closes the conversation. The unread divider
// is placed from the unread count and, after one render, the conversation is
// marked read.
func (s *Sync) SelectPeer(ctx context.Context, peerID string) error {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.peer = peerID
	s.messages = nil
	s.pending = nil
	s.marker = ""
	s.hasMore = true
	s.loaded = false
	s.loadingOld = false
	s.loading = peerID != ""
	s.mu.Unlock()

	if peerID == "" {
		return nil
	}
	defer s.clearFlag(epoch, &s.loading)

	page, err := s.api.Conversation(ctx, peerID, "", s.pageSize)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		// the view stays usable for live messages
		s.loaded = true
		s.messages = mergeMessages(nil, s.pending)
		s.pending = nil
		s.mu.Unlock()
		s.notify.Notify(NoticeFetchMessages, "Failed to fetch messages")
		return err
	}
	if len(page) == 0 {
		s.hasMore = false
	}
	s.messages = mergeMessages(page, s.pending)
	s.pending = nil
	s.loaded = true
	s.marker = s.unreadMarker(peerID, page)
	s.mu.Unlock()

	s.sched.AfterRender(func() { s.markRead(epoch, peerID) })
	return nil
}

// unreadMarker picks the first unread message of a freshly loaded page.
func (s *Sync) unreadMarker(peerID string, page []model.EnrichedMessage) string {
	n := s.unread[peerID]
	if n <= 0 || len(page) == 0 {
		return ""
	}
	if i := len(page) - n; i >= 0 {
		return page[i].ID
	}
	// more unread than loaded: fall back to the first one pushed live
	if id := s.firstSeen[peerID]; id != "" && slices.ContainsFunc(page, func(m model.EnrichedMessage) bool { return m.ID == id }) {
		return id
	}
	return page[0].ID
}

// markRead is dropped once the user has moved to another conversation;
// unread counted for peerID since then must survive.
func (s *Sync) markRead(epoch uint64, peerID string) {
	s.mu.Lock()
	current := s.epoch == epoch
	s.mu.Unlock()
	if !current {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.api.MarkRead(ctx, peerID); err != nil {
		logger.Errorf("sync markRead %s: %v", peerID, err)
		return
	}
	s.mu.Lock()
	if s.epoch == epoch {
		delete(s.unread, peerID)
		delete(s.firstSeen, peerID)
	}
	s.mu.Unlock()
}

// LoadOlder prepends the page preceding the oldest loaded message and keeps
// the viewport anchored on what the user was looking at. It is a no-op while
// another LoadOlder is in flight or once an empty page was returned.
func (s *Sync) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if s.peer == "" || !s.loaded || !s.hasMore || s.loadingOld || len(s.messages) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.loadingOld = true
	epoch, peerID := s.epoch, s.peer
	beforeID := s.messages[0].ID
	prevHeight, prevTop := s.view.ContentHeight(), s.view.ScrollTop()
	s.mu.Unlock()
	defer s.clearFlag(epoch, &s.loadingOld)

	page, err := s.api.Conversation(ctx, peerID, beforeID, s.pageSize)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.mu.Unlock()
		s.notify.Notify(NoticeFetchMessages, "Failed to fetch messages")
		return err
	}
	if len(page) == 0 {
		s.hasMore = false
		s.mu.Unlock()
		return nil
	}
	s.messages = mergeMessages(page, s.messages)
	s.mu.Unlock()

	s.sched.AfterRender(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		s.view.SetScrollTop(prevTop + s.view.ContentHeight() - prevHeight)
	})
	return nil
}

// clearFlag resets a loading flag unless the peer changed meanwhile, in which
// case SelectPeer already reset it for the new conversation.
func (s *Sync) clearFlag(epoch uint64, flag *bool) {
	s.mu.Lock()
	if s.epoch == epoch {
		*flag = false
	}
	s.mu.Unlock()
}

// Push applies a message received live. Messages from the active peer join
// the view, held back until its first page is in; others count as unread.
func (s *Sync) Push(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	em := model.EnrichedMessage{Message: m}
	if s.peer != "" && m.SenderID == s.peer {
		if !s.loaded {
			s.pending = append(s.pending, em)
			return
		}
		s.messages = mergeMessages(s.messages, []model.EnrichedMessage{em})
		return
	}
	if s.unread[m.SenderID] == 0 {
		s.firstSeen[m.SenderID] = m.ID
	}
	s.unread[m.SenderID]++
}

// Send posts a message to the active peer. It joins the view only once the
// server accepted it.
func (s *Sync) Send(ctx context.Context, in chat.SendInput) (*model.EnrichedMessage, error) {
	s.mu.Lock()
	epoch, peerID := s.epoch, s.peer
	s.mu.Unlock()
	if peerID == "" {
		return nil, ErrNoPeer
	}

	m, err := s.api.Send(ctx, peerID, in)
	if err != nil {
		msg := "Failed to send message"
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		s.notify.Notify(NoticeSendMessage, msg)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		if s.loaded {
			s.messages = mergeMessages(s.messages, []model.EnrichedMessage{*m})
		} else {
			s.pending = append(s.pending, *m)
		}
	}
	return m, nil
}

// RefreshUnread replaces the unread index with the server's counts.
func (s *Sync) RefreshUnread(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	counts, err := s.api.UnreadCounts(ctx)
	if err != nil {
		s.notify.Notify(NoticeUnread, "Failed to fetch unread messages")
		return fmt.Errorf("sync.RefreshUnread: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return ErrStale
	}
	next := make(map[string]int, len(counts))
	for _, c := range counts {
		if c.UnreadCount > 0 {
			next[c.UserID] = c.UnreadCount
		}
	}
	for id := range s.firstSeen {
		if next[id] == 0 {
			delete(s.firstSeen, id)
		}
	}
	s.unread = next
	return nil
}

// mergeMessages appends incoming to base, skipping ids already present, and
// stable sorts by createdAt so equal timestamps keep arrival order.
func mergeMessages(base, incoming []model.EnrichedMessage) []model.EnrichedMessage {
	out := make([]model.EnrichedMessage, 0, len(base)+len(incoming))
	seen := make(map[string]struct{}, len(base)+len(incoming))
	for _, list := range [][]model.EnrichedMessage{base, incoming} {
		for _, m := range list {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b model.EnrichedMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (s *Sync) ActivePeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Messages returns a copy of the active conversation.
func (s *Sync) Messages() []model.EnrichedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Sync) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// FirstUnread is the id of the message the unread divider sits above, or "".
func (s *Sync) FirstUnread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker
}

func (s *Sync) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Sync) LoadingOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingOld
}

func (s *Sync) UnreadCount(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[peerID]
}

// Unread returns a copy of the unread index.
func (s *Sync) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unread))
	for k, v := range s.unread {
		out[k] = v
	}
	return out
}
