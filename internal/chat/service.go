// Package chat implements the message delivery pipeline: validation,
// optional image upload, persistence, enrichment and live dispatch.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
	"github.com/directchat/internal/repository"
)

const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100
)

// SendInput is the request body of a send. Image is a data URL or bare
// base64 payload; the Blob Store decides what it accepts.
type SendInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type Options struct {
	PageSize    int
	MaxPageSize int
	// Notifier receives messages whose receiver was offline. May be nil.
	Notifier OfflineNotifier
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Service struct {
	messages MessageStore
	users    UserStore
	blobs    BlobStore
	dispatch Dispatcher
	notifier OfflineNotifier
	now      func() time.Time
	pageSize int
	maxPage  int
}

func NewService(messages MessageStore, users UserStore, blobs BlobStore, dispatch Dispatcher, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPageSize < opts.PageSize {
		opts.MaxPageSize = DefaultMaxPageSize
		if opts.MaxPageSize < opts.PageSize {
			opts.MaxPageSize = opts.PageSize
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		messages: messages,
		users:    users,
		blobs:    blobs,
		dispatch: dispatch,
		notifier: opts.Notifier,
		now:      opts.Now,
		pageSize: opts.PageSize,
		maxPage:  opts.MaxPageSize,
	}
}

// Send validates, persists and dispatches one message from senderID to
// receiverID. Nothing is persisted unless the image (if any) was stored
// first. Dispatch is fire and forget: an offline receiver is not an error.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*model.EnrichedMessage, error) {
	defer logger.DeferLogDuration("chat.Send", time.Now())()

	if _, err := uuid.Parse(receiverID); err != nil {
		return nil, ErrInvalidReceiver
	}
	text := strings.TrimSpace(in.Text)
	image := strings.TrimSpace(in.Image)
	if text == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("%w: lookup receiver: %w", ErrUpstream, err)
	}

	var imageURL string
	if image != "" {
		url, err := s.blobs.Upload(ctx, image)
		if err != nil {
			if errors.Is(err, ErrInvalidImage) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: upload image: %w", ErrUpstream, err)
		}
		imageURL = url
	}

	m := model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		ImageURL:   imageURL,
		IsRead:     false,
		// postgres keeps microseconds; truncate so both stores agree on order
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.messages.Create(ctx, &m); err != nil {
		return nil, fmt.Errorf("%w: persist message: %w", ErrUpstream, err)
	}

	out := &model.EnrichedMessage{Message: m}
	if parties, err := s.users.GetPublicByIDs(ctx, []string{senderID, receiverID}); err != nil {
		logger.Errorf("chat.Send enrich %s: %v", m.ID, err)
	} else {
		out.Sender = publicPtr(parties, senderID)
		out.Receiver = publicPtr(parties, receiverID)
	}

	if delivered := s.dispatch.DeliverMessage(m); delivered == 0 && s.notifier != nil {
		s.notifyOffline(out)
	}
	return out, nil
}

func (s *Service) notifyOffline(m *model.EnrichedMessage) {
	title := "New message"
	if m.Sender != nil && m.Sender.FullName != "" {
		title = m.Sender.FullName
	}
	body := m.Text
	if body == "" {
		body = "Image"
	}
	data := map[string]string{"senderId": m.SenderID, "messageId": m.ID}
	go s.notifier.Notify(context.Background(), m.ReceiverID, title, body, data)
}

// ListUsers returns every user except userID, newest account first.
func (s *Service) ListUsers(ctx context.Context, userID string) ([]model.UserPublic, error) {
	users, err := s.users.ListExcept(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %w", ErrUpstream, err)
	}
	return users, nil
}

// Conversation returns one page of the conversation between userID and
// peerID in ascending createdAt order. An empty beforeID returns the newest
// page; a beforeID that cannot be resolved within this conversation is
// ignored. limit <= 0 selects the default page size.
func (s *Service) Conversation(ctx context.Context, userID, peerID, beforeID string, limit int) ([]model.EnrichedMessage, error) {
	defer logger.DeferLogDuration("chat.Conversation", time.Now())()

	if _, err := uuid.Parse(peerID); err != nil {
		return nil, ErrInvalidPeer
	}
	var before *model.Message
	if beforeID != "" {
		if _, err := uuid.Parse(beforeID); err == nil {
			m, err := s.messages.GetByID(ctx, beforeID)
			switch {
			case err == nil:
				if m.Between(userID, peerID) {
					before = m
				}
			case errors.Is(err, repository.ErrNotFound):
			default:
				return nil, fmt.Errorf("%w: resolve cursor: %w", ErrUpstream, err)
			}
		}
	}

	page, err := s.messages.Conversation(ctx, userID, peerID, before, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %w", ErrUpstream, err)
	}

	parties, err := s.users.GetPublicByIDs(ctx, []string{userID, peerID})
	if err != nil {
		logger.Errorf("chat.Conversation enrich: %v", err)
		parties = nil
	}
	out := make([]model.EnrichedMessage, len(page))
	// store returns newest first; flip into display order
	for i, m := range page {
		out[len(page)-1-i] = model.EnrichedMessage{
			Message:  m,
			Sender:   publicPtr(parties, m.SenderID),
			Receiver: publicPtr(parties, m.ReceiverID),
		}
	}
	return out, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > s.maxPage {
		return s.maxPage
	}
	return limit
}

// UnreadCounts lists, per sender, the unread messages addressed to userID.
// Senders with nothing unread are absent.
func (s *Service) UnreadCounts(ctx context.Context, userID string) ([]model.UnreadCount, error) {
	counts, err := s.messages.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: unread counts: %w", ErrUpstream, err)
	}
	if counts == nil {
		counts = []model.UnreadCount{}
	}
	return counts, nil
}

// MarkRead marks every message from peerID to userID as read. Idempotent.
func (s *Service) MarkRead(ctx context.Context, userID, peerID string) error {
	if _, err := uuid.Parse(peerID); err != nil {
		return ErrInvalidPeer
	}
	n, err := s.messages.MarkRead(ctx, userID, peerID)
	if err != nil {
		return fmt.Errorf("%w: mark read: %w", ErrUpstream, err)
	}
	logger.Debugf("chat.MarkRead %s<-%s: %d", userID, peerID, n)
	return nil
}

func publicPtr(m map[string]model.UserPublic, id string) *model.UserPublic {
	u, ok := m[id]
	if !ok {
		return nil
	}
	return &u
}
