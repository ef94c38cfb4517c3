// Package memstore keeps users and messages in process memory. It backs the
// -memory mode of the api service and the pipeline tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/directchat/internal/model"
	"github.com/directchat/internal/repository"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]model.User)}
}

// Create inserts u. An existing id or email is left untouched.
func (s *UserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return nil
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return nil
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetPublicByIDs(_ context.Context, ids []string) (map[string]model.UserPublic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.UserPublic, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.ToPublic()
		}
	}
	return out, nil
}

func (s *UserStore) ListExcept(_ context.Context, userID string) ([]model.UserPublic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UserPublic, 0, len(s.users))
	for id, u := range s.users {
		if id != userID {
			out = append(out, u.ToPublic())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type MessageStore struct {
	mu   sync.RWMutex
	byID map[string]*model.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[string]*model.Message)}
}

func (s *MessageStore) Create(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return repository.ErrConflict
	}
	cp := *m
	s.byID[m.ID] = &cp
	return nil
}

func (s *MessageStore) GetByID(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// newer orders by (createdAt, id) descending, the same key the postgres
// store pages on.
func newer(a, b *model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (s *MessageStore) Conversation(_ context.Context, userID, peerID string, before *model.Message, limit int) ([]model.Message, error) {
	s.mu.RLock()
	matched := make([]*model.Message, 0)
	for _, m := range s.byID {
		if !m.Between(userID, peerID) {
			continue
		}
		if before != nil && !newer(before, m) {
			continue
		}
		matched = append(matched, m)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]model.Message, len(matched))
	for i, m := range matched {
		out[i] = *m
	}
	return out, nil
}

func (s *MessageStore) UnreadCounts(_ context.Context, userID string) ([]model.UnreadCount, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, m := range s.byID {
		if m.ReceiverID == userID && !m.IsRead {
			counts[m.SenderID]++
		}
	}
	s.mu.RUnlock()

	out := make([]model.UnreadCount, 0, len(counts))
	for sender, n := range counts {
		out = append(out, model.UnreadCount{UserID: sender, UnreadCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MessageStore) MarkRead(_ context.Context, userID, peerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.byID {
		if m.SenderID == peerID && m.ReceiverID == userID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}
