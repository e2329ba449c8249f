package store

import (
	"context"
	"sync"
	"time"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

// MemoryColdStore is an in-process ColdStore used when no database URL is
// configured. Nothing survives a restart.
type MemoryColdStore struct {
	mu       sync.RWMutex
	messages []chat.Message
	ids      map[string]bool
	users    map[string]user.User

	// FailWith, when set, is returned by every read. Tests use it to
	// simulate an unreachable database.
	FailWith error
}

func NewMemoryColdStore() *MemoryColdStore {
	return &MemoryColdStore{
		ids:   make(map[string]bool),
		users: make(map[string]user.User),
	}
}

// AddUsers seeds the roster. The durable roster is maintained outside this
// service, so there is no write path on ColdStore for users.
func (s *MemoryColdStore) AddUsers(users ...user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		u.Online = false
		s.users[u.ID] = u
	}
}

func (s *MemoryColdStore) InsertMany(ctx context.Context, msgs []chat.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	var n int64
	for _, m := range msgs {
		if s.ids[m.ID] {
			continue
		}
		s.ids[m.ID] = true
		s.messages = append(s.messages, m)
		n++
	}
	return n, nil
}

func (s *MemoryColdStore) FindBefore(ctx context.Context, q PageQuery) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var matched []chat.Message
	for i := range s.messages {
		if q.matches(&s.messages[i]) {
			matched = append(matched, s.messages[i])
		}
	}
	sortByDateSent(matched)

	// newest first for paging, then back to chronological order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	start := min(q.offset(), len(matched))
	end := min(start+q.limit(), len(matched))
	page := append([]chat.Message{}, matched[start:end]...)
	sortByDateSent(page)
	return page, nil
}

func (s *MemoryColdStore) FindSince(ctx context.Context, since time.Time) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := []chat.Message{}
	for _, m := range s.messages {
		if !m.DateSent.Before(since) {
			out = append(out, m)
		}
	}
	sortByDateSent(out)
	return out, nil
}

func (s *MemoryColdStore) FindAllMessages(ctx context.Context) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := append([]chat.Message{}, s.messages...)
	sortByDateSent(out)
	return out, nil
}

func (s *MemoryColdStore) ListAllUsers(ctx context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sortUsers(out)
	return out, nil
}

func (s *MemoryColdStore) FindUser(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
