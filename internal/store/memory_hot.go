package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

// MemoryHotStore is an in-process HotStore for tests and for running
// without Redis. Its search matches on the same tokens as the Redis index.
type MemoryHotStore struct {
	mu       sync.RWMutex
	messages map[string]chat.Message
	users    map[string]user.User
	presence map[string]bool
	indexed  bool
	cursor   time.Time
	hasCur   bool
}

func NewMemoryHotStore() *MemoryHotStore {
	return &MemoryHotStore{
		messages: make(map[string]chat.Message),
		users:    make(map[string]user.User),
		presence: make(map[string]bool),
	}
}

func (s *MemoryHotStore) Write(ctx context.Context, msg *chat.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.DateSent.IsZero() {
		msg.DateSent = time.Now().UTC()
	}
	if err := s.PutMessages(ctx, []chat.Message{*msg}); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *MemoryHotStore) PutMessages(ctx context.Context, msgs []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return nil
}

func (s *MemoryHotStore) QueryThread(ctx context.Context, userA, userB string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexed {
		return nil, ErrIndexUnavailable
	}
	out := []chat.Message{}
	for _, m := range s.messages {
		if m.Between(userA, userB) {
			out = append(out, m)
		}
	}
	sortByDateSent(out)
	return out, nil
}

func containsAll(haystack, needles []string) bool {
	have := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		have[h] = true
	}
	for _, n := range needles {
		if !have[n] {
			return false
		}
	}
	return true
}

func (s *MemoryHotStore) Search(ctx context.Context, text string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexed {
		return nil, ErrIndexUnavailable
	}
	tokens := tokenize(text)
	out := []chat.Message{}
	if len(tokens) == 0 {
		return out, nil
	}
	for _, m := range s.messages {
		if containsAll(tokenize(m.Text), tokens) {
			out = append(out, m)
		}
	}
	sortByDateSent(out)
	return out, nil
}

func (s *MemoryHotStore) SearchUsers(ctx context.Context, text string) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexed {
		return nil, ErrIndexUnavailable
	}
	tokens := tokenize(text)
	out := []user.User{}
	if len(tokens) == 0 {
		return out, nil
	}
	for _, u := range s.users {
		if containsAll(tokenize(u.Username), tokens) {
			u.Online = s.presence[u.ID]
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

func sortUsers(users []user.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username == users[j].Username {
			return users[i].ID < users[j].ID
		}
		return strings.Compare(users[i].Username, users[j].Username) < 0
	})
}

func (s *MemoryHotStore) AllMessages(ctx context.Context) ([]chat.Message, error) {
	return s.MessagesSince(ctx, time.Time{})
}

func (s *MemoryHotStore) MessagesSince(ctx context.Context, since time.Time) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chat.Message
	for _, m := range s.messages {
		if since.IsZero() || m.DateSent.After(since) {
			out = append(out, m)
		}
	}
	sortByDateSent(out)
	return out, nil
}

func (s *MemoryHotStore) PutUsers(ctx context.Context, users []user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.presence[u.ID] = u.Online
		u.Online = false
		s.users[u.ID] = u
	}
	return nil
}

func (s *MemoryHotStore) ListUsers(ctx context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		u.Online = s.presence[u.ID]
		out = append(out, u)
	}
	sortUsers(out)
	return out, nil
}

func (s *MemoryHotStore) GetUser(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Online = s.presence[id]
	return &u, nil
}

func (s *MemoryHotStore) CreateIndex(ctx context.Context) error {
	s.mu.Lock()
	s.indexed = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryHotStore) SetPresence(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	s.presence[userID] = online
	s.mu.Unlock()
	return nil
}

func (s *MemoryHotStore) Presence(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[userID], nil
}

func (s *MemoryHotStore) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string]chat.Message)
	s.users = make(map[string]user.User)
	s.presence = make(map[string]bool)
	s.indexed = false
	s.cursor = time.Time{}
	s.hasCur = false
	return nil
}

func (s *MemoryHotStore) SyncCursor(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, s.hasCur, nil
}

func (s *MemoryHotStore) SetSyncCursor(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	s.cursor = t.UTC()
	s.hasCur = true
	s.mu.Unlock()
	return nil
}
