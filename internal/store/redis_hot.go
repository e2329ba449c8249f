package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

// Redis key layout:
// chat:messages               HASH<id, message json>   - every hot message
// chat:users                  HASH<id, user json>      - roster copy
// chat:presence               HASH<id, "1"|"0">        - live presence
// chat:idx:thread:{len(a)}:{a}:{b} ZSET<id> by dateSent µs - per-conversation order
// chat:idx:term:{token}       SET<id>                  - message text tokens
// chat:idx:user:{token}       SET<id>                  - username tokens
// chat:idx:ready              STRING                   - set once CreateIndex finished
// last-redis-sync             STRING<RFC3339 time>     - sync cursor
const (
	keyMessages   = "chat:messages"
	keyUsers      = "chat:users"
	keyPresence   = "chat:presence"
	keyIndexReady = "chat:idx:ready"

	scanBatch = 500
)

func threadIndexKey(a, b string) string {
	return "chat:idx:thread:" + chat.ThreadKey(a, b)
}

func termIndexKey(token string) string {
	return "chat:idx:term:" + token
}

func userTermIndexKey(token string) string {
	return "chat:idx:user:" + token
}

// RedisHotStore implements HotStore on a single Redis database.
type RedisHotStore struct {
	client *redis.Client
}

// NewRedisHotStore wraps an existing client. The caller owns the client.
func NewRedisHotStore(client *redis.Client) *RedisHotStore {
	return &RedisHotStore{client: client}
}

func (s *RedisHotStore) Write(ctx context.Context, msg *chat.Message) (string, error) {
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

// PutMessages stores messages and, when the index already exists, indexes
// them in the same transaction.
func (s *RedisHotStore) PutMessages(ctx context.Context, msgs []chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ready, err := s.indexReady(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(msgs); start += scanBatch {
		end := min(start+scanBatch, len(msgs))
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i := start; i < end; i++ {
				m := &msgs[i]
				data, err := json.Marshal(m)
				if err != nil {
					return fmt.Errorf("encode message %s: %w", m.ID, err)
				}
				pipe.HSet(ctx, keyMessages, m.ID, data)
				if ready {
					indexMessage(ctx, pipe, m)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("put messages: %w", err)
		}
	}
	return nil
}

func indexMessage(ctx context.Context, pipe redis.Pipeliner, m *chat.Message) {
	pipe.ZAdd(ctx, threadIndexKey(m.SenderID, m.ReceiverID), redis.Z{
		Score:  float64(m.DateSent.UnixMicro()),
		Member: m.ID,
	})
	for _, tok := range tokenize(m.Text) {
		pipe.SAdd(ctx, termIndexKey(tok), m.ID)
	}
}

func indexUser(ctx context.Context, pipe redis.Pipeliner, u *user.User) {
	for _, tok := range tokenize(u.Username) {
		pipe.SAdd(ctx, userTermIndexKey(tok), u.ID)
	}
}

func (s *RedisHotStore) indexReady(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, keyIndexReady).Result()
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	return n > 0, nil
}

func (s *RedisHotStore) requireIndex(ctx context.Context) error {
	ready, err := s.indexReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return ErrIndexUnavailable
	}
	return nil
}

// CreateIndex builds every secondary index from the stored documents and
// then marks the index as ready.
func (s *RedisHotStore) CreateIndex(ctx context.Context) error {
	err := s.scanHash(ctx, keyMessages, func(batch map[string]string) error {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, raw := range batch {
				var m chat.Message
				if err := json.Unmarshal([]byte(raw), &m); err != nil {
					return fmt.Errorf("decode message %s: %w", id, err)
				}
				indexMessage(ctx, pipe, &m)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("index messages: %w", err)
	}

	err = s.scanHash(ctx, keyUsers, func(batch map[string]string) error {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, raw := range batch {
				var u user.User
				if err := json.Unmarshal([]byte(raw), &u); err != nil {
					return fmt.Errorf("decode user %s: %w", id, err)
				}
				indexUser(ctx, pipe, &u)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("index users: %w", err)
	}

	if err := s.client.Set(ctx, keyIndexReady, time.Now().UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("mark index ready: %w", err)
	}
	return nil
}

// scanHash walks a hash in batches with HSCAN.
func (s *RedisHotStore) scanHash(ctx context.Context, key string, fn func(map[string]string) error) error {
	var cursor uint64
	for {
		kvs, next, err := s.client.HScan(ctx, key, cursor, "", scanBatch).Result()
		if err != nil {
			return err
		}
		batch := make(map[string]string, len(kvs)/2)
		for i := 0; i+1 < len(kvs); i += 2 {
			batch[kvs[i]] = kvs[i+1]
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisHotStore) loadMessages(ctx context.Context, ids []string) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	vals, err := s.client.HMGet(ctx, keyMessages, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m chat.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", ids[i], err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisHotStore) QueryThread(ctx context.Context, userA, userB string) ([]chat.Message, error) {
	if err := s.requireIndex(ctx); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRangeByScore(ctx, threadIndexKey(userA, userB), &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	msgs, err := s.loadMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	thread := msgs[:0]
	for _, m := range msgs {
		if m.Between(userA, userB) {
			thread = append(thread, m)
		}
	}
	return thread, nil
}

func (s *RedisHotStore) Search(ctx context.Context, text string) ([]chat.Message, error) {
	if err := s.requireIndex(ctx); err != nil {
		return nil, err
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return []chat.Message{}, nil
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = termIndexKey(t)
	}
	ids, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	msgs, err := s.loadMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortByDateSent(msgs)
	return msgs, nil
}

func (s *RedisHotStore) SearchUsers(ctx context.Context, text string) ([]user.User, error) {
	if err := s.requireIndex(ctx); err != nil {
		return nil, err
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return []user.User{}, nil
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = userTermIndexKey(t)
	}
	ids, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return s.loadUsers(ctx, ids)
}

func (s *RedisHotStore) AllMessages(ctx context.Context) ([]chat.Message, error) {
	return s.MessagesSince(ctx, time.Time{})
}

// MessagesSince returns messages with dateSent strictly after since. A zero
// since returns everything.
func (s *RedisHotStore) MessagesSince(ctx context.Context, since time.Time) ([]chat.Message, error) {
	var out []chat.Message
	err := s.scanHash(ctx, keyMessages, func(batch map[string]string) error {
		for id, raw := range batch {
			var m chat.Message
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return fmt.Errorf("decode message %s: %w", id, err)
			}
			if since.IsZero() || m.DateSent.After(since) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	sortByDateSent(out)
	return out, nil
}

func (s *RedisHotStore) PutUsers(ctx context.Context, users []user.User) error {
	if len(users) == 0 {
		return nil
	}
	ready, err := s.indexReady(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(users); start += scanBatch {
		end := min(start+scanBatch, len(users))
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i := start; i < end; i++ {
				u := users[i]
				online := u.Online
				u.Online = false
				data, err := json.Marshal(&u)
				if err != nil {
					return fmt.Errorf("encode user %s: %w", u.ID, err)
				}
				pipe.HSet(ctx, keyUsers, u.ID, data)
				pipe.HSet(ctx, keyPresence, u.ID, presenceValue(online))
				if ready {
					indexUser(ctx, pipe, &u)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("put users: %w", err)
		}
	}
	return nil
}

func presenceValue(online bool) string {
	if online {
		return "1"
	}
	return "0"
}

func (s *RedisHotStore) loadUsers(ctx context.Context, ids []string) ([]user.User, error) {
	out := make([]user.User, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	vals, err := s.client.HMGet(ctx, keyUsers, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	presence, err := s.client.HMGet(ctx, keyPresence, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load presence: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var u user.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", ids[i], err)
		}
		u.Online = presence[i] == "1"
		out = append(out, u)
	}
	sortUsers(out)
	return out, nil
}

func (s *RedisHotStore) ListUsers(ctx context.Context) ([]user.User, error) {
	ids, err := s.client.HKeys(ctx, keyUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return s.loadUsers(ctx, ids)
}

func (s *RedisHotStore) GetUser(ctx context.Context, id string) (*user.User, error) {
	users, err := s.loadUsers(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

// SetPresence records the flag even for users that are not in the roster copy.
func (s *RedisHotStore) SetPresence(ctx context.Context, userID string, online bool) error {
	if err := s.client.HSet(ctx, keyPresence, userID, presenceValue(online)).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// FlushAll drops the configured database, including the index and the sync cursor.
func (s *RedisHotStore) FlushAll(ctx context.Context) error {
	if err := s.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (s *RedisHotStore) SyncCursor(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, SyncCursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read sync cursor: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse sync cursor %q: %w", raw, err)
	}
	return t, true, nil
}

func (s *RedisHotStore) SetSyncCursor(ctx context.Context, t time.Time) error {
	if err := s.client.Set(ctx, SyncCursorKey, t.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("write sync cursor: %w", err)
	}
	return nil
}

// Presence reads a single presence flag. Unknown users are offline.
func (s *RedisHotStore) Presence(ctx context.Context, userID string) (bool, error) {
	v, err := s.client.HGet(ctx, keyPresence, userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read presence: %w", err)
	}
	return v == "1", nil
}
