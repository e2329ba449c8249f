package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

var t0 = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func newRedisHot(t *testing.T) *RedisHotStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisHotStore(client)
}

func hotStores(t *testing.T) map[string]HotStore {
	return map[string]HotStore{
		"memory": NewMemoryHotStore(),
		"redis":  newRedisHot(t),
	}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestHotStore_IndexLifecycle(t *testing.T) {
	for name, s := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.PutMessages(ctx, []chat.Message{
				{ID: "m2", SenderID: "b", ReceiverID: "a", DateSent: t0.Add(time.Minute), Text: "Hello again"},
				{ID: "m1", SenderID: "a", ReceiverID: "b", DateSent: t0, Text: "hello world"},
				{ID: "m3", SenderID: "a", ReceiverID: "c", DateSent: t0, Text: "hello carol"},
			})

			if _, err := s.QueryThread(ctx, "a", "b"); !errors.Is(err, ErrIndexUnavailable) {
				t.Fatalf("expected ErrIndexUnavailable before CreateIndex, got %v", err)
			}
			if _, err := s.Search(ctx, "hello"); !errors.Is(err, ErrIndexUnavailable) {
				t.Fatalf("expected ErrIndexUnavailable for search, got %v", err)
			}

			// scans do not need the index
			all, err := s.AllMessages(ctx)
			if err != nil || !equalIDs(ids(all), "m1", "m3", "m2") {
				t.Fatalf("unexpected scan %v (%v)", ids(all), err)
			}

			if err := s.CreateIndex(ctx); err != nil {
				t.Fatalf("create index: %v", err)
			}

			thread, err := s.QueryThread(ctx, "b", "a")
			if err != nil || !equalIDs(ids(thread), "m1", "m2") {
				t.Fatalf("unexpected thread %v (%v)", ids(thread), err)
			}

			hits, err := s.Search(ctx, "HELLO world")
			if err != nil || !equalIDs(ids(hits), "m1") {
				t.Fatalf("unexpected search hits %v (%v)", ids(hits), err)
			}

			// writes after the index exists are indexed immediately
			id, err := s.Write(ctx, &chat.Message{SenderID: "a", ReceiverID: "b", Text: "world peace"})
			if err != nil || id == "" {
				t.Fatalf("write: %q %v", id, err)
			}
			hits, _ = s.Search(ctx, "world")
			if len(hits) != 2 {
				t.Fatalf("expected new message to be searchable, got %v", ids(hits))
			}
			thread, _ = s.QueryThread(ctx, "a", "b")
			if len(thread) != 3 || thread[2].ID != id {
				t.Fatalf("expected new message at the end of the thread, got %v", ids(thread))
			}

			if err := s.FlushAll(ctx); err != nil {
				t.Fatalf("flush: %v", err)
			}
			if _, err := s.QueryThread(ctx, "a", "b"); !errors.Is(err, ErrIndexUnavailable) {
				t.Fatalf("expected index to be gone after flush, got %v", err)
			}
			if all, _ := s.AllMessages(ctx); len(all) != 0 {
				t.Fatalf("expected empty store after flush, got %v", ids(all))
			}
		})
	}
}

func TestHotStore_ThreadIdsContainingSeparator(t *testing.T) {
	for name, s := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.PutMessages(ctx, []chat.Message{
				{ID: "private", SenderID: "a:b", ReceiverID: "c", DateSent: t0, Text: "secret"},
				{ID: "own", SenderID: "a", ReceiverID: "b:c", DateSent: t0.Add(time.Minute), Text: "mine"},
			})
			if err := s.CreateIndex(ctx); err != nil {
				t.Fatalf("create index: %v", err)
			}

			thread, err := s.QueryThread(ctx, "a", "b:c")
			if err != nil || !equalIDs(ids(thread), "own") {
				t.Fatalf("thread a/b:c leaked another conversation: %v (%v)", ids(thread), err)
			}
			thread, err = s.QueryThread(ctx, "c", "a:b")
			if err != nil || !equalIDs(ids(thread), "private") {
				t.Fatalf("unexpected thread c/a:b %v (%v)", ids(thread), err)
			}
		})
	}
}

func TestHotStore_MessagesSinceIsStrict(t *testing.T) {
	for name, s := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.PutMessages(ctx, []chat.Message{
				{ID: "before", SenderID: "a", ReceiverID: "b", DateSent: t0.Add(-time.Nanosecond)},
				{ID: "at", SenderID: "a", ReceiverID: "b", DateSent: t0},
				{ID: "after", SenderID: "a", ReceiverID: "b", DateSent: t0.Add(time.Microsecond)},
			})
			got, err := s.MessagesSince(ctx, t0)
			if err != nil || !equalIDs(ids(got), "after") {
				t.Fatalf("unexpected %v (%v)", ids(got), err)
			}
		})
	}
}

func TestHotStore_UsersAndPresence(t *testing.T) {
	for name, s := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.PutUsers(ctx, []user.User{
				{ID: "u2", Username: "bob", Online: true},
				{ID: "u1", Username: "alice builder"},
			})
			_ = s.CreateIndex(ctx)

			users, err := s.ListUsers(ctx)
			if err != nil || len(users) != 2 || users[0].ID != "u1" || users[1].ID != "u2" {
				t.Fatalf("unexpected roster %+v (%v)", users, err)
			}
			if !users[1].Online {
				t.Fatalf("expected bob online from the stored flag")
			}

			if err := s.SetPresence(ctx, "u1", true); err != nil {
				t.Fatal(err)
			}
			_ = s.SetPresence(ctx, "u2", false)
			u, err := s.GetUser(ctx, "u1")
			if err != nil || !u.Online || u.Username != "alice builder" {
				t.Fatalf("unexpected user %+v (%v)", u, err)
			}
			if u, _ := s.GetUser(ctx, "u2"); u.Online {
				t.Fatalf("expected bob offline")
			}
			if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			found, err := s.SearchUsers(ctx, "Builder")
			if err != nil || len(found) != 1 || found[0].ID != "u1" {
				t.Fatalf("unexpected user search %+v (%v)", found, err)
			}
			if none, _ := s.SearchUsers(ctx, "!!"); len(none) != 0 {
				t.Fatalf("expected no hits for a query without tokens, got %+v", none)
			}
		})
	}
}

func TestHotStore_SyncCursor(t *testing.T) {
	for name, s := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := s.SyncCursor(ctx); ok || err != nil {
				t.Fatalf("expected no cursor, got ok=%v err=%v", ok, err)
			}
			at := time.Date(2024, 5, 1, 8, 30, 0, 123456789, time.FixedZone("CEST", 2*3600))
			if err := s.SetSyncCursor(ctx, at); err != nil {
				t.Fatal(err)
			}
			got, ok, err := s.SyncCursor(ctx)
			if err != nil || !ok || !got.Equal(at) {
				t.Fatalf("cursor mismatch: %v %v %v", got, ok, err)
			}
			_ = s.FlushAll(ctx)
			if _, ok, _ := s.SyncCursor(ctx); ok {
				t.Fatalf("cursor must not survive a flush")
			}
		})
	}
}

func TestRedisHotStore_CursorFormat(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisHotStore(client)

	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	_ = s.SetSyncCursor(context.Background(), at)
	raw, err := mr.Get(SyncCursorKey)
	if err != nil || raw != "2024-05-01T08:30:00Z" {
		t.Fatalf("expected ISO-8601 cursor, got %q (%v)", raw, err)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, hello WORLD! a b2 x")
	want := []string{"hello", "world", "b2"}
	if !equalIDs(got, want...) {
		t.Fatalf("tokenize: got %v want %v", got, want)
	}
}
