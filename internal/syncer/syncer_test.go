package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/store"
	"go-voicechat/internal/user"
)

var boot = time.Date(2024, time.May, 31, 12, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func msg(id, from, to string, at time.Time, text string) chat.Message {
	return chat.Message{ID: id, SenderID: from, ReceiverID: to, DateSent: at, Text: text}
}

func newEngine(hot store.HotStore, cold store.ColdStore, c *clock) *Engine {
	return New(hot, cold, zerolog.Nop(), WithClock(c.now))
}

func coldCount(t *testing.T, cold store.ColdStore) int {
	t.Helper()
	all, err := cold.FindAllMessages(context.Background())
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	return len(all)
}

func TestFullSync_FirstBoot(t *testing.T) {
	ctx := context.Background()
	hot := store.NewMemoryHotStore()
	cold := store.NewMemoryColdStore()
	cold.AddUsers(user.User{ID: "u1", Username: "alice"}, user.User{ID: "u2", Username: "bob"})

	_ = hot.PutMessages(ctx, []chat.Message{
		msg("m1", "u1", "u2", boot.Add(-time.Hour), "hello there"),
		msg("m2", "u2", "u1", boot.Add(-time.Minute), "hi"),
	})
	_ = hot.SetPresence(ctx, "u1", true)

	c := &clock{t: boot}
	if err := newEngine(hot, cold, c).PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if n := coldCount(t, cold); n != 2 {
		t.Fatalf("expected 2 cold messages, got %d", n)
	}

	thread, err := hot.QueryThread(ctx, "u2", "u1")
	if err != nil {
		t.Fatalf("query thread after sync: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "m1" || thread[1].ID != "m2" {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	users, _ := hot.ListUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("expected roster copy, got %+v", users)
	}
	for _, u := range users {
		if u.Online {
			t.Fatalf("presence must be reset after rebuild: %+v", u)
		}
	}

	cursor, ok, _ := hot.SyncCursor(ctx)
	if !ok || !cursor.Equal(boot) {
		t.Fatalf("expected cursor %v, got %v (set=%v)", boot, cursor, ok)
	}
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	hot := store.NewMemoryHotStore()
	cold := store.NewMemoryColdStore()
	_ = hot.PutMessages(ctx, []chat.Message{msg("m1", "u1", "u2", boot.Add(-time.Hour), "x")})

	c := &clock{t: boot}
	e := newEngine(hot, cold, c)
	if err := e.PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	before := coldCount(t, cold)

	c.t = boot.Add(10 * time.Minute)
	if err := e.PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if after := coldCount(t, cold); after != before {
		t.Fatalf("cold store changed between syncs: %d -> %d", before, after)
	}
	cursor, _, _ := hot.SyncCursor(ctx)
	if !cursor.Equal(c.t) {
		t.Fatalf("expected cursor to advance to %v, got %v", c.t, cursor)
	}
}

func TestIncrementalSync_OnlyNewerThanCursor(t *testing.T) {
	ctx := context.Background()
	hot := store.NewMemoryHotStore()
	cold := store.NewMemoryColdStore()

	cursor := boot.Add(-time.Hour)
	_ = hot.SetSyncCursor(ctx, cursor)
	_ = hot.PutMessages(ctx, []chat.Message{
		msg("old", "u1", "u2", cursor.Add(-time.Second), "already synced"),
		msg("edge", "u1", "u2", cursor, "written at the cursor"),
		msg("new", "u2", "u1", cursor.Add(time.Second), "fresh"),
	})

	if err := newEngine(hot, cold, &clock{t: boot}).PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	all, _ := cold.FindAllMessages(ctx)
	if len(all) != 1 || all[0].ID != "new" {
		t.Fatalf("expected only the message after the cursor, got %+v", all)
	}

	hotAll, _ := hot.AllMessages(ctx)
	if len(hotAll) != 1 || hotAll[0].ID != "new" {
		t.Fatalf("hot store should mirror cold history, got %+v", hotAll)
	}
}

func TestRepopulate_RetentionBoundary(t *testing.T) {
	ctx := context.Background()
	hot := store.NewMemoryHotStore()
	cold := store.NewMemoryColdStore()

	cutoff := RetentionCutoff(boot, DefaultRetentionMonths)
	// May 31 minus three calendar months is "Feb 31", which normalizes to March 2.
	if want := time.Date(2024, time.March, 2, 12, 0, 0, 0, time.UTC); !cutoff.Equal(want) {
		t.Fatalf("unexpected cutoff %v, want %v", cutoff, want)
	}

	_, _ = cold.InsertMany(ctx, []chat.Message{
		msg("at-cutoff", "u1", "u2", cutoff, "kept"),
		msg("too-old", "u1", "u2", cutoff.Add(-time.Microsecond), "dropped"),
		msg("recent", "u2", "u1", boot.Add(-time.Minute), "kept"),
	})
	_ = hot.SetSyncCursor(ctx, boot.Add(-time.Second))

	if err := newEngine(hot, cold, &clock{t: boot}).PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got, _ := hot.AllMessages(ctx)
	if len(got) != 2 || got[0].ID != "at-cutoff" || got[1].ID != "recent" {
		t.Fatalf("expected exactly the messages inside the window, got %+v", got)
	}
}

func TestFullSync_DuplicatesSkipped(t *testing.T) {
	ctx := context.Background()
	hot := store.NewMemoryHotStore()
	cold := store.NewMemoryColdStore()

	m := msg("m1", "u1", "u2", boot.Add(-time.Hour), "dup")
	_, _ = cold.InsertMany(ctx, []chat.Message{m})
	_ = hot.PutMessages(ctx, []chat.Message{m})

	if err := newEngine(hot, cold, &clock{t: boot}).PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("duplicates must not fail the sync: %v", err)
	}
	if n := coldCount(t, cold); n != 1 {
		t.Fatalf("expected 1 cold message, got %d", n)
	}
}

func TestSync_ColdFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	cases := []struct {
		name  string
		seed  bool
		state State
	}{
		{name: "during migration", seed: true, state: StateFullSync},
		{name: "during repopulate", seed: false, state: StateRepopulate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hot := store.NewMemoryHotStore()
			cold := store.NewMemoryColdStore()
			cold.FailWith = down
			if tc.seed {
				_ = hot.PutMessages(ctx, []chat.Message{msg("m1", "u1", "u2", boot, "x")})
			}

			err := newEngine(hot, cold, &clock{t: boot}).PerformFullSynchronization(ctx)
			if !errors.Is(err, down) {
				t.Fatalf("expected wrapped cold error, got %v", err)
			}
			var stepErr *StepError
			if !errors.As(err, &stepErr) || stepErr.State != tc.state {
				t.Fatalf("expected failure in %s, got %v", tc.state, err)
			}
			if _, ok, _ := hot.SyncCursor(ctx); ok {
				t.Fatalf("cursor must not be written on failure")
			}
		})
	}
}

func TestFullSync_RedisHotStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hot := store.NewRedisHotStore(client)
	cold := store.NewMemoryColdStore()
	cold.AddUsers(user.User{ID: "u1", Username: "alice"})
	_, _ = cold.InsertMany(ctx, []chat.Message{msg("c1", "u1", "u2", boot.Add(-48*time.Hour), "cold history")})

	if err := hot.PutMessages(ctx, []chat.Message{msg("h1", "u2", "u1", boot.Add(-time.Hour), "hot only")}); err != nil {
		t.Fatal(err)
	}
	if _, err := hot.QueryThread(ctx, "u1", "u2"); !errors.Is(err, store.ErrIndexUnavailable) {
		t.Fatalf("expected index to be unavailable before sync, got %v", err)
	}

	if err := newEngine(hot, cold, &clock{t: boot}).PerformFullSynchronization(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	thread, err := hot.QueryThread(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("query thread: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "c1" || thread[1].ID != "h1" {
		t.Fatalf("unexpected thread %+v", thread)
	}
	if raw, err := mr.Get(store.SyncCursorKey); err != nil || raw == "" {
		t.Fatalf("expected cursor key in redis, got %q (%v)", raw, err)
	}
}
