package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

func seedCold(t *testing.T, s ColdStore) {
	t.Helper()
	n, err := s.InsertMany(context.Background(), []chat.Message{
		{ID: "c1", SenderID: "a", ReceiverID: "b", DateSent: t0.Add(-3 * time.Hour), Text: "one"},
		{ID: "c2", SenderID: "b", ReceiverID: "a", DateSent: t0.Add(-2 * time.Hour), Text: "two"},
		{ID: "c3", SenderID: "a", ReceiverID: "b", DateSent: t0.Add(-1 * time.Hour), Text: "three"},
		{ID: "c4", SenderID: "a", ReceiverID: "b", DateSent: t0, Text: "four"},
		{ID: "x1", SenderID: "a", ReceiverID: "z", DateSent: t0.Add(-90 * time.Minute), Text: "other"},
	})
	if err != nil || n != 5 {
		t.Fatalf("seed: inserted %d, err %v", n, err)
	}
}

// runColdStoreContract is shared with the Postgres integration test.
func runColdStoreContract(t *testing.T, s ColdStore) {
	ctx := context.Background()
	seedCold(t, s)

	t.Run("insert skips duplicates", func(t *testing.T) {
		conf := 0.5
		n, err := s.InsertMany(ctx, []chat.Message{
			{ID: "c1", SenderID: "a", ReceiverID: "b", DateSent: t0.Add(-3 * time.Hour)},
			{ID: "c5", SenderID: "b", ReceiverID: "a", DateSent: t0.Add(time.Hour), AudioFileID: "f1", Text: "voice", Confidence: &conf},
		})
		if err != nil || n != 1 {
			t.Fatalf("expected 1 insert, got %d (%v)", n, err)
		}
	})

	t.Run("find since is inclusive", func(t *testing.T) {
		got, err := s.FindSince(ctx, t0)
		if err != nil || !equalIDs(ids(got), "c4", "c5") {
			t.Fatalf("unexpected %v (%v)", ids(got), err)
		}
		if got[1].Confidence == nil || *got[1].Confidence != 0.5 || got[1].AudioFileID != "f1" {
			t.Fatalf("optional fields lost: %+v", got[1])
		}
		if got[0].Confidence != nil {
			t.Fatalf("expected nil confidence for text message")
		}
	})

	t.Run("find before pages newest first", func(t *testing.T) {
		page, err := s.FindBefore(ctx, PageQuery{Before: t0, UserA: "b", UserB: "a", Limit: 2})
		if err != nil || !equalIDs(ids(page), "c2", "c3") {
			t.Fatalf("unexpected first page %v (%v)", ids(page), err)
		}
		page, err = s.FindBefore(ctx, PageQuery{Before: t0, UserA: "a", UserB: "b", Offset: 2, Limit: 2})
		if err != nil || !equalIDs(ids(page), "c1") {
			t.Fatalf("unexpected second page %v (%v)", ids(page), err)
		}
		page, err = s.FindBefore(ctx, PageQuery{Before: t0})
		if err != nil || len(page) != 4 {
			t.Fatalf("expected every thread without a filter, got %v (%v)", ids(page), err)
		}
	})

	t.Run("find all", func(t *testing.T) {
		all, err := s.FindAllMessages(ctx)
		if err != nil || len(all) != 6 || all[0].ID != "c1" || all[5].ID != "c5" {
			t.Fatalf("unexpected %v (%v)", ids(all), err)
		}
	})

	t.Run("users", func(t *testing.T) {
		if _, err := s.FindUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryColdStore(t *testing.T) {
	s := NewMemoryColdStore()
	runColdStoreContract(t, s)

	s.AddUsers(user.User{ID: "u2", Username: "bob", Online: true}, user.User{ID: "u1", Username: "alice"})
	users, err := s.ListAllUsers(context.Background())
	if err != nil || len(users) != 2 || users[0].ID != "u1" {
		t.Fatalf("unexpected roster %+v (%v)", users, err)
	}
	if users[1].Online {
		t.Fatalf("cold roster must not carry presence")
	}
}

func TestPageQuery_MatchesExactPair(t *testing.T) {
	m := chat.Message{SenderID: "a:b", ReceiverID: "c", DateSent: t0}
	q := PageQuery{Before: t0.Add(time.Hour), UserA: "a", UserB: "b:c"}
	if q.matches(&m) {
		t.Fatalf("message between a:b and c matched the a/b:c thread")
	}
	q.UserA, q.UserB = "c", "a:b"
	if !q.matches(&m) {
		t.Fatalf("expected the reversed pair to match")
	}
}

func TestPageQueryDefaults(t *testing.T) {
	q := PageQuery{Offset: -3}
	if q.limit() != DefaultPageLimit || q.offset() != 0 {
		t.Fatalf("unexpected defaults limit=%d offset=%d", q.limit(), q.offset())
	}
}
