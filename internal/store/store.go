// Package store holds the two storage tiers.
//
// The hot tier is a rebuildable recency cache with secondary indexes
// (messages of the last months, roster copy, presence, sync cursor). The cold
// tier is the durable system of record for chat history and the user roster.
package store

import (
	"context"
	"errors"
	"time"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

var (
	// ErrIndexUnavailable means a hot store query ran before CreateIndex
	// completed. Callers should fix sequencing rather than retry in a loop.
	ErrIndexUnavailable = errors.New("hot store index unavailable")

	ErrNotFound = errors.New("not found")
)

// SyncCursorKey is the well-known key of the last successful synchronization.
const SyncCursorKey = "last-redis-sync"

// HotStore is the low-latency, indexed tier.
type HotStore interface {
	Write(ctx context.Context, msg *chat.Message) (string, error)
	PutMessages(ctx context.Context, msgs []chat.Message) error

	// Index-backed queries. They fail with ErrIndexUnavailable until
	// CreateIndex has completed.
	QueryThread(ctx context.Context, userA, userB string) ([]chat.Message, error)
	Search(ctx context.Context, text string) ([]chat.Message, error)
	SearchUsers(ctx context.Context, text string) ([]user.User, error)

	// Scans that work without an index.
	AllMessages(ctx context.Context) ([]chat.Message, error)
	MessagesSince(ctx context.Context, since time.Time) ([]chat.Message, error)

	PutUsers(ctx context.Context, users []user.User) error
	ListUsers(ctx context.Context) ([]user.User, error)
	GetUser(ctx context.Context, id string) (*user.User, error)

	CreateIndex(ctx context.Context) error
	SetPresence(ctx context.Context, userID string, online bool) error
	FlushAll(ctx context.Context) error

	SyncCursor(ctx context.Context) (time.Time, bool, error)
	SetSyncCursor(ctx context.Context, t time.Time) error
}

// PageQuery selects a page of durable history strictly older than Before.
// The thread filter applies only when both users are set.
type PageQuery struct {
	Before time.Time
	UserA  string
	UserB  string
	Offset int
	Limit  int
}

// DefaultPageLimit is used when PageQuery.Limit is not positive.
const DefaultPageLimit = 50

func (q PageQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultPageLimit
	}
	return q.Limit
}

func (q PageQuery) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

func (q PageQuery) matches(m *chat.Message) bool {
	if !m.DateSent.Before(q.Before) {
		return false
	}
	if q.UserA == "" || q.UserB == "" {
		return true
	}
	return m.Between(q.UserA, q.UserB)
}

// ColdStore is the authoritative tier.
type ColdStore interface {
	// InsertMany appends messages and returns how many rows were actually
	// written. Messages whose id already exists are skipped.
	InsertMany(ctx context.Context, msgs []chat.Message) (int64, error)
	FindBefore(ctx context.Context, q PageQuery) ([]chat.Message, error)
	// FindSince returns messages with dateSent >= since, oldest first.
	FindSince(ctx context.Context, since time.Time) ([]chat.Message, error)
	FindAllMessages(ctx context.Context) ([]chat.Message, error)
	ListAllUsers(ctx context.Context) ([]user.User, error)
	FindUser(ctx context.Context, id string) (*user.User, error)
}
