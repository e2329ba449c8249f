// Package syncer reconciles the hot store against the cold store once at boot.
//
// The run is a one-shot state machine:
//
//	INIT -> FULL_SYNC | INCREMENTAL_SYNC -> FLUSH -> REPOPULATE -> DONE
//
// Hot messages newer than the sync cursor (or all of them on a first boot)
// are appended to the cold store, the hot store is wiped, and it is refilled
// with the recent cold history and the user roster before its indexes are
// rebuilt. The cursor is written last, so an interrupted run is retried as a
// full sync on the next boot.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
	"go-voicechat/internal/store"
	"go-voicechat/internal/user"
)

type State string

const (
	StateInit            State = "INIT"
	StateFullSync        State = "FULL_SYNC"
	StateIncrementalSync State = "INCREMENTAL_SYNC"
	StateFlush           State = "FLUSH"
	StateRepopulate      State = "REPOPULATE"
	StateDone            State = "DONE"
)

// DefaultRetentionMonths is how much cold history is loaded back into the hot store.
const DefaultRetentionMonths = 3

// StepError reports the state a failed run stopped in.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sync failed in %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type Engine struct {
	hot             store.HotStore
	cold            store.ColdStore
	log             zerolog.Logger
	now             func() time.Time
	retentionMonths int
}

type Option func(*Engine)

// WithClock replaces time.Now. Used by tests to pin the retention window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRetentionMonths(months int) Option {
	return func(e *Engine) {
		if months > 0 {
			e.retentionMonths = months
		}
	}
}

func New(hot store.HotStore, cold store.ColdStore, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		hot:             hot,
		cold:            cold,
		log:             log.With().Str(logger.FieldComponent, "syncer").Logger(),
		now:             time.Now,
		retentionMonths: DefaultRetentionMonths,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RetentionCutoff returns the oldest dateSent kept in the hot store. The
// window is measured in calendar months and the cutoff itself is included.
func RetentionCutoff(now time.Time, months int) time.Time {
	return now.AddDate(0, -months, 0)
}

// PerformFullSynchronization runs the whole state machine. Any error is fatal
// for startup and is returned as a *StepError.
func (e *Engine) PerformFullSynchronization(ctx context.Context) error {
	started := time.Now()
	defer func() { metrics.SyncDuration.Observe(time.Since(started).Seconds()) }()

	state := StateInit
	e.log.Info().Str(logger.FieldState, string(state)).Msg("🔄 Starting hot/cold synchronization")

	cursor, hasCursor, err := e.hot.SyncCursor(ctx)
	if err != nil {
		return e.fail(state, err)
	}

	var pending []chat.Message
	if !hasCursor {
		state = StateFullSync
		pending, err = e.hot.AllMessages(ctx)
	} else {
		state = StateIncrementalSync
		pending, err = e.hot.MessagesSince(ctx, cursor)
	}
	if err != nil {
		return e.fail(state, err)
	}
	if err := e.migrate(ctx, state, pending); err != nil {
		return e.fail(state, err)
	}

	state = StateFlush
	if err := e.hot.FlushAll(ctx); err != nil {
		return e.fail(state, err)
	}
	e.log.Debug().Str(logger.FieldState, string(state)).Msg("hot store flushed")

	state = StateRepopulate
	if err := e.repopulate(ctx); err != nil {
		return e.fail(state, err)
	}

	state = StateDone
	finished := e.now()
	if err := e.hot.SetSyncCursor(ctx, finished); err != nil {
		return e.fail(state, err)
	}

	e.log.Info().
		Str(logger.FieldState, string(state)).
		Time("cursor", finished).
		Dur("took", time.Since(started)).
		Msg("✅ Synchronization complete")
	return nil
}

func (e *Engine) fail(state State, err error) error {
	e.log.Error().Err(err).Str(logger.FieldState, string(state)).Msg("❌ Synchronization failed")
	return &StepError{State: state, Err: err}
}

func (e *Engine) migrate(ctx context.Context, state State, msgs []chat.Message) error {
	l := e.log.With().Str(logger.FieldState, string(state)).Logger()
	if len(msgs) == 0 {
		l.Info().Msg("no hot messages to migrate")
		return nil
	}

	inserted, err := e.cold.InsertMany(ctx, msgs)
	if err != nil {
		return err
	}
	metrics.SyncMessagesMigrated.Add(float64(inserted))

	// A first boot over a hot store that was already synced before (cursor
	// lost) re-sends everything; the cold store skips ids it already has.
	if skipped := int64(len(msgs)) - inserted; skipped > 0 {
		metrics.SyncDuplicatesSkipped.Add(float64(skipped))
		l.Warn().Int64("skipped", skipped).Int64("inserted", inserted).Msg("⚠️ Cold store already had some hot messages")
		return nil
	}
	l.Info().Int64("inserted", inserted).Msg("hot messages migrated")
	return nil
}

func (e *Engine) repopulate(ctx context.Context) error {
	cutoff := RetentionCutoff(e.now(), e.retentionMonths)

	var (
		recent []chat.Message
		roster []user.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgs, err := e.cold.FindSince(gctx, cutoff)
		if err != nil {
			return fmt.Errorf("load recent messages: %w", err)
		}
		recent = msgs
		return nil
	})
	g.Go(func() error {
		users, err := e.cold.ListAllUsers(gctx)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		roster = users
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range roster {
		roster[i].Online = false
	}
	if err := e.hot.PutUsers(ctx, roster); err != nil {
		return err
	}
	if err := e.hot.PutMessages(ctx, recent); err != nil {
		return err
	}
	if err := e.hot.CreateIndex(ctx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	metrics.SyncMessagesRepopulated.Add(float64(len(recent)))

	e.log.Info().
		Str(logger.FieldState, string(StateRepopulate)).
		Time("since", cutoff).
		Int("messages", len(recent)).
		Int("users", len(roster)).
		Msg("hot store repopulated")
	return nil
}
