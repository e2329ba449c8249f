package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"go-voicechat/internal/bus"
	"go-voicechat/internal/chat"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
)

type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool) error
}

// Presence records a user's online flag and announces it on the USER channel.
// Both the connection handler and the hub go through it.
type Presence struct {
	store PresenceStore
	pub   bus.Publisher
	log   zerolog.Logger
}

func NewPresence(store PresenceStore, pub bus.Publisher, log zerolog.Logger) *Presence {
	return &Presence{
		store: store,
		pub:   pub,
		log:   log.With().Str(logger.FieldComponent, "presence").Logger(),
	}
}

// Set stores the flag and publishes it. The event is published even when the
// store write fails so that connected clients stay current; both errors are
// returned.
func (p *Presence) Set(ctx context.Context, userID string, online bool) error {
	var errs []error
	if err := p.store.SetPresence(ctx, userID, online); err != nil {
		errs = append(errs, fmt.Errorf("store presence: %w", err))
	}

	payload, err := json.Marshal(chat.PresenceEvent{UserID: userID, Online: online})
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if err := p.pub.Publish(ctx, bus.ChannelUser, payload); err != nil {
		metrics.BusPublishErrors.WithLabelValues(bus.ChannelUser.String()).Inc()
		errs = append(errs, fmt.Errorf("publish presence: %w", err))
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		p.log.Warn().Err(err).Str(logger.FieldUserID, userID).Bool("online", online).Msg("⚠️ Presence update incomplete")
		return err
	}
	return nil
}
