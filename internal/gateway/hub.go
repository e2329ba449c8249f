package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go-voicechat/internal/bus"
	"go-voicechat/internal/chat"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
)

const presenceRefreshTimeout = 5 * time.Second

// Hub owns the set of connected clients and the single bus subscription of
// the process. Every bus delivery is offered to every client, and each client
// is then filtered by its own user id.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	sub      bus.Subscriber
	presence *Presence
	log      zerolog.Logger

	connected atomic.Int64
	ready     chan struct{}
	done      chan struct{}
}

func NewHub(sub bus.Subscriber, presence *Presence, log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sub:        sub,
		presence:   presence,
		log:        log.With().Str(logger.FieldComponent, "hub").Logger(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Ready is closed once the bus subscription is established.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Connected returns the number of registered clients.
func (h *Hub) Connected() int { return int(h.connected.Load()) }

// Register hands c to the hub. It returns false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run subscribes to both channels and serves until ctx is done. A bus stream
// that closes on its own is reported as an error.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	stream, err := h.sub.Subscribe(ctx, bus.ChannelUser, bus.ChannelMessage)
	if err != nil {
		return err
	}
	close(h.ready)
	h.log.Info().Msg("🚀 Hub subscribed to bus")

	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.clients[client] = true
			h.connected.Add(1)
			metrics.ConnectedSockets.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case msg, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("bus subscription closed")
			}
			h.dispatch(ctx, msg)
		}
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.connected.Add(-1)
		metrics.ConnectedSockets.Dec()
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.remove(c)
	}
}

func (h *Hub) dispatch(ctx context.Context, msg bus.Message) {
	switch msg.Channel {
	case bus.ChannelUser:
		frame := EncodeFrame(msg.Channel, msg.Payload)
		for c := range h.clients {
			h.deliver(c, msg.Channel, frame)
		}

	case bus.ChannelMessage:
		var m chat.Message
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			metrics.FramesDropped.WithLabelValues(msg.Channel.String(), "malformed").Inc()
			h.log.Warn().Err(err).Str(logger.FieldChannel, msg.Channel.String()).Msg("⚠️ Dropping malformed chat payload")
			return
		}

		frame := EncodeFrame(msg.Channel, msg.Payload)
		var reached []string
		seen := make(map[string]bool, 2)
		for c := range h.clients {
			if !m.Involves(c.userID) {
				continue
			}
			if h.deliver(c, msg.Channel, frame) && !seen[c.userID] {
				seen[c.userID] = true
				reached = append(reached, c.userID)
			}
		}
		if len(reached) > 0 {
			go h.refreshPresence(ctx, reached)
		}

	default:
		metrics.FramesDropped.WithLabelValues(msg.Channel.String(), "unknown_channel").Inc()
	}
}

// deliver never blocks: a client whose queue is full is disconnected.
func (h *Hub) deliver(c *Client, channel bus.Channel, frame []byte) bool {
	select {
	case c.send <- frame:
		metrics.FramesDelivered.WithLabelValues(channel.String()).Inc()
		return true
	default:
		metrics.SlowConsumerDisconnects.Inc()
		h.log.Warn().Str(logger.FieldUserID, c.userID).Str(logger.FieldConnID, c.id).Msg("🐢 Dropping slow consumer")
		h.remove(c)
		return false
	}
}

// refreshPresence marks users who just received a chat message as online.
func (h *Hub) refreshPresence(ctx context.Context, userIDs []string) {
	ctx, cancel := context.WithTimeout(ctx, presenceRefreshTimeout)
	defer cancel()
	for _, id := range userIDs {
		_ = h.presence.Set(ctx, id, true)
	}
}
