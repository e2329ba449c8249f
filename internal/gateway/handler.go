// Package gateway serves the realtime WebSocket endpoint.
//
// A connection authenticates with the token query parameter, is registered
// with the Hub and marked online. Inbound frames are heartbeats carrying a
// token. Outbound frames are "<channel>---<json>" where the channel is
// application:users (presence, sent to everyone) or application:messages
// (chat, sent only to the sender's and receiver's sockets).
package gateway

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-voicechat/internal/auth"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
)

type Options struct {
	SendBuffer     int
	PingInterval   time.Duration // 0 disables protocol pings
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

func (o Options) pongWait() time.Duration {
	return o.PingInterval * 2
}

type Handler struct {
	hub      *Hub
	verifier auth.Verifier
	presence *Presence
	upgrader websocket.Upgrader
	opts     Options
	log      zerolog.Logger
}

func NewHandler(hub *Hub, verifier auth.Verifier, presence *Presence, opts Options, log zerolog.Logger) *Handler {
	opts = opts.withDefaults()
	h := &Handler{
		hub:      hub,
		verifier: verifier,
		presence: presence,
		opts:     opts,
		log:      log.With().Str(logger.FieldComponent, "gateway").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 || slices.Contains(h.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, origin)
}

// ServeWs upgrades first and authenticates second, so a bad token ends in a
// closed socket rather than an HTTP error.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("connect").Inc()
		h.log.Warn().Err(err).Msg("⛔ Rejected websocket connection")
		conn.Close()
		return
	}

	client := &Client{
		id:       uuid.NewString(),
		userID:   userID,
		conn:     conn,
		send:     make(chan []byte, h.opts.SendBuffer),
		hub:      h.hub,
		verifier: h.verifier,
		presence: h.presence,
		opts:     h.opts,
	}
	client.log = logger.Ctx(r.Context(), h.log).With().
		Str(logger.FieldUserID, userID).
		Str(logger.FieldConnID, client.id).
		Logger()

	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	// The request context ends when this handler returns; the connection
	// gets its own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	_ = h.presence.Set(ctx, userID, true)
	client.log.Info().Msg("✅ Client connected")

	go client.writePump()
	go client.readPump(ctx, cancel)
}
