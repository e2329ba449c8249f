package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-voicechat/internal/auth"
	"go-voicechat/internal/metrics"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	// Buffered channel of outbound frames. Only the hub closes it.
	send chan []byte

	hub      *Hub
	verifier auth.Verifier
	presence *Presence
	opts     Options
	log      zerolog.Logger
}

// readPump treats every inbound frame as a heartbeat carrying a fresh token.
// It returns, and the connection is torn down, on the first read error or
// rejected heartbeat.
func (c *Client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		cancel()

		offline, done := context.WithTimeout(context.WithoutCancel(ctx), presenceRefreshTimeout)
		defer done()
		_ = c.presence.Set(offline, c.userID, false)
		c.log.Info().Msg("🔌 Client disconnected")
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if c.opts.PingInterval > 0 {
		pongWait := c.opts.pongWait()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("⚠️ Unexpected websocket close")
			}
			return
		}

		userID, err := c.verifier.Verify(strings.TrimSpace(string(message)))
		if err != nil || userID != c.userID {
			metrics.AuthFailures.WithLabelValues("heartbeat").Inc()
			c.log.Warn().Err(err).Str("token_user", userID).Msg("⛔ Heartbeat rejected, closing connection")
			return
		}
		if c.opts.PingInterval > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
		}
		_ = c.presence.Set(ctx, c.userID, true)
	}
}

// writePump pumps frames from the hub to the websocket connection, one
// websocket message per frame.
func (c *Client) writePump() {
	var pings <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-pings:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
