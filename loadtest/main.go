package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-voicechat/internal/auth"
	"go-voicechat/internal/bus"
	"go-voicechat/internal/db"
	"go-voicechat/internal/gateway"
	"go-voicechat/internal/store"
	"go-voicechat/internal/user"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	secret    = flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret shared with the server")
	audience  = flag.String("audience", "", "token audience")
	dsn       = flag.String("dsn", "", "optional Postgres DSN used to seed the load test users")
	pairCount = flag.Int("pairs", 50, "number of user pairs") // ⚠️ Start small. Each pair holds two sockets.
	msgCount  = flag.Int("messages", 20, "messages per user")
	settle    = flag.Duration("settle", 2*time.Second, "time to wait for deliveries after sending")
)

var (
	sent     atomic.Int64
	received atomic.Int64
	failures atomic.Int64
)

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if *secret == "" {
		log.Fatal().Msg("❌ -secret (or JWT_SECRET) is required to mint tokens")
	}
	signer := auth.NewJWTVerifier(*secret, *audience)

	if *dsn != "" {
		if err := seedUsers(*dsn, *pairCount); err != nil {
			log.Fatal().Err(err).Msg("❌ Seeding users failed")
		}
		log.Info().Int("users", *pairCount*2).Msg("✅ Users seeded")
	}

	log.Info().Int("users", *pairCount*2).Int("messages", *msgCount).Msg("🔥 STARTING STRESS TEST")
	start := time.Now()

	var wg sync.WaitGroup
	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(log, signer, pairID)
		}(i)
	}
	wg.Wait()

	expected := sent.Load() * 2 // sender and receiver both get every message
	log.Info().
		Int64("sent", sent.Load()).
		Int64("received", received.Load()).
		Int64("expected", expected).
		Int64("failures", failures.Load()).
		Dur("took", time.Since(start)).
		Msg("✅ LOAD TEST COMPLETE")
}

func userID(pairID int, side string) string {
	return fmt.Sprintf("lt_%d_%s", pairID, side)
}

func seedUsers(dsn string, pairs int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.NewDatabase(ctx, db.Options{DSN: dsn})
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}

	users := make([]user.User, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		for _, side := range []string{"a", "b"} {
			id := userID(i, side)
			users = append(users, user.User{ID: id, Username: id, Email: id + "@loadtest.local"})
		}
	}
	return store.NewPostgresColdStore(database.Conn).UpsertUsers(ctx, users)
}

func runPair(log zerolog.Logger, signer *auth.JWTVerifier, pairID int) {
	a, b := userID(pairID, "a"), userID(pairID, "b")

	tokenA, errA := signer.Sign(a, time.Hour)
	tokenB, errB := signer.Sign(b, time.Hour)
	if errA != nil || errB != nil {
		failures.Add(1)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatAs(log, &wsWg, tokenA, a, b)
	go chatAs(log, &wsWg, tokenB, b, a)
	wsWg.Wait()
}

func wsURL(token string) string {
	u := strings.Replace(*baseURL, "http", "ws", 1)
	return u + "/ws?token=" + url.QueryEscape(token)
}

// chatAs opens a socket for self, posts messages to partner over HTTP and
// counts the chat frames the socket receives.
func chatAs(log zerolog.Logger, wg *sync.WaitGroup, token, self, partner string) {
	defer wg.Done()
	l := log.With().Str("user", self).Logger()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(token), nil)
	if err != nil {
		failures.Add(1)
		l.Error().Err(err).Msg("❌ WS Connect Fail")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if ch, _, err := gateway.DecodeFrame(data); err == nil && ch == bus.ChannelMessage {
				received.Add(1)
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		if err := postChat(token, partner, fmt.Sprintf("LoadTest Msg %d from %s", i, self)); err != nil {
			failures.Add(1)
			l.Error().Err(err).Msg("❌ Send Fail")
			break
		}
		sent.Add(1)

		// Heartbeat every few messages, the way the browser client does.
		if i%5 == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(token))
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(*settle)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
	l.Debug().Int("messages", *msgCount).Msg("finished sending")
}

func postChat(token, receiverID, text string) error {
	body, _ := json.Marshal(map[string]string{"receiverId": receiverID, "text": text})
	req, err := http.NewRequest(http.MethodPost, *baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST /api/chat: status %d", resp.StatusCode)
	}
	return nil
}
