package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-voicechat/internal/api"
	"go-voicechat/internal/auth"
	"go-voicechat/internal/bus"
	"go-voicechat/internal/config"
	"go-voicechat/internal/db"
	"go-voicechat/internal/gateway"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/server"
	"go-voicechat/internal/store"
	"go-voicechat/internal/syncer"
)

func main() {
	// 1. Config & Flags
	configDir := flag.String("config", "./config", "directory containing config.yaml")
	addr := flag.String("addr", "", "http service address (overrides server.host/port)")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, *addr, log)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("❌ Server exited")
		os.Exit(1)
	}
}

// run owns every connection it opens, so its defers close them before main
// decides the exit code.
func run(ctx context.Context, cfg *config.Config, addrOverride string, log zerolog.Logger) error {

	// 2. Cold store (PostgreSQL, or memory for local development)
	var cold store.ColdStore
	if cfg.Postgres.DSN != "" {
		database, err := db.NewDatabase(ctx, db.Options{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer database.Close()
		log.Info().Msg("✅ Connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("✅ Database Schema Initialized")
		cold = store.NewPostgresColdStore(database.Conn)
	} else {
		log.Warn().Msg("⚠️ postgres.dsn is empty, using in-memory cold store")
		cold = store.NewMemoryColdStore()
	}

	// 3. Hot store and bus (Redis, or memory for local development)
	var (
		hot       store.HotStore
		presence  gateway.PresenceStore
		eventsBus bus.Bus
	)
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Msg("✅ Connected to Redis")

		redisHot := store.NewRedisHotStore(redisClient)
		hot, presence = redisHot, redisHot
		eventsBus = bus.NewRedisBus(redisClient, log)
	} else {
		log.Warn().Msg("⚠️ redis.address is empty, using in-memory hot store and bus")
		memHot := store.NewMemoryHotStore()
		hot, presence = memHot, memHot
		eventsBus = bus.NewMemoryBus()
	}
	defer eventsBus.Close()

	// 4. Realtime gateway
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	presenceSvc := gateway.NewPresence(presence, eventsBus, log)
	hub := gateway.NewHub(eventsBus, presenceSvc, log)
	wsHandler := gateway.NewHandler(hub, verifier, presenceSvc, gateway.Options{
		SendBuffer:     cfg.Gateway.SendBuffer,
		PingInterval:   cfg.Gateway.PingInterval,
		WriteWait:      cfg.Gateway.WriteWait,
		MaxMessageSize: cfg.Gateway.MaxMessageSize,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, log)

	// 5. Routes
	router := api.NewRouter(api.Deps{
		Hot:            hot,
		Cold:           cold,
		Publisher:      eventsBus,
		// Speech-to-text is an external service with no adapter yet, so posts
		// carrying an audioFileId are answered with 501.
		Transcriber:    nil,
		Verifier:       verifier,
		WebSocket:      http.HandlerFunc(wsHandler.ServeWs),
		Connections:    hub.Connected,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Log:            log,
	})

	// 6. Sync, then serve
	engine := syncer.New(hot, cold, log, syncer.WithRetentionMonths(cfg.Sync.RetentionMonths))

	listenAddr := cfg.Server.Addr()
	if addrOverride != "" {
		listenAddr = addrOverride
	}
	srv := server.New(listenAddr, engine, hub, router, log, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))
	return srv.Run(ctx)
}
