package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"go-voicechat/internal/auth"
	"go-voicechat/internal/bus"
	"go-voicechat/internal/chat"
	"go-voicechat/internal/logger"
	myMiddleware "go-voicechat/internal/middleware"
	"go-voicechat/internal/store"
)

type Deps struct {
	Hot         store.HotStore
	Cold        store.ColdStore
	Publisher   bus.Publisher
	Verifier    auth.Verifier
	Transcriber chat.Transcriber

	// WebSocket authenticates on its own and is mounted outside the auth group.
	WebSocket   http.Handler
	Connections func() int

	AllowedOrigins []string
	Log            zerolog.Logger
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(myMiddleware.Metrics)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(d.Log))
	r.Use(middleware.Recoverer)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "x-api-key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	chatHandler := NewChatHandler(d.Hot, d.Cold, d.Publisher, d.Transcriber, d.Log)
	userHandler := NewUserHandler(d.Hot, d.Log)
	searchHandler := NewSearchHandler(d.Hot, d.Log)
	authMiddleware := myMiddleware.NewAuthMiddleware(d.Verifier, d.Log)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if d.Connections != nil {
			body["connections"] = d.Connections()
		}
		writeJSON(w, http.StatusOK, body)
	})

	if d.WebSocket != nil {
		r.Handle("/ws", d.WebSocket)
	}

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Post("/api/chat", chatHandler.Create)
		r.Get("/api/chat/{partnerId}", chatHandler.History)
		r.Get("/api/search", searchHandler.Search)
		r.Get("/api/user", userHandler.List)
		r.Get("/api/user/me", userHandler.Me)
	})

	return r
}
