package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"go-voicechat/internal/logger"
	myMiddleware "go-voicechat/internal/middleware"
	"go-voicechat/internal/store"
)

type UserHandler struct {
	hot store.HotStore
	log zerolog.Logger
}

func NewUserHandler(hot store.HotStore, log zerolog.Logger) *UserHandler {
	return &UserHandler{hot: hot, log: log.With().Str(logger.FieldComponent, "user").Logger()}
}

// List returns the roster copy with live presence.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.hot.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "request did not contain a userId")
		return
	}
	u, err := h.hot.GetUser(r.Context(), userID)
	if err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
