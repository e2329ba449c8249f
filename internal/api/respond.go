package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"go-voicechat/internal/logger"
	"go-voicechat/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeStoreError maps store failures onto status codes. A missing index
// means the boot sync has not finished.
func writeStoreError(w http.ResponseWriter, r *http.Request, fallback zerolog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrIndexUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "search index is not ready")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		l := logger.Ctx(r.Context(), fallback)
		l.Error().Err(err).Msg("❌ Store error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
