package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
	"go-voicechat/internal/store"
)

const (
	ResultUser = "user"
	ResultChat = "chat"
)

type SearchResult struct {
	Type string `json:"type"`
	ID   string `json:"_id"`
	Text string `json:"text"`
}

type SearchHandler struct {
	hot store.HotStore
	log zerolog.Logger
}

func NewSearchHandler(hot store.HotStore, log zerolog.Logger) *SearchHandler {
	return &SearchHandler{hot: hot, log: log.With().Str(logger.FieldComponent, "search").Logger()}
}

// Search matches q against usernames and message text. Users come first.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	results := []SearchResult{}
	if q == "" {
		writeJSON(w, http.StatusOK, results)
		return
	}
	metrics.SearchQueries.Inc()

	users, err := h.hot.SearchUsers(r.Context(), q)
	if err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}
	msgs, err := h.hot.Search(r.Context(), q)
	if err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}

	for _, u := range users {
		results = append(results, SearchResult{Type: ResultUser, ID: u.ID, Text: u.Username})
	}
	for _, m := range msgs {
		results = append(results, SearchResult{Type: ResultChat, ID: m.ID, Text: m.Text})
	}
	writeJSON(w, http.StatusOK, results)
}
