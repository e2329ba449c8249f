package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-voicechat/internal/bus"
	"go-voicechat/internal/chat"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
	myMiddleware "go-voicechat/internal/middleware"
	"go-voicechat/internal/store"
)

type ChatHandler struct {
	hot         store.HotStore
	cold        store.ColdStore
	pub         bus.Publisher
	transcriber chat.Transcriber
	now         func() time.Time
	log         zerolog.Logger
}

// NewChatHandler wires the chat endpoints. transcriber may be nil, in which
// case messages with an audio file are refused.
func NewChatHandler(hot store.HotStore, cold store.ColdStore, pub bus.Publisher, transcriber chat.Transcriber, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		hot:         hot,
		cold:        cold,
		pub:         pub,
		transcriber: transcriber,
		now:         time.Now,
		log:         log.With().Str(logger.FieldComponent, "chat").Logger(),
	}
}

// Create stores a new message in the hot store and publishes it to every
// gateway subscriber.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	senderID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chat.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.cold.FindUser(r.Context(), req.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "receiver does not exist")
			return
		}
		writeStoreError(w, r, h.log, err)
		return
	}

	msg := chat.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		DateSent:   h.now().UTC(),
		Text:       req.Text,
	}

	if req.AudioFileID != "" {
		if h.transcriber == nil {
			writeError(w, http.StatusNotImplemented, "audio messages are not supported")
			return
		}
		tr, err := h.transcriber.Transcribe(r.Context(), req.AudioFileID)
		if err != nil {
			if errors.Is(err, chat.ErrAudioNotFound) {
				writeError(w, http.StatusNotFound, "audio file "+req.AudioFileID+" was not uploaded or does not exist anymore")
				return
			}
			l := logger.Ctx(r.Context(), h.log)
			l.Error().Err(err).Str("audio_file_id", req.AudioFileID).Msg("❌ Transcription failed")
			writeError(w, http.StatusBadGateway, "transcription failed")
			return
		}
		confidence := tr.Confidence
		msg.AudioFileID = req.AudioFileID
		msg.Text = tr.Text
		msg.Confidence = &confidence
	}

	if _, err := h.hot.Write(r.Context(), &msg); err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}
	metrics.MessagesPosted.Inc()

	payload, err := json.Marshal(&msg)
	if err == nil {
		err = h.pub.Publish(r.Context(), bus.ChannelMessage, payload)
	}
	if err != nil {
		// The message is stored; live delivery is best effort.
		metrics.BusPublishErrors.WithLabelValues(bus.ChannelMessage.String()).Inc()
		l := logger.Ctx(r.Context(), h.log)
		l.Warn().Err(err).Str("message_id", msg.ID).Msg("⚠️ Failed to publish message")
	}

	writeJSON(w, http.StatusOK, msg)
}

// History returns the hot thread with partnerId. With both offset and limit
// it pages through durable history older than the oldest hot entry.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	partnerID := chi.URLParam(r, "partnerId")
	if !ok || partnerID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	thread, err := h.hot.QueryThread(r.Context(), userID, partnerID)
	if err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}

	q := r.URL.Query()
	if !q.Has("offset") || !q.Has("limit") {
		writeJSON(w, http.StatusOK, thread)
		return
	}

	offset, err1 := strconv.Atoi(q.Get("offset"))
	limit, err2 := strconv.Atoi(q.Get("limit"))
	if err1 != nil || err2 != nil || offset < 0 || limit < 0 {
		writeError(w, http.StatusBadRequest, "offset and limit must be non-negative integers")
		return
	}

	before := h.now().UTC()
	if len(thread) > 0 {
		before = thread[0].DateSent
	}
	page, err := h.cold.FindBefore(r.Context(), store.PageQuery{
		Before: before,
		UserA:  userID,
		UserB:  partnerID,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		writeStoreError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
