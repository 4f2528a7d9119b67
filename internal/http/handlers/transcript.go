package handlers

import (
	"net/http"
	"strconv"

	"github.com/techxpo/clinic-kiosk/internal/session"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// TranscriptHandler serves persisted call transcripts to the dashboard.
type TranscriptHandler struct {
	store  *session.CallTranscriptStore
	logger *logging.Logger
}

func NewTranscriptHandler(store *session.CallTranscriptStore, logger *logging.Logger) *TranscriptHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptHandler{store: store, logger: logger.Named("transcript_handler")}
}

// List handles GET /api/transcript?session_id=...&limit=...
func (h *TranscriptHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeErrorKind(w, http.StatusServiceUnavailable, "transcript_store_unavailable")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_session_id")
		return
	}

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeErrorKind(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	messages, err := h.store.List(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("list call transcript", "session_id", sessionID, "error", err)
		writeErrorKind(w, http.StatusInternalServerError, "db_error")
		return
	}
	if messages == nil {
		messages = []session.CallTranscriptMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}
