package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

const defaultTokenTTL = 5 * time.Minute

// TokenHandler mints short-lived HMAC join tokens for the realtime plane.
type TokenHandler struct {
	secret []byte
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

func NewTokenHandler(secret string, ttl time.Duration, logger *logging.Logger) *TokenHandler {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TokenHandler{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Mint issues a session-scoped join token. A fresh session id is generated
// when the caller does not supply one.
// Route: GET /api/token?session_id=
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	if len(h.secret) == 0 {
		writeErrorKind(w, http.StatusServiceUnavailable, "token_minting_disabled")
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := h.now()
	expires := now.Add(h.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		h.logger.Error("token signing failed", "error", err)
		writeErrorKind(w, http.StatusInternalServerError, "token_signing_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      signed,
		"session_id": sessionID,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}
