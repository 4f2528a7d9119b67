package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techxpo/clinic-kiosk/internal/session"
)

func TestTranscriptListUnavailableWithoutStore(t *testing.T) {
	h := NewTranscriptHandler(nil, nil)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/transcript?session_id=s1", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTranscriptListValidation(t *testing.T) {
	mr := miniredis.RunT(t)
	store := session.NewCallTranscriptStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	h := NewTranscriptHandler(store, nil)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/transcript", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code, "missing session_id")

	rr = httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/transcript?session_id=s1&limit=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code, "bad limit")
}

func TestTranscriptListReturnsMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	store := session.NewCallTranscriptStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	for _, body := range []string{"xin chào", "chào anh", "tôi muốn đặt lịch"} {
		err := store.Append(ctx, "sess-1", session.CallTranscriptMessage{Role: "user", Body: body})
		require.NoError(t, err)
	}

	h := NewTranscriptHandler(store, nil)
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/transcript?session_id=sess-1&limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		SessionID string                          `json:"session_id"`
		Messages  []session.CallTranscriptMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "tôi muốn đặt lịch", resp.Messages[1].Body)

	rr = httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/transcript?session_id=sess-unknown", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	resp.Messages = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}
