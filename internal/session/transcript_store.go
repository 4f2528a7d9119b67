package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	callTranscriptKeyPrefix = "call_transcript:"
	callTranscriptTTL       = 24 * time.Hour
)

// CallTranscriptMessage is one persisted transcript entry for a kiosk call.
type CallTranscriptMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// CallTranscriptStore persists call transcripts in Redis so dashboards and
// post-call review can replay a session. Nil-safe: a nil store is a no-op.
type CallTranscriptStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	maxMessages int64
}

func NewCallTranscriptStore(redisClient *redis.Client) *CallTranscriptStore {
	if redisClient == nil {
		return nil
	}
	return &CallTranscriptStore{
		redis:       redisClient,
		tracer:      otel.Tracer("kiosk.internal.session.call_transcript"),
		maxMessages: 500,
	}
}

func (s *CallTranscriptStore) Append(ctx context.Context, sessionID string, msg CallTranscriptMessage) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return errors.New("session: call transcript sessionID required")
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: marshal call transcript message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "session.call_transcript.append")
	defer span.End()

	key := callTranscriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, callTranscriptTTL)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: append call transcript message: %w", err)
	}
	return nil
}

func (s *CallTranscriptStore) List(ctx context.Context, sessionID string, limit int64) ([]CallTranscriptMessage, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return nil, errors.New("session: call transcript sessionID required")
	}

	ctx, span := s.tracer.Start(ctx, "session.call_transcript.list")
	defer span.End()

	start := int64(0)
	end := int64(-1)
	if limit > 0 {
		start = -limit
	}

	key := callTranscriptKey(sessionID)
	raw, err := s.redis.LRange(ctx, key, start, end).Result()
	if err != nil {
		span.RecordError(err)
		if err == redis.Nil {
			return []CallTranscriptMessage{}, nil
		}
		return nil, fmt.Errorf("session: list call transcript: %w", err)
	}

	out := make([]CallTranscriptMessage, 0, len(raw))
	for _, item := range raw {
		var msg CallTranscriptMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func callTranscriptKey(sessionID string) string {
	return callTranscriptKeyPrefix + sessionID
}
