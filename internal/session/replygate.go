package session

import (
	"context"
	"sync"
	"time"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

const (
	defaultReplyDebounce = 150 * time.Millisecond
	defaultReplyRetry    = 500 * time.Millisecond
)

// Speaker issues one spoken agent turn from generation instructions. The
// realtime transport implements this.
type Speaker interface {
	Speak(ctx context.Context, instructions string) error
}

// ReplyGate serializes agent replies: at most one in-flight turn, a small
// debounce before issuing, and a single retry on transient failure. Never
// retry unboundedly here; overlapping turns during reconnects are worse than
// a dropped reply.
type ReplyGate struct {
	mu         sync.Mutex
	speaker    Speaker
	debounce   time.Duration
	retryDelay time.Duration
	logger     *logging.Logger

	sleep func(context.Context, time.Duration) error
}

func NewReplyGate(speaker Speaker, logger *logging.Logger) *ReplyGate {
	if speaker == nil {
		panic("session: speaker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyGate{
		speaker:    speaker,
		debounce:   defaultReplyDebounce,
		retryDelay: defaultReplyRetry,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Reply issues one agent turn. Blocks while another reply is in flight.
func (g *ReplyGate) Reply(ctx context.Context, instructions string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sleep(ctx, g.debounce); err != nil {
		return err
	}

	err := g.speaker.Speak(ctx, instructions)
	if err == nil {
		return nil
	}
	g.logger.Warn("reply failed, retrying once", "error", err)

	if serr := g.sleep(ctx, g.retryDelay); serr != nil {
		return serr
	}
	if err = g.speaker.Speak(ctx, instructions); err != nil {
		g.logger.Warn("reply retry failed", "error", err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
