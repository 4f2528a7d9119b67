package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Line is one transcript entry. Role is "user", "assistant" or "system".
type Line struct {
	ID   string
	Role string
	Text string
}

// TranscriptBuffer is the per-session ordered transcript with id-based dedup.
// Realtime transports redeliver events on reconnect; seen ids keep the buffer
// stable across those races.
type TranscriptBuffer struct {
	mu    sync.Mutex
	lines []Line
	seen  map[string]bool
}

func NewTranscriptBuffer() *TranscriptBuffer {
	return &TranscriptBuffer{seen: map[string]bool{}}
}

// Append adds a line unless its id was already seen. Empty ids get a fresh
// uuid and always append. Returns false on a duplicate.
func (b *TranscriptBuffer) Append(id, role, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	} else if b.seen[id] {
		return false
	}
	b.seen[id] = true
	b.lines = append(b.lines, Line{ID: id, Role: role, Text: text})
	return true
}

// RemoveByID deletes a line. Used for the booking guard line once the result
// arrives.
func (b *TranscriptBuffer) RemoveByID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.lines {
		if l.ID == id {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			return
		}
	}
}

// Len returns the number of buffered lines.
func (b *TranscriptBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Text renders the transcript as "[role] text" lines for reasoner prompts.
func (b *TranscriptBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for i, l := range b.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("[" + l.Role + "] " + l.Text)
	}
	return sb.String()
}
