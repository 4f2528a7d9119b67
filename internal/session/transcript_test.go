package session

import "testing"

func TestTranscriptBufferDedup(t *testing.T) {
	b := NewTranscriptBuffer()
	if !b.Append("msg-1", "user", "xin chào") {
		t.Fatal("first append rejected")
	}
	if b.Append("msg-1", "user", "xin chào") {
		t.Fatal("duplicate id accepted")
	}
	if !b.Append("", "system", "anon line") {
		t.Fatal("empty id rejected")
	}
	if !b.Append("", "system", "anon line") {
		t.Fatal("second empty id rejected")
	}
	if got := b.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
}

func TestTranscriptBufferRemoveByID(t *testing.T) {
	b := NewTranscriptBuffer()
	b.Append("a", "user", "one")
	b.Append("b", "system", "guard")
	b.Append("c", "assistant", "two")

	b.RemoveByID("b")
	if got := b.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	b.RemoveByID("missing")
	if got := b.Len(); got != 2 {
		t.Fatalf("Len after missing remove = %d, want 2", got)
	}

	want := "[user] one\n[assistant] two"
	if got := b.Text(); got != want {
		t.Fatalf("Text = %q, want %q", got, want)
	}
}

func TestTranscriptBufferTextEmpty(t *testing.T) {
	b := NewTranscriptBuffer()
	if got := b.Text(); got != "" {
		t.Fatalf("Text = %q, want empty", got)
	}
}
