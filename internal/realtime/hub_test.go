package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{
		ID:     "client-1",
		Topics: []string{"sess-1"},
		Send:   make(chan []byte, 256),
	}

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("sess-1") != 1 {
		t.Fatalf("clients = %d, topic = %d", hub.ClientCount(), hub.TopicCount("sess-1"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("sess-1") != 0 {
		t.Fatalf("clients = %d, topic = %d after unregister", hub.ClientCount(), hub.TopicCount("sess-1"))
	}
	if _, open := <-client.Send; open {
		t.Fatal("send channel should be closed")
	}
}

func TestHubPublishRouting(t *testing.T) {
	hub := NewHub(nil)

	kiosk := &Client{ID: "kiosk", Topics: []string{"sess-1"}, Send: make(chan []byte, 8)}
	dashboard := &Client{ID: "dash", Topics: []string{TopicAll}, Send: make(chan []byte, 8)}
	other := &Client{ID: "other", Topics: []string{"sess-2"}, Send: make(chan []byte, 8)}
	hub.Register(kiosk)
	hub.Register(dashboard)
	hub.Register(other)

	if err := hub.Publish(context.Background(), "sess-1", "booking_result", map[string]any{"options": 3}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, c := range []*Client{kiosk, dashboard} {
		select {
		case raw := <-c.Send:
			var ev Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if ev.Type != "booking_result" || ev.SessionID != "sess-1" {
				t.Fatalf("client %s got %+v", c.ID, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive event", c.ID)
		}
	}

	select {
	case <-other.Send:
		t.Fatal("unrelated session received event")
	default:
	}
}

func TestHubPublishSkipsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	slow := &Client{ID: "slow", Topics: []string{"sess-1"}, Send: make(chan []byte)}
	hub.Register(slow)

	done := make(chan error, 1)
	go func() {
		done <- hub.Publish(context.Background(), "sess-1", "booking_pending", nil)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on slow client")
	}
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{ID: "c", Send: make(chan []byte, 8)}
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"sess-1", "sess-2"}})
	if hub.TopicCount("sess-1") != 1 || hub.TopicCount("sess-2") != 1 {
		t.Fatal("subscribe did not register topics")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"sess-1"}})
	if hub.TopicCount("sess-1") != 0 || hub.TopicCount("sess-2") != 1 {
		t.Fatal("unsubscribe did not drop topic")
	}
}

func TestHandlerEndToEnd(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session_id=sess-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("sess-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Publish(context.Background(), "sess-1", "identity_captured", map[string]any{"name": "Nguyễn Văn A"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Type != "identity_captured" || ev.Data["name"] != "Nguyễn Văn A" {
		t.Fatalf("event = %+v", ev)
	}
}
