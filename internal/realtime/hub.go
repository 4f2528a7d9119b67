// Package realtime pushes session events to kiosk and dashboard clients over
// WebSockets. A hub-and-spoke layout: clients subscribe to session ids and
// receive every event published for those sessions.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// TopicAll receives every event regardless of session. Dashboards use it.
const TopicAll = "*"

// Event is one realtime notification.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription request from a client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one WebSocket connection and its subscriptions.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks connected clients per session topic and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  *logging.Logger
	now     func() time.Time
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		clients: map[string]map[*Client]struct{}{},
		all:     map[*Client]struct{}{},
		logger:  logger.Named("realtime"),
		now:     time.Now,
	}
}

// Register adds a client and its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.subscribeLocked(client, topic)
	}
}

// Unregister drops a client from every topic and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.unsubscribeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.subscribeLocked(client, topic)
	}
	client.Topics = append(client.Topics, topics...)
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	remove := map[string]struct{}{}
	for _, topic := range topics {
		remove[topic] = struct{}{}
		h.unsubscribeLocked(client, topic)
	}
	kept := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := remove[t]; !rm {
			kept = append(kept, t)
		}
	}
	client.Topics = kept
}

func (h *Hub) subscribeLocked(client *Client, topic string) {
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) unsubscribeLocked(client *Client, topic string) {
	if subs, ok := h.clients[topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.clients, topic)
		}
	}
}

// ProcessMessage applies an inbound subscribe/unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Publish implements the session event sink: the event goes to subscribers of
// the session id and to TopicAll listeners. Slow clients are skipped rather
// than blocking the session.
func (h *Hub) Publish(_ context.Context, sessionID, event string, payload map[string]any) error {
	data, err := json.Marshal(Event{
		Type:      event,
		SessionID: sessionID,
		Timestamp: h.now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := map[*Client]struct{}{}
	for _, topic := range []string{sessionID, TopicAll} {
		for client := range h.clients[topic] {
			if _, done := delivered[client]; done {
				continue
			}
			delivered[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Warn("dropping event for slow client", "client_id", client.ID, "event", event)
			}
		}
	}
	return nil
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount reports clients subscribed to one topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades HTTP connections and pumps hub traffic. Initial topics come
// from the ?session_id= query parameter; "*" subscribes to everything.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		var topics []string
		if sid := r.URL.Query().Get("session_id"); sid != "" {
			topics = append(topics, sid)
		}
		client := &Client{
			ID:     uuid.NewString(),
			Topics: topics,
			Send:   make(chan []byte, 256),
		}
		h.Register(client)

		go h.writePump(client, ws)
		go h.readPump(client, ws)
	}
}

func (h *Hub) readPump(client *Client, ws *websocket.Conn) {
	defer func() {
		h.Unregister(client)
		ws.Close()
	}()
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.ProcessMessage(client, msg)
	}
}

func (h *Hub) writePump(client *Client, ws *websocket.Conn) {
	defer ws.Close()
	for message := range client.Send {
		if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
