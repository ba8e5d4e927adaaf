package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
)

type EventType string

const (
	EventSourceCreated EventType = "source.created"
	EventSourceUpdated EventType = "source.updated"
	EventSourceDeleted EventType = "source.deleted"
	EventViewPinned    EventType = "view.pinned"
	EventViewRefreshed EventType = "view.refreshed"
	EventViewDeleted   EventType = "view.deleted"
)

type Event struct {
	Type   EventType `json:"type"`
	UserID uuid.UUID `json:"user_id"`
	ID     uuid.UUID `json:"id"`
	Data   any       `json:"data,omitempty"`
}

type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Outbound chan Event
}

// Hub fans events out to the SSE clients of the event's user.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[uuid.UUID]map[*Client]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "SSEHub"),
		clients: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

func (h *Hub) Subscribe(userID uuid.UUID) *Client {
	c := &Client{ID: uuid.New(), UserID: userID, Outbound: make(chan Event, 16)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, present := set[c]; !present {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.Outbound)
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[ev.UserID] {
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("Dropping SSE event; outbound buffer full", "client_id", c.ID, "type", ev.Type)
		}
	}
}

// Serve streams the client's events until the request context ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, c *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-c.Outbound:
			if !open {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("Failed to marshal SSE event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
			flusher.Flush()
		}
	}
}
