package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const clientBuffer = 16

type Client struct {
	ID        uuid.UUID
	LearnerID uuid.UUID
	Channels  map[string]bool
	Outbound  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Hub fans bus messages out to the streams connected to this replica.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
	heartbeat     time.Duration
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:           log.With("component", "RealtimeHub"),
		subscriptions: make(map[string]map[*Client]bool),
		heartbeat:     15 * time.Second,
	}
}

func (h *Hub) NewClient(learnerID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New(),
		LearnerID: learnerID,
		Channels:  make(map[string]bool),
		Outbound:  make(chan Message, clientBuffer),
		done:      make(chan struct{}),
	}
}

func (h *Hub) AddChannel(c *Client, channel string) {
	channel = strings.TrimSpace(channel)
	if c == nil || channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Channels[channel] = true
	subs := h.subscriptions[channel]
	if subs == nil {
		subs = make(map[*Client]bool)
		h.subscriptions[channel] = subs
	}
	subs[c] = true
}

func (h *Hub) RemoveClient(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range c.Channels {
		if subs, ok := h.subscriptions[ch]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.subscriptions, ch)
			}
		}
	}
	c.Channels = make(map[string]bool)
}

// Broadcast never blocks; a subscriber with a full buffer loses the message.
func (h *Hub) Broadcast(msg Message) {
	if msg.Channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			h.log.Warn("dropping realtime message; outbound buffer full", "client_id", c.ID, "event", msg.Event)
		}
	}
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[channel])
}

func (h *Hub) CloseClient(c *Client) {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		h.RemoveClient(c)
		close(c.done)
	})
}

// ServeHTTP streams the client's messages as server-sent events until the
// request ends or the client is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, c *Client) {
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

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-c.Outbound:
			raw, err := json.Marshal(msg)
			if err != nil {
				h.log.Warn("marshal realtime message failed", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}
