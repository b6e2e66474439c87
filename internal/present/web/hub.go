// Package web serves the live dashboard over HTTP: an embedded page, a
// server-sent event and websocket frame stream, JSON snapshots, rendered
// charts and the operational endpoints.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/monitoring"
)

const (
	clientQueue  = 8
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Hub is a Presenter that keeps the latest frame and fans encoded frames
// out to SSE and websocket clients. Present never blocks; a client whose
// queue is full misses frames.
type Hub struct {
	metrics *monitoring.Metrics
	every   uint64

	mu      sync.RWMutex
	latest  *dashboard.Frame
	encoded []byte
	clients map[*client]struct{}

	presented atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64

	upgrader websocket.Upgrader
}

type client struct {
	kind string
	ch   chan []byte
}

// HubStats counts hub activity.
type HubStats struct {
	Clients int    `json:"clients"`
	Frames  uint64 `json:"frames"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// NewHub returns a hub forwarding one frame in every ticks to streaming
// clients. The latest frame is always kept.
func NewHub(every int) *Hub {
	if every < 1 {
		every = 1
	}
	return &Hub{
		every:   uint64(every),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// SetMetrics reports dropped frames under the "web" presenter label.
func (h *Hub) SetMetrics(m *monitoring.Metrics) { h.metrics = m }

// Present stores frame and queues it for streaming clients.
func (h *Hub) Present(frame dashboard.Frame) {
	n := h.presented.Add(1)
	h.mu.Lock()
	h.latest = &frame
	h.encoded = nil
	streaming := len(h.clients) > 0 && (n-1)%h.every == 0
	h.mu.Unlock()
	if !streaming {
		return
	}

	data, err := h.latestJSON()
	if err != nil {
		monitoring.Logf("[Web] failed to encode frame %d: %v", frame.Seq, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.ch <- data:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.FramesDropped.WithLabelValues("web").Inc()
			}
		}
	}
}

// Latest returns the most recent frame.
func (h *Hub) Latest() (dashboard.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return dashboard.Frame{}, false
	}
	return *h.latest, true
}

// latestJSON encodes the latest frame once and caches the bytes.
func (h *Hub) latestJSON() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return nil, nil
	}
	if h.encoded == nil {
		data, err := json.Marshal(h.latest)
		if err != nil {
			return nil, err
		}
		h.encoded = data
	}
	return h.encoded, nil
}

// Stats returns hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return HubStats{
		Clients: n,
		Frames:  h.presented.Load(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
	}
}

func (h *Hub) add(kind string) *client {
	c := &client{kind: kind, ch: make(chan []byte, clientQueue)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	monitoring.Logf("[Web] %s client connected (total: %d)", kind, n)
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	monitoring.Logf("[Web] %s client disconnected (remaining: %d)", c.kind, n)
}

// ServeEvents streams frames as server-sent events named "frame".
func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := h.add("sse")
	defer h.remove(c)

	// start from the current picture rather than a blank page
	if data, err := h.latestJSON(); err == nil && data != nil {
		fmt.Fprintf(w, "event: frame\ndata: %s\n\n", data)
	}
	flusher.Flush()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case data := <-c.ch:
			if _, err := fmt.Fprintf(w, "event: frame\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ServeWS streams frames as websocket text messages. Anything the client
// sends is read and discarded so control frames are processed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Debugf("[Web] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := h.add("ws")
	defer h.remove(c)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if data, err := h.latestJSON(); err == nil && data != nil {
		if err := writeWS(conn, websocket.TextMessage, data); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := writeWS(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case data := <-c.ch:
			if err := writeWS(conn, websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, kind int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(kind, data)
}
