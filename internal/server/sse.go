package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/skyfeed/internal/live"
	"github.com/alfredjeanlab/skyfeed/internal/render"
)

const (
	// SessionCookie carries the session id between streams of one visitor.
	SessionCookie = "skyfeed_session"

	// eventRingSize is the number of recent events kept in memory for
	// Last-Event-ID reconnection on GET /v1/events.
	eventRingSize = 256
)

// sseEvent is a single event stored in the ring buffer and sent to SSE clients.
type sseEvent struct {
	ID    uint64 // monotonically increasing sequence number
	Topic string
	Data  []byte // JSON-encoded payload
}

// EventHub is an events.Publisher that fans events out to clients of
// GET /v1/events. It keeps a ring of recent events for Last-Event-ID replay.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64

	ringMu  sync.RWMutex
	ring    [eventRingSize]sseEvent
	ringPos int // next write position (wraps around)
	ringLen int // number of valid entries (up to eventRingSize)
}

// sseClient represents a single connected event consumer.
type sseClient struct {
	topics []string       // topic patterns to match (empty = all)
	ch     chan *sseEvent // buffered channel for event delivery
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*sseClient]struct{})}
}

// Publish encodes event and broadcasts it under topic.
func (h *EventHub) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", topic, err)
	}
	h.broadcast(topic, payload)
	return nil
}

// Close is a no-op; connected clients end with their requests.
func (h *EventHub) Close() error { return nil }

// broadcast sends an event to all connected clients whose topic filters match.
func (h *EventHub) broadcast(topic string, payload []byte) {
	evt := &sseEvent{ID: h.nextID.Add(1), Topic: topic, Data: payload}

	h.ringMu.Lock()
	h.ring[h.ringPos] = *evt
	h.ringPos = (h.ringPos + 1) % eventRingSize
	if h.ringLen < eventRingSize {
		h.ringLen++
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.matchesTopic(topic) {
			select {
			case c.ch <- evt:
			default:
				// Slow client; drop.
			}
		}
	}
}

func (h *EventHub) subscribe(topics []string) *sseClient {
	c := &sseClient{topics: topics, ch: make(chan *sseEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// clientCount returns the number of connected event consumers.
func (h *EventHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// eventsSince returns buffered events with ID > lastID, oldest first.
func (h *EventHub) eventsSince(lastID uint64) []*sseEvent {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	var result []*sseEvent
	start := h.ringPos - h.ringLen
	if start < 0 {
		start += eventRingSize
	}
	for i := range h.ringLen {
		evt := h.ring[(start+i)%eventRingSize]
		if evt.ID > lastID {
			result = append(result, &evt)
		}
	}
	return result
}

// matchesTopic reports whether the client's patterns match topic. An empty
// pattern list matches everything.
func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a pattern.
// "*" matches one segment and a trailing ">" matches one or more (NATS-style).
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}
	return len(patParts) == len(topParts)
}

// startSSE writes the event-stream headers. It reports false (after
// writing an error) when the response cannot be flushed.
func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	return flusher, true
}

// handleStream handles GET /v1/stream: one live session per connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	var cookieID string
	if c, err := r.Cookie(SessionCookie); err == nil {
		cookieID = c.Value
	}
	sess := s.cfg.Sessions.GetOrCreate(cookieID)
	// A view owned by another session is never joined; the request gets a
	// fresh view instead.
	viewID := r.URL.Query().Get("view_id")
	if v, ok := s.cfg.Views.Get(viewID); ok && v.SessionID != sess.ID {
		viewID = ""
	}
	view := s.cfg.Views.GetOrCreate(viewID, sess.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)

	hello, _ := json.Marshal(map[string]string{
		"view_id":      view.ID,
		"session_id":   sess.ID,
		"display_name": sess.DisplayName,
	})
	writeSSE(w, 0, "view", hello)
	flusher.Flush()

	sr := &sseRenderer{w: w, flusher: flusher}
	err := live.New(s.liveConfig(), view, sess.DisplayName, sr).Run(r.Context())
	if err != nil && !errors.Is(err, live.ErrViewRemoved) {
		s.logger.Warn("stream ended", "view_id", view.ID, "error", err)
	}
}

// sseRenderer writes live snapshots as "patch" events. It is only called
// from the session's own goroutine.
type sseRenderer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (sr *sseRenderer) Render(_ context.Context, snap live.Snapshot) error {
	data, err := render.Encode(snap)
	if err != nil {
		return err
	}
	if err := writeSSE(sr.w, snap.Seq, "patch", data); err != nil {
		return err
	}
	sr.flusher.Flush()
	return nil
}

func (sr *sseRenderer) Ping() error {
	if _, err := fmt.Fprint(sr.w, ":keepalive\n\n"); err != nil {
		return err
	}
	sr.flusher.Flush()
	return nil
}

// handleEventStream handles GET /v1/events: the internal event mirror.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	var topics []string
	if q := r.URL.Query().Get("topics"); q != "" {
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	hub := s.cfg.Events
	client := hub.subscribe(topics)
	defer hub.unsubscribe(client)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range hub.eventsSince(lastID) {
				if client.matchesTopic(evt.Topic) {
					writeSSE(w, evt.ID, evt.Topic, evt.Data)
				}
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(s.cfg.Keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			writeSSE(w, evt.ID, evt.Topic, evt.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSE writes a single SSE event. An id of 0 is omitted.
func writeSSE(w http.ResponseWriter, id uint64, event string, data []byte) error {
	var b strings.Builder
	if id > 0 {
		fmt.Fprintf(&b, "id:%d\n", id)
	}
	fmt.Fprintf(&b, "event:%s\n", event)
	fmt.Fprintf(&b, "data:%s\n\n", data)
	_, err := fmt.Fprint(w, b.String())
	return err
}
