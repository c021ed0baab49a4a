package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanrag/internal/tools"
)

// sessionQueueSize bounds undelivered events per SSE session. A slow
// consumer loses events rather than blocking tool calls.
const sessionQueueSize = 16

// sseEvent is one delivered tool result.
type sseEvent struct {
	Tool     string         `json:"tool"`
	Envelope tools.Envelope `json:"envelope"`
}

// sseHub tracks connected SSE sessions and their event queues.
type sseHub struct {
	mu       sync.Mutex
	sessions map[string]chan sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{sessions: make(map[string]chan sseEvent)}
}

// Subscribe registers a new session and returns its id and queue.
func (h *sseHub) Subscribe() (string, <-chan sseEvent) {
	id := uuid.NewString()
	ch := make(chan sseEvent, sessionQueueSize)
	h.mu.Lock()
	h.sessions[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a session. Safe to call twice.
func (h *sseHub) Unsubscribe(id string) {
	h.mu.Lock()
	if ch, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish queues an event for a session. Returns false when the session
// does not exist; a full queue drops the event instead of blocking.
func (h *sseHub) Publish(id, tool string, env tools.Envelope) bool {
	h.mu.Lock()
	ch, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- sseEvent{Tool: tool, Envelope: env}:
	default:
	}
	return true
}

// CloseAll disconnects every session, used at shutdown.
func (h *sseHub) CloseAll() {
	h.mu.Lock()
	for id, ch := range h.sessions {
		delete(h.sessions, id)
		close(ch)
	}
	h.mu.Unlock()
}

// handleSSE opens an event stream. The first event names the session;
// tool calls made with ?session=<id> have their envelopes delivered
// here. Keepalive comments hold the connection open through proxies.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	sendEvent(w, flusher, "session", map[string]string{"session_id": id})

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			sendEvent(w, flusher, "result", event)
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
