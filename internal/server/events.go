package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/tasks"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  any
}

// Hub fans messages out to connected event stream clients.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Message]struct{}
	buffer  int
}

// NewHub creates a hub whose clients buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{clients: make(map[chan Message]struct{}), buffer: buffer}
}

// Subscribe registers a client. The returned function must be called when the client leaves.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends msg to every client without blocking.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// TaskPayload is the event data for import task changes.
type TaskPayload struct {
	Message string             `json:"message"`
	TaskID  string             `json:"taskId"`
	Task    *models.ImportTask `json:"task,omitempty"`
}

func taskMessage(ev tasks.Event) Message {
	return Message{
		Event: ev.Kind.String(),
		Data:  TaskPayload{Message: ev.Message, TaskID: ev.TaskID, Task: ev.Task},
	}
}

// CompressPayload is the event data for compression progress.
type CompressPayload struct {
	TrackID string `json:"trackId,omitempty"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Error   string `json:"error,omitempty"`
}

func compressMessage(p download.CompressProgress) Message {
	payload := CompressPayload{TrackID: p.TrackID, Done: p.Done, Total: p.Total}
	if p.Err != nil {
		payload.Error = p.Err.Error()
	}
	return Message{Event: "compress_progress", Data: payload}
}

const keepAliveInterval = 30 * time.Second

// ServeHTTP streams hub messages as server-sent events until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	messages, unsubscribe := h.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			data, err := json.Marshal(msg.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
			flusher.Flush()
		}
	}
}
