package sse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

/*
EventType names the typed events a stream subscriber can observe.  Per
subscription the order is always: one started, zero or more chunks in
sequence order, then exactly one terminal completed or error event.
*/
type EventType string

const (
	EventStarted   EventType = "started"
	EventChunk     EventType = "chunk"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one SSE frame: an event name plus a JSON payload.
type Event struct {
	Type EventType
	Data any
}

type StartedData struct {
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
}

type ChunkData struct {
	Content string `json:"content"`
	Seq     int    `json:"seq"`
}

type CompletedData struct {
	TaskID string `json:"task_id"`
	Result string `json:"result"`
}

type ErrorData struct {
	Error string `json:"error"`
}

/*
Producer generates the ordered event sequence for one subscription.  It
must close the channel when done and stop promptly once ctx is canceled:
cancellation means the subscriber went away and any in-flight generation
work should be abandoned.
*/
type Producer func(ctx context.Context, events chan<- Event)

/*
Broker serves SSE subscriptions.  Each subscription gets its own producer
and channel, so a slow consumer on one task never stalls another.  The
broker tracks active subscriptions per task for introspection only.
*/
type Broker struct {
	mu        sync.RWMutex
	active    map[string]int
	heartbeat time.Duration
}

func NewBroker() *Broker {
	return &Broker{
		active:    make(map[string]int),
		heartbeat: 25 * time.Second,
	}
}

/*
NewTestBroker creates a broker with a shorter heartbeat interval for
testing.
*/
func NewTestBroker() *Broker {
	return &Broker{
		active:    make(map[string]int),
		heartbeat: 100 * time.Millisecond,
	}
}

// Active returns the number of open subscriptions for a task.
func (broker *Broker) Active(taskID string) int {
	broker.mu.RLock()
	defer broker.mu.RUnlock()
	return broker.active[taskID]
}

/*
Stream upgrades the HTTP connection to an SSE stream, runs the producer
and blocks until a terminal event is written or the client disconnects.
Disconnect cancels the producer context; no event is written after
cancellation is observed.
*/
func (broker *Broker) Stream(w http.ResponseWriter, r *http.Request, taskID string, produce Producer) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan Event, 8)
	go produce(ctx, events)

	broker.track(taskID, 1)
	defer broker.track(taskID, -1)

	// heartbeat ticker to keep the connection alive in the presence of
	// proxies.
	ticker := time.NewTicker(broker.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			cancel()
			return
		case evt, open := <-events:
			if !open {
				return
			}
			if err := WriteEvent(w, evt); err != nil {
				log.Error("failed to write stream event", "task", taskID, "error", err)
				cancel()
				return
			}
			flusher.Flush()
		case <-ticker.C:
			// comment heartbeat
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

/*
WriteEvent writes one event as an `event:`/`data:` pair with a JSON
payload.
*/
func WriteEvent(w io.Writer, evt Event) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}

	if _, err = w.Write([]byte("event: " + string(evt.Type) + "\n")); err != nil {
		return err
	}

	if _, err = w.Write([]byte("data: ")); err != nil {
		return err
	}

	if _, err = w.Write(payload); err != nil {
		return err
	}

	_, err = w.Write([]byte("\n\n"))
	return err
}

func (broker *Broker) track(taskID string, delta int) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	broker.active[taskID] += delta
	if broker.active[taskID] <= 0 {
		delete(broker.active, taskID)
	}
}
