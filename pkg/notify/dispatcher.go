package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/theapemachine/agentwire/pkg/a2a"
)

/*
EventType names the lifecycle trigger that produced an event.  Terminal
transitions are named after the status they reached so receivers can key
off the event name alone.
*/
type EventType string

const (
	EventCreated       EventType = "created"
	EventStatusChanged EventType = "status-changed"
	EventMessageAdded  EventType = "message-added"
	EventCompleted     EventType = "completed"
	EventFailed        EventType = "failed"
	EventCanceled      EventType = "canceled"
)

// TerminalEvent maps a terminal task state onto its event name.
func TerminalEvent(state a2a.TaskState) EventType {
	switch state {
	case a2a.TaskStateCompleted:
		return EventCompleted
	case a2a.TaskStateFailed:
		return EventFailed
	case a2a.TaskStateCanceled:
		return EventCanceled
	}
	return EventStatusChanged
}

/*
Event is the outbound webhook payload emitted on every observable lifecycle
change of a task.
*/
type Event struct {
	TaskID    string         `json:"task_id"`
	Status    a2a.TaskState  `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Event     EventType      `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

/*
Config holds the dispatcher policy knobs.  Retries and queue depth are
deliberately configuration points rather than guarantees: the default is a
single best-effort attempt per event.
*/
type Config struct {
	URL        string
	Timeout    time.Duration
	QueueDepth int
	MaxRetries int
}

/*
Dispatcher turns lifecycle events into outbound webhook calls without
coupling task mutation latency to delivery latency.  Enqueue never blocks
the caller; a single background worker drains the queue so per-task
delivery order follows enqueue order.

A nil Dispatcher is a valid no-op, which is how an absent webhook target is
represented.
*/
type Dispatcher struct {
	client     *resty.Client
	url        string
	maxRetries int
	queue      chan Event
	done       chan struct{}
	delivered  atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
}

/*
NewDispatcher creates a dispatcher and starts its delivery worker.  Returns
nil when no webhook URL is configured.
*/
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.URL == "" {
		return nil
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}

	dispatcher := &Dispatcher{
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		url:        cfg.URL,
		maxRetries: cfg.MaxRetries,
		queue:      make(chan Event, cfg.QueueDepth),
		done:       make(chan struct{}),
	}

	go dispatcher.worker()

	return dispatcher
}

/*
Enqueue hands an event to the delivery worker.  It never blocks and never
returns an error to the mutating caller: when the queue is full the event
is dropped and counted.
*/
func (dispatcher *Dispatcher) Enqueue(evt Event) {
	if dispatcher == nil {
		return
	}

	select {
	case dispatcher.queue <- evt:
	default:
		dispatcher.dropped.Add(1)
		log.Warn("notification queue full, dropping event",
			"task", evt.TaskID, "event", evt.Event)
	}
}

/*
Close stops the worker after draining already queued events.
*/
func (dispatcher *Dispatcher) Close() {
	if dispatcher == nil {
		return
	}

	close(dispatcher.queue)
	<-dispatcher.done
}

// Delivered returns the number of successfully delivered events.
func (dispatcher *Dispatcher) Delivered() int64 {
	if dispatcher == nil {
		return 0
	}
	return dispatcher.delivered.Load()
}

// Failed returns the number of events whose delivery attempts all failed.
func (dispatcher *Dispatcher) Failed() int64 {
	if dispatcher == nil {
		return 0
	}
	return dispatcher.failed.Load()
}

func (dispatcher *Dispatcher) worker() {
	defer close(dispatcher.done)

	for evt := range dispatcher.queue {
		dispatcher.deliver(evt)
	}
}

// deliver makes at most 1+maxRetries attempts and records the outcome.  A
// failed delivery is logged only: it never reaches the task-mutating
// caller and never rolls back the state change that produced the event.
func (dispatcher *Dispatcher) deliver(evt Event) {
	var lastErr error

	for attempt := 0; attempt <= dispatcher.maxRetries; attempt++ {
		resp, err := dispatcher.client.R().
			SetContext(context.Background()).
			SetBody(evt).
			Post(dispatcher.url)

		if err == nil && resp.IsSuccess() {
			dispatcher.delivered.Add(1)
			return
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = &deliveryStatusError{code: resp.StatusCode()}
		}
	}

	dispatcher.failed.Add(1)
	log.Error("webhook delivery failed",
		"task", evt.TaskID, "event", evt.Event, "url", dispatcher.url, "error", lastErr)
}

type deliveryStatusError struct {
	code int
}

func (e *deliveryStatusError) Error() string {
	return fmt.Sprintf("non-success response: %d %s", e.code, http.StatusText(e.code))
}
