package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/agentwire/pkg/a2a"
)

// testReceiver records every delivered payload.
type testReceiver struct {
	mu     sync.Mutex
	events []Event
	status int
}

func newTestReceiver(status int) (*testReceiver, *httptest.Server) {
	receiver := &testReceiver{status: status}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err == nil {
			receiver.mu.Lock()
			receiver.events = append(receiver.events, evt)
			receiver.mu.Unlock()
		}
		w.WriteHeader(receiver.status)
	}))

	return receiver, server
}

func (receiver *testReceiver) snapshot() []Event {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	events := make([]Event, len(receiver.events))
	copy(events, receiver.events)
	return events
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}

func TestDispatcherDeliversLifecycleEvents(t *testing.T) {
	receiver, server := newTestReceiver(http.StatusOK)
	defer server.Close()

	dispatcher := NewDispatcher(Config{URL: server.URL})
	defer dispatcher.Close()

	sequence := []EventType{EventCreated, EventMessageAdded, EventStatusChanged, EventCompleted}
	for _, event := range sequence {
		dispatcher.Enqueue(Event{
			TaskID:    "t1",
			Status:    a2a.TaskStateWorking,
			Timestamp: time.Now().UTC(),
			Event:     event,
		})
	}

	waitFor(t, func() bool { return dispatcher.Delivered() == int64(len(sequence)) })

	events := receiver.snapshot()
	require.Len(t, events, len(sequence))

	// One call per event, delivered in enqueue order, no duplicates.
	for i, event := range sequence {
		assert.Equal(t, event, events[i].Event)
	}
}

func TestDispatcherCarriesEventData(t *testing.T) {
	receiver, server := newTestReceiver(http.StatusOK)
	defer server.Close()

	dispatcher := NewDispatcher(Config{URL: server.URL})
	defer dispatcher.Close()

	dispatcher.Enqueue(Event{
		TaskID: "t1",
		Status: a2a.TaskStateCompleted,
		Event:  EventCompleted,
		Data:   map[string]any{"result": "hi there"},
	})

	waitFor(t, func() bool { return dispatcher.Delivered() == 1 })

	events := receiver.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "hi there", events[0].Data["result"])
}

func TestDispatcherFailureNeverPropagates(t *testing.T) {
	_, server := newTestReceiver(http.StatusInternalServerError)
	defer server.Close()

	dispatcher := NewDispatcher(Config{URL: server.URL})

	// Enqueue returns immediately regardless of receiver health.
	dispatcher.Enqueue(Event{TaskID: "t1", Event: EventCreated})

	waitFor(t, func() bool { return dispatcher.Failed() == 1 })
	assert.EqualValues(t, 0, dispatcher.Delivered())

	dispatcher.Close()
}

func TestDispatcherUnreachableReceiver(t *testing.T) {
	dispatcher := NewDispatcher(Config{
		URL:     "http://127.0.0.1:1/webhook",
		Timeout: 250 * time.Millisecond,
	})

	dispatcher.Enqueue(Event{TaskID: "t1", Event: EventCreated})

	waitFor(t, func() bool { return dispatcher.Failed() == 1 })

	dispatcher.Close()
}

func TestDispatcherRetries(t *testing.T) {
	var calls int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		current := calls
		mu.Unlock()

		if current < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(Config{URL: server.URL, MaxRetries: 2})
	defer dispatcher.Close()

	dispatcher.Enqueue(Event{TaskID: "t1", Event: EventCreated})

	waitFor(t, func() bool { return dispatcher.Delivered() == 1 })

	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestNilDispatcherIsNoOp(t *testing.T) {
	var dispatcher *Dispatcher

	assert.NotPanics(t, func() {
		dispatcher.Enqueue(Event{TaskID: "t1", Event: EventCreated})
		dispatcher.Close()
	})

	assert.Nil(t, NewDispatcher(Config{URL: ""}))
}

func TestTerminalEvent(t *testing.T) {
	assert.Equal(t, EventCompleted, TerminalEvent(a2a.TaskStateCompleted))
	assert.Equal(t, EventFailed, TerminalEvent(a2a.TaskStateFailed))
	assert.Equal(t, EventCanceled, TerminalEvent(a2a.TaskStateCanceled))
	assert.Equal(t, EventStatusChanged, TerminalEvent(a2a.TaskStateWorking))
}
