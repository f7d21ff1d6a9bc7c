package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/agentwire/pkg/a2a"
	taskerrors "github.com/theapemachine/agentwire/pkg/errors"
	"github.com/theapemachine/agentwire/pkg/notify"
	"github.com/theapemachine/agentwire/pkg/provider"
	"github.com/theapemachine/agentwire/pkg/service/sse"
	"github.com/theapemachine/agentwire/pkg/stores"
)

// failingBackend errors on every call, optionally after emitting a few
// deltas when streaming.
type failingBackend struct {
	deltas []string
}

func (backend *failingBackend) Complete(ctx context.Context, messages []a2a.Message) (string, error) {
	return "", errors.New("model unavailable")
}

func (backend *failingBackend) Stream(
	ctx context.Context, messages []a2a.Message, onDelta func(string),
) (string, error) {
	for _, delta := range backend.deltas {
		onDelta(delta)
	}
	return "", errors.New("model unavailable")
}

// blockingBackend parks until the caller's context is canceled.
type blockingBackend struct{}

func (backend *blockingBackend) Complete(ctx context.Context, messages []a2a.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (backend *blockingBackend) Stream(
	ctx context.Context, messages []a2a.Message, onDelta func(string),
) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestManager(backend provider.Interface, dispatcher *notify.Dispatcher) (*TaskManager, *stores.InMemoryTaskStore) {
	store := stores.NewInMemoryTaskStore()
	return NewTaskManager(store, backend, dispatcher), store
}

func collect(t *testing.T, produce sse.Producer, ctx context.Context) []sse.Event {
	t.Helper()

	events := make(chan sse.Event, 32)
	go produce(ctx, events)

	var out []sse.Event
	for evt := range events {
		out = append(out, evt)
	}
	return out
}

func TestSendMessageCompletesTask(t *testing.T) {
	manager, _ := newTestManager(provider.NewEcho(), nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, nil)
	require.Nil(t, taskErr)
	assert.Equal(t, a2a.TaskStateSubmitted, task.Status)

	stored, reply, taskErr := manager.SendMessage(
		ctx, task.ID, *a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.ID)

	require.NotNil(t, reply)
	assert.Equal(t, a2a.RoleAgent, reply.Role)
	assert.Equal(t, "echo: hello", reply.String())

	task, taskErr = manager.GetTask(ctx, task.ID)
	require.Nil(t, taskErr)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "echo: hello", task.Result.String())
	assert.Len(t, task.Messages, 2)
}

func TestSendMessageToTerminalTaskRejected(t *testing.T) {
	manager, _ := newTestManager(provider.NewEcho(), nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, nil)
	require.Nil(t, taskErr)

	_, _, taskErr = manager.SendMessage(ctx, task.ID, *a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)

	_, _, taskErr = manager.SendMessage(ctx, task.ID, *a2a.NewTextMessage(a2a.RoleUser, "again"))
	require.NotNil(t, taskErr)
	assert.Equal(t, taskerrors.KindInvalidState, taskErr.Kind)

	task, taskErr = manager.GetTask(ctx, task.ID)
	require.Nil(t, taskErr)
	assert.Len(t, task.Messages, 2)
}

func TestSendMessageBackendFailureMarksTaskFailed(t *testing.T) {
	manager, _ := newTestManager(&failingBackend{}, nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, nil)
	require.Nil(t, taskErr)

	stored, reply, taskErr := manager.SendMessage(
		ctx, task.ID, *a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr, "backend failure must not surface to the appender")
	require.NotNil(t, stored)
	assert.Nil(t, reply)

	task, taskErr = manager.GetTask(ctx, task.ID)
	require.Nil(t, taskErr)
	assert.Equal(t, a2a.TaskStateFailed, task.Status)
}

func TestSendMessageNotifiesWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []notify.Event

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt notify.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))

		mu.Lock()
		received = append(received, evt)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	dispatcher := notify.NewDispatcher(notify.Config{URL: receiver.URL})
	defer dispatcher.Close()

	manager, _ := newTestManager(provider.NewEcho(), dispatcher)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, nil)
	require.Nil(t, taskErr)

	_, _, taskErr = manager.SendMessage(ctx, task.ID, *a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		count := len(received)
		mu.Unlock()

		if count >= 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, received, 4)
	assert.Equal(t, notify.EventCreated, received[0].Event)
	assert.Equal(t, notify.EventMessageAdded, received[1].Event)
	assert.Equal(t, notify.EventStatusChanged, received[2].Event)
	assert.Equal(t, a2a.TaskStateWorking, received[2].Status)

	assert.Equal(t, notify.EventCompleted, received[3].Event)
	assert.Equal(t, a2a.TaskStateCompleted, received[3].Status)

	require.NotNil(t, received[3].Data)
	assert.Equal(t, "echo: hello", received[3].Data["result"])
}

func TestStreamTaskProducesChunks(t *testing.T) {
	manager, store := newTestManager(provider.NewEcho(), nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, a2a.NewTextMessage(a2a.RoleUser, "hello world"))
	require.Nil(t, taskErr)

	produce, taskErr := manager.StreamTask(ctx, task.ID)
	require.Nil(t, taskErr)

	events := collect(t, produce, ctx)
	require.GreaterOrEqual(t, len(events), 3)

	assert.Equal(t, sse.EventStarted, events[0].Type)

	var concatenated string
	lastSeq := -1
	for _, evt := range events[1 : len(events)-1] {
		require.Equal(t, sse.EventChunk, evt.Type)

		chunk := evt.Data.(sse.ChunkData)
		assert.Greater(t, chunk.Seq, lastSeq)
		lastSeq = chunk.Seq
		concatenated += chunk.Content
	}

	terminal := events[len(events)-1]
	require.Equal(t, sse.EventCompleted, terminal.Type)

	completed := terminal.Data.(sse.CompletedData)
	assert.Equal(t, task.ID, completed.TaskID)
	assert.Equal(t, "echo: hello world", completed.Result)
	assert.Equal(t, completed.Result, concatenated)

	task, storeErr := store.Get(ctx, task.ID)
	require.Nil(t, storeErr)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "echo: hello world", task.Result.String())
}

func TestStreamTaskBackendFailure(t *testing.T) {
	manager, store := newTestManager(&failingBackend{deltas: []string{"par", "tial"}}, nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)

	produce, taskErr := manager.StreamTask(ctx, task.ID)
	require.Nil(t, taskErr)

	events := collect(t, produce, ctx)
	require.Len(t, events, 4)
	assert.Equal(t, sse.EventStarted, events[0].Type)
	assert.Equal(t, sse.EventChunk, events[1].Type)
	assert.Equal(t, sse.EventChunk, events[2].Type)

	require.Equal(t, sse.EventError, events[3].Type)
	failure := events[3].Data.(sse.ErrorData)
	assert.Equal(t, "model unavailable", failure.Error)

	task, storeErr := store.Get(ctx, task.ID)
	require.Nil(t, storeErr)
	assert.Equal(t, a2a.TaskStateFailed, task.Status)
}

func TestStreamTaskRejectsTerminalTask(t *testing.T) {
	manager, _ := newTestManager(provider.NewEcho(), nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, nil)
	require.Nil(t, taskErr)

	_, _, taskErr = manager.SendMessage(ctx, task.ID, *a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)

	_, taskErr = manager.StreamTask(ctx, task.ID)
	require.NotNil(t, taskErr)
	assert.Equal(t, taskerrors.KindInvalidState, taskErr.Kind)
}

func TestStreamTaskRejectsEmptyTask(t *testing.T) {
	manager, _ := newTestManager(provider.NewEcho(), nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, nil)
	require.Nil(t, taskErr)

	_, taskErr = manager.StreamTask(ctx, task.ID)
	require.NotNil(t, taskErr)
	assert.Equal(t, taskerrors.KindInvalidState, taskErr.Kind)
	assert.Contains(t, taskErr.Message, "no messages")
}

func TestStreamTaskRejectsConcurrentProducer(t *testing.T) {
	manager, _ := newTestManager(&blockingBackend{}, nil)
	ctx := context.Background()

	task, taskErr := manager.CreateTask(ctx, a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)

	_, taskErr = manager.StreamTask(ctx, task.ID)
	require.Nil(t, taskErr)

	// The task is now working; a second subscriber must not start a
	// competing generation.
	_, taskErr = manager.StreamTask(ctx, task.ID)
	require.NotNil(t, taskErr)
	assert.Equal(t, taskerrors.KindInvalidTransition, taskErr.Kind)
}

func TestStreamTaskCancellation(t *testing.T) {
	manager, store := newTestManager(&blockingBackend{}, nil)

	task, taskErr := manager.CreateTask(context.Background(), a2a.NewTextMessage(a2a.RoleUser, "hello"))
	require.Nil(t, taskErr)

	produce, taskErr := manager.StreamTask(context.Background(), task.ID)
	require.Nil(t, taskErr)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan sse.Event, 32)
	go produce(ctx, events)

	started := <-events
	assert.Equal(t, sse.EventStarted, started.Type)

	cancel()

	// No terminal event after cancellation: the channel just closes.
	var trailing []sse.Event
	for evt := range events {
		trailing = append(trailing, evt)
	}
	assert.Empty(t, trailing)

	deadline := time.Now().Add(2 * time.Second)
	for {
		task, storeErr := store.Get(context.Background(), task.ID)
		require.Nil(t, storeErr)

		if task.Status == a2a.TaskStateCanceled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %s, expected canceled", task.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEchoStreamMatchesComplete(t *testing.T) {
	echo := provider.NewEcho()
	messages := []a2a.Message{*a2a.NewTextMessage(a2a.RoleUser, "one two three")}

	full, err := echo.Complete(context.Background(), messages)
	require.NoError(t, err)

	var chunks []string
	streamed, err := echo.Stream(context.Background(), messages, func(delta string) {
		chunks = append(chunks, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, full, streamed)
	assert.Equal(t, full, strings.Join(chunks, ""))
	assert.Greater(t, len(chunks), 1)
}
