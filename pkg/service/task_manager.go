package service

// TaskManager glues the task store, the generation backend, the
// notification dispatcher and the stream broker together.  Each method
// does its own validation and returns a *errors.TaskError when the
// request is invalid or cannot be fulfilled.

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/agentwire/pkg/a2a"
	"github.com/theapemachine/agentwire/pkg/errors"
	"github.com/theapemachine/agentwire/pkg/notify"
	"github.com/theapemachine/agentwire/pkg/provider"
	"github.com/theapemachine/agentwire/pkg/service/sse"
	"github.com/theapemachine/agentwire/pkg/stores"
)

type TaskManager struct {
	store      stores.TaskStore
	backend    provider.Interface
	dispatcher *notify.Dispatcher
}

/*
NewTaskManager wires the store's lifecycle events into the dispatcher.
A nil dispatcher disables webhook notifications.
*/
func NewTaskManager(
	store *stores.InMemoryTaskStore,
	backend provider.Interface,
	dispatcher *notify.Dispatcher,
) *TaskManager {
	if store == nil {
		store = stores.NewInMemoryTaskStore()
	}

	if backend == nil {
		backend = provider.NewEcho()
	}

	store.SetObserver(dispatcher.Enqueue)

	return &TaskManager{
		store:      store,
		backend:    backend,
		dispatcher: dispatcher,
	}
}

func (manager *TaskManager) CreateTask(ctx context.Context, initial *a2a.Message) (*a2a.Task, *errors.TaskError) {
	return manager.store.Create(ctx, initial)
}

func (manager *TaskManager) GetTask(ctx context.Context, id string) (*a2a.Task, *errors.TaskError) {
	return manager.store.Get(ctx, id)
}

func (manager *TaskManager) ListTasks(ctx context.Context, state a2a.TaskState) ([]*a2a.Task, *errors.TaskError) {
	return manager.store.List(ctx, state)
}

func (manager *TaskManager) GetMessages(ctx context.Context, id string) ([]a2a.Message, *errors.TaskError) {
	return manager.store.GetMessages(ctx, id)
}

func (manager *TaskManager) GetMessage(ctx context.Context, id string, messageID string) (*a2a.Message, *errors.TaskError) {
	return manager.store.GetMessage(ctx, id, messageID)
}

func (manager *TaskManager) CancelTask(ctx context.Context, id string) (*a2a.Task, *errors.TaskError) {
	return manager.store.Cancel(ctx, id)
}

/*
SendMessage appends a message to the task.  When the append drives the
task from submitted into working, the backend is invoked on the caller's
path and the agent's reply is returned alongside the stored message; the
task ends up completed, or failed when the backend errors.  Appends to an
already working or input-required task are stored without triggering
processing.
*/
func (manager *TaskManager) SendMessage(
	ctx context.Context, id string, msg a2a.Message,
) (*a2a.Message, *a2a.Message, *errors.TaskError) {
	stored, started, taskErr := manager.store.AddMessage(ctx, id, msg)
	if taskErr != nil {
		return nil, nil, taskErr
	}

	if !started {
		return stored, nil, nil
	}

	messages, taskErr := manager.store.GetMessages(ctx, id)
	if taskErr != nil {
		return stored, nil, taskErr
	}

	text, err := manager.backend.Complete(ctx, messages)
	if err != nil {
		log.Error("backend completion failed", "task", id, "error", err)
		if _, failErr := manager.store.Fail(ctx, id, err.Error()); failErr != nil {
			log.Error("failed to mark task failed", "task", id, "error", failErr)
		}
		return stored, nil, nil
	}

	task, taskErr := manager.store.Complete(ctx, id, *a2a.NewTextMessage(a2a.RoleAgent, text))
	if taskErr != nil {
		return stored, nil, taskErr
	}

	return stored, task.Result, nil
}

/*
StreamTask validates that the task has pending work and returns the
producer that will drive the generation and emit the typed event
sequence.

The submitted to working transition doubles as the gate against two
producers racing on the same task: the loser observes InvalidTransition.
*/
func (manager *TaskManager) StreamTask(ctx context.Context, id string) (sse.Producer, *errors.TaskError) {
	task, taskErr := manager.store.Get(ctx, id)
	if taskErr != nil {
		return nil, taskErr
	}

	if task.Status.Terminal() {
		return nil, errors.ErrTerminalTask.WithMessagef(
			"cannot stream %s task %s", task.Status, task.ID)
	}

	if len(task.Messages) == 0 {
		return nil, errors.ErrNotStreamable.WithMessagef(
			"task %s has no messages to process", task.ID)
	}

	if _, taskErr = manager.store.UpdateStatus(ctx, id, a2a.TaskStateWorking); taskErr != nil {
		return nil, taskErr
	}

	return func(ctx context.Context, events chan<- sse.Event) {
		defer close(events)
		manager.produce(ctx, id, events)
	}, nil
}

// produce runs one generation and emits started, chunks and exactly one
// terminal event.  Subscriber disconnect cancels ctx: generation stops,
// the task is canceled through the normal state-machine path and nothing
// further is emitted.
func (manager *TaskManager) produce(ctx context.Context, id string, events chan<- sse.Event) {
	task, taskErr := manager.store.Get(ctx, id)
	if taskErr != nil {
		send(ctx, events, sse.Event{Type: sse.EventError, Data: sse.ErrorData{Error: taskErr.Error()}})
		return
	}

	send(ctx, events, sse.Event{Type: sse.EventStarted, Data: sse.StartedData{
		TaskID:    task.ID,
		Timestamp: task.UpdatedAt,
	}})

	seq := 0
	onDelta := func(delta string) {
		send(ctx, events, sse.Event{Type: sse.EventChunk, Data: sse.ChunkData{
			Content: delta,
			Seq:     seq,
		}})
		seq++
	}

	text, err := manager.backend.Stream(ctx, task.Messages, onDelta)

	if ctx.Err() != nil {
		// Subscriber went away mid-generation.
		if _, cancelErr := manager.store.Cancel(context.Background(), id); cancelErr != nil {
			log.Warn("failed to cancel abandoned task", "task", id, "error", cancelErr)
		}
		return
	}

	if err != nil {
		log.Error("backend stream failed", "task", id, "error", err)
		if _, failErr := manager.store.Fail(context.Background(), id, err.Error()); failErr != nil {
			log.Error("failed to mark task failed", "task", id, "error", failErr)
		}
		send(ctx, events, sse.Event{Type: sse.EventError, Data: sse.ErrorData{Error: err.Error()}})
		return
	}

	if _, taskErr = manager.store.Complete(context.Background(), id, *a2a.NewTextMessage(a2a.RoleAgent, text)); taskErr != nil {
		send(ctx, events, sse.Event{Type: sse.EventError, Data: sse.ErrorData{Error: taskErr.Error()}})
		return
	}

	send(ctx, events, sse.Event{Type: sse.EventCompleted, Data: sse.CompletedData{
		TaskID: id,
		Result: text,
	}})
}

// send pushes an event unless the subscription is already gone.
func send(ctx context.Context, events chan<- sse.Event, evt sse.Event) {
	select {
	case events <- evt:
	case <-ctx.Done():
	}
}
