package stores

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/theapemachine/agentwire/pkg/a2a"
	"github.com/theapemachine/agentwire/pkg/errors"
	"github.com/theapemachine/agentwire/pkg/notify"
)

/*
TaskStore owns the authoritative status of every task and its append-only
message log.  Implementations must serialize concurrent mutation attempts
per task while letting unrelated tasks proceed independently, and every
returned task is a consistent snapshot.
*/
type TaskStore interface {
	Create(ctx context.Context, initial *a2a.Message) (*a2a.Task, *errors.TaskError)
	Get(ctx context.Context, id string) (*a2a.Task, *errors.TaskError)
	List(ctx context.Context, state a2a.TaskState) ([]*a2a.Task, *errors.TaskError)
	UpdateStatus(ctx context.Context, id string, state a2a.TaskState) (*a2a.Task, *errors.TaskError)
	AddMessage(ctx context.Context, id string, msg a2a.Message) (*a2a.Message, bool, *errors.TaskError)
	GetMessages(ctx context.Context, id string) ([]a2a.Message, *errors.TaskError)
	GetMessage(ctx context.Context, id string, messageID string) (*a2a.Message, *errors.TaskError)
	Complete(ctx context.Context, id string, result a2a.Message) (*a2a.Task, *errors.TaskError)
	Fail(ctx context.Context, id string, reason string) (*a2a.Task, *errors.TaskError)
	Cancel(ctx context.Context, id string) (*a2a.Task, *errors.TaskError)
}

// taskEntry pairs a task with its own lock so mutation is single-writer
// per task id without a store-wide write lock on the hot path.
type taskEntry struct {
	mu   sync.Mutex
	task a2a.Task
}

/*
InMemoryTaskStore is the default TaskStore.  The store-level RWMutex only
guards map membership; all per-task work happens under the entry lock.
The observer, when set, is invoked under the entry lock after every
successful mutation so webhook events for one task are enqueued in the
order their state changes occurred.
*/
type InMemoryTaskStore struct {
	mu       sync.RWMutex
	entries  map[string]*taskEntry
	observer func(notify.Event)
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		entries: make(map[string]*taskEntry),
	}
}

/*
SetObserver registers the lifecycle event consumer.  The observer must not
block: the notification dispatcher enqueues synchronously and delivers on
its own worker.
*/
func (store *InMemoryTaskStore) SetObserver(observer func(notify.Event)) {
	store.observer = observer
}

func (store *InMemoryTaskStore) emit(task *a2a.Task, event notify.EventType, data map[string]any) {
	if store.observer == nil {
		return
	}

	store.observer(notify.Event{
		TaskID:    task.ID,
		Status:    task.Status,
		Timestamp: task.UpdatedAt,
		Event:     event,
		Data:      data,
	})
}

func (store *InMemoryTaskStore) entry(id string) (*taskEntry, *errors.TaskError) {
	store.mu.RLock()
	entry, ok := store.entries[id]
	store.mu.RUnlock()

	if !ok {
		return nil, errors.ErrTaskNotFound.WithMessagef("task not found: %s", id)
	}

	return entry, nil
}

/*
Create allocates a unique id and a task in state "submitted", optionally
seeding the message log with an initial message.  Seeding does not advance
the status: the submitted to working transition is driven by AddMessage.
*/
func (store *InMemoryTaskStore) Create(ctx context.Context, initial *a2a.Message) (*a2a.Task, *errors.TaskError) {
	now := time.Now().UTC()

	task := a2a.Task{
		ID:        uuid.New().String(),
		Status:    a2a.TaskStateSubmitted,
		Messages:  []a2a.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if initial != nil {
		seeded := *initial
		if seeded.ID == "" {
			seeded.ID = uuid.New().String()
		}
		seeded.TaskID = task.ID
		seeded.Timestamp = now
		task.Messages = append(task.Messages, seeded)
	}

	entry := &taskEntry{task: task}

	store.mu.Lock()
	store.entries[task.ID] = entry
	store.mu.Unlock()

	log.Info("task created", "task", task.ID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	store.emit(&entry.task, notify.EventCreated, nil)

	return entry.task.Clone(), nil
}

func (store *InMemoryTaskStore) Get(ctx context.Context, id string) (*a2a.Task, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.task.Clone(), nil
}

/*
List returns a snapshot of every task, optionally filtered by state.  Pass
the zero value to list everything.
*/
func (store *InMemoryTaskStore) List(ctx context.Context, state a2a.TaskState) ([]*a2a.Task, *errors.TaskError) {
	store.mu.RLock()
	entries := make([]*taskEntry, 0, len(store.entries))
	for _, entry := range store.entries {
		entries = append(entries, entry)
	}
	store.mu.RUnlock()

	tasks := make([]*a2a.Task, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if state == "" || entry.task.Status == state {
			tasks = append(tasks, entry.task.Clone())
		}
		entry.mu.Unlock()
	}

	return tasks, nil
}

/*
UpdateStatus moves a task along the legal transition graph.  Transitions
attempted from a terminal state fail with InvalidTransition and leave
updated_at untouched.
*/
func (store *InMemoryTaskStore) UpdateStatus(ctx context.Context, id string, state a2a.TaskState) (*a2a.Task, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return store.transition(entry, state, nil)
}

// transition performs the guarded state change.  Caller holds the entry
// lock.
func (store *InMemoryTaskStore) transition(entry *taskEntry, state a2a.TaskState, data map[string]any) (*a2a.Task, *errors.TaskError) {
	task := &entry.task

	if !task.Status.CanTransition(state) {
		return nil, errors.ErrInvalidTransition.WithMessagef(
			"illegal status transition: %s -> %s", task.Status, state)
	}

	task.Status = state
	task.UpdatedAt = time.Now().UTC()

	log.Info("task status updated", "task", task.ID, "state", state)

	event := notify.EventStatusChanged
	if state.Terminal() {
		event = notify.TerminalEvent(state)
	}
	store.emit(task, event, data)

	return task.Clone(), nil
}

/*
AddMessage appends a message to the task's log.  It fails with
InvalidState when the task is terminal.  The returned bool reports
whether this append drove the task from submitted into working, which is
the signal that processing should begin.
*/
func (store *InMemoryTaskStore) AddMessage(ctx context.Context, id string, msg a2a.Message) (*a2a.Message, bool, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, false, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	task := &entry.task

	if task.Status.Terminal() {
		return nil, false, errors.ErrTerminalTask.WithMessagef(
			"cannot append message to %s task %s", task.Status, task.ID)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.TaskID = task.ID

	// Timestamps are non-decreasing within one task's log even if the
	// wall clock steps backwards.
	msg.Timestamp = time.Now().UTC()
	if last := task.LastMessage(); last != nil && msg.Timestamp.Before(last.Timestamp) {
		msg.Timestamp = last.Timestamp
	}

	task.Messages = append(task.Messages, msg)
	task.UpdatedAt = msg.Timestamp

	store.emit(task, notify.EventMessageAdded, map[string]any{"message": msg})

	started := false
	if msg.Role == a2a.RoleUser && task.Status == a2a.TaskStateSubmitted {
		if _, taskErr := store.transition(entry, a2a.TaskStateWorking, nil); taskErr == nil {
			started = true
		}
	}

	stored := msg
	return &stored, started, nil
}

func (store *InMemoryTaskStore) GetMessages(ctx context.Context, id string) ([]a2a.Message, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	messages := make([]a2a.Message, len(entry.task.Messages))
	copy(messages, entry.task.Messages)

	return messages, nil
}

func (store *InMemoryTaskStore) GetMessage(ctx context.Context, id string, messageID string) (*a2a.Message, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for _, msg := range entry.task.Messages {
		if msg.ID == messageID {
			found := msg
			return &found, nil
		}
	}

	return nil, errors.ErrMessageNotFound.WithMessagef(
		"message not found: %s in task %s", messageID, id)
}

/*
Complete atomically appends the agent's final message, records it as the
task result and moves the task to completed.
*/
func (store *InMemoryTaskStore) Complete(ctx context.Context, id string, result a2a.Message) (*a2a.Task, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	task := &entry.task

	if !task.Status.CanTransition(a2a.TaskStateCompleted) {
		return nil, errors.ErrInvalidTransition.WithMessagef(
			"illegal status transition: %s -> %s", task.Status, a2a.TaskStateCompleted)
	}

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.TaskID = task.ID
	result.Role = a2a.RoleAgent
	result.Timestamp = time.Now().UTC()
	if last := task.LastMessage(); last != nil && result.Timestamp.Before(last.Timestamp) {
		result.Timestamp = last.Timestamp
	}

	task.Messages = append(task.Messages, result)
	stored := result
	task.Result = &stored

	return store.transition(entry, a2a.TaskStateCompleted, map[string]any{
		"result": result.String(),
	})
}

/*
Fail moves the task to failed, recording the failure reason on the
terminal event.
*/
func (store *InMemoryTaskStore) Fail(ctx context.Context, id string, reason string) (*a2a.Task, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return store.transition(entry, a2a.TaskStateFailed, map[string]any{
		"error": reason,
	})
}

/*
Cancel moves the task to canceled.  Only submitted and working tasks can
be canceled.
*/
func (store *InMemoryTaskStore) Cancel(ctx context.Context, id string) (*a2a.Task, *errors.TaskError) {
	entry, taskErr := store.entry(id)
	if taskErr != nil {
		return nil, taskErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return store.transition(entry, a2a.TaskStateCanceled, nil)
}
