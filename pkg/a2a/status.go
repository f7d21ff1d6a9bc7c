package a2a

/*
TaskState enumerates the mutually exclusive states a task may be in.  The
zero value is "unknown".
*/
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateInputReq  TaskState = "input-required"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateUnknown   TaskState = "unknown"
)

// transitions encodes the legal lifecycle graph.  Terminal states have no
// entry, so any transition attempted from them is rejected.
var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted: {TaskStateWorking, TaskStateCanceled},
	TaskStateWorking:   {TaskStateCompleted, TaskStateFailed, TaskStateInputReq, TaskStateCanceled},
	TaskStateInputReq:  {TaskStateWorking},
}

/*
Terminal reports whether no further transition is legal from this state.
*/
func (state TaskState) Terminal() bool {
	switch state {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

/*
CanTransition reports whether moving from the receiver state to the target
state is legal.
*/
func (state TaskState) CanTransition(to TaskState) bool {
	for _, next := range transitions[state] {
		if next == to {
			return true
		}
	}
	return false
}
