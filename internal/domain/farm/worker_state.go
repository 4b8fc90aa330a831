package farm

import "fmt"

// WorkerState is the dispatcher's view of one worker during a run.
type WorkerState string

const (
	// WorkerAwaitingFirstAssignment means the worker has not been sent anything.
	WorkerAwaitingFirstAssignment WorkerState = "AWAITING_FIRST_ASSIGNMENT"

	// WorkerBusy means exactly one task is in flight to the worker.
	WorkerBusy WorkerState = "BUSY"

	// WorkerResultReady means the worker's result has been received and it is
	// waiting for its next task or the sentinel.
	WorkerResultReady WorkerState = "RESULT_READY"

	// WorkerTerminated means the sentinel has been sent. Terminal.
	WorkerTerminated WorkerState = "TERMINATED"
)

// String returns the string representation of the WorkerState.
func (s WorkerState) String() string { return string(s) }

func (s WorkerState) isValidTransition(target WorkerState) bool {
	switch s {
	case WorkerAwaitingFirstAssignment:
		// A worker that never got an item goes straight to the sentinel.
		return target == WorkerBusy || target == WorkerTerminated
	case WorkerBusy:
		return target == WorkerResultReady
	case WorkerResultReady:
		return target == WorkerBusy || target == WorkerTerminated
	default:
		return false
	}
}

// WorkerStates tracks the state of every worker for one run. It belongs to the
// dispatcher's control loop.
type WorkerStates struct {
	states map[WorkerID]WorkerState
}

// NewWorkerStates starts every id in WorkerAwaitingFirstAssignment.
func NewWorkerStates(ids []WorkerID) *WorkerStates {
	m := make(map[WorkerID]WorkerState, len(ids))
	for _, id := range ids {
		m[id] = WorkerAwaitingFirstAssignment
	}
	return &WorkerStates{states: m}
}

// Get returns the current state of id.
func (w *WorkerStates) Get(id WorkerID) (WorkerState, bool) {
	s, ok := w.states[id]
	return s, ok
}

// Transition moves id to target, failing with ErrProtocolViolation when the
// lifecycle does not allow it.
func (w *WorkerStates) Transition(id WorkerID, target WorkerState) error {
	cur, ok := w.states[id]
	if !ok {
		return fmt.Errorf("%w: unknown worker %d", ErrProtocolViolation, id)
	}
	if !cur.isValidTransition(target) {
		return fmt.Errorf("%w: worker %d cannot move from %s to %s", ErrProtocolViolation, id, cur, target)
	}
	w.states[id] = target
	return nil
}

// InFlight returns how many workers currently have a task outstanding.
func (w *WorkerStates) InFlight() int {
	n := 0
	for _, s := range w.states {
		if s == WorkerBusy {
			n++
		}
	}
	return n
}
