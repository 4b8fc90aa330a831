package farm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerStatesLifecycle(t *testing.T) {
	t.Parallel()

	ws := NewWorkerStates([]WorkerID{1, 2})

	s, ok := ws.Get(1)
	require.True(t, ok)
	assert.Equal(t, WorkerAwaitingFirstAssignment, s)

	require.NoError(t, ws.Transition(1, WorkerBusy))
	assert.Equal(t, 1, ws.InFlight())

	require.NoError(t, ws.Transition(1, WorkerResultReady))
	require.NoError(t, ws.Transition(1, WorkerBusy))
	require.NoError(t, ws.Transition(1, WorkerResultReady))
	require.NoError(t, ws.Transition(1, WorkerTerminated))
	assert.Zero(t, ws.InFlight())

	// A worker that never received a task can be terminated directly.
	require.NoError(t, ws.Transition(2, WorkerTerminated))
}

func TestWorkerStatesRejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  []WorkerState
		target WorkerState
	}{
		{name: "result before any task", target: WorkerResultReady},
		{name: "second task while busy", setup: []WorkerState{WorkerBusy}, target: WorkerBusy},
		{name: "terminate while busy", setup: []WorkerState{WorkerBusy}, target: WorkerTerminated},
		{name: "task after terminate", setup: []WorkerState{WorkerTerminated}, target: WorkerBusy},
		{name: "second sentinel", setup: []WorkerState{WorkerTerminated}, target: WorkerTerminated},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ws := NewWorkerStates([]WorkerID{1})
			for _, s := range tt.setup {
				require.NoError(t, ws.Transition(1, s))
			}
			assert.ErrorIs(t, ws.Transition(1, tt.target), ErrProtocolViolation)
		})
	}
}

func TestWorkerStatesUnknownWorker(t *testing.T) {
	t.Parallel()

	ws := NewWorkerStates([]WorkerID{1})
	assert.ErrorIs(t, ws.Transition(7, WorkerBusy), ErrProtocolViolation)
}
