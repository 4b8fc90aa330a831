package farm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, q *WorkQueue) []float64 {
	t.Helper()
	var out []float64
	for !q.Empty() {
		v, err := q.Pop()
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestWorkQueueLIFOConsumesFromTail(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue([]float64{0, 1, 2, 3}, QueueOrderLIFO)
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []float64{3, 2, 1, 0}, drain(t, q))
	assert.True(t, q.Empty())
}

func TestWorkQueueFIFOConsumesFromHead(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue([]float64{0, 1, 2, 3}, QueueOrderFIFO)
	assert.Equal(t, []float64{0, 1, 2, 3}, drain(t, q))
}

func TestWorkQueueDefaultsToLIFO(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue([]float64{5, 6}, "")
	assert.Equal(t, QueueOrderLIFO, q.Order())
	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
}

func TestWorkQueueUnderflowIsProtocolViolation(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue(nil, QueueOrderFIFO)
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestWorkQueueCopiesInput(t *testing.T) {
	t.Parallel()

	items := []float64{1, 2}
	q := NewWorkQueue(items, QueueOrderLIFO)
	items[1] = 99

	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestParseQueueOrder(t *testing.T) {
	t.Parallel()

	o, err := ParseQueueOrder("")
	require.NoError(t, err)
	assert.Equal(t, QueueOrderLIFO, o)

	o, err = ParseQueueOrder("FIFO")
	require.NoError(t, err)
	assert.Equal(t, QueueOrderFIFO, o)

	_, err = ParseQueueOrder("random")
	assert.Error(t, err)
}
