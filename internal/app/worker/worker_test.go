package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/taskfarm/internal/app/worker/metrics"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/memory"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

func square(_ context.Context, x float64, _ farm.WorkerID) (float64, error) { return x * x, nil }

func newTestWorker(t *testing.T, n *memory.Network, id farm.WorkerID, fn farm.WorkFunc) *Worker {
	t.Helper()
	ep, err := n.Endpoint(id)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry(), "test").ForWorker(int(id))
	return New(ep, fn, m, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func TestWorkerEvaluatesUntilSentinel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	n := memory.NewNetwork(1)
	w := newTestWorker(t, n, 1, square)

	require.NoError(t, n.Send(ctx, 1, farm.Task(2)))
	require.NoError(t, n.Send(ctx, 1, farm.Task(3)))
	require.NoError(t, n.Send(ctx, 1, farm.Terminate()))
	// Anything after the sentinel must never be consumed.
	require.NoError(t, n.Send(ctx, 1, farm.Task(4)))

	require.NoError(t, w.Run(ctx))
	assert.Equal(t, 2, w.Processed())

	for _, want := range []float64{4, 9} {
		msg, err := n.Receive(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, farm.Result(want), msg)
	}
	assert.False(t, n.Probe(1), "worker must not send after the sentinel")

	ep, err := n.Endpoint(1)
	require.NoError(t, err)
	leftover, err := ep.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, farm.Task(4), leftover)
}

func TestWorkerPassesItsIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	n := memory.NewNetwork(3)

	var seen farm.WorkerID
	w := newTestWorker(t, n, 3, func(_ context.Context, x float64, id farm.WorkerID) (float64, error) {
		seen = id
		return x, nil
	})

	require.NoError(t, n.Send(ctx, 3, farm.Task(1)))
	require.NoError(t, n.Send(ctx, 3, farm.Terminate()))
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, farm.WorkerID(3), seen)
}

func TestWorkerRejectsUnexpectedKind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	n := memory.NewNetwork(1)
	w := newTestWorker(t, n, 1, square)

	require.NoError(t, n.Send(ctx, 1, farm.Result(1)))
	err := w.Run(ctx)
	assert.ErrorIs(t, err, farm.ErrProtocolViolation)
}

func TestWorkerPropagatesWorkFuncError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	n := memory.NewNetwork(1)
	boom := errors.New("evaluation failed")
	w := newTestWorker(t, n, 1, func(context.Context, float64, farm.WorkerID) (float64, error) {
		return 0, boom
	})

	require.NoError(t, n.Send(ctx, 1, farm.Task(1)))
	err := w.Run(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, w.Processed())
}

func TestWorkerTransportFailure(t *testing.T) {
	t.Parallel()

	n := memory.NewNetwork(1)
	w := newTestWorker(t, n, 1, square)
	n.Break(1, errors.New("link down"))

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, farm.ErrTransport)
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	n := memory.NewNetwork(1)
	w := newTestWorker(t, n, 1, square)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
