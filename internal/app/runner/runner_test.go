package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	dmetrics "github.com/ahrav/taskfarm/internal/app/dispatch/metrics"
	wmetrics "github.com/ahrav/taskfarm/internal/app/worker/metrics"
	"github.com/ahrav/taskfarm/internal/app/workload"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/storage/farm/memory"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

func newTestRunner(t *testing.T) (*Runner, *memory.RunStore) {
	t.Helper()
	dm, err := dmetrics.New(noopmetric.NewMeterProvider())
	require.NoError(t, err)
	store := memory.NewRunStore()
	r := New(store, dm, wmetrics.New(prometheus.NewRegistry(), "test"), logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	return r, store
}

func TestRunSavesCompleteReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, store := newTestRunner(t)

	items, err := farm.Generate(0, 20, 1)
	require.NoError(t, err)

	report, err := r.Run(ctx, Options{
		Workers: 3,
		Policy:  farm.PolicyDynamic,
		Order:   farm.QueueOrderLIFO,
		Items:   items,
		Work:    workload.Square,
	})
	require.NoError(t, err)
	assert.True(t, report.Complete())

	saved, err := store.Get(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Results, saved.Results)
}

func TestRunThrottled(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t)
	start := time.Now()
	report, err := r.Run(context.Background(), Options{
		Workers:   2,
		Policy:    farm.PolicyStatic,
		Items:     []float64{1, 2, 3, 4},
		Work:      workload.Square,
		SendRate:  100,
		SendBurst: 1,
	})
	require.NoError(t, err)
	assert.True(t, report.Complete())
	// Four tasks and two sentinels, one burst token then five 10ms waits.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRunPropagatesWorkerFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("evaluation failed")
	r, store := newTestRunner(t)

	_, err := r.Run(context.Background(), Options{
		Workers: 2,
		Policy:  farm.PolicyDynamic,
		Items:   []float64{1, 2, 3},
		Work: func(_ context.Context, x float64, _ farm.WorkerID) (float64, error) {
			if x == 2 {
				return 0, boom
			}
			return x, nil
		},
	})
	assert.ErrorIs(t, err, boom)

	runs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunRejectsLoneDispatcher(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t)
	_, err := r.Run(context.Background(), Options{Policy: farm.PolicyDynamic, Items: []float64{1}, Work: workload.Square})
	assert.ErrorIs(t, err, farm.ErrPrecondition)
}

func TestCompareFavorsDynamicWithASlowWorker(t *testing.T) {
	t.Parallel()

	r, store := newTestRunner(t)
	work, err := workload.New(workload.Config{
		Profile:   workload.ProfileFirstSlow,
		SlowDelay: 100 * time.Millisecond,
		FastDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	items, err := farm.Generate(0, 11, 1)
	require.NoError(t, err)

	cmp, err := r.Compare(context.Background(), Options{
		Workers: 3,
		Order:   farm.QueueOrderLIFO,
		Items:   items,
		Work:    work,
	})
	require.NoError(t, err)

	assert.Equal(t, farm.PolicyDynamic, cmp.Dynamic.Policy)
	assert.Equal(t, farm.PolicyStatic, cmp.Static.Policy)
	// Static gives the slow worker a third of the items; dynamic gives it far fewer.
	assert.Equal(t, 4, cmp.Static.Assignments[1])
	assert.Less(t, cmp.Dynamic.Assignments[1], cmp.Static.Assignments[1])
	assert.Greater(t, cmp.Speedup(), 1.0)
	assert.Contains(t, cmp.Summary(), "speedup=")

	runs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
