package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWorkerMetricsPerWorker(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(reg, "taskfarm_worker")

	w1 := c.ForWorker(1)
	w2 := c.ForWorker(2)

	w1.IncTasksReceived()
	assert.NoError(t, w1.TrackTask(func() error { return nil }))
	assert.Error(t, w2.TrackTask(func() error { return errors.New("boom") }))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksReceived.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksProcessed.WithLabelValues("1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.tasksProcessed.WithLabelValues("2")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeTasks.WithLabelValues("1")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.taskProcessTime))
}
