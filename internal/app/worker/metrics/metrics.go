// Package metrics provides the Prometheus collectors exposed by worker
// processes.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the worker metric vectors. One Collector may serve several
// in-process workers; each gets its own labelled view via ForWorker.
type Collector struct {
	tasksReceived   *prometheus.CounterVec
	tasksProcessed  *prometheus.CounterVec
	activeTasks     *prometheus.GaugeVec
	taskProcessTime *prometheus.HistogramVec
}

// New creates a Collector registered with reg.
func New(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	labels := []string{"worker_id"}

	return &Collector{
		tasksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_received_total",
			Help:      "Total number of tasks received from the dispatcher",
		}, labels),
		tasksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Total number of tasks evaluated successfully",
		}, labels),
		activeTasks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tasks",
			Help:      "Number of tasks currently being evaluated",
		}, labels),
		taskProcessTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_process_time_seconds",
			Help:      "Time taken to evaluate a task",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, labels),
	}
}

// Worker is the per-worker view of a Collector. It implements worker.Metrics.
type Worker struct {
	tasksReceived   prometheus.Counter
	tasksProcessed  prometheus.Counter
	activeTasks     prometheus.Gauge
	taskProcessTime prometheus.Observer
}

// ForWorker returns the metrics bound to worker id.
func (c *Collector) ForWorker(id int) *Worker {
	l := strconv.Itoa(id)
	return &Worker{
		tasksReceived:   c.tasksReceived.WithLabelValues(l),
		tasksProcessed:  c.tasksProcessed.WithLabelValues(l),
		activeTasks:     c.activeTasks.WithLabelValues(l),
		taskProcessTime: c.taskProcessTime.WithLabelValues(l),
	}
}

// IncTasksReceived counts one task received.
func (w *Worker) IncTasksReceived() { w.tasksReceived.Inc() }

// TrackTask tracks the duration of f and counts it as processed on success.
func (w *Worker) TrackTask(f func() error) error {
	w.activeTasks.Inc()
	defer w.activeTasks.Dec()

	start := time.Now()
	err := f()
	w.taskProcessTime.Observe(time.Since(start).Seconds())
	if err == nil {
		w.tasksProcessed.Inc()
	}
	return err
}
