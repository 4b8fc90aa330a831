// Package metrics provides the OpenTelemetry instruments recorded by the
// dispatcher.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

// Dispatch implements dispatch.Metrics.
type Dispatch struct {
	tasksSent       metric.Int64Counter
	resultsReceived metric.Int64Counter
	sentinelsSent   metric.Int64Counter
	probeMisses     metric.Int64Counter
	runDuration     metric.Float64Histogram
}

const namespace = "dispatcher"

// New creates a new Dispatch metrics instance.
func New(mp metric.MeterProvider) (*Dispatch, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	d := new(Dispatch)
	var err error

	if d.tasksSent, err = meter.Int64Counter(
		"tasks_sent_total",
		metric.WithDescription("Total number of work items sent to workers"),
	); err != nil {
		return nil, err
	}

	if d.resultsReceived, err = meter.Int64Counter(
		"results_received_total",
		metric.WithDescription("Total number of results received from workers"),
	); err != nil {
		return nil, err
	}

	if d.sentinelsSent, err = meter.Int64Counter(
		"sentinels_sent_total",
		metric.WithDescription("Total number of termination sentinels sent"),
	); err != nil {
		return nil, err
	}

	if d.probeMisses, err = meter.Int64Counter(
		"probe_misses_total",
		metric.WithDescription("Total number of probe scans that found no ready worker"),
	); err != nil {
		return nil, err
	}

	if d.runDuration, err = meter.Float64Histogram(
		"run_duration_seconds",
		metric.WithDescription("Wall-clock time of a dispatch run"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return d, nil
}

func workerAttr(id farm.WorkerID) metric.MeasurementOption {
	return metric.WithAttributes(attribute.Int("worker_id", int(id)))
}

// IncTasksSent counts one task sent to worker.
func (d *Dispatch) IncTasksSent(ctx context.Context, worker farm.WorkerID) {
	d.tasksSent.Add(ctx, 1, workerAttr(worker))
}

// IncResultsReceived counts one result received from worker.
func (d *Dispatch) IncResultsReceived(ctx context.Context, worker farm.WorkerID) {
	d.resultsReceived.Add(ctx, 1, workerAttr(worker))
}

// IncSentinelsSent counts one termination sentinel.
func (d *Dispatch) IncSentinelsSent(ctx context.Context) { d.sentinelsSent.Add(ctx, 1) }

// IncProbeMisses counts one probe scan that found nothing ready.
func (d *Dispatch) IncProbeMisses(ctx context.Context) { d.probeMisses.Add(ctx, 1) }

// ObserveRunDuration records how long a run under policy took.
func (d *Dispatch) ObserveRunDuration(ctx context.Context, policy farm.Policy, dur time.Duration) {
	d.runDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(attribute.String("policy", policy.String())))
}
