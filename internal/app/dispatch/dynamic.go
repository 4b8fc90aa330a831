package dispatch

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

var _ Dispatcher = (*DynamicDispatcher)(nil)

// DynamicDispatcher is the greedy policy. It keeps at most one task in flight
// per worker and hands the next item to whichever worker reports back first,
// breaking ties by lowest worker id.
type DynamicDispatcher struct{ base }

// NewDynamicDispatcher creates a greedy dispatcher over transport.
func NewDynamicDispatcher(
	transport farm.Transport,
	metrics Metrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *DynamicDispatcher {
	return &DynamicDispatcher{base{
		transport: transport,
		metrics:   metrics,
		logger:    logger.With("component", "dispatch.dynamic"),
		tracer:    tracer,
	}}
}

// Policy returns farm.PolicyDynamic.
func (d *DynamicDispatcher) Policy() farm.Policy { return farm.PolicyDynamic }

// Dispatch runs the greedy schedule: one item per worker up front, then
// reassignment to the first worker with a result ready until the queue is
// empty, then a drain of everything still in flight, then the sentinels.
func (d *DynamicDispatcher) Dispatch(ctx context.Context, queue *farm.WorkQueue) (*farm.RunReport, error) {
	workers, err := d.workers()
	if err != nil {
		return nil, err
	}

	report := farm.NewRunReport(farm.PolicyDynamic, queue.Order(), len(workers), queue.Len(), time.Now())
	states := farm.NewWorkerStates(workers)

	ctx, span := d.startSpan(ctx, farm.PolicyDynamic, len(workers), queue.Len())
	defer span.End()

	log := logger.NewLoggerContext(d.logger.With("run_id", report.RunID.String()))
	log.Info(ctx, "run started", "workers", len(workers), "items", queue.Len(), "queue_order", string(queue.Order()))

	for _, id := range workers {
		if queue.Empty() {
			break
		}
		if err := d.assign(ctx, queue, report, states, id); err != nil {
			return nil, fail(ctx, span, log, err)
		}
	}
	span.AddEvent("initial fan-out complete")

	for !queue.Empty() {
		id, err := d.firstReady(ctx, workers)
		if err != nil {
			return nil, fail(ctx, span, log, err)
		}

		msg, err := d.transport.Receive(ctx, id)
		if err != nil {
			return nil, fail(ctx, span, log, err)
		}
		if err := d.collect(ctx, report, states, id, msg, log); err != nil {
			return nil, fail(ctx, span, log, err)
		}

		if err := d.assign(ctx, queue, report, states, id); err != nil {
			return nil, fail(ctx, span, log, err)
		}
	}
	span.AddEvent("queue drained")

	for n := states.InFlight(); n > 0; n-- {
		id, msg, err := d.transport.ReceiveAny(ctx)
		if err != nil {
			return nil, fail(ctx, span, log, err)
		}
		if err := d.collect(ctx, report, states, id, msg, log); err != nil {
			return nil, fail(ctx, span, log, err)
		}
	}

	for _, id := range workers {
		if err := states.Transition(id, farm.WorkerTerminated); err != nil {
			return nil, fail(ctx, span, log, err)
		}
		if err := d.sendSentinel(ctx, report, id); err != nil {
			return nil, fail(ctx, span, log, err)
		}
	}

	d.finish(ctx, span, report, log)
	return report, nil
}

func (d *DynamicDispatcher) assign(
	ctx context.Context,
	queue *farm.WorkQueue,
	report *farm.RunReport,
	states *farm.WorkerStates,
	id farm.WorkerID,
) error {
	if err := states.Transition(id, farm.WorkerBusy); err != nil {
		return err
	}
	return d.sendTask(ctx, queue, report, id)
}

func (d *DynamicDispatcher) collect(
	ctx context.Context,
	report *farm.RunReport,
	states *farm.WorkerStates,
	id farm.WorkerID,
	msg farm.Message,
	log *logger.LoggerContext,
) error {
	if msg.Kind == farm.KindResult {
		if err := states.Transition(id, farm.WorkerResultReady); err != nil {
			return err
		}
	}
	return d.acceptResult(ctx, report, id, msg, log)
}

// firstReady returns the lowest worker id with a message waiting. When the
// transport can block on "any channel ready" it does so between scans;
// otherwise it spins on Probe.
func (d *DynamicDispatcher) firstReady(ctx context.Context, workers []farm.WorkerID) (farm.WorkerID, error) {
	waiter, canWait := d.transport.(farm.ReadyWaiter)
	for {
		for _, id := range workers {
			if d.transport.Probe(id) {
				return id, nil
			}
		}
		d.metrics.IncProbeMisses(ctx)

		if err := ctx.Err(); err != nil {
			return farm.DispatcherID, err
		}
		if canWait {
			if err := waiter.WaitReady(ctx); err != nil {
				return farm.DispatcherID, err
			}
			continue
		}
		runtime.Gosched()
	}
}
