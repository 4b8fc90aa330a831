package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

var _ Dispatcher = (*StaticDispatcher)(nil)

// StaticDispatcher is the round-robin baseline. Every item is assigned before
// any result is read, so worker progress never influences placement.
type StaticDispatcher struct{ base }

// NewStaticDispatcher creates a round-robin dispatcher over transport.
func NewStaticDispatcher(
	transport farm.Transport,
	metrics Metrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *StaticDispatcher {
	return &StaticDispatcher{base{
		transport: transport,
		metrics:   metrics,
		logger:    logger.With("component", "dispatch.static"),
		tracer:    tracer,
	}}
}

// Policy returns farm.PolicyStatic.
func (s *StaticDispatcher) Policy() farm.Policy { return farm.PolicyStatic }

// Dispatch sends every item round-robin in ascending worker order, sends the
// sentinels, then collects exactly one result per item in whatever order they
// arrive. The transport must buffer, since a worker may hold several unread
// items at once.
func (s *StaticDispatcher) Dispatch(ctx context.Context, queue *farm.WorkQueue) (*farm.RunReport, error) {
	workers, err := s.workers()
	if err != nil {
		return nil, err
	}

	report := farm.NewRunReport(farm.PolicyStatic, queue.Order(), len(workers), queue.Len(), time.Now())

	ctx, span := s.startSpan(ctx, farm.PolicyStatic, len(workers), queue.Len())
	defer span.End()

	log := logger.NewLoggerContext(s.logger.With("run_id", report.RunID.String()))
	log.Info(ctx, "run started", "workers", len(workers), "items", queue.Len(), "queue_order", string(queue.Order()))

	outstanding := make(map[farm.WorkerID]int, len(workers))
	next := 0
	for !queue.Empty() {
		id := workers[next]
		if err := s.sendTask(ctx, queue, report, id); err != nil {
			return nil, fail(ctx, span, log, err)
		}
		outstanding[id]++
		next = (next + 1) % len(workers)
	}
	span.AddEvent("all tasks sent")

	for _, id := range workers {
		if err := s.sendSentinel(ctx, report, id); err != nil {
			return nil, fail(ctx, span, log, err)
		}
	}

	for n := 0; n < report.TasksSent; n++ {
		id, msg, err := s.transport.ReceiveAny(ctx)
		if err != nil {
			return nil, fail(ctx, span, log, err)
		}
		if outstanding[id] == 0 {
			err := fmt.Errorf("%w: unexpected message from worker %d with no outstanding task", farm.ErrProtocolViolation, id)
			return nil, fail(ctx, span, log, err)
		}
		if err := s.acceptResult(ctx, report, id, msg, log); err != nil {
			return nil, fail(ctx, span, log, err)
		}
		outstanding[id]--
	}

	s.finish(ctx, span, report, log)
	return report, nil
}
