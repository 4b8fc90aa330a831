// Package dispatch implements the dispatcher side of a farm run: it owns the
// work queue, decides which worker gets each item, collects results, and
// terminates every worker exactly once.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

// Dispatcher drives one run over a work queue.
type Dispatcher interface {
	// Policy names the scheduling strategy.
	Policy() farm.Policy

	// Dispatch drains queue across the transport's workers and returns the
	// run report once every worker has been sent the termination sentinel.
	Dispatch(ctx context.Context, queue *farm.WorkQueue) (*farm.RunReport, error)
}

// Metrics defines the metrics a dispatcher records.
type Metrics interface {
	IncTasksSent(ctx context.Context, worker farm.WorkerID)
	IncResultsReceived(ctx context.Context, worker farm.WorkerID)
	IncSentinelsSent(ctx context.Context)
	IncProbeMisses(ctx context.Context)
	ObserveRunDuration(ctx context.Context, policy farm.Policy, d time.Duration)
}

// New returns the dispatcher for policy.
func New(
	policy farm.Policy,
	transport farm.Transport,
	metrics Metrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) (Dispatcher, error) {
	switch policy {
	case farm.PolicyDynamic:
		return NewDynamicDispatcher(transport, metrics, logger, tracer), nil
	case farm.PolicyStatic:
		return NewStaticDispatcher(transport, metrics, logger, tracer), nil
	default:
		return nil, fmt.Errorf("%w: %q", farm.ErrUnknownPolicy, policy)
	}
}

// base holds what both policies share: the transport and ambient plumbing.
type base struct {
	transport farm.Transport
	metrics   Metrics
	logger    *logger.Logger
	tracer    trace.Tracer
}

// workers returns the ascending worker ids, failing before any messaging if
// the dispatcher would be alone.
func (b *base) workers() ([]farm.WorkerID, error) {
	ids := b.transport.Workers()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: need at least 2 processes, have 1", farm.ErrPrecondition)
	}
	return ids, nil
}

func (b *base) startSpan(ctx context.Context, policy farm.Policy, workers, items int) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "dispatch.run",
		trace.WithAttributes(
			attribute.String("policy", policy.String()),
			attribute.Int("workers", workers),
			attribute.Int("items", items),
		))
}

// sendTask pops the next item and sends it to id.
func (b *base) sendTask(
	ctx context.Context,
	queue *farm.WorkQueue,
	report *farm.RunReport,
	id farm.WorkerID,
) error {
	v, err := queue.Pop()
	if err != nil {
		return err
	}
	if err := b.transport.Send(ctx, id, farm.Task(v)); err != nil {
		return fmt.Errorf("sending task to worker %d: %w", id, err)
	}
	report.RecordAssignment(id)
	b.metrics.IncTasksSent(ctx, id)
	return nil
}

// sendSentinel terminates id.
func (b *base) sendSentinel(ctx context.Context, report *farm.RunReport, id farm.WorkerID) error {
	if err := b.transport.Send(ctx, id, farm.Terminate()); err != nil {
		return fmt.Errorf("sending sentinel to worker %d: %w", id, err)
	}
	report.RecordSentinel()
	b.metrics.IncSentinelsSent(ctx)
	return nil
}

// acceptResult validates that msg is a result and records it.
func (b *base) acceptResult(
	ctx context.Context,
	report *farm.RunReport,
	id farm.WorkerID,
	msg farm.Message,
	log *logger.LoggerContext,
) error {
	if msg.Kind != farm.KindResult {
		return fmt.Errorf("%w: expected result from worker %d, got %s", farm.ErrProtocolViolation, id, msg)
	}
	report.RecordResult(msg.Value)
	b.metrics.IncResultsReceived(ctx, id)
	log.Debug(ctx, "result received", "worker_id", int(id), "results", len(report.Results))
	return nil
}

func (b *base) finish(ctx context.Context, span trace.Span, report *farm.RunReport, log *logger.LoggerContext) {
	report.Elapsed = time.Since(report.StartedAt)
	b.metrics.ObserveRunDuration(ctx, report.Policy, report.Elapsed)
	span.SetAttributes(
		attribute.Int("results", len(report.Results)),
		attribute.Int64("elapsed_ms", report.Elapsed.Milliseconds()),
	)
	span.SetStatus(codes.Ok, "run complete")
	log.Info(ctx, "run complete",
		"results", len(report.Results),
		"tasks_sent", report.TasksSent,
		"sentinels_sent", report.SentinelsSent,
		"elapsed", report.Elapsed.String(),
	)
}

func fail(ctx context.Context, span trace.Span, log *logger.LoggerContext, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error(ctx, "run aborted", "error", err)
	return err
}
