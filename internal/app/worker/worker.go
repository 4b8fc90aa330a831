// Package worker implements the worker side of a farm run: receive one task,
// evaluate it, send the result back, until the dispatcher says stop.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

// Metrics defines metrics operations needed by a worker.
type Metrics interface {
	IncTasksReceived()
	TrackTask(f func() error) error
}

// Worker runs the task loop for one worker identity. It never initiates
// communication; it only answers what the dispatcher sends.
type Worker struct {
	endpoint farm.Endpoint
	fn       farm.WorkFunc
	metrics  Metrics

	processed atomic.Int64

	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a Worker that evaluates fn for every task arriving on endpoint.
func New(
	endpoint farm.Endpoint,
	fn farm.WorkFunc,
	metrics Metrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Worker {
	return &Worker{
		endpoint: endpoint,
		fn:       fn,
		metrics:  metrics,
		logger:   logger.With("component", "worker", "worker_id", int(endpoint.ID())),
		tracer:   tracer,
	}
}

// Processed returns how many tasks this worker has evaluated.
func (w *Worker) Processed() int { return int(w.processed.Load()) }

// Run loops until the termination sentinel arrives. After the sentinel the
// worker performs no further receive or send.
func (w *Worker) Run(ctx context.Context) error {
	id := w.endpoint.ID()
	w.logger.Info(ctx, "worker started")

	for {
		msg, err := w.endpoint.Receive(ctx)
		if err != nil {
			return fmt.Errorf("worker[%d]: receiving: %w", id, err)
		}

		switch msg.Kind {
		case farm.KindTerminate:
			w.logger.Info(ctx, "worker terminated", "processed", w.Processed())
			return nil

		case farm.KindTask:
			w.metrics.IncTasksReceived()
			result, err := w.handleTask(ctx, msg.Value)
			if err != nil {
				return fmt.Errorf("worker[%d]: evaluating %g: %w", id, msg.Value, err)
			}
			if err := w.endpoint.Send(ctx, farm.Result(result)); err != nil {
				return fmt.Errorf("worker[%d]: sending result: %w", id, err)
			}

		default:
			return fmt.Errorf("worker[%d]: %w: unexpected %s from dispatcher", id, farm.ErrProtocolViolation, msg)
		}
	}
}

func (w *Worker) handleTask(ctx context.Context, x float64) (float64, error) {
	ctx, span := w.tracer.Start(ctx, "worker.evaluate",
		trace.WithAttributes(
			attribute.Int("worker_id", int(w.endpoint.ID())),
			attribute.Float64("value", x),
		))
	defer span.End()

	var result float64
	err := w.metrics.TrackTask(func() error {
		var err error
		result, err = w.fn(ctx, x, w.endpoint.ID())
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	w.processed.Add(1)
	w.logger.Debug(ctx, "task evaluated", "value", x, "result", result)
	return result, nil
}
