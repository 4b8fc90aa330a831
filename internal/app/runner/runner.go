// Package runner executes whole farm runs inside one process: an in-memory
// network, one goroutine per worker, and the dispatcher on the caller's
// goroutine. Finished reports are saved to a run repository.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/taskfarm/internal/app/dispatch"
	"github.com/ahrav/taskfarm/internal/app/worker"
	wmetrics "github.com/ahrav/taskfarm/internal/app/worker/metrics"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/memory"
	"github.com/ahrav/taskfarm/internal/infra/transport/throttle"
	"github.com/ahrav/taskfarm/pkg/common/logger"
	"github.com/ahrav/taskfarm/pkg/common/otel"
)

// Options describes one run.
type Options struct {
	Workers int
	Policy  farm.Policy
	Order   farm.QueueOrder
	Items   []float64
	Work    farm.WorkFunc

	// SendRate caps dispatcher sends per second; zero is unlimited.
	SendRate  float64
	SendBurst int
}

// Runner runs farms in process.
type Runner struct {
	store           farm.RunRepository
	dispatchMetrics dispatch.Metrics
	workerMetrics   *wmetrics.Collector

	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a Runner that saves every finished run to store.
func New(
	store farm.RunRepository,
	dispatchMetrics dispatch.Metrics,
	workerMetrics *wmetrics.Collector,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Runner {
	return &Runner{
		store:           store,
		dispatchMetrics: dispatchMetrics,
		workerMetrics:   workerMetrics,
		logger:          logger.With("component", "runner"),
		tracer:          tracer,
	}
}

// Run executes one farm run and saves its report. A failing worker cancels the
// run; its error is returned in preference to the dispatcher's.
func (r *Runner) Run(ctx context.Context, opts Options) (*farm.RunReport, error) {
	ctx, span := otel.AddSpan(ctx, r.tracer, "runner.run",
		attribute.String("policy", opts.Policy.String()),
		attribute.Int("workers", opts.Workers),
		attribute.Int("items", len(opts.Items)),
	)
	defer span.End()

	network := memory.NewNetwork(opts.Workers)
	defer network.Close()

	d, err := dispatch.New(
		opts.Policy,
		throttle.Wrap(network, opts.SendRate, opts.SendBurst),
		r.dispatchMetrics,
		r.logger,
		r.tracer,
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range network.Workers() {
		ep, err := network.Endpoint(id)
		if err != nil {
			return nil, err
		}
		w := worker.New(ep, opts.Work, r.workerMetrics.ForWorker(int(id)), r.logger, r.tracer)
		g.Go(func() error { return w.Run(gctx) })
	}

	report, dispatchErr := d.Dispatch(gctx, farm.NewWorkQueue(opts.Items, opts.Order))
	if dispatchErr != nil {
		cancel()
	}
	workerErr := g.Wait()

	switch {
	case workerErr != nil && !errors.Is(workerErr, context.Canceled):
		span.RecordError(workerErr)
		return nil, fmt.Errorf("worker failed: %w", workerErr)
	case dispatchErr != nil:
		span.RecordError(dispatchErr)
		return nil, dispatchErr
	case workerErr != nil:
		return nil, workerErr
	}

	if err := r.store.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("saving run %s: %w", report.RunID, err)
	}
	r.logger.Info(ctx, "run saved", "run_id", report.RunID.String(), "policy", report.Policy.String())
	return report, nil
}

// Comparison holds one run of each policy over identical input.
type Comparison struct {
	Dynamic *farm.RunReport `yaml:"dynamic"`
	Static  *farm.RunReport `yaml:"static"`
}

// Speedup is static elapsed time over dynamic elapsed time.
func (c *Comparison) Speedup() float64 {
	if c.Dynamic.Elapsed <= 0 {
		return 0
	}
	return float64(c.Static.Elapsed) / float64(c.Dynamic.Elapsed)
}

// Summary renders both runs on one line each.
func (c *Comparison) Summary() string {
	line := func(r *farm.RunReport) string {
		return fmt.Sprintf("%-8s elapsed=%-10s assignments=%v", r.Policy, r.Elapsed.Round(time.Millisecond), r.Assignments)
	}
	return fmt.Sprintf("%s\n%s\nspeedup=%.2fx", line(c.Dynamic), line(c.Static), c.Speedup())
}

// Compare runs the dynamic policy, then the static one, on the same options.
func (r *Runner) Compare(ctx context.Context, opts Options) (*Comparison, error) {
	var cmp Comparison

	opts.Policy = farm.PolicyDynamic
	dynamic, err := r.Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dynamic run: %w", err)
	}
	cmp.Dynamic = dynamic

	opts.Policy = farm.PolicyStatic
	static, err := r.Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("static run: %w", err)
	}
	cmp.Static = static

	return &cmp, nil
}
