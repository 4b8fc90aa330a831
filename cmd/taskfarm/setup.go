package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/taskfarm/internal/api/runs"
	dmetrics "github.com/ahrav/taskfarm/internal/app/dispatch/metrics"
	wmetrics "github.com/ahrav/taskfarm/internal/app/worker/metrics"
	"github.com/ahrav/taskfarm/internal/app/workload"
	"github.com/ahrav/taskfarm/internal/config"
	"github.com/ahrav/taskfarm/internal/config/envloader"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/eventbus"
	"github.com/ahrav/taskfarm/internal/infra/eventbus/kafka"
	"github.com/ahrav/taskfarm/internal/infra/storage"
	memstore "github.com/ahrav/taskfarm/internal/infra/storage/farm/memory"
	pgstore "github.com/ahrav/taskfarm/internal/infra/storage/farm/postgres"
	"github.com/ahrav/taskfarm/pkg/common"
	"github.com/ahrav/taskfarm/pkg/common/logger"
	"github.com/ahrav/taskfarm/pkg/common/otel"
)

// metricsNamespace prefixes every Prometheus series.
const metricsNamespace = "taskfarm"

// app is the ambient plumbing shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	tp     trace.TracerProvider
	tracer trace.Tracer

	registry *prometheus.Registry
	ready    atomic.Bool
	closers  []func(context.Context)
}

// setup loads configuration and builds logging and telemetry for role.
func setup(ctx context.Context, cmd *cobra.Command, role string) (*app, error) {
	_, _ = maxprocs.Set()

	loader := envloader.New(envloader.WithFile(cfgFile))
	for name, key := range flagKeys {
		if f := lookupFlag(cmd, name); f != nil && f.Changed {
			if err := loader.Viper().BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	cfg, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	svcName := fmt.Sprintf("%s-%s", cfg.Telemetry.ServiceName, role)

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}
	metadata := map[string]string{
		"hostname": hostname,
		"app":      role,
	}
	log := logger.NewWithMetadata(os.Stdout, logger.ParseLevel(cfg.LogLevel), svcName, otel.GetTraceID, logEvents, metadata)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{cfg: cfg, log: log, tp: noop.NewTracerProvider(), registry: registry}

	if cfg.Telemetry.Enabled {
		tp, teardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      svcName,
			ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
			ExcludedRoutes: map[string]struct{}{
				"/health":    {},
				"/readiness": {},
			},
			Probability: cfg.Telemetry.SamplingRatio,
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"host.name":        hostname,
				"taskfarm.role":    role,
			},
			InsecureExporter: true,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.tp = tp
		a.closers = append(a.closers, teardown)
		a.log = logger.WithOTel(log, svcName)
	}
	a.tracer = a.tp.Tracer(svcName)

	return a, nil
}

// close runs the registered teardown functions in reverse order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// openStore returns the configured run repository. When run events are
// enabled, every saved run is also published.
func (a *app) openStore(ctx context.Context) (farm.RunRepository, error) {
	var repo farm.RunRepository
	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := storage.NewPool(ctx, a.cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		if err := storage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { pool.Close() })
		a.log.Info(ctx, "migrations applied")
		repo = pgstore.NewRunStore(pool, a.tracer)
	default:
		repo = memstore.NewRunStore()
	}

	if a.cfg.Events.Driver != config.EventsKafka {
		return repo, nil
	}
	ev := a.cfg.Events
	producer, err := kafka.ConnectProducer(ctx, &kafka.ClientConfig{
		Brokers:  ev.Brokers,
		ClientID: ev.ClientID,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("connecting run event publisher: %w", err)
	}
	pub := kafka.NewPublisher(producer, ev.Topic, a.log, kafka.NewMetrics(a.registry, metricsNamespace), a.tracer)
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := pub.Close(); err != nil {
			a.log.Error(ctx, "closing kafka producer", "error", err)
		}
	})
	a.log.Info(ctx, "publishing run events", "topic", ev.Topic, "brokers", ev.Brokers)
	return eventbus.NewPublishingRepository(repo, pub, a.log), nil
}

// dispatchMetrics builds the dispatcher instruments on the global meter
// provider, which is a no-op unless telemetry is enabled.
func (a *app) dispatchMetrics() (*dmetrics.Dispatch, error) {
	return dmetrics.New(otel.GetMeterProvider())
}

func (a *app) workerMetrics() *wmetrics.Collector {
	return wmetrics.New(a.registry, metricsNamespace)
}

// serveAmbient starts the metrics and debug servers when configured. repo, if
// non-nil, is served under /v1/runs.
func (a *app) serveAmbient(ctx context.Context, repo farm.RunRepository) error {
	if addr := a.cfg.MetricsAddr; addr != "" {
		var mounts []common.Mount
		if repo != nil {
			apiMetrics, err := runs.NewMetrics(otel.GetMeterProvider())
			if err != nil {
				return fmt.Errorf("creating runs api metrics: %w", err)
			}
			api := http.NewServeMux()
			runs.Routes(api, runs.Config{Log: a.log, Repo: repo, Metrics: apiMetrics})
			mounts = append(mounts, common.Mount{Pattern: "/v1/", Handler: api})
		}
		a.serve(ctx, "metrics", common.NewMetricsServer(addr, a.registry, &a.ready, mounts...))
	}

	if addr := a.cfg.DebugAddr; addr != "" {
		srv, err := common.NewDebugServer(addr)
		if err != nil {
			return fmt.Errorf("creating debug server: %w", err)
		}
		a.serve(ctx, "debug", srv)
	}
	return nil
}

func (a *app) serve(ctx context.Context, name string, srv *http.Server) {
	go func() {
		a.log.Info(ctx, "http server listening", "server", name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error(ctx, "http server failed", "server", name, "error", err)
		}
	}()
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error(ctx, "shutting down http server", "server", name, "error", err)
		}
	})
}

// items generates the configured work sequence.
func (a *app) items() ([]float64, error) {
	s := a.cfg.Sequence
	return farm.Generate(s.Start, s.End, s.Step)
}

// workFunc builds the configured work function.
func (a *app) workFunc() (farm.WorkFunc, error) {
	w := a.cfg.Workload
	profile, err := workload.ParseProfile(w.Profile)
	if err != nil {
		return nil, err
	}
	return workload.New(workload.Config{
		Profile:   profile,
		SlowDelay: w.SlowDelay,
		FastDelay: w.FastDelay,
		Processes: a.cfg.Processes,
		Distribution: workload.Distribution{
			Kind:   workload.DistributionKind(w.Distribution.Kind),
			Min:    w.Distribution.Min,
			Max:    w.Distribution.Max,
			Pow:    w.Distribution.Pow,
			N:      w.Distribution.N,
			Lambda: w.Distribution.Lambda,
			Seed:   w.Distribution.Seed,
		},
	})
}

// writeReport marshals v as YAML to path, or to stdout when path is "-".
func writeReport(path string, v any) error {
	if path == "" {
		return nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// summarize renders a report for the terminal.
func summarize(r *farm.RunReport) string {
	assigned := make([]string, 0, len(r.Assignments))
	for id := 1; id <= r.Workers; id++ {
		assigned = append(assigned, strconv.Itoa(id)+"="+strconv.Itoa(r.Assignments[farm.WorkerID(id)]))
	}
	return fmt.Sprintf("run %s policy=%s items=%d elapsed=%s assignments=%v",
		r.RunID, r.Policy, r.Items, r.Elapsed.Round(time.Millisecond), assigned)
}
