package main

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ahrav/taskfarm/internal/app/dispatch"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/farmrpc"
	"github.com/ahrav/taskfarm/internal/infra/transport/throttle"
)

// stopTimeout bounds the graceful gRPC stop after a run.
const stopTimeout = 10 * time.Second

var dispatcherReport string

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Serve work items to remote workers over gRPC",
	Long: `dispatcher listens for processes-1 workers, waits until each identity has
connected, runs the configured policy over the generated sequence, terminates
every worker and stores the run report.`,
	Example: `  taskfarm dispatcher -n 4 --policy dynamic --report run.yaml`,
	RunE:    runDispatcher,
}

func init() {
	rootCmd.AddCommand(dispatcherCmd)
	dispatcherCmd.Flags().StringVar(&dispatcherReport, "report", "", "write the run report as YAML to this path (- for stdout)")
}

func runDispatcher(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, "dispatcher")
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	pol, err := farm.ParsePolicy(a.cfg.Policy)
	if err != nil {
		return err
	}
	order, err := farm.ParseQueueOrder(a.cfg.QueueOrder)
	if err != nil {
		return err
	}
	items, err := a.items()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := a.serveAmbient(ctx, store); err != nil {
		return err
	}

	hub := farmrpc.NewHub(a.cfg.Workers(), log)
	defer hub.Close()

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(a.tp))))
	hub.Register(srv)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)

	lis, err := net.Listen("tcp", a.cfg.Transport.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Transport.ListenAddr, err)
	}
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error(ctx, "grpc server stopped", "error", err)
		}
	}()
	defer gracefulStop(srv)

	log.Info(ctx, "waiting for workers", "addr", lis.Addr().String(), "workers", a.cfg.Workers())
	if err := hub.WaitForWorkers(ctx); err != nil {
		return fmt.Errorf("waiting for workers: %w", err)
	}
	a.ready.Store(true)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	dm, err := a.dispatchMetrics()
	if err != nil {
		return fmt.Errorf("creating dispatch metrics: %w", err)
	}
	d, err := dispatch.New(pol, throttle.Wrap(hub, a.cfg.Transport.SendRate, a.cfg.Transport.SendBurst), dm, log, a.tracer)
	if err != nil {
		return err
	}

	report, err := d.Dispatch(ctx, farm.NewWorkQueue(items, order))
	if err != nil {
		return fmt.Errorf("dispatching: %w", err)
	}
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	if err := store.Save(ctx, report); err != nil {
		return fmt.Errorf("saving run %s: %w", report.RunID, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), summarize(report))
	return writeReport(dispatcherReport, report)
}

// gracefulStop lets workers finish closing their streams, then forces the
// server down.
func gracefulStop(srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	t := time.NewTimer(stopTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		srv.Stop()
	}
}
