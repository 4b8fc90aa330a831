package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/taskfarm/internal/app/worker"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/farmrpc"
	"github.com/ahrav/taskfarm/pkg/common"
)

var workerID int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Connect to a dispatcher and evaluate tasks until terminated",
	Example: `  taskfarm worker --id 1
  TASKFARM_TRANSPORT_DISPATCHER_ADDR=farm:9090 taskfarm worker --id 2`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().IntVar(&workerID, "id", 0, "worker identity, 1..processes-1")
	_ = workerCmd.MarkFlagRequired("id")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, fmt.Sprintf("worker-%d", workerID))
	if err != nil {
		return err
	}
	defer a.close()

	if workerID < 1 || workerID > a.cfg.Workers() {
		return fmt.Errorf("%w: worker id %d outside 1..%d", farm.ErrPrecondition, workerID, a.cfg.Workers())
	}

	fn, err := a.workFunc()
	if err != nil {
		return err
	}
	wm := a.workerMetrics()
	if err := a.serveAmbient(ctx, nil); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.Transport.DialTimeout)
	defer cancel()
	client, err := farmrpc.Dial(dialCtx, a.cfg.Transport.DispatcherAddr, farm.WorkerID(workerID),
		farmrpc.WithLogger(a.log),
		farmrpc.WithTracerProvider(a.tp),
		farmrpc.WithRetry(common.RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxElapsedTime:  a.cfg.Transport.DialTimeout,
		}),
	)
	if err != nil {
		return err
	}
	defer client.Close()
	a.ready.Store(true)

	w := worker.New(client, fn, wm.ForWorker(workerID), a.log, a.tracer)
	if err := w.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "worker %d processed %d tasks\n", workerID, w.Processed())
	return nil
}
