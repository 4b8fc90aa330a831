package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/taskfarm/internal/app/runner"
	"github.com/ahrav/taskfarm/internal/domain/farm"
)

var localReport string

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run dispatcher and workers in one process",
	Example: `  taskfarm local -n 4 --policy static
  taskfarm local --config farm.yaml --report -`,
	RunE: runLocal,
}

var compareReport string

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run both policies over the same input and report the speedup",
	Example: `  taskfarm compare -n 4
  TASKFARM_WORKLOAD_PROFILE=lower-half-slow taskfarm compare -n 8`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(compareCmd)
	localCmd.Flags().StringVar(&localReport, "report", "", "write the run report as YAML to this path (- for stdout)")
	compareCmd.Flags().StringVar(&compareReport, "report", "", "write both run reports as YAML to this path (- for stdout)")
}

// newRunner builds an in-process runner and the options from configuration.
func newRunner(a *app, cmd *cobra.Command) (*runner.Runner, runner.Options, error) {
	ctx := cmd.Context()

	pol, err := farm.ParsePolicy(a.cfg.Policy)
	if err != nil {
		return nil, runner.Options{}, err
	}
	order, err := farm.ParseQueueOrder(a.cfg.QueueOrder)
	if err != nil {
		return nil, runner.Options{}, err
	}
	items, err := a.items()
	if err != nil {
		return nil, runner.Options{}, err
	}
	fn, err := a.workFunc()
	if err != nil {
		return nil, runner.Options{}, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, runner.Options{}, err
	}
	if err := a.serveAmbient(ctx, store); err != nil {
		return nil, runner.Options{}, err
	}

	dm, err := a.dispatchMetrics()
	if err != nil {
		return nil, runner.Options{}, fmt.Errorf("creating dispatch metrics: %w", err)
	}
	r := runner.New(store, dm, a.workerMetrics(), a.log, a.tracer)
	a.ready.Store(true)

	return r, runner.Options{
		Workers:   a.cfg.Workers(),
		Policy:    pol,
		Order:     order,
		Items:     items,
		Work:      fn,
		SendRate:  a.cfg.Transport.SendRate,
		SendBurst: a.cfg.Transport.SendBurst,
	}, nil
}

func runLocal(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := setup(ctx, cmd, "local")
	if err != nil {
		return err
	}
	defer a.close()

	r, opts, err := newRunner(a, cmd)
	if err != nil {
		return err
	}
	report, err := r.Run(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summarize(report))
	return writeReport(localReport, report)
}

func runCompare(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := setup(ctx, cmd, "compare")
	if err != nil {
		return err
	}
	defer a.close()

	r, opts, err := newRunner(a, cmd)
	if err != nil {
		return err
	}
	cmp, err := r.Compare(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cmp.Summary())
	return writeReport(compareReport, cmp)
}
