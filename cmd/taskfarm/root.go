package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	cfgFile    string
	processes  int
	policy     string
	queueOrder string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "taskfarm",
	Short: "Distribute work items across worker processes",
	Long: `taskfarm evaluates a function over a sequence of points using one
dispatcher and N-1 workers. The dynamic policy hands the next item to whichever
worker answers first; the static policy deals items round-robin up front.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "path to a config file (yaml)")
	pf.IntVarP(&processes, "processes", "n", 0, "participants including the dispatcher")
	pf.StringVar(&policy, "policy", "", "scheduling policy: dynamic or static")
	pf.StringVar(&queueOrder, "queue-order", "", "work queue order: lifo or fifo")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// flagKeys maps persistent flags onto their config keys.
var flagKeys = map[string]string{
	"processes":   "processes",
	"policy":      "policy",
	"queue-order": "queue_order",
	"log-level":   "log_level",
}

// lookupFlag finds name on cmd or its persistent parents.
func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}
