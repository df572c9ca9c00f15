package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/cmd/sentinel/commands"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "sentinel - obligation-guarded optimization dispatch loop",
	Long: `sentinel - obligation-guarded optimization dispatch loop.

sentinel streams a simulated market signal through a safety monitor and a
circuit breaker, and periodically runs an optimization cycle: it picks
algorithm parameters from a knowledge graph, checks them against the
device's coherence window, synthesizes the workload, dispatches it to the
execution backend and signs the decision into a local ledger.

Available commands:
  run      - Run the decision loop
  describe - Describe a knowledge graph node
  infer    - Show the strategy selected for a device
  verify   - Check a circuit depth against a coherence limit
  ledger   - Inspect and verify the signed decision ledger
  jobs     - List recorded backend submissions
  am       - Manage sentinel configuration

Examples:
  sentinel run --ticks 500            # Run 500 ticks then stop
  sentinel infer hw-ibm-heron         # Strategy for a device
  sentinel ledger verify ledger.log   # Verify every ledger line
  sentinel am show --format json      # Show configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that print machine-readable output stay quiet
		if cmd.Name() == "show" || cmd.Name() == "version" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Config file (default: nearest sentinel.toml, then ~/.sentinel/sentinel.toml)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DescribeCmd)
	rootCmd.AddCommand(commands.InferCmd)
	rootCmd.AddCommand(commands.VerifyCmd)
	rootCmd.AddCommand(commands.LedgerCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
