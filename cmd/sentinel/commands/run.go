package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/pulse"
)

// RunCmd runs the decision loop
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision loop",
	Long: `Run the decision loop until interrupted or --ticks samples were consumed.

Every tick the health guard and the obligation monitor are consulted. Ticks
both admit are steps; every pulse.trigger_every steps an option is priced
and an optimization cycle runs. Without a backend
token, submissions go to the local digital twin.

Examples:
  sentinel run                         # Run until Ctrl-C
  sentinel run --ticks 200 --seed 42   # Reproducible 200-tick run
  sentinel run --trigger-every 10      # Cycle every 10 steps`,
	RunE: runLoop,
}

var (
	runTicks        uint64
	runSeed         uint64
	runTriggerEvery uint64
	runInterval     time.Duration
)

func init() {
	RunCmd.Flags().Uint64Var(&runTicks, "ticks", 0, "Stop after this many ticks (0 = run until interrupted)")
	RunCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Seed the signal for a reproducible path (0 = random)")
	RunCmd.Flags().Uint64Var(&runTriggerEvery, "trigger-every", 0, "Override pulse.trigger_every")
	RunCmd.Flags().DurationVar(&runInterval, "interval", -1, "Override pulse.interval (0 = unpaced)")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pulseCfg := cfg.Pulse
	if runTicks > 0 {
		pulseCfg.MaxTicks = runTicks
	}
	if runTriggerEvery > 0 {
		pulseCfg.TriggerEvery = runTriggerEvery
	}
	if runInterval >= 0 {
		pulseCfg.Interval = runInterval
	}
	cfg.Pulse = pulseCfg

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	log := logger.Logger.Named("sentinel")
	log.Infow("Starting decision loop", "config", cfg.String())

	l, err := buildLoop(cfg, pulseCfg, runSeed, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := l.recorder.Serve(ctx, cfg.Metrics.Addr, log.Named("metrics")); err != nil {
				log.Errorw("Metrics server stopped", logger.FieldError, err)
			}
		}()
	}

	stats, runErr := l.pipeline.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	l.close(closeCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Wrap(runErr, "decision loop failed")
	}

	printRunSummary(stats, l)
	return nil
}

func printRunSummary(stats pulse.Stats, l *loop) {
	snap := l.guard.Snapshot()

	pterm.Println()
	pterm.DefaultSection.Println("Run summary")
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Ticks", fmt.Sprint(stats.Ticks)},
		{"Steps", fmt.Sprint(stats.Steps)},
		{"Cycles", fmt.Sprint(stats.Cycles)},
		{"Dispatched", fmt.Sprint(stats.Dispatched)},
		{"Safety violations", fmt.Sprint(stats.Violations)},
		{"Ticks skipped (breaker)", fmt.Sprint(stats.Skipped)},
		{"Breaker state", snap.State.String()},
		{"Breaker errors", fmt.Sprint(snap.ErrorCount)},
	}
	if l.ledger != nil {
		data = append(data,
			[]string{"Ledger", l.ledger.Path()},
			[]string{"Ledger key", l.ledger.Signer().DID})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		logger.Warnw("Failed to render summary", logger.FieldError, err)
	}
}
