package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/coherence"
	"github.com/teranos/sentinel/errors"
)

// VerifyCmd checks a circuit against a coherence limit
var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a circuit depth against a coherence limit",
	Long: `Check whether a circuit of --depth layers fits within the coherence
window of a device with the given T1, after the safety margin.

Exits non-zero when the circuit does not fit.

Examples:
  sentinel verify --depth 10 --t1 100     # fits: 0.5µs <= 50µs
  sentinel verify --depth 2000 --t1 1     # rejected: 100µs > 0.5µs`,
	RunE: runVerify,
}

var (
	verifyDepth int
	verifyT1    float64
)

func init() {
	VerifyCmd.Flags().IntVar(&verifyDepth, "depth", 0, "Circuit depth in layers")
	VerifyCmd.Flags().Float64Var(&verifyT1, "t1", 0, "Device T1 in microseconds")
	_ = VerifyCmd.MarkFlagRequired("depth")
	_ = VerifyCmd.MarkFlagRequired("t1")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyDepth < 0 {
		return errors.Newf("--depth must be >= 0, got %d", verifyDepth)
	}

	estimate := coherence.Estimate(verifyDepth)
	limit := coherence.Limit(verifyT1)

	if !coherence.Verify(verifyDepth, verifyT1) {
		pterm.Error.Printfln("Rejected: %d layers take %gµs, limit is %gµs (T1 %gµs × %g)",
			verifyDepth, estimate, limit, verifyT1, coherence.SafetyMargin)
		return errors.Mark(
			errors.Newf("estimated %gµs exceeds %gµs", estimate, limit),
			errors.ErrFeasibilityRejected)
	}

	pterm.Success.Printfln("Feasible: %d layers take %gµs, limit is %gµs", verifyDepth, estimate, limit)
	return nil
}
