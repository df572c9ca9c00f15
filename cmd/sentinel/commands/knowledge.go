package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/coherence"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/knowledge"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/manager"
	"github.com/teranos/sentinel/synth"
)

// DescribeCmd prints a knowledge graph node
var DescribeCmd = &cobra.Command{
	Use:   "describe <node-id>",
	Short: "Describe a knowledge graph node",
	Long: `Describe a node of the knowledge graph and its outgoing relationships.

Examples:
  sentinel describe algo-qaoa
  sentinel describe hw-ibm-heron --kb graph.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

// InferCmd shows the strategy chosen for a device
var InferCmd = &cobra.Command{
	Use:   "infer [target]",
	Short: "Show the strategy selected for a device",
	Long: `Show the strategy, depth and feasibility the optimization cycle would
choose for a device node (default: manager.target).

Examples:
  sentinel infer
  sentinel infer hw-quera-aquila`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfer,
}

var (
	kbPath    string
	showStats bool
)

func init() {
	DescribeCmd.Flags().StringVar(&kbPath, "kb", "", "Knowledge graph file (default: knowledge.path)")
	DescribeCmd.Flags().BoolVar(&showStats, "stats", false, "Also print graph statistics")
	InferCmd.Flags().StringVar(&kbPath, "kb", "", "Knowledge graph file (default: knowledge.path)")
}

// openKnowledge loads --kb or the configured graph; unlike the loop, a
// missing graph is an error here.
func openKnowledge() (*knowledge.Base, string, error) {
	path := kbPath
	target := manager.DefaultTarget
	cfg, err := loadConfig()
	if err != nil {
		if path == "" {
			return nil, "", err
		}
	} else {
		if path == "" {
			path = cfg.Knowledge.Path
		}
		target = cfg.Manager.Target
	}
	if path == "" {
		return nil, "", errors.WithHint(errors.New("no knowledge source configured"), "pass --kb or set knowledge.path")
	}

	kb, err := knowledge.Load(path, logger.Logger.Named("knowledge"))
	if err != nil {
		return nil, "", err
	}
	return kb, target, nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	kb, _, err := openKnowledge()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), kb.Describe(args[0]))

	if showStats {
		s := kb.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "\nGraph: %d nodes, %d edges from %d sources\n", s.Nodes, s.Edges, s.Sources)
	}
	return nil
}

func runInfer(cmd *cobra.Command, args []string) error {
	kb, target, err := openKnowledge()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		target = args[0]
	}

	strategy := kb.InferStrategy(target)
	_, found := kb.Node(target)
	t1, source := manager.ResolveCoherenceLimit(cmd.Context(), kb, target, inferCalibrator(), logger.Logger.Named("manager"))
	layers := strategy.Depth * manager.LayersPerDepth
	feasible := coherence.Verify(layers, t1)

	pterm.DefaultSection.Printfln("Strategy for %s", target)
	data := pterm.TableData{
		{"Field", "Value"},
		{"Node found", fmt.Sprint(found)},
		{"Fidelity loss", fmt.Sprintf("%g", strategy.Metric)},
		{"Strategy", strategy.Name},
		{"Depth", fmt.Sprint(strategy.Depth)},
		{"Layers", fmt.Sprint(layers)},
		{"Estimated duration (µs)", fmt.Sprintf("%g", coherence.Estimate(layers))},
		{"T1 (µs)", fmt.Sprintf("%g", t1)},
		{"T1 source", source},
		{"Limit with margin (µs)", fmt.Sprintf("%g", coherence.Limit(t1))},
		{"Feasible", fmt.Sprint(feasible)},
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// inferCalibrator returns the configured calibration service, or the native
// one when the configuration cannot be loaded.
func inferCalibrator() synth.Calibrator {
	cfg, err := loadConfig()
	if err != nil {
		return synth.NewBuiltin(true)
	}
	svc, err := synth.New(cfg.Synth, logger.Logger.Named("synth"))
	if err != nil {
		return synth.NewBuiltin(cfg.Synth.DD)
	}
	return svc
}
