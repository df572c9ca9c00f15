package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Property names read from device nodes.
const (
	PropFidelityLoss = "eplg"   // error per layered gate
	PropT1Micros     = "t1_us"  // energy relaxation time
	PropQubits       = "qubits" // physical qubit count
)

const (
	// DefaultFidelityLoss is used when the metric is present but unreadable.
	DefaultFidelityLoss = 0.01
	// DeviceT1Fallback is the coherence limit for a known device with no t1_us.
	DeviceT1Fallback = 100.0
)

// Strategy labels.
const (
	StrategyStandard = "Standard"
	StrategyDeep     = "Deep / High-Fidelity"
	StrategyBalanced = "Balanced"
	StrategyShallow  = "Shallow / Conservative"
)

// Strategy is a selected algorithm depth and the label describing it.
type Strategy struct {
	Name   string
	Depth  int
	Metric float64 // fidelity-loss value used, 0 when none was read
}

// DefaultStrategy is used when no device information is available.
func DefaultStrategy() Strategy {
	return Strategy{Name: StrategyStandard, Depth: 1}
}

// ForFidelityLoss maps a fidelity-loss metric onto a strategy.
func ForFidelityLoss(metric float64) Strategy {
	switch {
	case metric < 1e-3:
		return Strategy{Name: StrategyDeep, Depth: 4, Metric: metric}
	case metric < 5e-3:
		return Strategy{Name: StrategyBalanced, Depth: 2, Metric: metric}
	default:
		return Strategy{Name: StrategyShallow, Depth: 1, Metric: metric}
	}
}

// InferStrategy selects a depth for targetID from its fidelity-loss metric.
// A missing base, node or metric yields DefaultStrategy.
func (b *Base) InferStrategy(targetID string) Strategy {
	specs, ok := b.DeviceSpecs(targetID)
	if !ok {
		return DefaultStrategy()
	}
	raw, ok := specs[PropFidelityLoss]
	if !ok {
		return DefaultStrategy()
	}
	metric, ok := toFloat(raw)
	if !ok {
		metric = DefaultFidelityLoss
	}
	return ForFidelityLoss(metric)
}

// CoherenceLimit returns the t1 of targetID in microseconds. A node without a
// readable t1_us yields DeviceT1Fallback; a missing node yields false.
func (b *Base) CoherenceLimit(targetID string) (float64, bool) {
	if t1, ok := b.MeasuredT1(targetID); ok {
		return t1, true
	}
	if _, ok := b.Node(targetID); !ok {
		return 0, false
	}
	return DeviceT1Fallback, true
}

// MeasuredT1 returns the t1_us recorded on targetID, if it is a positive number.
func (b *Base) MeasuredT1(targetID string) (float64, bool) {
	specs, ok := b.DeviceSpecs(targetID)
	if !ok {
		return 0, false
	}
	raw, ok := specs[PropT1Micros]
	if !ok {
		return 0, false
	}
	t1, ok := toFloat(raw)
	if !ok || t1 <= 0 {
		return 0, false
	}
	return t1, true
}

// FidelityLoss returns the readable eplg of targetID.
func (b *Base) FidelityLoss(targetID string) (float64, bool) {
	specs, ok := b.DeviceSpecs(targetID)
	if !ok {
		return 0, false
	}
	raw, ok := specs[PropFidelityLoss]
	if !ok {
		return 0, false
	}
	return toFloat(raw)
}

// QubitCount returns the qubit count of targetID.
func (b *Base) QubitCount(targetID string) (int, bool) {
	specs, ok := b.DeviceSpecs(targetID)
	if !ok {
		return 0, false
	}
	raw, ok := specs[PropQubits]
	if !ok {
		return 0, false
	}
	n, ok := toFloat(raw)
	if !ok || n < 1 {
		return 0, false
	}
	return int(n), true
}

// Describe formats a node and its outgoing relationships for display.
func (b *Base) Describe(nodeID string) string {
	n, ok := b.Node(nodeID)
	if !ok {
		return fmt.Sprintf("Node %s not found in knowledge graph.", nodeID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", n.Label, n.Type)
	if d, ok := n.Properties["description"]; ok {
		fmt.Fprintf(&sb, "  Description: %s\n", formatValue(d))
	}
	if s, ok := n.Properties["speedup"]; ok {
		fmt.Fprintf(&sb, "  Speedup: %s\n", formatValue(s))
	}

	edges := b.Related(nodeID)
	if len(edges) > 0 {
		sb.WriteString("  Context:\n")
		for _, e := range edges {
			target, ok := b.Node(e.Target)
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "    --[%s]--> %s (%s)\n", e.Relationship, target.Label, target.Type)
		}
	}
	return sb.String()
}

// PropertyKeys returns the property names of a node in sorted order.
func PropertyKeys(n Node) []string {
	keys := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toFloat reads numbers as decoded by json, yaml and toml, and numeric strings
// such as "3.7E-3".
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	default:
		out, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(out)
	}
}
