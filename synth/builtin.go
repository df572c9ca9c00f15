package synth

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

const ringQubits = 4

// ring lists the cost-layer couplings of a 4-qubit ring.
var ring = [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}

// Builtin generates workloads and calibrations without external tools.
// Synthesize renders a QAOA ansatz in OpenQASM 2.0; with dd set, idle qubits
// get an X-X pair after every coupling.
type Builtin struct {
	dd bool

	mu  sync.Mutex
	rng *rand.Rand // calibration spread
}

// NewBuiltin creates the native generator with a random calibration seed.
func NewBuiltin(dd bool) *Builtin {
	return NewSeededBuiltin(dd, rand.Uint64())
}

// NewSeededBuiltin creates the native generator with reproducible calibrations.
func NewSeededBuiltin(dd bool, seed uint64) *Builtin {
	return &Builtin{dd: dd, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Synthesize renders depth alternating cost and mixer layers.
func (b *Builtin) Synthesize(ctx context.Context, depth int) (Workload, error) {
	if err := checkDepth(depth); err != nil {
		return Workload{}, err
	}
	if err := ctx.Err(); err != nil {
		return Workload{}, err
	}

	lines := []string{
		"OPENQASM 2.0;",
		`include "qelib1.inc";`,
		fmt.Sprintf("qreg q[%d];", ringQubits),
		fmt.Sprintf("creg meas[%d];", ringQubits),
	}
	for i := 0; i < ringQubits; i++ {
		lines = append(lines, fmt.Sprintf("h q[%d];", i))
	}

	for step := 0; step < depth; step++ {
		gamma := fmt.Sprintf("gamma_%d", step)
		beta := fmt.Sprintf("beta_%d", step)

		for _, pair := range ring {
			u, v := pair[0], pair[1]
			lines = append(lines,
				fmt.Sprintf("// Gate(%d,%d)", u, v),
				fmt.Sprintf("cx q[%d], q[%d];", u, v),
				fmt.Sprintf("rz(%s) q[%d];", gamma, v),
				fmt.Sprintf("cx q[%d], q[%d];", u, v),
			)
			if !b.dd {
				continue
			}
			for o := 0; o < ringQubits; o++ {
				if o == u || o == v {
					continue
				}
				lines = append(lines,
					fmt.Sprintf("x q[%d]; // DD", o),
					fmt.Sprintf("x q[%d];", o),
				)
			}
		}

		for i := 0; i < ringQubits; i++ {
			lines = append(lines, fmt.Sprintf("rx(2*%s) q[%d];", beta, i))
		}
	}

	lines = append(lines, "measure q -> meas;")

	return Workload{
		Depth:   depth,
		Format:  FormatQASM2,
		Circuit: strings.Join(lines, "\n"),
		Source:  ModeBuiltin,
	}, nil
}
