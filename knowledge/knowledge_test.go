package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/sentinel/errors"
)

func deviceBase(props map[string]any) *Base {
	return New([]Node{{ID: "hw", Type: "Hardware", Label: "Device", Properties: props}}, nil)
}

func TestInferStrategy_Thresholds(t *testing.T) {
	tests := []struct {
		name      string
		eplg      any
		wantDepth int
		wantName  string
	}{
		{"deep", 0.0005, 4, StrategyDeep},
		{"balanced", 0.003, 2, StrategyBalanced},
		{"shallow", 0.01, 1, StrategyShallow},
		{"lower bound of balanced", 1e-3, 2, StrategyBalanced},
		{"lower bound of shallow", 5e-3, 1, StrategyShallow},
		{"scientific notation string", "3.7E-3", 2, StrategyBalanced},
		{"plain string", "0.0001", 4, StrategyDeep},
		{"integer zero", 0, 4, StrategyDeep},
		{"unparsable falls back to 0.01", "n/a", 1, StrategyShallow},
		{"wrong type falls back to 0.01", []any{1}, 1, StrategyShallow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := deviceBase(map[string]any{PropFidelityLoss: tt.eplg}).InferStrategy("hw")
			assert.Equal(t, tt.wantDepth, s.Depth)
			assert.Equal(t, tt.wantName, s.Name)
		})
	}
}

func TestInferStrategy_Defaults(t *testing.T) {
	t.Run("metric absent", func(t *testing.T) {
		s := deviceBase(map[string]any{"qubits": 127}).InferStrategy("hw")
		assert.Equal(t, DefaultStrategy(), s)
	})

	t.Run("node absent", func(t *testing.T) {
		s := deviceBase(nil).InferStrategy("hw-unknown")
		assert.Equal(t, Strategy{Name: "Standard", Depth: 1}, s)
	})

	t.Run("no base", func(t *testing.T) {
		var b *Base
		assert.Equal(t, DefaultStrategy(), b.InferStrategy("hw"))
	})
}

func TestCoherenceLimit(t *testing.T) {
	t1, ok := deviceBase(map[string]any{PropT1Micros: 250.0}).CoherenceLimit("hw")
	assert.True(t, ok)
	assert.Equal(t, 250.0, t1)

	t1, ok = deviceBase(map[string]any{PropT1Micros: "180"}).CoherenceLimit("hw")
	assert.True(t, ok)
	assert.Equal(t, 180.0, t1)

	t1, ok = deviceBase(map[string]any{}).CoherenceLimit("hw")
	assert.True(t, ok)
	assert.Equal(t, DeviceT1Fallback, t1)

	t1, ok = deviceBase(map[string]any{PropT1Micros: -3}).CoherenceLimit("hw")
	assert.True(t, ok)
	assert.Equal(t, DeviceT1Fallback, t1)

	_, ok = deviceBase(nil).CoherenceLimit("other")
	assert.False(t, ok)

	var b *Base
	_, ok = b.CoherenceLimit("hw")
	assert.False(t, ok)
}

func TestDeviceAccessors(t *testing.T) {
	b := deviceBase(map[string]any{PropFidelityLoss: "3.7E-3", PropQubits: 156.0})

	_, ok := b.MeasuredT1("hw")
	assert.False(t, ok, "no t1_us recorded")

	eplg, ok := b.FidelityLoss("hw")
	require.True(t, ok)
	assert.Equal(t, 3.7e-3, eplg)

	n, ok := b.QubitCount("hw")
	require.True(t, ok)
	assert.Equal(t, 156, n)

	_, ok = deviceBase(map[string]any{PropQubits: 0}).QubitCount("hw")
	assert.False(t, ok)
	_, ok = deviceBase(map[string]any{PropFidelityLoss: "n/a"}).FidelityLoss("hw")
	assert.False(t, ok)

	t1, ok := deviceBase(map[string]any{PropT1Micros: 90}).MeasuredT1("hw")
	require.True(t, ok)
	assert.Equal(t, 90.0, t1)

	var nilBase *Base
	_, ok = nilBase.FidelityLoss("hw")
	assert.False(t, ok)
}

func TestLoad_AllFormatsAgree(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()

	for _, name := range []string{"graph.json", "graph.yaml", "graph.toml"} {
		t.Run(name, func(t *testing.T) {
			b, err := Load(filepath.Join("testdata", name), log)
			require.NoError(t, err)

			assert.Equal(t, Stats{Nodes: 4, Edges: 3, Sources: 1}, b.Stats())
			assert.Equal(t, 4, b.InferStrategy("hw-deep").Depth)
			assert.Equal(t, StrategyBalanced, b.InferStrategy("hw-balanced").Name)
			assert.Equal(t, 1, b.InferStrategy("hw-shallow").Depth)

			t1, ok := b.CoherenceLimit("hw-deep")
			require.True(t, ok)
			assert.Equal(t, 300.0, t1)

			edges := b.Related("algo-qaoa")
			require.Len(t, edges, 3)
			assert.Equal(t, "hw-deep", edges[0].Target)
			assert.Equal(t, "AVOIDS", edges[2].Relationship)
		})
	}
}

func TestLoad_BundledGraph(t *testing.T) {
	b, err := Load(filepath.Join("..", "knowledge_data", "quantum_kg.json"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	s := b.InferStrategy("hw-ibm-heron")
	assert.Equal(t, Strategy{Name: StrategyBalanced, Depth: 2, Metric: 3.7e-3}, s)

	desc := b.Describe("algo-qaoa")
	assert.Contains(t, desc, "--[RUNS_ON]--> IBM Heron r2 (Hardware)")
}

func TestLoad_Failures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.json")},
		{"malformed json", write("bad.json", `{"nodes": [`)},
		{"malformed yaml", write("bad.yaml", "nodes: 5\n")},
		{"unsupported extension", write("graph.xml", "<nodes/>")},
		{"unsupported schema major", write("v2.json", `{"schema_version": "2.0.0", "nodes": [], "edges": []}`)},
		{"invalid schema version", write("vx.json", `{"schema_version": "one", "nodes": [], "edges": []}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Load(tt.path, zaptest.NewLogger(t).Sugar())
			require.Error(t, err)
			assert.Nil(t, b)
			assert.True(t, errors.Is(err, errors.ErrKnowledgeUnavailable), "got %v", err)
		})
	}
}

func TestLoad_SchemaHint(t *testing.T) {
	_, err := Parse([]byte(`{"schema_version": "2.0.0", "nodes": [], "edges": []}`), FormatJSON)
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), SchemaConstraint)
}

func TestDescribe(t *testing.T) {
	b, err := Load(filepath.Join("testdata", "graph.json"), nil)
	require.NoError(t, err)

	want := "QAOA (Algorithm)\n" +
		"  Description: Variational optimizer\n" +
		"  Speedup: Heuristic\n" +
		"  Context:\n" +
		"    --[RUNS_ON]--> Deep Device (Hardware)\n" +
		"    --[AVOIDS]--> Shallow Device (Hardware)\n"
	assert.Equal(t, want, b.Describe("algo-qaoa"))

	assert.Equal(t, "Deep Device (Hardware)\n", b.Describe("hw-deep"))
	assert.Equal(t, "Node nope not found in knowledge graph.", b.Describe("nope"))
}

func TestNew_DuplicateIDsLastWins(t *testing.T) {
	b := New([]Node{
		{ID: "a", Label: "first"},
		{ID: "a", Label: "second"},
	}, nil)

	n, ok := b.Node("a")
	require.True(t, ok)
	assert.Equal(t, "second", n.Label)
	assert.Equal(t, 1, b.Stats().Nodes)
}

func TestPropertyKeys(t *testing.T) {
	n := Node{Properties: map[string]any{"t1_us": 1, "eplg": 2, "qubits": 3}}
	assert.Equal(t, []string{"eplg", "qubits", "t1_us"}, PropertyKeys(n))
}
