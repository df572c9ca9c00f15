package synth

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
)

func TestBuiltin_Structure(t *testing.T) {
	w, err := NewBuiltin(true).Synthesize(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, w.Depth)
	assert.Equal(t, FormatQASM2, w.Format)
	assert.Equal(t, ModeBuiltin, w.Source)

	lines := strings.Split(w.Circuit, "\n")
	assert.Equal(t, "OPENQASM 2.0;", lines[0])
	assert.Equal(t, "measure q -> meas;", lines[len(lines)-1])

	assert.Equal(t, 16, strings.Count(w.Circuit, "cx q["), "2 cx per coupling, 4 couplings, 2 layers")
	assert.Equal(t, 8, strings.Count(w.Circuit, "rx(2*beta_"))
	assert.Contains(t, w.Circuit, "rz(gamma_1) q[0];")
	// 2 idle qubits per coupling, 2 X gates each
	assert.Equal(t, 32, strings.Count(w.Circuit, "\nx q["))
}

func TestBuiltin_WithoutDD(t *testing.T) {
	w, err := NewBuiltin(false).Synthesize(context.Background(), 1)
	require.NoError(t, err)

	assert.NotContains(t, w.Circuit, "// DD")
	assert.Equal(t, 0, strings.Count(w.Circuit, "\nx q["))
}

func TestBuiltin_GrowsWithDepth(t *testing.T) {
	b := NewBuiltin(true)
	w1, err := b.Synthesize(context.Background(), 1)
	require.NoError(t, err)
	w4, err := b.Synthesize(context.Background(), 4)
	require.NoError(t, err)

	assert.Greater(t, len(w4.Circuit), len(w1.Circuit))
	assert.Contains(t, w4.Circuit, "gamma_3")
	assert.NotContains(t, w1.Circuit, "gamma_1")
}

func TestSynthesizers_RejectDepthBelowOne(t *testing.T) {
	cmd, err := NewCommand("echo", time.Second, nil)
	require.NoError(t, err)

	for _, s := range []Synthesizer{NewBuiltin(true), cmd} {
		_, err := s.Synthesize(context.Background(), 0)
		assert.ErrorContains(t, err, "at least 1")
	}
}

func TestBuiltin_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuiltin(true).Synthesize(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommand_AppendsDepthAndReadsStdout(t *testing.T) {
	c, err := NewCommand(`sh -c 'printf "OPENQASM 2.0;\n// depth %s\n" "$0"'`, 5*time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	w, err := c.Synthesize(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "OPENQASM 2.0;\n// depth 3", w.Circuit)
	assert.Equal(t, FormatQASM2, w.Format)
	assert.Equal(t, ModeCommand, w.Source)
}

func TestCommand_FailureIsExternal(t *testing.T) {
	c, err := NewCommand(`sh -c 'echo compiler exploded >&2; exit 3'`, 5*time.Second, nil)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsExternalCallError(err))
	assert.Contains(t, errors.FlattenDetails(err), "compiler exploded")
}

func TestCommand_EmptyOutput(t *testing.T) {
	c, err := NewCommand("true", time.Second, nil)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), 1)
	assert.True(t, errors.IsExternalCallError(err))
}

func TestCommand_Timeout(t *testing.T) {
	c, err := NewCommand("sleep", 50*time.Millisecond, nil)
	require.NoError(t, err)

	// sleep receives the depth as its duration in seconds
	_, err = c.Synthesize(context.Background(), 5)
	assert.True(t, errors.IsExternalCallError(err))
}

func TestNewCommand_Invalid(t *testing.T) {
	_, err := NewCommand(`python3 'unterminated`, time.Second, nil)
	assert.Error(t, err)

	_, err = NewCommand("   ", time.Second, nil)
	assert.ErrorContains(t, err, "empty")
}

func newSynthServer(t *testing.T, handler func(req SynthesizeRequest) SynthesizeResponse) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/synthesize" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req SynthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
}

func TestHTTP_Synthesize(t *testing.T) {
	srv := newSynthServer(t, func(req SynthesizeRequest) SynthesizeResponse {
		return SynthesizeResponse{Success: true, Circuit: "OPENQASM 3.0;\n// p=" + string(rune('0'+req.Depth))}
	})
	defer srv.Close()

	h, err := NewHTTPWithClient(srv.URL+"/", httpclient.WrapClient(srv.Client()), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	w, err := h.Synthesize(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "OPENQASM 3.0;\n// p=2", w.Circuit)
	assert.Equal(t, "openqasm3", w.Format)
	assert.Equal(t, ModeHTTP, w.Source)
}

func TestHTTP_ServiceRejects(t *testing.T) {
	srv := newSynthServer(t, func(req SynthesizeRequest) SynthesizeResponse {
		return SynthesizeResponse{Success: false, Error: "transpiler unavailable", Stderr: "ImportError: qiskit"}
	})
	defer srv.Close()

	h, err := NewHTTPWithClient(srv.URL, httpclient.WrapClient(srv.Client()), nil)
	require.NoError(t, err)

	_, err = h.Synthesize(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsExternalCallError(err))
	assert.Contains(t, err.Error(), "transpiler unavailable")
	assert.Contains(t, errors.FlattenDetails(err), "ImportError")
}

func TestHTTP_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	h, err := NewHTTPWithClient(srv.URL, httpclient.WrapClient(srv.Client()), nil)
	require.NoError(t, err)

	_, err = h.Synthesize(context.Background(), 1)
	assert.True(t, errors.IsExternalCallError(err))
}

func TestNewHTTP_BlocksLocalhostUnlessAllowed(t *testing.T) {
	_, err := NewHTTP("http://localhost:8090", time.Second, false, nil)
	assert.ErrorContains(t, err, "localhost")

	_, err = NewHTTP("http://localhost:8090", time.Second, true, nil)
	assert.NoError(t, err)

	_, err = NewHTTP("", time.Second, true, nil)
	assert.Error(t, err)
}

func TestNew_SelectsMode(t *testing.T) {
	s, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.IsType(t, &Builtin{}, s.Synthesizer)
	assert.IsType(t, &Builtin{}, s.Calibrator)
	assert.IsType(t, &Builtin{}, s.Pricer)

	s, err = New(Config{Mode: ModeCommand, Command: "echo"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Command{}, s.Synthesizer)
	assert.IsType(t, &Builtin{}, s.Calibrator, "no calibration command configured")
	assert.IsType(t, &Builtin{}, s.Pricer)

	s, err = New(Config{Mode: ModeCommand, Command: "echo", CalibrationCommand: "cat", PricingCommand: "echo"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Command{}, s.Calibrator)
	assert.IsType(t, &Command{}, s.Pricer)

	_, err = New(Config{Mode: ModeCommand, Command: "echo", PricingCommand: `python3 'unterminated`}, nil)
	assert.ErrorContains(t, err, "synth.pricing_command")

	s, err = New(Config{Mode: ModeHTTP, URL: "https://synth.example.com"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, s.Synthesizer)
	assert.IsType(t, &HTTP{}, s.Calibrator)
	assert.IsType(t, &HTTP{}, s.Pricer)

	_, err = New(Config{Mode: "pyo3"}, nil)
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestHTTP_SendsConfiguredDecoupling(t *testing.T) {
	var got []bool
	srv := newSynthServer(t, func(req SynthesizeRequest) SynthesizeResponse {
		got = append(got, req.DD)
		return SynthesizeResponse{Success: true, Circuit: "OPENQASM 2.0;"}
	})
	defer srv.Close()

	h, err := NewHTTPWithClient(srv.URL, httpclient.WrapClient(srv.Client()), nil)
	require.NoError(t, err)

	_, err = h.Synthesize(context.Background(), 1)
	require.NoError(t, err)
	_, err = h.WithDecoupling(false).Synthesize(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, got)
}

func TestBuiltin_CalibrateFromFidelityLoss(t *testing.T) {
	cal, err := NewSeededBuiltin(true, 7).Calibrate(context.Background(), "hw-ibm-heron", 3.7e-3, 156)
	require.NoError(t, err)

	assert.Equal(t, "hw-ibm-heron", cal.Backend)
	assert.Equal(t, ModeDigitalTwin, cal.Mode)
	require.Len(t, cal.Qubits, 156)
	for i, q := range cal.Qubits {
		assert.Equal(t, i, q.ID)
		assert.True(t, q.Operational)
		assert.LessOrEqual(t, q.T1, 500.0)
		assert.LessOrEqual(t, q.T2, 500.0)
		assert.LessOrEqual(t, q.ReadoutError, 0.2)
	}

	// single-qubit error 3.7e-4 -> t1 ≈ 0.05 / 3.7e-4 ≈ 135µs
	median, ok := cal.MedianT1()
	require.True(t, ok)
	assert.InDelta(t, 135, median, 20)
}

func TestBuiltin_CalibrateCapsCoherence(t *testing.T) {
	cal, err := NewSeededBuiltin(true, 1).Calibrate(context.Background(), "hw", 1e-6, 3)
	require.NoError(t, err)

	median, ok := cal.MedianT1()
	require.True(t, ok)
	assert.Equal(t, 500.0, median)
}

func TestBuiltin_CalibrateIsReproducible(t *testing.T) {
	a, err := NewSeededBuiltin(true, 42).Calibrate(context.Background(), "hw", 0.01, 5)
	require.NoError(t, err)
	b, err := NewSeededBuiltin(true, 42).Calibrate(context.Background(), "hw", 0.01, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalibrate_RejectsBadInput(t *testing.T) {
	b := NewBuiltin(true)
	_, err := b.Calibrate(context.Background(), "hw", 0, 5)
	assert.Error(t, err)
	_, err = b.Calibrate(context.Background(), "hw", 1.5, 5)
	assert.Error(t, err)
	_, err = b.Calibrate(context.Background(), "hw", 0.01, 0)
	assert.Error(t, err)
}

func TestMedianT1(t *testing.T) {
	cal := Calibration{Qubits: []QubitCalibration{
		{T1: 100, Operational: true},
		{T1: 10, Operational: false},
		{T1: 300, Operational: true},
		{T1: 200, Operational: true},
		{T1: 50, Operational: true},
	}}
	median, ok := cal.MedianT1()
	require.True(t, ok)
	assert.Equal(t, 150.0, median)

	_, ok = Calibration{}.MedianT1()
	assert.False(t, ok)
}

func TestBuiltin_Price(t *testing.T) {
	p, err := NewBuiltin(true).Price(context.Background(), OptionContract{Spot: 100, Strike: 105, Vol: 0.2, Rate: 0.05, Maturity: 0.1})
	require.NoError(t, err)

	lines := strings.Split(p.Workload.Circuit, "\n")
	assert.Equal(t, "OPENQASM 2.0;", lines[0])
	assert.Contains(t, lines, "qreg q[4];")
	assert.Contains(t, lines, "ry(0.2) q[2];")
	assert.Contains(t, lines, "cry(0.1) q[0], q[3];")
	assert.Equal(t, "measure q -> meas;", lines[len(lines)-1])
	assert.Equal(t, FormatQASM2, p.Workload.Format)

	// E[S_T] = S·exp(rT)
	assert.InDelta(t, 100*math.Exp(0.005), p.ExpectedSpot, 1e-9)
	assert.Greater(t, p.SpotVariance, 0.0)
	assert.Equal(t, 0.2, p.HedgeRatio)
}

func TestBuiltin_PriceRejectsBadContract(t *testing.T) {
	_, err := NewBuiltin(true).Price(context.Background(), OptionContract{Spot: 0, Strike: 105, Vol: 0.2, Maturity: 0.1})
	assert.ErrorContains(t, err, "spot")
	_, err = NewBuiltin(true).Price(context.Background(), OptionContract{Spot: 100, Strike: 105, Vol: 0.2})
	assert.ErrorContains(t, err, "maturity")
}

func TestHedgeRatio(t *testing.T) {
	assert.Equal(t, 0.2, HedgeRatio(0.2))
	assert.Equal(t, 0.2, HedgeRatio(0.5))
	assert.Equal(t, 0.8, HedgeRatio(0.51))
}

func TestPricingConfig(t *testing.T) {
	cfg := DefaultPricingConfig()
	require.NoError(t, cfg.Validate())

	c := cfg.Contract(101, 0.3)
	assert.Equal(t, OptionContract{Spot: 101, Strike: 105, Vol: 0.3, Rate: 0.05, Maturity: 0.1}, c)

	cfg.Strike = 0
	assert.Error(t, cfg.Validate())
	cfg.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestCommand_CalibrateReadsJSON(t *testing.T) {
	c, err := NewCommand(`sh -c 'printf "{\"backend\":\"%s\",\"qubits\":[{\"id\":0,\"t1\":%s,\"operational\":true}]}" "$0" "$2"'`, 5*time.Second, nil)
	require.NoError(t, err)

	// $0=backend $1=eplg $2=qubits
	cal, err := c.Calibrate(context.Background(), "hw-x", 0.004, 120)
	require.NoError(t, err)
	assert.Equal(t, "hw-x", cal.Backend)
	median, ok := cal.MedianT1()
	require.True(t, ok)
	assert.Equal(t, 120.0, median)
}

func TestCommand_CalibrateInvalidJSON(t *testing.T) {
	c, err := NewCommand("echo", time.Second, nil)
	require.NoError(t, err)

	_, err = c.Calibrate(context.Background(), "hw", 0.01, 5)
	require.Error(t, err)
	assert.True(t, errors.IsExternalCallError(err))
}

func TestCommand_PriceAppendsContract(t *testing.T) {
	c, err := NewCommand("echo", time.Second, nil)
	require.NoError(t, err)

	p, err := c.Price(context.Background(), OptionContract{Spot: 100, Strike: 105, Vol: 0.2, Rate: 0.05, Maturity: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "100 105 0.2 0.05 0.1", p.Workload.Circuit)
	assert.Equal(t, ModeCommand, p.Workload.Source)
	assert.Equal(t, 0.2, p.HedgeRatio)
}

func TestHTTP_CalibrateAndPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/calibrate":
			var req CalibrateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(Calibration{
				Backend: req.Backend,
				Qubits:  []QubitCalibration{{ID: 0, T1: 0.05 / (req.EPLG / 10), Operational: true}},
			})
		case "/api/price":
			var oc OptionContract
			require.NoError(t, json.NewDecoder(r.Body).Decode(&oc))
			assert.Equal(t, 105.0, oc.Strike)
			_ = json.NewEncoder(w).Encode(SynthesizeResponse{Success: true, Circuit: "OPENQASM 3.0;"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h, err := NewHTTPWithClient(srv.URL, httpclient.WrapClient(srv.Client()), nil)
	require.NoError(t, err)

	cal, err := h.Calibrate(context.Background(), "hw-ibm-heron", 5e-3, 156)
	require.NoError(t, err)
	median, ok := cal.MedianT1()
	require.True(t, ok)
	assert.InDelta(t, 100, median, 1e-9)

	p, err := h.Price(context.Background(), DefaultPricingConfig().Contract(100, 0.7))
	require.NoError(t, err)
	assert.Equal(t, "openqasm3", p.Workload.Format)
	assert.Equal(t, 0.8, p.HedgeRatio)
}

func TestHTTP_CalibrateFailureIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"qubits":[]}`))
	}))
	defer srv.Close()

	h, err := NewHTTPWithClient(srv.URL, httpclient.WrapClient(srv.Client()), nil)
	require.NoError(t, err)

	_, err = h.Calibrate(context.Background(), "hw", 0.01, 5)
	require.Error(t, err)
	assert.True(t, errors.IsExternalCallError(err))
}
