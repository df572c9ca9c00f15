package synth

import (
	"context"
	"math"
	"slices"

	"github.com/teranos/sentinel/errors"
)

// Calibration model constants for superconducting devices.
const (
	gateTimeUS       = 0.05  // typical transmon single-qubit gate time
	minQubitError    = 1e-5  // floor for a single-qubit error rate
	maxCoherenceUS   = 500.0 // physical cap on reported t1 and t2
	maxReadoutError  = 0.2
	errorVariability = 0.2 // relative spread of per-qubit error across the chip
)

// ModeDigitalTwin tags calibrations reconstructed from the fidelity-loss metric.
const ModeDigitalTwin = "digital_twin_physics_simulation"

// QubitCalibration is the calibration record of one qubit. Times are µs.
type QubitCalibration struct {
	ID           int     `json:"id"`
	T1           float64 `json:"t1"`
	T2           float64 `json:"t2"`
	ReadoutError float64 `json:"readout_error"`
	Frequency    float64 `json:"frequency"` // GHz
	Operational  bool    `json:"operational"`
}

// Calibration is a device calibration snapshot.
type Calibration struct {
	Backend string             `json:"backend"`
	Mode    string             `json:"mode"`
	Status  string             `json:"general_status"`
	Qubits  []QubitCalibration `json:"qubits"`
}

// Calibrator produces calibration data for a device from its error per
// layered gate and qubit count.
type Calibrator interface {
	Calibrate(ctx context.Context, backend string, eplg float64, qubits int) (Calibration, error)
}

// MedianT1 returns the median t1 over operational qubits.
func (c Calibration) MedianT1() (float64, bool) {
	var t1s []float64
	for _, q := range c.Qubits {
		if q.Operational && q.T1 > 0 {
			t1s = append(t1s, q.T1)
		}
	}
	if len(t1s) == 0 {
		return 0, false
	}
	slices.Sort(t1s)
	mid := len(t1s) / 2
	if len(t1s)%2 == 1 {
		return t1s[mid], true
	}
	return (t1s[mid-1] + t1s[mid]) / 2, true
}

func checkCalibrationInput(eplg float64, qubits int) error {
	if eplg <= 0 || eplg >= 1 || math.IsNaN(eplg) {
		return errors.Newf("eplg must be in (0, 1), got %g", eplg)
	}
	if qubits < 1 {
		return errors.Newf("qubit count must be at least 1, got %d", qubits)
	}
	return nil
}

// Calibrate reconstructs a calibration set from eplg. The single-qubit error
// is a tenth of eplg, spread per qubit, and t1 follows from error ≈ t_gate/t1.
func (b *Builtin) Calibrate(ctx context.Context, backend string, eplg float64, qubits int) (Calibration, error) {
	if err := checkCalibrationInput(eplg, qubits); err != nil {
		return Calibration{}, err
	}
	if err := ctx.Err(); err != nil {
		return Calibration{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	avg := eplg / 10
	cal := Calibration{
		Backend: backend,
		Mode:    ModeDigitalTwin,
		Status:  "active",
		Qubits:  make([]QubitCalibration, qubits),
	}
	for i := range cal.Qubits {
		scale := 1 + errorVariability*b.rng.NormFloat64()
		qerr := max(minQubitError, avg*scale)
		t1 := gateTimeUS / qerr
		t2 := t1 * (0.8 + 0.4*b.rng.Float64())
		cal.Qubits[i] = QubitCalibration{
			ID:           i,
			T1:           min(t1, maxCoherenceUS),
			T2:           min(t2, maxCoherenceUS),
			ReadoutError: min(qerr*10, maxReadoutError),
			Frequency:    5.0 + 0.05*float64(i) + 0.02*b.rng.Float64() - 0.01,
			Operational:  true,
		}
	}
	return cal, nil
}
