// Package coherence checks whether a workload fits inside the execution
// substrate's coherence window.
package coherence

import (
	"go.uber.org/zap"

	"github.com/teranos/sentinel/logger"
)

const (
	// GateTimePerLayerUS is the estimated duration of one circuit layer in microseconds.
	GateTimePerLayerUS = 0.05
	// SafetyMargin is the fraction of the coherence limit a workload may use.
	SafetyMargin = 0.5
)

// Estimate returns the estimated duration of layers in microseconds.
func Estimate(layers int) float64 {
	return float64(layers) * GateTimePerLayerUS
}

// Limit returns the margin-adjusted coherence limit for t1 microseconds.
func Limit(t1Micros float64) float64 {
	return t1Micros * SafetyMargin
}

// Verify reports whether layers fit within the margin-adjusted limit.
func Verify(layers int, t1Micros float64) bool {
	return Estimate(layers) <= Limit(t1Micros)
}

// VerifyLogged is Verify with a warning on rejection.
func VerifyLogged(layers int, t1Micros float64, log *zap.SugaredLogger) bool {
	if Verify(layers, t1Micros) {
		return true
	}
	logger.OrNop(log, "coherence").Warnw("Feasibility violation: workload exceeds coherence window",
		logger.FieldLayers, layers,
		logger.FieldDurationUS, Estimate(layers),
		logger.FieldLimitUS, Limit(t1Micros))
	return false
}
