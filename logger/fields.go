package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across sentinel.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID     = "job_id"
	FieldSessionID = "session_id"
	FieldProgramID = "program_id"
	FieldBackend   = "backend"
	FieldNodeID    = "node_id"

	// Components
	FieldComponent = "component"
	FieldTarget    = "target"

	// Decision loop
	FieldTick      = "tick"
	FieldStep      = "step"
	FieldPrice     = "price"
	FieldVariance  = "variance"
	FieldTheta     = "theta"
	FieldStrategy  = "strategy"
	FieldDepth     = "depth"
	FieldLayers    = "layers"
	FieldOutcome   = "outcome"
	FieldElapsed   = "elapsed_ticks"
	FieldTolerance = "tolerance"

	// Metrics
	FieldMetric = "metric"
	FieldValue  = "value"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldDurationUS = "duration_us"
	FieldLimitUS    = "limit_us"
	FieldCooldown   = "cooldown"

	// Errors
	FieldError      = "error"
	FieldErrorCount = "error_count"

	// Status
	FieldState = "state"
	FieldMode  = "mode"

	// Files and network
	FieldPath    = "path"
	FieldAddress = "address"
	FieldURL     = "url"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Guard struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewGuard() *Guard {
//	    return &Guard{
//	        logger: logger.ComponentLogger("health"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
//	cycleLog := logger.ChildLogger(baseLogger, logger.FieldStep, step)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}

// OrNop returns l, or the component logger for name when l is nil.
func OrNop(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return ComponentLogger(name)
}
