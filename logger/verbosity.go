package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityDefault = 0 // No flags: decision loop events at info
	VerbosityDebug   = 1 // -v: + per-tick signal values, HTTP calls
	VerbosityTrace   = 2 // -vv: + everything zap can emit
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels
//
// Mapping:
//
//	0 (none) -> InfoLevel
//	1 (-v)   -> DebugLevel
//	2+       -> DebugLevel (zap has no finer level)
//
// Negative values quiet the logger down to warnings.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity < 0:
		return zapcore.WarnLevel
	case verbosity == VerbosityDefault:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// LevelName returns a human-readable name for verbosity level
func LevelName(verbosity int) string {
	switch {
	case verbosity < 0:
		return "Quiet"
	case verbosity == VerbosityDefault:
		return "Default"
	case verbosity == VerbosityDebug:
		return "Debug (-v)"
	default:
		return "Trace (-vv)"
	}
}
