// Package health implements the circuit breaker that gates optimization cycles.
//
// The breaker's state, error count and last failure time live in one record
// behind one mutex; every operation takes the lock exactly once and never
// holds it across a call into another component.
package health

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/logger"
)

// State is the breaker state.
type State int

const (
	Healthy State = iota
	// Degraded is reserved; no transition currently targets it.
	Degraded
	Open
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Open:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults match the decision loop's operating envelope.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

// Config configures the breaker.
type Config struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"` // opens when the count exceeds this
	Cooldown         time.Duration `mapstructure:"cooldown"`          // time since last failure before re-admitting work
}

// DefaultConfig returns threshold 5 and a 30 second cooldown.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// MetricsSink receives observability events. Implemented by metrics.Recorder.
type MetricsSink interface {
	ObserveMetric(component, metric string, value float64)
	ObserveFailure(component string, errorCount uint32, state int)
	ObserveBreaker(errorCount uint32, state int)
}

// Snapshot is a consistent copy of the guarded record.
type Snapshot struct {
	State       State
	ErrorCount  uint32
	LastFailure time.Time // zero if no failure recorded
}

// Guard is the shared circuit breaker.
type Guard struct {
	cfg     Config
	sink    MetricsSink
	logger  *zap.SugaredLogger
	timeNow func() time.Time // Injectable for testing

	mu          sync.Mutex
	state       State
	errorCount  uint32
	lastFailure time.Time
}

// NewGuard creates a guard using real time. sink may be nil.
func NewGuard(cfg Config, sink MetricsSink, log *zap.SugaredLogger) *Guard {
	return NewGuardWithClock(cfg, sink, log, time.Now)
}

// NewGuardWithClock creates a guard with an injectable clock (for testing)
func NewGuardWithClock(cfg Config, sink MetricsSink, log *zap.SugaredLogger, timeNow func() time.Time) *Guard {
	return &Guard{
		cfg:     cfg,
		sink:    sink,
		logger:  logger.OrNop(log, "health"),
		timeNow: timeNow,
		state:   Healthy,
	}
}

// RecordFailure counts a failure of component and opens the breaker once the
// count exceeds the threshold.
func (g *Guard) RecordFailure(component, message string) {
	g.mu.Lock()
	g.errorCount++
	g.lastFailure = g.timeNow()
	opened := false
	if g.errorCount > g.cfg.FailureThreshold {
		opened = g.state != Open
		g.state = Open
	}
	count, state := g.errorCount, g.state
	g.mu.Unlock()

	g.logger.Errorw("Component failure",
		logger.FieldComponent, component,
		logger.FieldError, message,
		logger.FieldErrorCount, count,
		"action", "investigate")

	if opened {
		g.logger.Warnw("CIRCUIT OPENED: too many failures",
			logger.FieldComponent, component,
			logger.FieldErrorCount, count,
			logger.FieldCooldown, g.cfg.Cooldown)
	}

	if g.sink != nil {
		g.sink.ObserveFailure(component, count, int(state))
	}
}

// RecordMetric emits a structured metric event. It never changes breaker state.
func (g *Guard) RecordMetric(component, metric string, value float64) {
	g.logger.Infow("metric",
		logger.FieldComponent, component,
		logger.FieldMetric, metric,
		logger.FieldValue, value,
		"timestamp", g.timeNow().UTC().Format(time.RFC3339))

	if g.sink != nil {
		g.sink.ObserveMetric(component, metric, value)
	}
}

// CheckHealth reports whether work may proceed. An open breaker closes again,
// with its counter reset, once the cooldown has elapsed since the last failure.
func (g *Guard) CheckHealth() bool {
	g.mu.Lock()
	if g.state != Open {
		g.mu.Unlock()
		return true
	}

	if g.lastFailure.IsZero() || g.timeNow().Sub(g.lastFailure) <= g.cfg.Cooldown {
		g.mu.Unlock()
		return false
	}

	g.errorCount = 0
	g.state = Healthy
	g.mu.Unlock()

	g.logger.Infow("System recovered, circuit closed", logger.FieldState, Healthy.String())
	if g.sink != nil {
		g.sink.ObserveBreaker(0, int(Healthy))
	}
	return true
}

// Snapshot returns the current state, count and last failure time together.
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Snapshot{
		State:       g.state,
		ErrorCount:  g.errorCount,
		LastFailure: g.lastFailure,
	}
}
