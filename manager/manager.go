// Package manager runs one optimization cycle: pick a strategy from the
// knowledge base, check it fits the coherence window, synthesize the
// workload, hand it to the execution backend and sign the outcome into the
// ledger.
//
// A Manager holds no per-cycle state. Every cycle that does not complete is
// simply skipped; the next trigger tries again from scratch.
package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/coherence"
	"github.com/teranos/sentinel/knowledge"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/metrics"
	"github.com/teranos/sentinel/monitor"
	"github.com/teranos/sentinel/qpu"
	"github.com/teranos/sentinel/synth"
)

const (
	// DefaultTarget is the device node strategies are inferred for.
	DefaultTarget = "hw-ibm-heron"
	// LayersPerDepth converts algorithm depth into circuit layers.
	LayersPerDepth = 10
	// DefaultCoherenceLimitUS is used when the target is not in the knowledge base.
	DefaultCoherenceLimitUS = 50.0
	// DefaultCalibrationQubits is used when the target does not record its qubit count.
	DefaultCalibrationQubits = 5
)

// Where a cycle's coherence limit came from.
const (
	LimitKnowledge     = "knowledge"
	LimitCalibration   = "calibration"
	LimitDeviceDefault = "device_default"
	LimitDefault       = "default"
)

// Guard receives failure and metric reports. Implemented by health.Guard.
type Guard interface {
	RecordFailure(component, message string)
	RecordMetric(component, metric string, value float64)
}

// Dispatcher submits a workload to the execution backend. Implemented by qpu.Dispatcher.
type Dispatcher interface {
	Submit(ctx context.Context, params, options map[string]any) (string, error)
}

// Ledger records a signed transaction. Implemented by ledger.Ledger.
type Ledger interface {
	RecordTransaction(price, auxiliary float64, jobID string) error
}

// CycleRecorder counts cycle outcomes. Implemented by metrics.Recorder.
type CycleRecorder interface {
	CycleCompleted(outcome string)
}

// Decision is what one cycle chose and what became of it.
type Decision struct {
	Step                uint64
	Strategy            string
	Depth               int
	Layers              int
	CoherenceLimit      float64 // µs, before margin
	LimitSource         string
	EstimatedDurationUS float64
	Feasible            bool
	Theta               float64
	JobID               string
	Outcome             string
}

// Manager orchestrates cycles.
type Manager struct {
	kb         *knowledge.Base
	guard      Guard
	synth      synth.Synthesizer
	calibrator synth.Calibrator
	dispatcher Dispatcher
	cycles     CycleRecorder
	target     string
	jobOptions map[string]any
	logger     *zap.SugaredLogger
	timeNow    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDispatcher submits every synthesized workload through d.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithCalibrator derives the coherence limit from c for targets without a
// recorded t1.
func WithCalibrator(c synth.Calibrator) Option {
	return func(m *Manager) { m.calibrator = c }
}

// WithTarget overrides the device node strategies are inferred for.
func WithTarget(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.target = id
		}
	}
}

// WithJobOptions overrides the runtime options sent with each job.
func WithJobOptions(opts map[string]any) Option {
	return func(m *Manager) { m.jobOptions = opts }
}

// WithCycleRecorder counts cycle outcomes on r.
func WithCycleRecorder(r CycleRecorder) Option {
	return func(m *Manager) { m.cycles = r }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *Manager) { m.logger = log }
}

// WithClock injects the time source used to measure cycle latency.
func WithClock(timeNow func() time.Time) Option {
	return func(m *Manager) { m.timeNow = timeNow }
}

// New creates a manager. kb may be nil, in which case every cycle uses the
// conservative defaults.
func New(kb *knowledge.Base, guard Guard, s synth.Synthesizer, opts ...Option) *Manager {
	m := &Manager{
		kb:         kb,
		guard:      guard,
		synth:      s,
		target:     DefaultTarget,
		jobOptions: qpu.DefaultOptions(),
		timeNow:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrNop(m.logger, "manager")
	return m
}

// Theta is the auxiliary parameter recorded with a price: its relative
// deviation from the obligation threshold.
func Theta(price float64) float64 {
	return (price - monitor.DefaultThreshold) / monitor.DefaultThreshold
}

// RunCycle runs one cycle for step at price. ledger may be nil.
func (m *Manager) RunCycle(ctx context.Context, step uint64, price float64, ledger Ledger) Decision {
	log := logger.ChildLogger(m.logger, logger.FieldStep, step)
	log.Infow("Optimization cycle triggered", logger.FieldPrice, price)

	d := Decision{Step: step, Theta: Theta(price)}

	// 1. Strategy
	strategy := m.kb.InferStrategy(m.target)
	t1, source := ResolveCoherenceLimit(ctx, m.kb, m.target, m.calibrator, log)
	if m.kb == nil {
		log.Warnw("Knowledge base absent, using conservative defaults",
			logger.FieldDepth, strategy.Depth,
			logger.FieldLimitUS, t1)
	}
	d.Strategy = strategy.Name
	d.Depth = strategy.Depth
	d.CoherenceLimit = t1
	d.LimitSource = source
	log.Infow("Strategy selected",
		logger.FieldTarget, m.target,
		logger.FieldStrategy, strategy.Name,
		logger.FieldDepth, strategy.Depth,
		logger.FieldLimitUS, t1,
		"limit_source", source)

	// 2-3. Feasibility
	d.Layers = strategy.Depth * LayersPerDepth
	d.EstimatedDurationUS = coherence.Estimate(d.Layers)
	d.Feasible = coherence.VerifyLogged(d.Layers, t1, log)
	if !d.Feasible {
		log.Errorw("Optimization aborted: coherence window exceeded",
			logger.FieldLayers, d.Layers,
			logger.FieldDurationUS, d.EstimatedDurationUS,
			logger.FieldLimitUS, coherence.Limit(t1))
		return m.finish(d, metrics.OutcomeInfeasible)
	}

	// 4. Synthesis
	start := m.timeNow()
	workload, err := m.synth.Synthesize(ctx, strategy.Depth)
	if err != nil {
		log.Errorw("Workload synthesis failed", logger.FieldDepth, strategy.Depth, logger.FieldError, err)
		m.guard.RecordFailure("synth", err.Error())
		return m.finish(d, metrics.OutcomeSynthFailed)
	}

	// 4b. Dispatch
	outcome := metrics.OutcomeSynthesized
	if m.dispatcher != nil {
		params := map[string]any{
			"market_theta": d.Theta,
			"depth":        strategy.Depth,
			"circuit":      workload.Circuit,
		}
		jobID, err := m.dispatcher.Submit(ctx, params, m.jobOptions)
		if err != nil {
			log.Errorw("Job dispatch failed", logger.FieldError, err)
			m.guard.RecordFailure("qpu", err.Error())
			return m.finish(d, metrics.OutcomeDispatchFailed)
		}
		d.JobID = jobID
		outcome = metrics.OutcomeDispatched
	} else {
		d.JobID = "mgr-" + uuid.NewString()
	}

	// 5. Observability and ledger
	m.guard.RecordMetric("qpu", "latency", float64(m.timeNow().Sub(start).Milliseconds()))

	if ledger != nil {
		if err := ledger.RecordTransaction(price, d.Theta, d.JobID); err != nil {
			log.Errorw("Ledger record failed", logger.FieldJobID, d.JobID, logger.FieldError, err)
		}
	}

	log.Infow("Optimization cycle complete",
		logger.FieldJobID, d.JobID,
		logger.FieldTheta, d.Theta,
		"format", workload.Format)
	return m.finish(d, outcome)
}

// ResolveCoherenceLimit returns the t1 used for target and where it came from.
// A recorded t1_us wins. A known device without one is calibrated from its
// eplg when cal is set; otherwise, or if calibration fails, it gets
// knowledge.DeviceT1Fallback. An unknown target gets DefaultCoherenceLimitUS.
func ResolveCoherenceLimit(ctx context.Context, kb *knowledge.Base, target string, cal synth.Calibrator, log *zap.SugaredLogger) (float64, string) {
	log = logger.OrNop(log, "manager")

	if t1, ok := kb.MeasuredT1(target); ok {
		return t1, LimitKnowledge
	}
	if _, ok := kb.Node(target); !ok {
		return DefaultCoherenceLimitUS, LimitDefault
	}
	if cal == nil {
		return knowledge.DeviceT1Fallback, LimitDeviceDefault
	}
	eplg, ok := kb.FidelityLoss(target)
	if !ok {
		return knowledge.DeviceT1Fallback, LimitDeviceDefault
	}
	qubits, ok := kb.QubitCount(target)
	if !ok {
		qubits = DefaultCalibrationQubits
	}

	c, err := cal.Calibrate(ctx, target, eplg, qubits)
	if err != nil {
		log.Warnw("Calibration failed, using device default",
			logger.FieldTarget, target,
			logger.FieldLimitUS, knowledge.DeviceT1Fallback,
			logger.FieldError, err)
		return knowledge.DeviceT1Fallback, LimitDeviceDefault
	}
	t1, ok := c.MedianT1()
	if !ok {
		log.Warnw("Calibration has no operational qubits, using device default", logger.FieldTarget, target)
		return knowledge.DeviceT1Fallback, LimitDeviceDefault
	}
	log.Debugw("Coherence limit calibrated",
		logger.FieldTarget, target,
		"qubits", len(c.Qubits),
		logger.FieldLimitUS, t1)
	return t1, LimitCalibration
}

func (m *Manager) finish(d Decision, outcome string) Decision {
	d.Outcome = outcome
	if m.cycles != nil {
		m.cycles.CycleCompleted(outcome)
	}
	return d
}
