// Package pulse runs the decision loop as a two-goroutine pipeline.
//
// A producer advances the signal source on a fixed cadence and pushes each
// sample into a bounded channel, blocking when the consumer falls behind.
// The consumer applies the health guard and the obligation monitor to every
// sample in generation order. Only samples both admit advance the step
// counter, and an orchestration cycle runs on every TriggerEvery-th step.
// All decision logic runs on the consumer.
package pulse

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/health"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/manager"
	"github.com/teranos/sentinel/monitor"
	"github.com/teranos/sentinel/synth"
)

// Config controls cadence and triggers.
type Config struct {
	Interval        time.Duration `mapstructure:"interval"`          // producer cadence; 0 runs unpaced
	Buffer          int           `mapstructure:"buffer"`            // channel capacity
	TriggerEvery    uint64        `mapstructure:"trigger_every"`     // run a cycle when step % TriggerEvery == 0
	HeartbeatEvery  uint64        `mapstructure:"heartbeat_every"`   // in steps; 0 disables the heartbeat
	HedgeOnDispatch bool          `mapstructure:"hedge_on_dispatch"` // treat a completed cycle as satisfying the obligation
	MaxTicks        uint64        `mapstructure:"max_ticks"`         // received samples; 0 runs until cancelled
}

// DefaultConfig returns a 50ms cadence, a 32-slot buffer, a cycle every 50
// steps and a heartbeat every 10.
func DefaultConfig() Config {
	return Config{
		Interval:       50 * time.Millisecond,
		Buffer:         32,
		TriggerEvery:   50,
		HeartbeatEvery: 10,
	}
}

// Validate checks the pipeline settings.
func (c Config) Validate() error {
	if c.Interval < 0 {
		return errors.Newf("pulse.interval must be >= 0, got %s", c.Interval)
	}
	if c.Buffer < 1 {
		return errors.Newf("pulse.buffer must be >= 1, got %d", c.Buffer)
	}
	if c.TriggerEvery == 0 {
		return errors.New("pulse.trigger_every must be >= 1")
	}
	return nil
}

// Source produces the signal. Implemented by feed.Generator.
type Source interface {
	Advance() float64
	Variance() float64
}

// Monitor is the obligation state machine. Implemented by monitor.Monitor.
type Monitor interface {
	Check(ev monitor.Event) bool
	State() monitor.State
}

// Guard gates ticks. Implemented by health.Guard.
type Guard interface {
	CheckHealth() bool
	Snapshot() health.Snapshot
}

// Orchestrator runs one cycle. Implemented by manager.Manager.
type Orchestrator interface {
	RunCycle(ctx context.Context, step uint64, price float64, ledger manager.Ledger) manager.Decision
}

// SignalRecorder receives per-tick observations. Implemented by metrics.Recorder.
type SignalRecorder interface {
	SignalPrice(price float64)
	SafetyViolation()
}

// Pricer synthesizes an option-pricing workload. Implemented by the synth services.
type Pricer interface {
	Price(ctx context.Context, c synth.OptionContract) (synth.Pricing, error)
}

// Sample is one generated value. Variance travels with the price so the
// consumer never reads generator state owned by the producer.
type Sample struct {
	Price    float64
	Variance float64
}

// Stats summarizes a run. Ticks counts every received sample; Steps only
// those admitted by both the guard and the monitor.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Steps      uint64 `json:"steps"`
	Skipped    uint64 `json:"skipped"`    // ticks refused by the guard
	Violations uint64 `json:"violations"` // ticks the monitor suppressed
	Cycles     uint64 `json:"cycles"`
	Dispatched uint64 `json:"dispatched"` // cycles that produced a job id
}

// Pipeline wires a source to the decision components.
type Pipeline struct {
	cfg      Config
	source   Source
	monitor  Monitor
	guard    Guard
	orch     Orchestrator
	ledger   manager.Ledger
	recorder SignalRecorder
	pricer   Pricer
	pricing  synth.PricingConfig
	memStats func() (MemoryStats, error)
	logger   *zap.SugaredLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLedger passes l to every cycle.
func WithLedger(l manager.Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithRecorder reports prices and safety violations to r.
func WithRecorder(r SignalRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPricing prices an option on the current sample before every cycle.
func WithPricing(pr Pricer, cfg synth.PricingConfig) Option {
	return func(p *Pipeline) {
		p.pricer = pr
		p.pricing = cfg
	}
}

// WithMemoryStats overrides the heartbeat's memory reader. nil disables it.
func WithMemoryStats(fn func() (MemoryStats, error)) Option {
	return func(p *Pipeline) { p.memStats = fn }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Pipeline) { p.logger = log }
}

// New creates a pipeline. The source must not be shared with anything else
// once Run starts.
func New(cfg Config, source Source, mon Monitor, guard Guard, orch Orchestrator, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		source:   source,
		monitor:  mon,
		guard:    guard,
		orch:     orch,
		memStats: ReadMemoryStats,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.Buffer < 1 {
		p.cfg.Buffer = 1
	}
	p.logger = logger.OrNop(p.logger, "pulse")
	return p
}

// Run drives the loop until ctx is cancelled or MaxTicks samples have been
// consumed. It returns ctx's error when stopped by cancellation.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan Sample, p.cfg.Buffer)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.produce(runCtx, samples)
	}()

	p.logger.Infow("Decision loop started",
		"interval", p.cfg.Interval,
		"trigger_every", p.cfg.TriggerEvery,
		"pricing", p.pricer != nil,
		"max_ticks", p.cfg.MaxTicks)

	var stats Stats
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case s, ok := <-samples:
			if !ok {
				break loop
			}
			stats.Ticks++
			p.consume(runCtx, stats.Ticks, s, &stats)
			if p.cfg.MaxTicks > 0 && stats.Ticks >= p.cfg.MaxTicks {
				break loop
			}
		}
	}

	cancel()
	wg.Wait()

	p.logger.Infow("Decision loop stopped",
		"ticks", stats.Ticks,
		"steps", stats.Steps,
		"cycles", stats.Cycles,
		"dispatched", stats.Dispatched,
		"violations", stats.Violations,
		"skipped", stats.Skipped)

	return stats, ctx.Err()
}

// produce owns the source. It exits silently once ctx is done.
func (p *Pipeline) produce(ctx context.Context, out chan<- Sample) {
	defer close(out)

	limiter := rate.NewLimiter(rate.Every(p.cfg.Interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		s := Sample{Price: p.source.Advance(), Variance: p.source.Variance()}
		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
	}
}

// consume applies the guard and the monitor to one sample. A refused sample
// mutates nothing beyond the counters and does not advance the step.
func (p *Pipeline) consume(ctx context.Context, tick uint64, s Sample, stats *Stats) {
	if !p.guard.CheckHealth() {
		stats.Skipped++
		p.logger.Debugw("Circuit open, tick skipped", logger.FieldTick, tick, logger.FieldError, errors.ErrBreakerOpen)
		return
	}
	if p.recorder != nil {
		p.recorder.SignalPrice(s.Price)
	}

	proceed := p.monitor.Check(monitor.Price(s.Price))
	if !proceed {
		stats.Violations++
		if p.recorder != nil {
			p.recorder.SafetyViolation()
		}
		st := p.monitor.State()
		p.logger.Warnw("Dispatch suppressed by safety monitor",
			logger.FieldTick, tick,
			logger.FieldPrice, s.Price,
			logger.FieldState, st.String(),
			logger.FieldError, errors.Mark(errors.Newf("obligation pending for %d ticks", st.Elapsed), errors.ErrSafetyViolation))
		return
	}

	stats.Steps++
	step := stats.Steps

	if step%p.cfg.TriggerEvery == 0 {
		p.price(ctx, step, s)
		d := p.orch.RunCycle(ctx, step, s.Price, p.ledger)
		stats.Cycles++
		if d.JobID != "" {
			stats.Dispatched++
			if p.cfg.HedgeOnDispatch {
				p.monitor.Check(monitor.Satisfied())
			}
		}
	}

	if p.cfg.HeartbeatEvery > 0 && step%p.cfg.HeartbeatEvery == 0 {
		p.heartbeat(tick, step, s)
	}
}

// price runs the pricing workload for a triggered step. Its outcome is only
// logged; a failure never holds back the cycle.
func (p *Pipeline) price(ctx context.Context, step uint64, s Sample) {
	if p.pricer == nil {
		return
	}
	vol := math.Sqrt(s.Variance)
	res, err := p.pricer.Price(ctx, p.pricing.Contract(s.Price, vol))
	if err != nil {
		p.logger.Warnw("Option pricing failed", logger.FieldStep, step, logger.FieldError, err)
		return
	}
	p.logger.Infow("Option pricing complete",
		logger.FieldStep, step,
		logger.FieldPrice, s.Price,
		"strike", p.pricing.Strike,
		"vol", vol,
		"expected_spot", res.ExpectedSpot,
		"hedge_ratio", res.HedgeRatio,
		"source", res.Workload.Source)
}

func (p *Pipeline) heartbeat(tick, step uint64, s Sample) {
	snap := p.guard.Snapshot()
	fields := []interface{}{
		logger.FieldTick, tick,
		logger.FieldStep, step,
		logger.FieldPrice, s.Price,
		logger.FieldVariance, s.Variance,
		"obligation", p.monitor.State().String(),
		logger.FieldState, snap.State.String(),
		logger.FieldErrorCount, snap.ErrorCount,
	}
	if p.memStats != nil {
		if m, err := p.memStats(); err == nil {
			fields = append(fields, "mem", fmt.Sprintf("%.1f/%.1fGB (%.0f%%)", m.UsedGB, m.TotalGB, m.Percent))
		}
	}
	p.logger.Infow("Heartbeat", fields...)
}
