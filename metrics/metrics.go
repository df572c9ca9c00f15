// Package metrics exposes decision loop observability as Prometheus series.
//
// A Recorder owns a private registry so tests and multiple pipelines in one
// process never collide on global registration.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

const namespace = "sentinel"

// Cycle outcomes used as the outcome label of sentinel_cycles_total.
const (
	OutcomeDispatched     = "dispatched"
	OutcomeSynthesized    = "synthesized" // no dispatcher configured
	OutcomeInfeasible     = "infeasible"
	OutcomeSynthFailed    = "synth_failed"
	OutcomeDispatchFailed = "dispatch_failed"
)

// Recorder holds the registered collectors.
type Recorder struct {
	registry *prometheus.Registry

	breakerState     prometheus.Gauge
	breakerErrors    prometheus.Gauge
	componentMetric  *prometheus.GaugeVec
	componentFailure *prometheus.CounterVec
	cycles           *prometheus.CounterVec
	violations       prometheus.Counter
	signalPrice      prometheus.Gauge
}

// NewRecorder creates and registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0 healthy, 1 degraded, 2 open).",
		}),
		breakerErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "errors",
			Help:      "Failures recorded since the breaker last closed.",
		}),
		componentMetric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_metric",
			Help:      "Last value reported by a component for a named metric.",
		}, []string{"component", "metric"}),
		componentFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_failures_total",
			Help:      "Failures reported to the health guard, by component.",
		}, []string{"component"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Optimization cycles run, by outcome.",
		}, []string{"outcome"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_violations_total",
			Help:      "Ticks on which the obligation tolerance was exceeded.",
		}),
		signalPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "price",
			Help:      "Most recent simulated price.",
		}),
	}

	r.registry.MustRegister(
		r.breakerState,
		r.breakerErrors,
		r.componentMetric,
		r.componentFailure,
		r.cycles,
		r.violations,
		r.signalPrice,
	)
	return r
}

// Registry returns the underlying registry (for Gather in tests).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveMetric records a component metric value.
func (r *Recorder) ObserveMetric(component, metric string, value float64) {
	r.componentMetric.WithLabelValues(component, metric).Set(value)
}

// ObserveFailure counts a component failure and the breaker's view after it.
func (r *Recorder) ObserveFailure(component string, errorCount uint32, state int) {
	r.componentFailure.WithLabelValues(component).Inc()
	r.ObserveBreaker(errorCount, state)
}

// ObserveBreaker sets the breaker gauges.
func (r *Recorder) ObserveBreaker(errorCount uint32, state int) {
	r.breakerErrors.Set(float64(errorCount))
	r.breakerState.Set(float64(state))
}

// CycleCompleted counts a cycle by outcome.
func (r *Recorder) CycleCompleted(outcome string) {
	r.cycles.WithLabelValues(outcome).Inc()
}

// SafetyViolation counts a violating tick.
func (r *Recorder) SafetyViolation() {
	r.violations.Inc()
}

// SignalPrice records the latest price.
func (r *Recorder) SignalPrice(price float64) {
	r.signalPrice.Set(price)
}

// Handler returns the /metrics handler for this registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, log *zap.SugaredLogger) error {
	log = logger.OrNop(log, "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Metrics server listening", logger.FieldAddress, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shut down metrics server")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "metrics server on %s failed", addr)
	}
}
