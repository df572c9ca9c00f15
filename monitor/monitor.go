// Package monitor enforces the hedge obligation over the price stream.
//
// The property is "every price below the threshold is eventually followed by
// an obligation-satisfied event". It is checked as a two-state machine:
// Clear, and Pending(n) where n counts the ticks since the obligation opened.
// Once n exceeds the tolerance every further tick is a safety violation until
// the obligation is satisfied; the counter is never reset by a violation.
package monitor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/logger"
)

// DefaultThreshold is the price below which an obligation opens.
const DefaultThreshold = 100.0

// DefaultTolerance is the number of pending ticks allowed before a violation.
const DefaultTolerance = 10

// EventKind identifies what happened on a tick.
type EventKind int

const (
	PriceUpdate EventKind = iota
	ObligationSatisfied
	// JobCompleted is reserved; it carries no state logic of its own and,
	// like any other event, ages a pending obligation.
	JobCompleted
)

func (k EventKind) String() string {
	switch k {
	case PriceUpdate:
		return "price_update"
	case ObligationSatisfied:
		return "obligation_satisfied"
	case JobCompleted:
		return "job_completed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input to the monitor.
type Event struct {
	Kind  EventKind
	Price float64 // only meaningful for PriceUpdate
}

// Price builds a price-update event.
func Price(v float64) Event { return Event{Kind: PriceUpdate, Price: v} }

// Satisfied builds an obligation-satisfied event.
func Satisfied() Event { return Event{Kind: ObligationSatisfied} }

// StateKind is the tag of State.
type StateKind int

const (
	Clear StateKind = iota
	Pending
)

// State is Clear or Pending(Elapsed).
type State struct {
	Kind    StateKind
	Elapsed uint64
}

func (s State) String() string {
	if s.Kind == Pending {
		return fmt.Sprintf("Pending(%d)", s.Elapsed)
	}
	return "Clear"
}

// Monitor owns the obligation state. It is driven by a single consumer and
// is not safe for concurrent use.
type Monitor struct {
	state     State
	tolerance uint64
	threshold float64
	logger    *zap.SugaredLogger
}

// New creates a monitor in the Clear state.
func New(tolerance uint64, threshold float64, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		state:     State{Kind: Clear},
		tolerance: tolerance,
		threshold: threshold,
		logger:    logger.OrNop(log, "monitor"),
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	return m.state
}

// Tolerance returns the configured tolerance window in ticks.
func (m *Monitor) Tolerance() uint64 {
	return m.tolerance
}

// Check applies ev and reports whether the caller may proceed this tick.
// false means the tolerance has been exceeded and gated actions must be suppressed.
func (m *Monitor) Check(ev Event) bool {
	switch m.state.Kind {
	case Clear:
		if ev.Kind == PriceUpdate && ev.Price < m.threshold {
			m.logger.Warnw("Policy precondition violated, obligation opened",
				logger.FieldPrice, ev.Price,
				"threshold", m.threshold)
			m.state = State{Kind: Pending}
		}
	case Pending:
		if ev.Kind == ObligationSatisfied {
			m.logger.Infow("Obligation met, returning to clear",
				logger.FieldElapsed, m.state.Elapsed)
			m.state = State{Kind: Clear}
			return true
		}
		m.state.Elapsed++
		if m.state.Elapsed > m.tolerance {
			m.logger.Errorw("SAFETY VIOLATION: obligation not met within tolerance",
				logger.FieldElapsed, m.state.Elapsed,
				logger.FieldTolerance, m.tolerance,
				"event", ev.Kind.String())
			return false
		}
	}
	return true
}
