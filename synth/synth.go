// Package synth produces executable workload descriptions for a chosen depth,
// device calibrations and option-pricing workloads.
//
// Each operation has a native implementation, an external-command one and an
// HTTP-service one. Only success or failure and the opaque circuit text
// matter to callers of Synthesize and Price.
package synth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
)

// Modes accepted in Config.Mode.
const (
	ModeBuiltin = "builtin"
	ModeCommand = "command"
	ModeHTTP    = "http"
)

// FormatQASM2 is the circuit format produced by the builtin synthesizer.
const FormatQASM2 = "openqasm2"

// Workload is a synthesized circuit.
type Workload struct {
	Depth   int
	Format  string
	Circuit string
	Source  string // synthesizer that produced it
}

// Synthesizer turns a depth into a workload.
type Synthesizer interface {
	Synthesize(ctx context.Context, depth int) (Workload, error)
}

// Config selects and configures the synthesis service.
type Config struct {
	Mode               string        `mapstructure:"mode"`
	Command            string        `mapstructure:"command"`             // for ModeCommand, depth is appended
	CalibrationCommand string        `mapstructure:"calibration_command"` // for ModeCommand; empty calibrates natively
	PricingCommand     string        `mapstructure:"pricing_command"`     // for ModeCommand; empty prices natively
	URL                string        `mapstructure:"url"`                 // for ModeHTTP
	Timeout            time.Duration `mapstructure:"timeout"`
	AllowPrivate       bool          `mapstructure:"allow_private"`
	DD                 bool          `mapstructure:"dynamical_decoupling"` // builtin and http; a command decides for itself
	Seed               uint64        `mapstructure:"seed"`                 // native calibration spread; 0 = random
}

// DefaultConfig selects the builtin generator with dynamical decoupling.
func DefaultConfig() Config {
	return Config{
		Mode:    ModeBuiltin,
		Timeout: 30 * time.Second,
		DD:      true,
	}
}

// Service bundles the three operations, each possibly backed by a different
// implementation.
type Service struct {
	Synthesizer
	Calibrator
	Pricer
}

// New builds the service named by cfg.Mode.
func New(cfg Config, log *zap.SugaredLogger) (*Service, error) {
	native := NewBuiltin(cfg.DD)
	if cfg.Seed != 0 {
		native = NewSeededBuiltin(cfg.DD, cfg.Seed)
	}

	switch cfg.Mode {
	case "", ModeBuiltin:
		return &Service{Synthesizer: native, Calibrator: native, Pricer: native}, nil
	case ModeCommand:
		c, err := NewCommand(cfg.Command, cfg.Timeout, log)
		if err != nil {
			return nil, err
		}
		svc := &Service{Synthesizer: c, Calibrator: native, Pricer: native}
		if cfg.CalibrationCommand != "" {
			cal, err := NewCommand(cfg.CalibrationCommand, cfg.Timeout, log)
			if err != nil {
				return nil, errors.Wrap(err, "synth.calibration_command")
			}
			svc.Calibrator = cal
		}
		if cfg.PricingCommand != "" {
			pr, err := NewCommand(cfg.PricingCommand, cfg.Timeout, log)
			if err != nil {
				return nil, errors.Wrap(err, "synth.pricing_command")
			}
			svc.Pricer = pr
		}
		return svc, nil
	case ModeHTTP:
		h, err := NewHTTP(cfg.URL, cfg.Timeout, cfg.AllowPrivate, log)
		if err != nil {
			return nil, err
		}
		h.WithDecoupling(cfg.DD)
		return &Service{Synthesizer: h, Calibrator: h, Pricer: h}, nil
	default:
		return nil, errors.WithHintf(
			errors.Newf("unknown synth mode %q", cfg.Mode),
			"use one of %s, %s, %s", ModeBuiltin, ModeCommand, ModeHTTP)
	}
}

func checkDepth(depth int) error {
	if depth < 1 {
		return errors.Newf("depth must be at least 1, got %d", depth)
	}
	return nil
}
