package am

import (
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/knowledge"
	"github.com/teranos/sentinel/synth"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Feed.Validate(); err != nil {
		return err
	}

	// Tolerance 0 is valid: the first pending tick after opening is already a violation
	if c.Monitor.Threshold <= 0 {
		return errors.Newf("monitor.threshold must be > 0, got %f", c.Monitor.Threshold)
	}

	if c.Health.Cooldown <= 0 {
		return errors.Newf("health.cooldown must be > 0, got %s", c.Health.Cooldown)
	}

	if err := c.Pulse.Validate(); err != nil {
		return err
	}

	// Knowledge path is optional; an unreadable file degrades to defaults at runtime
	if c.Knowledge.Path != "" {
		if _, err := knowledge.FormatFromPath(c.Knowledge.Path); err != nil {
			return errors.Wrap(err, "knowledge.path")
		}
	}

	if c.Manager.Target == "" {
		return errors.New("manager.target cannot be empty")
	}
	if c.Manager.Dispatch && c.Manager.ProgramID == "" {
		return errors.New("manager.program_id cannot be empty when dispatch is enabled")
	}

	switch c.Synth.Mode {
	case "", synth.ModeBuiltin:
	case synth.ModeCommand:
		if c.Synth.Command == "" {
			return errors.New("synth.command cannot be empty when synth.mode is command")
		}
	case synth.ModeHTTP:
		if c.Synth.URL == "" {
			return errors.New("synth.url cannot be empty when synth.mode is http")
		}
	default:
		return errors.WithHintf(
			errors.Newf("unknown synth.mode %q", c.Synth.Mode),
			"use one of %s, %s, %s", synth.ModeBuiltin, synth.ModeCommand, synth.ModeHTTP)
	}
	if c.Synth.Timeout <= 0 {
		return errors.Newf("synth.timeout must be > 0, got %s", c.Synth.Timeout)
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}

	// Backend URL only matters with a token; twin mode never calls it
	if !c.TwinMode() && c.Backend.URL == "" {
		return errors.New("backend.url cannot be empty when a token is configured")
	}
	if c.Backend.Timeout <= 0 {
		return errors.Newf("backend.timeout must be > 0, got %s", c.Backend.Timeout)
	}
	// 0 = unlimited, negative = invalid
	if c.Backend.MaxSubmitsPerMinute < 0 {
		return errors.Newf("backend.max_submits_per_minute must be >= 0, got %d", c.Backend.MaxSubmitsPerMinute)
	}

	return nil
}
