package am

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/teranos/sentinel/feed"
	"github.com/teranos/sentinel/health"
	"github.com/teranos/sentinel/manager"
	"github.com/teranos/sentinel/monitor"
	"github.com/teranos/sentinel/pulse"
	"github.com/teranos/sentinel/qpu"
	"github.com/teranos/sentinel/synth"
)

// SetDefaults configures default values for all configuration options.
// Durations are strings so that rendered configuration reads naturally.
func SetDefaults(v *viper.Viper) {
	// Feed (Heston process)
	fp := feed.DefaultParams()
	v.SetDefault("feed.initial_price", fp.InitialPrice)
	v.SetDefault("feed.initial_variance", fp.InitialVariance)
	v.SetDefault("feed.kappa", fp.Kappa)
	v.SetDefault("feed.theta", fp.Theta)
	v.SetDefault("feed.xi", fp.Xi)
	v.SetDefault("feed.rho", fp.Rho)
	v.SetDefault("feed.dt", fp.Dt)
	v.SetDefault("feed.drift", fp.Drift)
	v.SetDefault("feed.variance_floor", fp.VarianceFloor)

	// Monitor
	v.SetDefault("monitor.tolerance", monitor.DefaultTolerance)
	v.SetDefault("monitor.threshold", monitor.DefaultThreshold)

	// Health guard
	v.SetDefault("health.failure_threshold", health.DefaultFailureThreshold)
	v.SetDefault("health.cooldown", health.DefaultCooldown.String())

	// Pulse pipeline
	pc := pulse.DefaultConfig()
	v.SetDefault("pulse.interval", pc.Interval.String())
	v.SetDefault("pulse.buffer", pc.Buffer)
	v.SetDefault("pulse.trigger_every", pc.TriggerEvery)
	v.SetDefault("pulse.heartbeat_every", pc.HeartbeatEvery)
	v.SetDefault("pulse.hedge_on_dispatch", false)
	v.SetDefault("pulse.max_ticks", 0)

	// Knowledge
	v.SetDefault("knowledge.path", "knowledge_data/quantum_kg.json")

	// Manager
	v.SetDefault("manager.target", manager.DefaultTarget)
	v.SetDefault("manager.dispatch", true)
	v.SetDefault("manager.program_id", qpu.DefaultProgramID)

	// Ledger
	v.SetDefault("ledger.path", "ledger.log")
	v.SetDefault("ledger.key_path", "ledger.key")

	// Synthesis
	sc := synth.DefaultConfig()
	v.SetDefault("synth.mode", sc.Mode)
	v.SetDefault("synth.command", "")
	v.SetDefault("synth.url", "")
	v.SetDefault("synth.timeout", sc.Timeout.String())
	v.SetDefault("synth.allow_private", false)
	v.SetDefault("synth.dynamical_decoupling", sc.DD)
	v.SetDefault("synth.calibration_command", "")
	v.SetDefault("synth.pricing_command", "")
	v.SetDefault("synth.seed", 0)

	// Option pricing on each cycle trigger
	pr := synth.DefaultPricingConfig()
	v.SetDefault("pricing.enabled", pr.Enabled)
	v.SetDefault("pricing.strike", pr.Strike)
	v.SetDefault("pricing.rate", pr.Rate)
	v.SetDefault("pricing.maturity", pr.Maturity)

	// Execution backend; token deliberately has no default
	bc := qpu.DefaultConfig()
	v.SetDefault("backend.url", bc.URL)
	v.SetDefault("backend.instance", bc.Instance)
	v.SetDefault("backend.name", bc.Name)
	v.SetDefault("backend.timeout", bc.Timeout.String())
	v.SetDefault("backend.max_submits_per_minute", bc.MaxSubmitsPerMinute)
	v.SetDefault("backend.allow_private", false)

	// Database
	v.SetDefault("database.path", "sentinel.db")

	// Metrics
	v.SetDefault("metrics.addr", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Backend credential; IBM_QUANTUM_API_TOKEN is honoured for existing setups
	v.BindEnv("backend.token", "SENTINEL_BACKEND_TOKEN", "IBM_QUANTUM_API_TOKEN")

	v.BindEnv("database.path", "SENTINEL_DATABASE_PATH")
	v.BindEnv("ledger.key_path", "SENTINEL_LEDGER_KEY_PATH")
}

// TwinMode reports whether the backend runs without credentials.
func (c *Config) TwinMode() bool {
	return c.Backend.Token == ""
}

// String returns a string representation of the config
func (c *Config) String() string {
	mode := qpu.ModeLive
	if c.TwinMode() {
		mode = qpu.ModeTwin
	}
	return fmt.Sprintf("Config{Target: %s, Synth: %s, Backend: %s (%s), Ledger: %s, Database: %s}",
		c.Manager.Target, c.Synth.Mode, c.Backend.Name, mode, c.Ledger.Path, c.Database.Path)
}
