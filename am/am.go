// Package am loads sentinel's configuration.
//
// Values come from built-in defaults, then TOML files in increasing
// precedence (/etc/sentinel/sentinel.toml, ~/.sentinel/sentinel.toml, the
// nearest sentinel.toml above the working directory), then SENTINEL_*
// environment variables.
package am

import (
	"github.com/teranos/sentinel/feed"
	"github.com/teranos/sentinel/health"
	"github.com/teranos/sentinel/pulse"
	"github.com/teranos/sentinel/qpu"
	"github.com/teranos/sentinel/synth"
)

// Config represents the sentinel configuration
type Config struct {
	Feed      feed.Params         `mapstructure:"feed"`
	Monitor   MonitorConfig       `mapstructure:"monitor"`
	Health    health.Config       `mapstructure:"health"`
	Pulse     pulse.Config        `mapstructure:"pulse"`
	Knowledge KnowledgeConfig     `mapstructure:"knowledge"`
	Manager   ManagerConfig       `mapstructure:"manager"`
	Ledger    LedgerConfig        `mapstructure:"ledger"`
	Synth     synth.Config        `mapstructure:"synth"`
	Pricing   synth.PricingConfig `mapstructure:"pricing"`
	Backend   qpu.Config          `mapstructure:"backend"`
	Database  DatabaseConfig      `mapstructure:"database"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
}

// MonitorConfig configures the obligation monitor
type MonitorConfig struct {
	Tolerance uint64  `mapstructure:"tolerance"` // pending ticks allowed before a safety violation
	Threshold float64 `mapstructure:"threshold"` // prices below this open an obligation
}

// KnowledgeConfig configures the knowledge graph source
type KnowledgeConfig struct {
	Path string `mapstructure:"path"` // .json, .yaml or .toml; empty runs on defaults
}

// ManagerConfig configures the optimization cycle
type ManagerConfig struct {
	Target    string `mapstructure:"target"`     // device node strategies are inferred for
	Dispatch  bool   `mapstructure:"dispatch"`   // submit synthesized workloads to the backend
	ProgramID string `mapstructure:"program_id"` // runtime program used for submissions
}

// LedgerConfig configures the signed decision log
type LedgerConfig struct {
	Path    string `mapstructure:"path"`     // empty disables the ledger
	KeyPath string `mapstructure:"key_path"` // hex ed25519 seed; empty = ephemeral key
}

// DatabaseConfig configures the SQLite job store
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty disables job recording
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // e.g. ":9108"; empty disables
}

// Config file names and locations
const (
	ConfigFileName = "sentinel.toml"
	ConfigDirName  = ".sentinel"
	SystemConfig   = "/etc/sentinel/sentinel.toml"
	EnvPrefix      = "SENTINEL"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
