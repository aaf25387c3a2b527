package app

import (
	"time"

	"dbupdater/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of logging.level.
	Debug bool

	// Directory containing config.yaml
	ConfigPath string

	// Overrides are applied on top of config.yaml, also on every reload.
	Overrides Overrides

	// OperatorConfig skips loading config.yaml when set.
	OperatorConfig *config.OperatorConfig
}

// Overrides are command line values that win over config.yaml. Zero values
// leave the file value untouched.
type Overrides struct {
	Namespace            string
	MetricsAddress       string
	DownstreamDeployment string

	PollInterval    time.Duration
	PollMaxAttempts int
	RetryDelay      time.Duration
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string, overrides Overrides) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Overrides:  overrides,
	}
}

// Apply writes the overrides into cfg.
func (o Overrides) Apply(cfg *config.OperatorConfig) {
	if o.Namespace != "" {
		cfg.Namespace = o.Namespace
	}
	if o.MetricsAddress != "" {
		cfg.Server.Address = o.MetricsAddress
	}
	if o.DownstreamDeployment != "" {
		cfg.Downstream.Name = o.DownstreamDeployment
	}
	if o.PollInterval > 0 {
		cfg.Migration.PollIntervalSeconds = seconds(o.PollInterval)
	}
	if o.PollMaxAttempts > 0 {
		cfg.Migration.PollMaxAttempts = o.PollMaxAttempts
	}
	if o.RetryDelay > 0 {
		cfg.Migration.RetryDelaySeconds = seconds(o.RetryDelay)
	}
}

// seconds rounds d up to whole seconds so that sub-second flags stay positive.
func seconds(d time.Duration) int {
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
