package config

import (
	"time"

	"dbupdater/internal/downstream"
	"dbupdater/internal/jobs"
	"dbupdater/internal/migration"
)

// OperatorConfig is the top-level configuration structure for dbupdater.
type OperatorConfig struct {
	// Namespace restricts the operator to one namespace. Empty watches all.
	Namespace string `yaml:"namespace,omitempty"`

	Workers    int `yaml:"workers,omitempty"`
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// ReconcileTimeoutSeconds bounds a single reconcile. Zero derives it
	// from the migration poll bound.
	ReconcileTimeoutSeconds int `yaml:"reconcileTimeoutSeconds,omitempty"`

	Migration  MigrationConfig  `yaml:"migration"`
	Job        JobConfig        `yaml:"job"`
	Downstream DownstreamConfig `yaml:"downstream"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MigrationConfig bounds the wait for a migration Job.
type MigrationConfig struct {
	PollIntervalSeconds int `yaml:"pollIntervalSeconds,omitempty"`
	PollMaxAttempts     int `yaml:"pollMaxAttempts,omitempty"`
	RetryDelaySeconds   int `yaml:"retryDelaySeconds,omitempty"`
}

// JobConfig shapes the migration Job.
type JobConfig struct {
	Image                   string   `yaml:"image,omitempty"`
	Command                 []string `yaml:"command,omitempty"`
	BackoffLimit            int32    `yaml:"backoffLimit,omitempty"`
	TTLSecondsAfterFinished int32    `yaml:"ttlSecondsAfterFinished,omitempty"`
	ServiceAccountName      string   `yaml:"serviceAccountName,omitempty"`
}

// DownstreamConfig names the Deployment that receives the migrated version.
type DownstreamConfig struct {
	Name string `yaml:"name,omitempty"`

	// Namespace defaults to the operator namespace.
	Namespace string `yaml:"namespace,omitempty"`
	Container string `yaml:"container,omitempty"`
	EnvVar    string `yaml:"envVar,omitempty"`
}

// ServerConfig configures the health and metrics endpoint.
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Policy converts the migration section to an engine policy.
func (m MigrationConfig) Policy() migration.Policy {
	return migration.Policy{
		PollInterval:    time.Duration(m.PollIntervalSeconds) * time.Second,
		PollMaxAttempts: m.PollMaxAttempts,
		RetryDelay:      time.Duration(m.RetryDelaySeconds) * time.Second,
	}
}

// JobConfig converts the job section for the Job runner.
func (j JobConfig) JobConfig() jobs.JobConfig {
	return jobs.JobConfig{
		Image:                   j.Image,
		Command:                 j.Command,
		BackoffLimit:            j.BackoffLimit,
		TTLSecondsAfterFinished: j.TTLSecondsAfterFinished,
		ServiceAccountName:      j.ServiceAccountName,
	}
}

// Target returns the downstream Deployment, falling back to the operator
// namespace and then to "default".
func (c OperatorConfig) Target() downstream.Target {
	ns := c.Downstream.Namespace
	if ns == "" {
		ns = c.Namespace
	}
	if ns == "" {
		ns = "default"
	}
	return downstream.Target{
		Name:      c.Downstream.Name,
		Namespace: ns,
		Container: c.Downstream.Container,
		EnvVar:    c.Downstream.EnvVar,
	}
}

// ReconcileTimeout returns the per-request deadline. The derived value
// leaves a margin above the longest possible poll.
func (c OperatorConfig) ReconcileTimeout() time.Duration {
	if c.ReconcileTimeoutSeconds > 0 {
		return time.Duration(c.ReconcileTimeoutSeconds) * time.Second
	}
	poll := time.Duration(c.Migration.PollIntervalSeconds*c.Migration.PollMaxAttempts) * time.Second
	return poll + reconcileTimeoutMargin
}
