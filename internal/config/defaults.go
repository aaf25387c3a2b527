package config

import (
	"time"

	"dbupdater/internal/downstream"
	"dbupdater/internal/jobs"
)

const (
	DefaultWorkers       = 2
	DefaultMaxRetries    = 10
	DefaultServerAddress = ":8080"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"

	reconcileTimeoutMargin = 60 * time.Second
)

// GetDefaultConfig returns the configuration used when no file is present.
func GetDefaultConfig() OperatorConfig {
	return OperatorConfig{
		Workers:    DefaultWorkers,
		MaxRetries: DefaultMaxRetries,
		Migration: MigrationConfig{
			PollIntervalSeconds: 5,
			PollMaxAttempts:     36,
			RetryDelaySeconds:   30,
		},
		Job: JobConfig{
			Image:                   jobs.DefaultImage,
			BackoffLimit:            jobs.DefaultBackoffLimit,
			TTLSecondsAfterFinished: jobs.DefaultTTLSecondsAfterFinished,
		},
		Downstream: DownstreamConfig{
			EnvVar: downstream.DefaultEnvVar,
		},
		Server: ServerConfig{
			Address: DefaultServerAddress,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
