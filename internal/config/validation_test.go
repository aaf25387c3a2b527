package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() OperatorConfig {
	cfg := GetDefaultConfig()
	cfg.Downstream.Name = "orders-api"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_DefaultNeedsDownstream(t *testing.T) {
	err := GetDefaultConfig().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream.name")
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OperatorConfig)
		field  string
	}{
		{"zero poll attempts", func(c *OperatorConfig) { c.Migration.PollMaxAttempts = 0 }, "migration.pollMaxAttempts"},
		{"zero poll interval", func(c *OperatorConfig) { c.Migration.PollIntervalSeconds = 0 }, "migration.pollIntervalSeconds"},
		{"negative retry delay", func(c *OperatorConfig) { c.Migration.RetryDelaySeconds = -1 }, "migration.retryDelaySeconds"},
		{"no workers", func(c *OperatorConfig) { c.Workers = 0 }, "workers"},
		{"negative retries", func(c *OperatorConfig) { c.MaxRetries = -1 }, "maxRetries"},
		{"timeout below poll bound", func(c *OperatorConfig) { c.ReconcileTimeoutSeconds = 60 }, "reconcileTimeoutSeconds"},
		{"empty image", func(c *OperatorConfig) { c.Job.Image = "" }, "job.image"},
		{"negative backoff", func(c *OperatorConfig) { c.Job.BackoffLimit = -1 }, "job.backoffLimit"},
		{"invalid deployment name", func(c *OperatorConfig) { c.Downstream.Name = "Orders_API" }, "downstream.name"},
		{"invalid env var", func(c *OperatorConfig) { c.Downstream.EnvVar = "1DB" }, "downstream.envVar"},
		{"empty address", func(c *OperatorConfig) { c.Server.Address = "" }, "server.address"},
		{"unknown level", func(c *OperatorConfig) { c.Logging.Level = "verbose" }, "logging.level"},
		{"unknown format", func(c *OperatorConfig) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var errs ValidationErrors
			require.True(t, errors.As(err, &errs))
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("workers", "must be at least 1", 0)
	assert.Equal(t, "field 'workers': must be at least 1", errs.Error())

	errs.Add("job.image", "is required")
	assert.Equal(t, "validation failed: field 'workers': must be at least 1; field 'job.image': is required", errs.Error())
}
