package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"dbupdater/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "is required",
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositive checks that an integer field is at least 1.
func ValidatePositive(field string, value int) error {
	if value < 1 {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be at least 1",
		}
	}
	return nil
}

func (ve *ValidationErrors) check(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// Validate checks the hot-reloadable part of the configuration.
func (m MigrationConfig) Validate() error {
	var errs ValidationErrors
	errs.check(ValidatePositive("migration.pollIntervalSeconds", m.PollIntervalSeconds))
	errs.check(ValidatePositive("migration.pollMaxAttempts", m.PollMaxAttempts))
	errs.check(ValidatePositive("migration.retryDelaySeconds", m.RetryDelaySeconds))
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Validate checks the whole configuration. It is run after command line
// overrides have been applied.
func (c OperatorConfig) Validate() error {
	var errs ValidationErrors

	if mErr := c.Migration.Validate(); mErr != nil {
		errs = append(errs, mErr.(ValidationErrors)...)
	}

	errs.check(ValidatePositive("workers", c.Workers))
	if c.MaxRetries < 0 {
		errs.Add("maxRetries", "must not be negative", c.MaxRetries)
	}
	if c.ReconcileTimeoutSeconds < 0 {
		errs.Add("reconcileTimeoutSeconds", "must not be negative", c.ReconcileTimeoutSeconds)
	}
	if c.ReconcileTimeoutSeconds > 0 {
		poll := c.Migration.PollIntervalSeconds * c.Migration.PollMaxAttempts
		if c.ReconcileTimeoutSeconds <= poll {
			errs.Add("reconcileTimeoutSeconds",
				fmt.Sprintf("must exceed the poll bound of %ds", poll), c.ReconcileTimeoutSeconds)
		}
	}

	errs.check(ValidateRequired("job.image", c.Job.Image))
	if c.Job.BackoffLimit < 0 {
		errs.Add("job.backoffLimit", "must not be negative", c.Job.BackoffLimit)
	}

	errs.check(ValidateRequired("downstream.name", c.Downstream.Name))
	if c.Downstream.Name != "" {
		for _, msg := range validation.IsDNS1123Subdomain(c.Downstream.Name) {
			errs.Add("downstream.name", msg, c.Downstream.Name)
		}
	}
	if c.Downstream.EnvVar != "" {
		for _, msg := range validation.IsEnvVarName(c.Downstream.EnvVar) {
			errs.Add("downstream.envVar", msg, c.Downstream.EnvVar)
		}
	}

	errs.check(ValidateRequired("server.address", c.Server.Address))
	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		errs.Add("logging.level", "must be one of: debug, info, warn, error", c.Logging.Level)
	}
	errs.check(ValidateOneOf("logging.format", c.Logging.Format, []string{string(logging.FormatText), string(logging.FormatJSON)}))

	if errs.HasErrors() {
		return errs
	}
	return nil
}
