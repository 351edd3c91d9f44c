package domain

import "fmt"

// ConfigurationError is fatal at startup and never retried.
type ConfigurationError struct {
	Setting     string
	Remediation string
	Err         error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error: " + e.Setting
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Remediation != "" {
		msg += " (" + e.Remediation + ")"
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError rejects caller input locally.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps a sentinel with the offending field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}

// DataUnavailableError means no usable price history exists for an entity.
type DataUnavailableError struct {
	Ticker string
	Reason string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("data unavailable for %s: %s", e.Ticker, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// ProviderTransientError is a retryable provider failure (rate limit, network, 5xx).
type ProviderTransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderTransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderTransientError) Unwrap() error { return e.Err }
