package engine

import (
	"errors"
)

// Error types for classifying rule evaluation failures. Rules encode their
// business outcomes (missing data, mismatches, ambiguity) directly as result
// statuses; errors only cross the rule boundary for configuration problems
// and unexpected internal failures, and the runner converts both into
// NEEDS_REVIEW results so a run always completes.

// ConfigError reports a rule config payload that failed to decode or
// validate. The affected rule reports NEEDS_REVIEW with a "configuration
// invalid" summary; other rules are unaffected.
type ConfigError struct {
	err error
}

func (e *ConfigError) Error() string {
	return e.err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

// NewConfigError wraps an error as an invalid-configuration failure.
func NewConfigError(err error) error {
	return &ConfigError{err: err}
}

// IsConfigError returns true if the error marks an invalid configuration.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
