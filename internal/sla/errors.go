// Package sla holds the SLA engine: business-time math, rule resolution, the pause
// ledger, status evaluation and escalation scheduling. Everything except the ledger
// is pure computation over values handed in by the caller.
package sla

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyPaused is returned when a ticket already has an open pause interval.
	ErrAlreadyPaused = errors.New("sla clock already paused")
	// ErrNotPaused is returned when resuming a ticket without an open pause interval.
	ErrNotPaused = errors.New("sla clock not paused")
	// ErrNonMonotonic is returned when a pause or resume instant goes back in time.
	ErrNonMonotonic = errors.New("pause timestamps must not go backwards")
	// ErrInvalidPauseReason is returned for reasons outside the known set.
	ErrInvalidPauseReason = errors.New("invalid pause reason")
)

// ConfigurationError signals calendar or rule settings that would make elapsed
// time meaningless. Evaluation must abort instead of reporting a status.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sla configuration error: %s: %s", e.Subject, e.Reason)
}

func configErrorf(subject, format string, args ...any) error {
	return &ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
