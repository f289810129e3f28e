// Package errorutil standardizes the errors services hand to the HTTP layer.
package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-sla/sla-service/internal/sla"
)

// Error codes returned in API envelopes.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeSLAAlreadyPaused   = "SLA_ALREADY_PAUSED"
	CodeSLANotPaused       = "SLA_NOT_PAUSED"
	CodeSLAConfiguration   = "SLA_CONFIGURATION_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts engine and storage errors to a DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var cfgErr *sla.ConfigurationError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return NewNotFound("resource", nil).(*DomainError)
	case errors.Is(err, sla.ErrAlreadyPaused):
		return &DomainError{Code: CodeSLAAlreadyPaused, Message: "sla clock already paused", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, sla.ErrNotPaused):
		return &DomainError{Code: CodeSLANotPaused, Message: "sla clock not paused", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, sla.ErrNonMonotonic):
		return &DomainError{Code: CodeValidationFailed, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
	case errors.Is(err, sla.ErrInvalidPauseReason):
		return &DomainError{Code: CodeValidationFailed, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
	case errors.As(err, &cfgErr):
		return &DomainError{
			Code:       CodeSLAConfiguration,
			Message:    cfgErr.Error(),
			HTTPStatus: http.StatusInternalServerError,
			Details:    map[string]any{"subject": cfgErr.Subject},
			Err:        err,
		}
	}
	return NewInternalError(err).(*DomainError)
}

// MapError is ToDomainError typed as error.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
