// Package ops provides operation tracking, retry execution and the error
// taxonomy shared by every multi-step workflow in the engine.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/repset/warmup/internal/services/remote"
)

// ValidationError marks input that can never succeed. It is surfaced to the
// caller immediately and never retried.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// OperationFailure wraps the last error of an operation after its retry
// budget is exhausted.
type OperationFailure struct {
	Operation string
	Context   string
	Attempts  int
	Err       error
}

func (e *OperationFailure) Error() string {
	return fmt.Sprintf("operation %s failed after %d attempts (%s): %v", e.Operation, e.Attempts, e.Context, e.Err)
}

func (e *OperationFailure) Unwrap() error { return e.Err }

// RecoveryFailure means rollback itself failed. It preserves the original
// failure and every rollback error, and is never retried automatically;
// it must reach an operator.
type RecoveryFailure struct {
	Original       error
	RollbackErrors []error
}

func (e *RecoveryFailure) Error() string {
	return fmt.Sprintf("recovery failed with %d rollback errors after: %v", len(e.RollbackErrors), e.Original)
}

func (e *RecoveryFailure) Unwrap() error { return e.Original }

// ErrorClass buckets an error for retry decisions.
type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassNetwork    ErrorClass = "network"
	ClassPermanent  ErrorClass = "permanent"
)

// Retryable reports whether errors in this class are worth retrying.
func (c ErrorClass) Retryable() bool {
	return c == ClassNetwork
}

// networkIndicators are message fragments that mark an error as transient
// when no typed signal is available.
var networkIndicators = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"timed out",
	"rate limit",
	"resource exhausted",
	"unavailable",
	"too many requests",
}

// Classify maps a non-nil error to its retry class. Typed signals win over
// message scanning.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return ClassValidation
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return ClassNetwork
		default:
			return ClassPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range networkIndicators {
		if strings.Contains(msg, indicator) {
			return ClassNetwork
		}
	}

	return ClassPermanent
}

// IsRetryable is shorthand for Classify(err).Retryable().
func IsRetryable(err error) bool {
	return err != nil && Classify(err).Retryable()
}
