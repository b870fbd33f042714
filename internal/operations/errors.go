package operations

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies operation failures
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
)

// ErrOperationNotFound is returned when looking up an unknown operation ID.
var ErrOperationNotFound = errors.New("operation not found")

// OperationError carries the step and classification of a pipeline failure
type OperationError struct {
	Type      ErrorType
	Step      string
	Message   string
	Cause     error
	Retryable bool
}

func (e *OperationError) Error() string {
	switch {
	case e.Step != "" && e.Cause != nil:
		return fmt.Sprintf("step %s: %s: %v", e.Step, e.Message, e.Cause)
	case e.Step != "":
		return fmt.Sprintf("step %s: %s", e.Step, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	default:
		return e.Message
	}
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NewValidationError reports a step whose inputs are missing or invalid
func NewValidationError(step, message string) *OperationError {
	return &OperationError{Type: ErrorTypeValidation, Step: step, Message: message}
}

// NewExecutionError wraps a transient execution failure; these are retried
func NewExecutionError(step, message string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeExecution, Step: step, Message: message, Cause: cause, Retryable: true}
}

// NewTimeoutError reports a step that exceeded its configured timeout
func NewTimeoutError(step string, timeout time.Duration) *OperationError {
	return &OperationError{Type: ErrorTypeTimeout, Step: step, Message: fmt.Sprintf("timed out after %s", timeout)}
}

// NewCancellationError reports a step interrupted by context cancellation
func NewCancellationError(step, reason string) *OperationError {
	return &OperationError{Type: ErrorTypeCancellation, Step: step, Message: reason}
}

// NewFatalError reports an unrecoverable failure that must stop the run
func NewFatalError(step, message string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeFatal, Step: step, Message: message, Cause: cause}
}

// WrapError attaches step context to an arbitrary error, preserving its
// retryability.
func WrapError(err error, step, message string) *OperationError {
	return &OperationError{
		Type:      GetErrorType(err),
		Step:      step,
		Message:   message,
		Cause:     err,
		Retryable: IsRetryable(err),
	}
}

// IsRetryable reports whether the error is worth retrying. Plain errors
// are treated as deterministic and are not retried.
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return false
}

// GetErrorType returns the classification of an error. Unclassified errors
// count as execution errors.
func GetErrorType(err error) ErrorType {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ErrorTypeExecution
}
