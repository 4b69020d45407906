package protocol

import (
	"errors"
	"fmt"
)

// Failure classes reported by service clients.
var (
	// ErrTimeout indicates the service did not answer in time.
	ErrTimeout = errors.New("service timeout")

	// ErrRateLimited indicates the service refused the call because of rate limits.
	ErrRateLimited = errors.New("service rate limited")

	// ErrInvalidInput indicates the service rejected the request payload. Never retried.
	ErrInvalidInput = errors.New("invalid service input")

	// ErrProviderError indicates any other provider-side or transport failure.
	ErrProviderError = errors.New("service provider error")
)

// ServiceError wraps a service failure with the capability that produced it.
type ServiceError struct {
	Capability Capability // Capability that was invoked
	Kind       error      // One of ErrTimeout, ErrRateLimited, ErrInvalidInput, ErrProviderError
	Message    string     // Human-readable detail
	Err        error      // Underlying error, if any
}

func (e *ServiceError) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}

	if e.Capability != "" {
		return fmt.Sprintf("%s: %s", e.Capability, msg)
	}

	return msg
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches the failure class as well as the wrapped error.
func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewServiceError creates a ServiceError of the given kind.
func NewServiceError(capability Capability, kind error, message string, err error) *ServiceError {
	return &ServiceError{
		Capability: capability,
		Kind:       kind,
		Message:    message,
		Err:        err,
	}
}

// InvalidInput is a shorthand for handler-side payload validation failures.
func InvalidInput(format string, args ...any) *ServiceError {
	return &ServiceError{
		Kind:    ErrInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}
