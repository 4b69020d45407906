// Package services provides the workflow and run operations shared by the API and the CLIs.
package services

import (
	"errors"
	"fmt"

	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrWorkflowNil    = errors.New("workflow cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowExists = errors.New("workflow already exists")
	ErrRunNotActive   = errors.New("run is not active")

	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrRunNotFound      = persistence.ErrRunNotFound
)

// Error codes carried by ServiceError.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidWorkflow = "invalid_workflow"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a request error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, persistence.ErrInvalidID)
}

// IsInvalidWorkflow reports whether the workflow graph was rejected by the validator (HTTP 422).
func IsInvalidWorkflow(err error) bool {
	return errors.Is(err, workflow.ErrValidation)
}

// IsNotFound reports whether the workflow or run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrRunNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowExists) ||
		errors.Is(err, ErrRunNotActive) ||
		errors.Is(err, persistence.ErrConflict)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    CodeInvalidRequest,
		Message: message,
		Err:     err,
	}
}

func newInvalidWorkflowError(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeInvalidWorkflow, Err: err}
}

// ValidationViolations extracts the violations of a rejected workflow.
func ValidationViolations(err error) []workflow.Violation {
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		return verr.Violations
	}

	return nil
}
