package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// Engine error classes. Structural and validation errors abort a run before any node executes.
var (
	ErrMalformedGraph  = errors.New("malformed workflow graph")
	ErrCycleDetected   = errors.New("cycle detected in workflow graph")
	ErrValidation      = errors.New("workflow validation failed")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrRunCancelled    = errors.New("run cancelled")
)

// MalformedGraphError lists every dangling reference and duplicate id found while building a graph.
type MalformedGraphError struct {
	Problems []string
}

func (e *MalformedGraphError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedGraph, strings.Join(e.Problems, "; "))
}

func (e *MalformedGraphError) Is(target error) bool {
	return target == ErrMalformedGraph
}

// CycleDetectedError names the nodes that lie on a cycle, sorted by id.
type CycleDetectedError struct {
	NodeIDs []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.NodeIDs, ", "))
}

func (e *CycleDetectedError) Is(target error) bool {
	return target == ErrCycleDetected
}

// Violation is a single problem found by the validator.
type Violation struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// Violation codes.
const (
	ViolationMalformed       = "malformed_graph"
	ViolationCycle           = "cycle"
	ViolationMissingInput    = "missing_input_node"
	ViolationMissingOutput   = "missing_output_node"
	ViolationUnknownNodeType = "unknown_node_type"
	ViolationIncompatible    = "incompatible_edge"
	ViolationNodeConfig      = "invalid_node_config"
)

// ValidationError aggregates every violation found in a workflow.
type ValidationError struct {
	WorkflowID string
	Violations []Violation

	causes []error
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}

	return fmt.Sprintf("%s for workflow %s: %s", ErrValidation, e.WorkflowID, strings.Join(messages, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap exposes the structural errors so callers can match them with errors.As.
func (e *ValidationError) Unwrap() []error {
	return e.causes
}

// UnknownNodeTypeError is a configuration error; it is fatal for the node and never retried.
type UnknownNodeTypeError struct {
	NodeID string
	Type   models.NodeType
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("%s '%s' for node %s", ErrUnknownNodeType, e.Type, e.NodeID)
}

func (e *UnknownNodeTypeError) Is(target error) bool {
	return target == ErrUnknownNodeType
}

// ErrorKind is the recorded class of a node failure.
type ErrorKind string

const (
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindRateLimited     ErrorKind = "rate_limited"
	ErrorKindInvalidInput    ErrorKind = "invalid_input"
	ErrorKindProviderError   ErrorKind = "provider_error"
	ErrorKindUnknownNodeType ErrorKind = "unknown_node_type"
	ErrorKindCancelled       ErrorKind = "cancelled"
	ErrorKindInternal        ErrorKind = "internal"
)

// Classify maps a handler error to its failure class.
func Classify(err error) ErrorKind {
	var netErr net.Error

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownNodeType):
		return ErrorKindUnknownNodeType
	case errors.Is(err, protocol.ErrInvalidInput):
		return ErrorKindInvalidInput
	case errors.Is(err, protocol.ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, protocol.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrRunCancelled), errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, protocol.ErrProviderError):
		return ErrorKindProviderError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ErrorKindTimeout
		}

		return ErrorKindProviderError
	default:
		return ErrorKindInternal
	}
}

// IsRetryable reports whether a failure of this class may succeed on another attempt.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindRateLimited, ErrorKindProviderError:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is classified as a retryable network/timeout failure.
func IsRetryable(err error) bool {
	return Classify(err).IsRetryable()
}

func nodeError(err error) *models.NodeError {
	return &models.NodeError{
		Kind:    string(Classify(err)),
		Message: err.Error(),
	}
}
