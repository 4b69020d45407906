// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
)

// Handler executes one node. Handlers are pure functions of their inputs: they return an
// artifact instead of mutating shared state, and must return promptly without an artifact
// once ctx is done.
type Handler interface {
	// Execute runs the node with the outputs of its predecessors keyed by predecessor node id.
	Execute(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error) {
	return f(ctx, node, inputs)
}

// HandlerFactory creates handlers and provides metadata about the node type it serves.
type HandlerFactory interface {
	// Create creates a handler for the given node
	Create(ctx context.Context, node models.Node) (Handler, error)

	// ID returns the node type this factory handles
	ID() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for the node's data
	Schema() map[string]any
}
