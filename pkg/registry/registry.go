// Package registry maps node types to the factories that create their handlers.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/canvasflow/canvasflow/pkg/workflow"
)

type Registry struct {
	logger *slog.Logger

	mu            sync.RWMutex
	nodeFactories map[models.NodeType]protocol.HandlerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log.With("module", "registry"),
		nodeFactories: make(map[models.NodeType]protocol.HandlerFactory),
	}
}

// RegisterNode adds a factory, replacing any factory registered for the same node type.
func (r *Registry) RegisterNode(factory protocol.HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodeFactories[factory.ID()]; exists {
		r.logger.Warn("Replacing node factory", "node_type", factory.ID())
	}

	r.nodeFactories[factory.ID()] = factory
}

// Dispatch creates the handler for node. Unregistered types fail with *workflow.UnknownNodeTypeError.
func (r *Registry) Dispatch(ctx context.Context, node models.Node) (protocol.Handler, error) {
	r.mu.RLock()
	factory, ok := r.nodeFactories[node.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, &workflow.UnknownNodeTypeError{NodeID: node.ID, Type: node.Type}
	}

	handler, err := factory.Create(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler for node %s (%s): %w", node.ID, node.Type, err)
	}

	return handler, nil
}

// NodeSchema returns the data schema of a registered node type.
func (r *Registry) NodeSchema(nodeType models.NodeType) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// Factories returns the registered factories ordered by node type.
func (r *Registry) Factories() []protocol.HandlerFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.HandlerFactory, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.HandlerFactory) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})

	return factories
}

// HealthCheck reports whether every built-in node type has a factory.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string

	for _, nodeType := range models.NodeTypes() {
		if _, ok := r.nodeFactories[nodeType]; !ok {
			missing = append(missing, string(nodeType))
		}
	}

	if len(missing) > 0 {
		return "Missing node handlers: " + strings.Join(missing, ", "), false
	}

	return fmt.Sprintf("%d node handlers registered", len(r.nodeFactories)), true
}
