package transform

import (
	"context"
	"fmt"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// TransformNode applies a media transform service to exactly one upstream media artifact.
type TransformNode struct {
	capability protocol.Capability
	client     protocol.ServiceClient
	data       models.NodeData
}

// NewTransformNode creates a transform node.
func NewTransformNode(capability protocol.Capability, client protocol.ServiceClient, data models.NodeData) (*TransformNode, error) {
	if client == nil {
		return nil, fmt.Errorf("no service client configured for capability %s", capability)
	}

	return &TransformNode{
		capability: capability,
		client:     client,
		data:       data,
	}, nil
}

// Execute sends the upstream media to the transform service.
func (n *TransformNode) Execute(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error) {
	var source *models.Artifact

	for id, artifact := range inputs {
		if !artifact.IsMedia() || artifact.URI == "" {
			continue
		}

		if source != nil {
			return models.Artifact{}, protocol.InvalidInput("node %s accepts a single media input, got %s and %s", node.ID, source.NodeID, id)
		}

		artifact.NodeID = id
		source = &artifact
	}

	if source == nil {
		return models.Artifact{}, protocol.InvalidInput("node %s requires an upstream image or video", node.ID)
	}

	result, err := n.client.Invoke(ctx, protocol.ServiceRequest{
		Capability: n.capability,
		RunID:      protocol.RunIDFromContext(ctx),
		NodeID:     node.ID,
		Model:      n.data.Model,
		URL:        source.URI,
		Format:     n.data.Format,
		Inputs:     []models.Artifact{*source},
	})
	if err != nil {
		return models.Artifact{}, fmt.Errorf("%s node %s: %w", n.capability, node.ID, err)
	}

	result.NodeID = node.ID
	if result.Kind == "" {
		result.Kind = source.Kind
	}

	return result, nil
}
