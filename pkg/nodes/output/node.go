package output

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/canvasflow/canvasflow/pkg/log"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// OutputNode delivers every upstream artifact in one request.
type OutputNode struct {
	mode protocol.DeliveryMode
	sink protocol.ArtifactSink
	data models.NodeData
}

// NewOutputNode creates an output node.
func NewOutputNode(mode protocol.DeliveryMode, sink protocol.ArtifactSink, data models.NodeData) (*OutputNode, error) {
	if sink == nil {
		return nil, fmt.Errorf("no artifact sink configured for %s", mode)
	}

	if data.Format != "" && !slices.Contains(Formats, data.Format) {
		return nil, protocol.InvalidInput("unsupported output format %q", data.Format)
	}

	return &OutputNode{mode: mode, sink: sink, data: data}, nil
}

// Execute hands the upstream artifacts, ordered by node id, to the sink.
func (n *OutputNode) Execute(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error) {
	if len(inputs) == 0 {
		return models.Artifact{}, protocol.InvalidInput("node %s has nothing to deliver", node.ID)
	}

	artifacts := make([]models.Artifact, 0, len(inputs))
	for _, id := range slices.Sorted(maps.Keys(inputs)) {
		artifact := inputs[id]
		artifact.NodeID = id
		artifacts = append(artifacts, artifact)
	}

	label := n.data.Label
	if label == "" {
		label = node.ID
	}

	delivered, err := n.sink.Deliver(ctx, protocol.DeliveryRequest{
		RunID:     protocol.RunIDFromContext(ctx),
		NodeID:    node.ID,
		Mode:      n.mode,
		Format:    n.data.Format,
		Label:     label,
		Artifacts: artifacts,
	})
	if err != nil {
		return models.Artifact{}, fmt.Errorf("%s node %s: %w", n.mode, node.ID, err)
	}

	delivered.NodeID = node.ID

	log.FromContext(ctx).InfoContext(ctx, "Delivered artifacts",
		"mode", n.mode,
		"artifacts", len(artifacts),
		"uri", delivered.URI)

	return delivered, nil
}
