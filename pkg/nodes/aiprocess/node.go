package aiprocess

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/canvasflow/canvasflow/pkg/template"
)

// ProcessNode sends its configuration and upstream artifacts to a generation service.
type ProcessNode struct {
	variant variant
	client  protocol.ServiceClient
	data    models.NodeData
}

// newProcessNode creates a process node.
func newProcessNode(s variant, client protocol.ServiceClient, data models.NodeData) (*ProcessNode, error) {
	if client == nil {
		return nil, fmt.Errorf("no service client configured for capability %s", s.capability)
	}

	return &ProcessNode{
		variant: s,
		client:  client,
		data:    data,
	}, nil
}

// Execute builds the service request and invokes the service once.
func (n *ProcessNode) Execute(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error) {
	req, err := n.request(ctx, node, inputs)
	if err != nil {
		return models.Artifact{}, err
	}

	artifact, err := n.client.Invoke(ctx, req)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("%s node %s: %w", n.variant.capability, node.ID, err)
	}

	artifact.NodeID = node.ID
	if artifact.Kind == "" {
		artifact.Kind = n.variant.kind
	}

	return artifact, nil
}

func (n *ProcessNode) request(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (protocol.ServiceRequest, error) {
	prompt, err := template.RenderPrompt(n.data.Prompt, protocol.RunIDFromContext(ctx), inputs)
	if err != nil {
		return protocol.ServiceRequest{}, protocol.InvalidInput("node %s prompt: %v", node.ID, err)
	}

	templated := template.NeedsTemplating(n.data.Prompt)

	var (
		media []models.Artifact
		parts []string
	)

	if prompt != "" {
		parts = append(parts, prompt)
	}

	// Deterministic order: upstream node id.
	for _, id := range slices.Sorted(maps.Keys(inputs)) {
		artifact := inputs[id]

		switch {
		case artifact.Kind == models.ArtifactKindText || artifact.Kind == models.ArtifactKindCode:
			if !templated && artifact.Text != "" {
				parts = append(parts, artifact.Text)
			}
		case artifact.URI != "":
			media = append(media, artifact)
		}
	}

	prompt = strings.Join(parts, "\n\n")

	if prompt == "" && (n.variant.needsPrompt || len(media) == 0) {
		return protocol.ServiceRequest{}, protocol.InvalidInput("node %s has neither a prompt nor upstream input", node.ID)
	}

	return protocol.ServiceRequest{
		Capability:  n.variant.capability,
		RunID:       protocol.RunIDFromContext(ctx),
		NodeID:      node.ID,
		Model:       n.data.Model,
		Prompt:      prompt,
		URL:         n.data.URL,
		AspectRatio: n.data.AspectRatio,
		Format:      n.data.Format,
		Inputs:      media,
	}, nil
}
