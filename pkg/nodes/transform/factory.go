// Package transform provides the media transform nodes: upscaling and background removal.
package transform

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// TransformNodeFactory creates TransformNode instances for one transform type.
type TransformNodeFactory struct {
	nodeType   models.NodeType
	capability protocol.Capability
	client     protocol.ServiceClient
}

// NewUpscaleNodeFactory creates the factory for transform_upscale nodes.
func NewUpscaleNodeFactory(client protocol.ServiceClient) *TransformNodeFactory {
	return &TransformNodeFactory{
		nodeType:   models.NodeTypeTransformUpscale,
		capability: protocol.CapabilityUpscale,
		client:     client,
	}
}

// NewRemoveBackgroundNodeFactory creates the factory for transform_remove_bg nodes.
func NewRemoveBackgroundNodeFactory(client protocol.ServiceClient) *TransformNodeFactory {
	return &TransformNodeFactory{
		nodeType:   models.NodeTypeTransformRemoveBG,
		capability: protocol.CapabilityRemoveBG,
		client:     client,
	}
}

// Create creates a new TransformNode instance.
func (f *TransformNodeFactory) Create(_ context.Context, node models.Node) (protocol.Handler, error) {
	return NewTransformNode(f.capability, f.client, node.Data)
}

// ID returns the node type served by the factory.
func (f *TransformNodeFactory) ID() models.NodeType {
	return f.nodeType
}

// Name returns the factory name.
func (f *TransformNodeFactory) Name() string {
	if f.nodeType == models.NodeTypeTransformUpscale {
		return "Upscale"
	}

	return "Remove Background"
}

// Description returns the factory description.
func (f *TransformNodeFactory) Description() string {
	if f.nodeType == models.NodeTypeTransformUpscale {
		return "Increases the resolution of the upstream image or video"
	}

	return "Removes the background of the upstream image or video"
}

// Schema returns the JSON schema for transform node data.
func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{"type": "string"},
			"model": map[string]any{"type": "string"},
			"format": map[string]any{
				"type":        "string",
				"description": "Requested output encoding, e.g. png or mp4",
			},
		},
	}
}
