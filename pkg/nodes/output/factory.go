// Package output provides the terminal nodes that hand artifacts to an ArtifactSink.
package output

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// Formats lists the accepted values of an output node's format.
var Formats = []string{"json", "txt", "png", "jpg", "webp", "mp4", "mp3", "wav"}

// OutputNodeFactory creates OutputNode instances.
type OutputNodeFactory struct {
	nodeType models.NodeType
	mode     protocol.DeliveryMode
	sink     protocol.ArtifactSink
}

// NewSaveNodeFactory creates the factory for output_save nodes.
func NewSaveNodeFactory(sink protocol.ArtifactSink) *OutputNodeFactory {
	return &OutputNodeFactory{nodeType: models.NodeTypeOutputSave, mode: protocol.DeliveryModeSave, sink: sink}
}

// NewDownloadNodeFactory creates the factory for output_download nodes.
func NewDownloadNodeFactory(sink protocol.ArtifactSink) *OutputNodeFactory {
	return &OutputNodeFactory{nodeType: models.NodeTypeOutputDownload, mode: protocol.DeliveryModeDownload, sink: sink}
}

// Create creates a new OutputNode instance.
func (f *OutputNodeFactory) Create(_ context.Context, node models.Node) (protocol.Handler, error) {
	return NewOutputNode(f.mode, f.sink, node.Data)
}

// ID returns the node type served by the factory.
func (f *OutputNodeFactory) ID() models.NodeType {
	return f.nodeType
}

// Name returns the factory name.
func (f *OutputNodeFactory) Name() string {
	if f.mode == protocol.DeliveryModeSave {
		return "Save"
	}

	return "Download"
}

// Description returns the factory description.
func (f *OutputNodeFactory) Description() string {
	if f.mode == protocol.DeliveryModeSave {
		return "Stores the upstream artifacts as the result of the run"
	}

	return "Fetches the upstream media into local storage"
}

// Schema returns the JSON schema for output node data.
func (f *OutputNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{"type": "string"},
			"format": map[string]any{
				"type": "string",
				"enum": Formats,
			},
		},
	}
}
