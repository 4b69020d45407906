// Package input provides the workflow entry nodes: literal text and referenced media.
package input

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// TextNodeFactory creates TextNode instances.
type TextNodeFactory struct{}

// NewTextNodeFactory creates a new factory instance.
func NewTextNodeFactory() *TextNodeFactory {
	return &TextNodeFactory{}
}

// Create creates a new TextNode instance.
func (f *TextNodeFactory) Create(_ context.Context, node models.Node) (protocol.Handler, error) {
	return NewTextNode(node.Data)
}

// ID returns the node type served by the factory.
func (f *TextNodeFactory) ID() models.NodeType {
	return models.NodeTypeInputText
}

// Name returns the factory name.
func (f *TextNodeFactory) Name() string {
	return "Text Input"
}

// Description returns the factory description.
func (f *TextNodeFactory) Description() string {
	return "Provides a literal text prompt to downstream nodes"
}

// Schema returns the JSON schema for text input node data.
func (f *TextNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{"type": "string"},
			"prompt": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Text passed to the nodes connected to this input",
				"examples":    []string{"A lighthouse on a cliff at dusk, oil painting"},
			},
		},
		"required": []string{"prompt"},
	}
}

// MediaNodeFactory creates MediaNode instances.
type MediaNodeFactory struct{}

// NewMediaNodeFactory creates a new factory instance.
func NewMediaNodeFactory() *MediaNodeFactory {
	return &MediaNodeFactory{}
}

// Create creates a new MediaNode instance.
func (f *MediaNodeFactory) Create(_ context.Context, node models.Node) (protocol.Handler, error) {
	return NewMediaNode(node.Data)
}

// ID returns the node type served by the factory.
func (f *MediaNodeFactory) ID() models.NodeType {
	return models.NodeTypeInputMedia
}

// Name returns the factory name.
func (f *MediaNodeFactory) Name() string {
	return "Media Input"
}

// Description returns the factory description.
func (f *MediaNodeFactory) Description() string {
	return "References an existing image, video or audio file by URL"
}

// Schema returns the JSON schema for media input node data.
func (f *MediaNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{"type": "string"},
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Location of the media; the artifact kind is inferred from the extension",
				"examples":    []string{"https://cdn.example.com/uploads/portrait.png"},
			},
		},
		"required": []string{"url"},
	}
}
