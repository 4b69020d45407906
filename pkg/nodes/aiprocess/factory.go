// Package aiprocess provides the generation nodes backed by external AI services.
package aiprocess

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

type variant struct {
	capability  protocol.Capability
	kind        models.ArtifactKind
	name        string
	description string
	needsPrompt bool
}

var variants = map[models.NodeType]variant{
	models.NodeTypeProcessAIImage: {
		capability:  protocol.CapabilityImage,
		kind:        models.ArtifactKindImage,
		name:        "AI Image",
		description: "Generates or edits an image from a prompt and optional reference media",
	},
	models.NodeTypeProcessAIVideo: {
		capability:  protocol.CapabilityVideo,
		kind:        models.ArtifactKindVideo,
		name:        "AI Video",
		description: "Generates a video clip from a prompt, images or audio",
	},
	models.NodeTypeProcessAIAudio: {
		capability:  protocol.CapabilityAudio,
		kind:        models.ArtifactKindAudio,
		name:        "AI Audio",
		description: "Generates speech, music or sound effects",
	},
	models.NodeTypeProcessCode: {
		capability:  protocol.CapabilityCode,
		kind:        models.ArtifactKindCode,
		name:        "Code",
		description: "Generates source code from a prompt",
		needsPrompt: true,
	},
}

// ProcessNodeFactory creates ProcessNode instances for one processor type.
type ProcessNodeFactory struct {
	nodeType models.NodeType
	variant  variant
	client   protocol.ServiceClient
}

// NewProcessNodeFactory creates a factory for a process_* node type. It panics on other types.
func NewProcessNodeFactory(nodeType models.NodeType, client protocol.ServiceClient) *ProcessNodeFactory {
	s, ok := variants[nodeType]
	if !ok {
		panic("aiprocess: unsupported node type " + string(nodeType))
	}

	return &ProcessNodeFactory{
		nodeType: nodeType,
		variant:  s,
		client:   client,
	}
}

// NewProcessNodeFactories returns one factory per processor type, all sharing client.
func NewProcessNodeFactories(client protocol.ServiceClient) []*ProcessNodeFactory {
	return []*ProcessNodeFactory{
		NewProcessNodeFactory(models.NodeTypeProcessAIImage, client),
		NewProcessNodeFactory(models.NodeTypeProcessAIVideo, client),
		NewProcessNodeFactory(models.NodeTypeProcessAIAudio, client),
		NewProcessNodeFactory(models.NodeTypeProcessCode, client),
	}
}

// Create creates a new ProcessNode instance.
func (f *ProcessNodeFactory) Create(_ context.Context, node models.Node) (protocol.Handler, error) {
	return newProcessNode(f.variant, f.client, node.Data)
}

// ID returns the node type served by the factory.
func (f *ProcessNodeFactory) ID() models.NodeType {
	return f.nodeType
}

// Name returns the factory name.
func (f *ProcessNodeFactory) Name() string {
	return f.variant.name
}

// Description returns the factory description.
func (f *ProcessNodeFactory) Description() string {
	return f.variant.description
}

// Schema returns the JSON schema for the node data.
func (f *ProcessNodeFactory) Schema() map[string]any {
	prompt := map[string]any{
		"type": "string",
		"description": "Instruction sent to the service. Upstream outputs can be referenced as " +
			"{{.inputs.<node id>.text}} or {{.inputs.<node id>.uri}}; otherwise upstream text is appended.",
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label":  map[string]any{"type": "string"},
			"model":  map[string]any{"type": "string", "description": "Service-specific model identifier"},
			"prompt": prompt,
			"aspectRatio": map[string]any{
				"type":    "string",
				"pattern": `^[0-9]+:[0-9]+$`,
				"examples": []string{
					"16:9", "1:1", "9:16",
				},
			},
			"format": map[string]any{"type": "string"},
		},
	}

	if f.variant.needsPrompt {
		prompt["minLength"] = 1
		schema["required"] = []string{"prompt"}
	}

	return schema
}
