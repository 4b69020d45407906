package registry

import (
	"github.com/canvasflow/canvasflow/pkg/nodes/aiprocess"
	"github.com/canvasflow/canvasflow/pkg/nodes/input"
	"github.com/canvasflow/canvasflow/pkg/nodes/output"
	"github.com/canvasflow/canvasflow/pkg/nodes/transform"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// Dependencies are the external collaborators of the built-in handlers.
type Dependencies struct {
	Services protocol.ServiceClient
	Sink     protocol.ArtifactSink
}

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	// Inputs
	r.RegisterNode(input.NewTextNodeFactory())
	r.RegisterNode(input.NewMediaNodeFactory())

	// Generation
	for _, factory := range aiprocess.NewProcessNodeFactories(deps.Services) {
		r.RegisterNode(factory)
	}

	// Transforms
	r.RegisterNode(transform.NewUpscaleNodeFactory(deps.Services))
	r.RegisterNode(transform.NewRemoveBackgroundNodeFactory(deps.Services))

	// Outputs
	r.RegisterNode(output.NewSaveNodeFactory(deps.Sink))
	r.RegisterNode(output.NewDownloadNodeFactory(deps.Sink))
}
