package protocol

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
)

// Capability names an external generation or transform service.
type Capability string

const (
	CapabilityImage    Capability = "image"
	CapabilityVideo    Capability = "video"
	CapabilityAudio    Capability = "audio"
	CapabilityCode     Capability = "code"
	CapabilityUpscale  Capability = "upscale"
	CapabilityRemoveBG Capability = "remove-bg"
)

// Capabilities lists every built-in capability.
func Capabilities() []Capability {
	return []Capability{
		CapabilityImage,
		CapabilityVideo,
		CapabilityAudio,
		CapabilityCode,
		CapabilityUpscale,
		CapabilityRemoveBG,
	}
}

// ServiceRequest is the payload sent to a ServiceClient.
type ServiceRequest struct {
	Capability  Capability        `json:"capability"`
	RunID       string            `json:"run_id,omitempty"`
	NodeID      string            `json:"node_id"`
	Model       string            `json:"model,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	URL         string            `json:"url,omitempty"`
	AspectRatio string            `json:"aspect_ratio,omitempty"`
	Format      string            `json:"format,omitempty"`
	Inputs      []models.Artifact `json:"inputs,omitempty"`
}

// ServiceClient performs the network call to one external capability. Implementations do
// not retry; retry and backoff are owned by the engine.
type ServiceClient interface {
	Invoke(ctx context.Context, req ServiceRequest) (models.Artifact, error)
}

// ServiceClientFunc adapts a function to the ServiceClient interface.
type ServiceClientFunc func(ctx context.Context, req ServiceRequest) (models.Artifact, error)

// Invoke calls f.
func (f ServiceClientFunc) Invoke(ctx context.Context, req ServiceRequest) (models.Artifact, error) {
	return f(ctx, req)
}

// DeliveryMode selects how an output node hands artifacts over.
type DeliveryMode string

const (
	DeliveryModeSave     DeliveryMode = "save"
	DeliveryModeDownload DeliveryMode = "download"
)

// DeliveryRequest carries upstream artifacts to an ArtifactSink.
type DeliveryRequest struct {
	RunID     string
	NodeID    string
	Mode      DeliveryMode
	Format    string
	Label     string
	Artifacts []models.Artifact
}

// ArtifactSink is the delivery collaborator of output nodes.
type ArtifactSink interface {
	Deliver(ctx context.Context, req DeliveryRequest) (models.Artifact, error)
}
