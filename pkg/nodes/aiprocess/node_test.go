package aiprocess

import (
	"context"
	"testing"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	requests []protocol.ServiceRequest
	artifact models.Artifact
	err      error
}

func (c *recordingClient) Invoke(_ context.Context, req protocol.ServiceRequest) (models.Artifact, error) {
	c.requests = append(c.requests, req)

	return c.artifact, c.err
}

func TestProcessNode_FoldsUpstreamText(t *testing.T) {
	client := &recordingClient{artifact: models.Artifact{URI: "https://cdn.example.com/out.png"}}
	node := models.Node{
		ID:   "img",
		Type: models.NodeTypeProcessAIImage,
		Data: models.NodeData{Model: "flux-pro", Prompt: "watercolor", AspectRatio: "16:9"},
	}

	handler, err := NewProcessNodeFactory(models.NodeTypeProcessAIImage, client).Create(context.Background(), node)
	require.NoError(t, err)

	inputs := map[string]models.Artifact{
		"b-text": {NodeID: "b-text", Kind: models.ArtifactKindText, Text: "a harbor"},
		"a-text": {NodeID: "a-text", Kind: models.ArtifactKindText, Text: "at night"},
		"ref":    {NodeID: "ref", Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/ref.jpg"},
	}

	ctx := protocol.WithRunID(context.Background(), "run-9")

	artifact, err := handler.Execute(ctx, node, inputs)
	require.NoError(t, err)

	assert.Equal(t, "img", artifact.NodeID)
	assert.Equal(t, models.ArtifactKindImage, artifact.Kind)
	assert.Equal(t, "https://cdn.example.com/out.png", artifact.URI)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, protocol.CapabilityImage, req.Capability)
	assert.Equal(t, "run-9", req.RunID)
	assert.Equal(t, "img", req.NodeID)
	assert.Equal(t, "flux-pro", req.Model)
	assert.Equal(t, "16:9", req.AspectRatio)
	assert.Equal(t, "watercolor\n\nat night\n\na harbor", req.Prompt)
	require.Len(t, req.Inputs, 1)
	assert.Equal(t, "ref", req.Inputs[0].NodeID)
}

func TestProcessNode_TemplatedPrompt(t *testing.T) {
	client := &recordingClient{artifact: models.Artifact{Kind: models.ArtifactKindAudio, URI: "s3://bucket/voice.mp3"}}
	node := models.Node{
		ID:   "voice",
		Type: models.NodeTypeProcessAIAudio,
		Data: models.NodeData{Prompt: "Narrate: {{.inputs.script.text}}"},
	}

	handler, err := NewProcessNodeFactory(models.NodeTypeProcessAIAudio, client).Create(context.Background(), node)
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), node, map[string]models.Artifact{
		"script": {Kind: models.ArtifactKindText, Text: "Once upon a time"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Narrate: Once upon a time", client.requests[0].Prompt)
	assert.Equal(t, protocol.CapabilityAudio, client.requests[0].Capability)
}

func TestProcessNode_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		nodeType models.NodeType
		data     models.NodeData
		inputs   map[string]models.Artifact
	}{
		{"no prompt and no inputs", models.NodeTypeProcessAIImage, models.NodeData{}, nil},
		{"code needs text", models.NodeTypeProcessCode, models.NodeData{}, map[string]models.Artifact{
			"ref": {Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/a.png"},
		}},
		{"bad template", models.NodeTypeProcessAIVideo, models.NodeData{Prompt: "{{.inputs.none.text}}"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &recordingClient{}
			node := models.Node{ID: "p", Type: tt.nodeType, Data: tt.data}

			handler, err := NewProcessNodeFactory(tt.nodeType, client).Create(context.Background(), node)
			require.NoError(t, err)

			_, err = handler.Execute(context.Background(), node, tt.inputs)
			assert.ErrorIs(t, err, protocol.ErrInvalidInput)
			assert.Empty(t, client.requests)
		})
	}
}

func TestProcessNode_MediaOnly(t *testing.T) {
	client := &recordingClient{}
	node := models.Node{ID: "anim", Type: models.NodeTypeProcessAIVideo}

	handler, err := NewProcessNodeFactory(models.NodeTypeProcessAIVideo, client).Create(context.Background(), node)
	require.NoError(t, err)

	artifact, err := handler.Execute(context.Background(), node, map[string]models.Artifact{
		"still": {Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/still.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactKindVideo, artifact.Kind)
	assert.Empty(t, client.requests[0].Prompt)
}

func TestProcessNode_ServiceErrorKeepsClass(t *testing.T) {
	client := &recordingClient{err: protocol.NewServiceError(protocol.CapabilityCode, protocol.ErrRateLimited, "quota", nil)}
	node := models.Node{ID: "code", Type: models.NodeTypeProcessCode, Data: models.NodeData{Prompt: "fizzbuzz in go"}}

	handler, err := NewProcessNodeFactory(models.NodeTypeProcessCode, client).Create(context.Background(), node)
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), node, nil)
	assert.ErrorIs(t, err, protocol.ErrRateLimited)
}

func TestProcessNode_RequiresClient(t *testing.T) {
	_, err := NewProcessNodeFactory(models.NodeTypeProcessCode, nil).Create(context.Background(), models.Node{ID: "c"})
	assert.Error(t, err)
}

func TestProcessNodeFactories(t *testing.T) {
	factories := NewProcessNodeFactories(&recordingClient{})
	require.Len(t, factories, 4)

	ids := make([]models.NodeType, 0, len(factories))
	for _, f := range factories {
		ids = append(ids, f.ID())
		assert.NotEmpty(t, f.Name())
		assert.NotEmpty(t, f.Description())
	}

	assert.ElementsMatch(t, []models.NodeType{
		models.NodeTypeProcessAIImage,
		models.NodeTypeProcessAIVideo,
		models.NodeTypeProcessAIAudio,
		models.NodeTypeProcessCode,
	}, ids)

	assert.Equal(t, []string{"prompt"}, NewProcessNodeFactory(models.NodeTypeProcessCode, nil).Schema()["required"])
	assert.Nil(t, NewProcessNodeFactory(models.NodeTypeProcessAIImage, nil).Schema()["required"])
	assert.Panics(t, func() { NewProcessNodeFactory(models.NodeTypeOutputSave, nil) })
}
