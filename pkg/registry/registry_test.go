package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/canvasflow/canvasflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFactory struct {
	id        models.NodeType
	createErr error
}

func (m *mockFactory) Create(context.Context, models.Node) (protocol.Handler, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}

	return protocol.HandlerFunc(func(_ context.Context, node models.Node, _ map[string]models.Artifact) (models.Artifact, error) {
		return models.Artifact{NodeID: node.ID, Kind: models.ArtifactKindText, Text: "mock"}, nil
	}), nil
}

func (m *mockFactory) ID() models.NodeType    { return m.id }
func (m *mockFactory) Name() string           { return "Mock" }
func (m *mockFactory) Description() string    { return "Mock node" }
func (m *mockFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterNode(&mockFactory{id: "mock"})

	handler, err := r.Dispatch(context.Background(), models.Node{ID: "n1", Type: "mock"})
	require.NoError(t, err)

	artifact, err := handler.Execute(context.Background(), models.Node{ID: "n1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", artifact.Text)
}

func TestRegistry_DispatchUnknownType(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, err := r.Dispatch(context.Background(), models.Node{ID: "n1", Type: "ghost"})

	require.ErrorIs(t, err, workflow.ErrUnknownNodeType)

	var unknown *workflow.UnknownNodeTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "n1", unknown.NodeID)
	assert.Equal(t, workflow.ErrorKindUnknownNodeType, workflow.Classify(err))
	assert.False(t, workflow.IsRetryable(err))
}

func TestRegistry_DispatchCreateError(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterNode(&mockFactory{id: "mock", createErr: errors.New("bad config")})

	_, err := r.Dispatch(context.Background(), models.Node{ID: "n1", Type: "mock"})
	assert.ErrorContains(t, err, "bad config")
}

func TestRegistry_DefaultNodes(t *testing.T) {
	r := NewRegistry(slog.Default())

	message, healthy := r.HealthCheck()
	assert.False(t, healthy)
	assert.Contains(t, message, "input_text")

	r.RegisterDefaultNodes(Dependencies{})

	message, healthy = r.HealthCheck()
	assert.True(t, healthy)
	assert.Equal(t, "10 node handlers registered", message)

	factories := r.Factories()
	require.Len(t, factories, 10)
	assert.Equal(t, models.NodeTypeInputMedia, factories[0].ID())

	for _, nodeType := range models.NodeTypes() {
		schema, ok := r.NodeSchema(nodeType)
		assert.True(t, ok, nodeType)
		assert.Equal(t, "object", schema["type"], nodeType)
	}

	_, ok := r.NodeSchema("ghost")
	assert.False(t, ok)
}

// The registry is the validator's schema source and the executor's dispatcher.
func TestRegistry_WithEngine(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterDefaultNodes(Dependencies{
		Services: protocol.ServiceClientFunc(func(_ context.Context, req protocol.ServiceRequest) (models.Artifact, error) {
			return models.Artifact{URI: "https://cdn.example.com/" + req.NodeID + ".png"}, nil
		}),
		Sink: sinkFunc(func(_ context.Context, req protocol.DeliveryRequest) (models.Artifact, error) {
			return models.Artifact{Kind: models.ArtifactKindFile, URI: "file:///tmp/" + req.NodeID}, nil
		}),
	})

	wf := &models.Workflow{
		ID:   "wf-1",
		Name: "poster",
		Nodes: []models.Node{
			{ID: "idea", Type: models.NodeTypeInputText, Data: models.NodeData{Prompt: "a poster"}},
			{ID: "img", Type: models.NodeTypeProcessAIImage, Data: models.NodeData{AspectRatio: "2:3"}},
			{ID: "save", Type: models.NodeTypeOutputSave, Data: models.NodeData{Format: "png"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "idea", Target: "img"},
			{ID: "e2", Source: "img", Target: "save"},
		},
	}

	validated, err := workflow.NewValidator(nil, r).Validate(wf)
	require.NoError(t, err)

	result := workflow.NewExecutor(r).Run(context.Background(), validated, workflow.RunOptions{})

	assert.Equal(t, models.RunOutcomeSucceeded, result.Outcome())
	assert.Equal(t, "https://cdn.example.com/img.png", result.Node("img").Output.URI)
	assert.Equal(t, models.ArtifactKindImage, result.Node("img").Output.Kind)
	assert.Equal(t, "file:///tmp/save", result.Node("save").Output.URI)

	wf.Nodes[1].Data.AspectRatio = "wide"
	_, err = workflow.NewValidator(nil, r).Validate(wf)
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

type sinkFunc func(ctx context.Context, req protocol.DeliveryRequest) (models.Artifact, error)

func (f sinkFunc) Deliver(ctx context.Context, req protocol.DeliveryRequest) (models.Artifact, error) {
	return f(ctx, req)
}
