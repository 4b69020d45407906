package output

import (
	"context"
	"errors"
	"testing"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkFunc func(ctx context.Context, req protocol.DeliveryRequest) (models.Artifact, error)

func (f sinkFunc) Deliver(ctx context.Context, req protocol.DeliveryRequest) (models.Artifact, error) {
	return f(ctx, req)
}

func TestOutputNode_Save(t *testing.T) {
	var got protocol.DeliveryRequest

	sink := sinkFunc(func(_ context.Context, req protocol.DeliveryRequest) (models.Artifact, error) {
		got = req

		return models.Artifact{Kind: models.ArtifactKindFile, URI: "file:///out/r1/save.json"}, nil
	})

	node := models.Node{ID: "save", Type: models.NodeTypeOutputSave, Data: models.NodeData{Format: "json"}}
	handler, err := NewSaveNodeFactory(sink).Create(context.Background(), node)
	require.NoError(t, err)

	artifact, err := handler.Execute(protocol.WithRunID(context.Background(), "r1"), node, map[string]models.Artifact{
		"z": {Kind: models.ArtifactKindText, Text: "caption"},
		"a": {Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/a.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "save", artifact.NodeID)
	assert.Equal(t, "file:///out/r1/save.json", artifact.URI)

	assert.Equal(t, protocol.DeliveryModeSave, got.Mode)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, "save", got.Label)
	assert.Equal(t, "json", got.Format)
	require.Len(t, got.Artifacts, 2)
	assert.Equal(t, "a", got.Artifacts[0].NodeID)
	assert.Equal(t, "z", got.Artifacts[1].NodeID)
}

func TestOutputNode_Errors(t *testing.T) {
	failing := sinkFunc(func(context.Context, protocol.DeliveryRequest) (models.Artifact, error) {
		return models.Artifact{}, errors.New("disk full")
	})

	_, err := NewOutputNode(protocol.DeliveryModeSave, failing, models.NodeData{Format: "exe"})
	assert.ErrorIs(t, err, protocol.ErrInvalidInput)

	_, err = NewOutputNode(protocol.DeliveryModeSave, nil, models.NodeData{})
	assert.Error(t, err)

	node := models.Node{ID: "dl", Type: models.NodeTypeOutputDownload}
	handler, err := NewDownloadNodeFactory(failing).Create(context.Background(), node)
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), node, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidInput)

	_, err = handler.Execute(context.Background(), node, map[string]models.Artifact{"a": {Kind: models.ArtifactKindText, Text: "x"}})
	assert.ErrorContains(t, err, "disk full")
}

func TestOutputNodeFactory_Metadata(t *testing.T) {
	assert.Equal(t, models.NodeTypeOutputSave, NewSaveNodeFactory(nil).ID())
	assert.Equal(t, models.NodeTypeOutputDownload, NewDownloadNodeFactory(nil).ID())
	assert.Equal(t, "Save", NewSaveNodeFactory(nil).Name())
	assert.Equal(t, "Download", NewDownloadNodeFactory(nil).Name())
}
