package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Validation_ValidWorkflow(t *testing.T) {
	workflow := &Workflow{
		ID:   "wf-1",
		Name: "Poster generator",
		Nodes: []Node{
			{ID: "prompt", Type: NodeTypeInputText, Data: NodeData{Label: "Prompt", Prompt: "a red fox"}},
			{ID: "image", Type: NodeTypeProcessAIImage, Data: NodeData{Label: "Image", Model: "flux"}},
		},
		Edges:     []Edge{{ID: "e1", Source: "prompt", Target: "image"}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	err := validator.New().Struct(workflow)
	assert.NoError(t, err)
}

func TestWorkflow_Validation_MissingRequiredFields(t *testing.T) {
	testCases := []struct {
		name     string
		workflow *Workflow
	}{
		{
			name:     "missing id",
			workflow: &Workflow{Name: "x"},
		},
		{
			name:     "missing name",
			workflow: &Workflow{ID: "wf"},
		},
		{
			name: "node without type",
			workflow: &Workflow{
				ID:    "wf",
				Name:  "x",
				Nodes: []Node{{ID: "a"}},
			},
		},
		{
			name: "edge without target",
			workflow: &Workflow{
				ID:    "wf",
				Name:  "x",
				Edges: []Edge{{ID: "e", Source: "a"}},
			},
		},
	}

	validate := validator.New()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, validate.Struct(tc.workflow))
		})
	}
}

func TestNodeType_Categories(t *testing.T) {
	for _, nodeType := range NodeTypes() {
		categories := 0
		for _, is := range []bool{nodeType.IsInput(), nodeType.IsOutput(), nodeType.IsProcessor(), nodeType.IsTransform()} {
			if is {
				categories++
			}
		}

		assert.Equal(t, 1, categories, "node type %s must belong to exactly one category", nodeType)
		assert.True(t, nodeType.Known())
	}

	assert.False(t, NodeType("process_ai_smell").Known())
}

func TestNodeStatus_Terminal(t *testing.T) {
	assert.True(t, NodeStatusSucceeded.Terminal())
	assert.True(t, NodeStatusFailed.Terminal())
	assert.True(t, NodeStatusSkipped.Terminal())
	assert.False(t, NodeStatusPending.Terminal())
	assert.False(t, NodeStatusRunning.Terminal())
	assert.False(t, NodeStatusRetrying.Terminal())
}

func TestKindFromURI(t *testing.T) {
	assert.Equal(t, ArtifactKindImage, KindFromURI("https://cdn.example.com/a/b.PNG"))
	assert.Equal(t, ArtifactKindVideo, KindFromURI("s3://bucket/clip.mp4?sig=abc"))
	assert.Equal(t, ArtifactKindAudio, KindFromURI("/tmp/voice.wav"))
	assert.Equal(t, ArtifactKindFile, KindFromURI("https://example.com/archive.zip"))
	assert.Equal(t, ArtifactKindFile, KindFromURI(""))
}

func TestDecodeWorkflow(t *testing.T) {
	jsonDoc := []byte(`{
		"id": "wf-json",
		"name": "json doc",
		"nodes": [{"id": "n1", "type": "input_text", "position": {"x": 10, "y": 20}, "data": {"label": "Prompt", "prompt": "hello"}}],
		"edges": [],
		"createdAt": "2024-05-01T10:00:00Z"
	}`)

	workflow, err := DecodeWorkflow(jsonDoc, DocumentFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "wf-json", workflow.ID)
	require.Len(t, workflow.Nodes, 1)
	assert.Equal(t, NodeTypeInputText, workflow.Nodes[0].Type)
	assert.Equal(t, "hello", workflow.Nodes[0].Data.Prompt)
	assert.Equal(t, 2024, workflow.CreatedAt.Year())

	yamlDoc := []byte(`
id: wf-yaml
name: yaml doc
nodes:
  - id: src
    type: input_media
    data:
      label: Source
      url: https://example.com/cat.png
  - id: up
    type: transform_upscale
    data:
      label: Upscale
      aspectRatio: "16:9"
edges:
  - id: e1
    source: src
    target: up
`)

	workflow, err = DecodeWorkflow(yamlDoc, DocumentFormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "wf-yaml", workflow.ID)
	require.Len(t, workflow.Nodes, 2)
	assert.Equal(t, "16:9", workflow.Nodes[1].Data.AspectRatio)
	require.Len(t, workflow.Edges, 1)
	assert.Equal(t, "up", workflow.Edges[0].Target)

	_, err = DecodeWorkflow([]byte("{"), DocumentFormatJSON)
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, DocumentFormatYAML, FormatFromPath("flows/poster.yaml"))
	assert.Equal(t, DocumentFormatYAML, FormatFromPath("flows/poster.YML"))
	assert.Equal(t, DocumentFormatJSON, FormatFromPath("flows/poster.json"))
	assert.Equal(t, DocumentFormatJSON, FormatFromPath("flows/poster"))
}

func TestSchedule(t *testing.T) {
	schedule, err := NewSchedule("s1", "wf-1", "*/5 * * * *")
	require.NoError(t, err)
	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Second)))

	reference := time.Date(2024, 1, 1, 10, 2, 0, 0, time.UTC)
	require.NoError(t, schedule.Advance(reference))
	assert.Equal(t, time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC), schedule.NextDueAt)
	assert.True(t, schedule.IsDue(reference.Add(3*time.Minute)))
	assert.False(t, schedule.IsDue(reference.Add(2*time.Minute)))

	schedule.Active = false
	assert.False(t, schedule.IsDue(reference.Add(time.Hour)))

	_, err = NewSchedule("s2", "wf-1", "not a cron")
	require.ErrorIs(t, err, ErrInvalidSchedule)

	parsed, err := ParseSchedule("wf-9=@hourly")
	require.NoError(t, err)
	assert.Equal(t, "wf-9", parsed.WorkflowID)
	assert.Equal(t, "@hourly", parsed.CronExpression)

	_, err = ParseSchedule("missing-separator")
	require.ErrorIs(t, err, ErrInvalidSchedule)
}
