package template

import (
	"testing"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPrompt_Plain(t *testing.T) {
	out, err := RenderPrompt("a red fox", "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "a red fox", out)
}

func TestRenderPrompt_Inputs(t *testing.T) {
	inputs := map[string]models.Artifact{
		"idea": {Kind: models.ArtifactKindText, Text: "a lighthouse at dusk"},
		"ref":  {Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/ref.png"},
	}

	out, err := RenderPrompt(`Paint {{.inputs.idea.text | upper}} in the style of {{.inputs.ref.uri}} ({{.run.id}})`, "run-7", inputs)
	require.NoError(t, err)
	assert.Equal(t, "Paint A LIGHTHOUSE AT DUSK in the style of https://cdn.example.com/ref.png (run-7)", out)
}

func TestRenderPrompt_Errors(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
	}{
		{"unknown input", "{{.inputs.missing.text}}"},
		{"parse error", "{{.inputs.idea.text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RenderPrompt(tt.prompt, "run-1", map[string]models.Artifact{"idea": {Text: "x"}})
			assert.Error(t, err)
		})
	}
}
