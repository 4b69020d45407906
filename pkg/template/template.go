// Package template renders node prompts that reference the outputs of upstream nodes.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
)

// NeedsTemplating reports whether s contains template actions.
func NeedsTemplating(s string) bool {
	return strings.Contains(s, "{{")
}

// RenderPrompt renders prompt with the upstream artifacts available as
// {{.inputs.<node id>.text}}, {{.inputs.<node id>.uri}} and {{.inputs.<node id>.kind}}.
// A prompt without template actions is returned unchanged.
func RenderPrompt(prompt string, runID string, inputs map[string]models.Artifact) (string, error) {
	if !NeedsTemplating(prompt) {
		return prompt, nil
	}

	byNode := make(map[string]any, len(inputs))
	for id, artifact := range inputs {
		byNode[id] = map[string]any{
			"text":      artifact.Text,
			"uri":       artifact.URI,
			"kind":      string(artifact.Kind),
			"mime_type": artifact.MimeType,
			"metadata":  artifact.Metadata,
		}
	}

	return Render(prompt, map[string]any{
		"inputs": byNode,
		"run": map[string]any{
			"id": runID,
		},
	})
}

// Render executes templateStr against data. Missing keys are errors.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("prompt").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"trim":  strings.TrimSpace,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(buf.String()), nil
}
