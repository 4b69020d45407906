package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

const posterWorkflow = `
id: poster
name: Poster
nodes:
  - id: idea
    type: input_text
    data:
      label: Idea
      prompt: a lighthouse at dusk
  - id: render
    type: process_ai_image
    data:
      label: Render
      aspectRatio: "2:3"
  - id: save
    type: output_save
    data:
      label: Save
      format: json
edges:
  - {id: e1, source: idea, target: render}
  - {id: e2, source: render, target: save}
`

const brokenWorkflow = `{
  "id": "broken",
  "name": "Broken",
  "nodes": [
    {"id": "a", "type": "process_ai_image", "data": {"label": "A"}},
    {"id": "b", "type": "process_ai_image", "data": {"label": "B"}}
  ],
  "edges": [
    {"id": "ab", "source": "a", "target": "b"},
    {"id": "ba", "source": "b", "target": "a"}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := newApp(&out)
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}

	err := app.Run(context.Background(), append([]string{"canvasflow"}, args...))

	return out.String(), err
}

func TestValidate_Valid(t *testing.T) {
	out, err := runApp(t, "validate", "--file", writeFile(t, "poster.yaml", posterWorkflow))
	require.NoError(t, err)

	assert.Contains(t, out, "workflow poster is valid")
	assert.Contains(t, out, "idea -> render -> save")
}

func TestValidate_ListsEveryViolation(t *testing.T) {
	out, err := runApp(t, "validate", "--file", writeFile(t, "broken.json", brokenWorkflow))

	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())

	assert.Contains(t, out, "missing_input_node")
	assert.Contains(t, out, "missing_output_node")
	assert.Contains(t, out, "cycle")
}

func TestValidate_UnreadableDocument(t *testing.T) {
	_, err := runApp(t, "validate", "--file", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = runApp(t, "validate", "--file", writeFile(t, "bad.json", "{not json"))
	require.Error(t, err)
}

func TestRun_File(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ServiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.Artifact{URI: "https://cdn.example.com/" + req.NodeID + ".png"})
	}))
	defer worker.Close()

	dataDir := t.TempDir()
	outputDir := t.TempDir()
	document := writeFile(t, "poster.yaml", posterWorkflow)

	args := []string{
		"run",
		"--file", document,
		"--database-url", "file://" + dataDir,
		"--worker-url", worker.URL,
		"--output-dir", outputDir,
		"--concurrency", "2",
		"--max-retries", "1",
	}

	out, err := runApp(t, args...)
	require.NoError(t, err)

	var record models.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "poster", record.WorkflowID)
	assert.Equal(t, models.RunOutcomeSucceeded, record.Outcome)
	assert.Equal(t, "https://cdn.example.com/render.png", record.Nodes["render"].Output.URI)

	assert.FileExists(t, filepath.Join(outputDir, record.RunID, "save.json"))
	assert.FileExists(t, filepath.Join(dataDir, "runs", "poster", record.RunID+".json"))

	// A second import of the same document replaces the stored workflow.
	_, err = runApp(t, args...)
	require.NoError(t, err)

	out, err = runApp(t, "run", "--workflow-id", "poster", "--database-url", "file://"+dataDir, "--output-dir", outputDir)

	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())

	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, models.RunOutcomeFailed, record.Outcome)
	assert.Equal(t, "invalid_input", record.Nodes["render"].Error.Kind)
	assert.Equal(t, models.NodeStatusSkipped, record.Nodes["save"].Status)
}

func TestRun_RequiresWorkflow(t *testing.T) {
	_, err := runApp(t, "run", "--database-url", "file://"+t.TempDir())
	require.ErrorIs(t, err, errNoWorkflow)

	_, err = runApp(t, "run", "--workflow-id", "ghost", "--database-url", "file://"+t.TempDir())
	require.Error(t, err)
}
