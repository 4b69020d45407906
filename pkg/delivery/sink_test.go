package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localPath(t *testing.T, artifact models.Artifact) string {
	t.Helper()

	parsed, err := url.Parse(artifact.URI)
	require.NoError(t, err)
	assert.Equal(t, "file", parsed.Scheme)

	return filepath.FromSlash(parsed.Path)
}

func TestFileSink_SaveManifest(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	delivered, err := sink.Deliver(context.Background(), protocol.DeliveryRequest{
		RunID:  "run-1",
		NodeID: "out",
		Mode:   protocol.DeliveryModeSave,
		Label:  "Poster",
		Artifacts: []models.Artifact{
			{NodeID: "img", Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/img.png"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ArtifactKindFile, delivered.Kind)
	assert.Equal(t, filepath.Join(dir, "run-1", "out.json"), localPath(t, delivered))

	data, err := os.ReadFile(filepath.Join(dir, "run-1", "out.json"))
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, "Poster", manifest.Label)
	assert.Equal(t, "save", manifest.Mode)
	require.Len(t, manifest.Artifacts, 1)
	assert.Equal(t, "https://cdn.example.com/img.png", manifest.Artifacts[0].URI)
}

func TestFileSink_SaveText(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileSink("file://"+dir).Deliver(context.Background(), protocol.DeliveryRequest{
		NodeID: "out",
		Mode:   protocol.DeliveryModeSave,
		Format: "txt",
		Artifacts: []models.Artifact{
			{NodeID: "a", Kind: models.ArtifactKindCode, Text: "package main"},
			{NodeID: "b", Kind: models.ArtifactKindImage, URI: "https://cdn.example.com/b.png"},
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "adhoc", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nhttps://cdn.example.com/b.png\n", string(data))
}

func TestFileSink_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write([]byte("bytes of " + r.URL.Path))
	}))
	defer server.Close()

	dir := t.TempDir()
	sink := NewFileSink(dir)

	t.Run("single artifact", func(t *testing.T) {
		delivered, err := sink.Deliver(context.Background(), protocol.DeliveryRequest{
			RunID:     "run-2",
			NodeID:    "dl",
			Mode:      protocol.DeliveryModeDownload,
			Artifacts: []models.Artifact{{NodeID: "img", URI: server.URL + "/img.png", MimeType: "image/png"}},
		})
		require.NoError(t, err)

		assert.Equal(t, "image/png", delivered.MimeType)

		data, err := os.ReadFile(localPath(t, delivered))
		require.NoError(t, err)
		assert.Equal(t, "bytes of /img.png", string(data))
		assert.Equal(t, "dl.png", filepath.Base(localPath(t, delivered)))
	})

	t.Run("several artifacts", func(t *testing.T) {
		delivered, err := sink.Deliver(context.Background(), protocol.DeliveryRequest{
			RunID:  "run-3",
			NodeID: "dl",
			Mode:   protocol.DeliveryModeDownload,
			Format: "mp4",
			Artifacts: []models.Artifact{
				{NodeID: "a", URI: server.URL + "/a"},
				{NodeID: "b", URI: server.URL + "/b"},
			},
		})
		require.NoError(t, err)

		assert.FileExists(t, filepath.Join(dir, "run-3", "dl-1.mp4"))
		assert.FileExists(t, filepath.Join(dir, "run-3", "dl-2.mp4"))
		assert.Equal(t, filepath.Join(dir, "run-3", "dl.json"), localPath(t, delivered))
	})

	t.Run("missing remote file", func(t *testing.T) {
		_, err := sink.Deliver(context.Background(), protocol.DeliveryRequest{
			RunID:     "run-4",
			NodeID:    "dl",
			Mode:      protocol.DeliveryModeDownload,
			Artifacts: []models.Artifact{{URI: server.URL + "/missing.png"}},
		})
		assert.ErrorIs(t, err, protocol.ErrInvalidInput)
	})

	t.Run("local file", func(t *testing.T) {
		source := filepath.Join(t.TempDir(), "clip.wav")
		require.NoError(t, os.WriteFile(source, []byte("riff"), 0o600))

		delivered, err := sink.Deliver(context.Background(), protocol.DeliveryRequest{
			RunID:     "run-5",
			NodeID:    "dl",
			Mode:      protocol.DeliveryModeSave,
			Format:    "wav",
			Artifacts: []models.Artifact{{URI: "file://" + filepath.ToSlash(source)}},
		})
		require.NoError(t, err)

		data, err := os.ReadFile(localPath(t, delivered))
		require.NoError(t, err)
		assert.Equal(t, "riff", string(data))
	})
}

func TestFileSink_Rejects(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	tests := map[string]protocol.DeliveryRequest{
		"no artifacts":       {NodeID: "out", Mode: protocol.DeliveryModeSave},
		"path in node id":    {NodeID: "../out", Mode: protocol.DeliveryModeSave, Artifacts: []models.Artifact{{Text: "x"}}},
		"unsupported scheme": {NodeID: "out", Mode: protocol.DeliveryModeDownload, Artifacts: []models.Artifact{{URI: "s3://bucket/key.png"}}},
	}

	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := sink.Deliver(context.Background(), req)
			assert.ErrorIs(t, err, protocol.ErrInvalidInput)
		})
	}
}
