// Package delivery stores the artifacts handed over by output nodes.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRunDir = "adhoc"
	dirPerm       = 0o755
	filePerm      = 0o644
)

// ErrUnsupportedScheme is returned when an artifact URI cannot be fetched.
var ErrUnsupportedScheme = errors.New("unsupported artifact URI scheme")

// Manifest describes what an output node delivered.
type Manifest struct {
	RunID       string            `json:"run_id"`
	NodeID      string            `json:"node_id"`
	Label       string            `json:"label"`
	Mode        string            `json:"mode"`
	DeliveredAt time.Time         `json:"delivered_at"`
	Artifacts   []models.Artifact `json:"artifacts"`
	Files       []string          `json:"files,omitempty"`
}

// FileSink writes deliveries under <dir>/<run id>/<node id>.<format>.
type FileSink struct {
	dir        string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*FileSink)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *FileSink) {
		s.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *FileSink) {
		s.logger = logger
	}
}

func NewFileSink(dir string, opts ...Option) *FileSink {
	s := &FileSink{
		dir: strings.TrimPrefix(dir, "file://"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("module", "file_sink")

	return s
}

// Deliver stores req. Save requests for json (the default) write a manifest, txt concatenates
// inline text, and media formats fetch the referenced files like a download.
func (s *FileSink) Deliver(ctx context.Context, req protocol.DeliveryRequest) (models.Artifact, error) {
	if len(req.Artifacts) == 0 {
		return models.Artifact{}, protocol.InvalidInput("node %s delivered no artifacts", req.NodeID)
	}

	if req.NodeID == "" || strings.ContainsAny(req.NodeID, `/\`) || req.NodeID == ".." {
		return models.Artifact{}, protocol.InvalidInput("invalid node id %q", req.NodeID)
	}

	runDir := req.RunID
	if runDir == "" {
		runDir = defaultRunDir
	}

	dir := filepath.Join(s.dir, filepath.Base(runDir))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return models.Artifact{}, fmt.Errorf("failed to create delivery directory: %w", err)
	}

	if req.Mode == protocol.DeliveryModeSave {
		switch req.Format {
		case "", "json":
			return s.saveManifest(ctx, dir, req, nil)
		case "txt":
			return s.saveText(ctx, dir, req)
		}
	}

	return s.download(ctx, dir, req)
}

func (s *FileSink) saveManifest(ctx context.Context, dir string, req protocol.DeliveryRequest, files []string) (models.Artifact, error) {
	manifest := Manifest{
		RunID:       req.RunID,
		NodeID:      req.NodeID,
		Label:       req.Label,
		Mode:        string(req.Mode),
		DeliveredAt: s.now(),
		Artifacts:   req.Artifacts,
		Files:       files,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return models.Artifact{}, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	target := filepath.Join(dir, req.NodeID+".json")
	if err := writeFile(target, data); err != nil {
		return models.Artifact{}, err
	}

	s.logger.InfoContext(ctx, "Saved manifest", "path", target, "artifacts", len(req.Artifacts))

	return fileArtifact(target, "application/json", len(req.Artifacts)), nil
}

func (s *FileSink) saveText(ctx context.Context, dir string, req protocol.DeliveryRequest) (models.Artifact, error) {
	parts := make([]string, 0, len(req.Artifacts))

	for _, artifact := range req.Artifacts {
		if artifact.Text != "" {
			parts = append(parts, artifact.Text)
		} else {
			parts = append(parts, artifact.URI)
		}
	}

	target := filepath.Join(dir, req.NodeID+".txt")
	if err := writeFile(target, []byte(strings.Join(parts, "\n\n")+"\n")); err != nil {
		return models.Artifact{}, err
	}

	s.logger.InfoContext(ctx, "Saved text", "path", target, "artifacts", len(req.Artifacts))

	return fileArtifact(target, "text/plain", len(req.Artifacts)), nil
}

// download stores every artifact locally. A single artifact is returned directly; several
// are listed in a manifest next to the fetched files.
func (s *FileSink) download(ctx context.Context, dir string, req protocol.DeliveryRequest) (models.Artifact, error) {
	files := make([]string, 0, len(req.Artifacts))

	for i, artifact := range req.Artifacts {
		name := req.NodeID
		if len(req.Artifacts) > 1 {
			name = fmt.Sprintf("%s-%d", req.NodeID, i+1)
		}

		target := filepath.Join(dir, name+extensionFor(artifact, req.Format))

		if err := s.store(ctx, artifact, target); err != nil {
			return models.Artifact{}, err
		}

		files = append(files, target)
	}

	s.logger.InfoContext(ctx, "Downloaded artifacts", "node_id", req.NodeID, "files", len(files))

	if len(files) == 1 {
		return fileArtifact(files[0], req.Artifacts[0].MimeType, 1), nil
	}

	return s.saveManifest(ctx, dir, req, files)
}

func (s *FileSink) store(ctx context.Context, artifact models.Artifact, target string) error {
	if artifact.URI == "" {
		return writeFile(target, []byte(artifact.Text))
	}

	parsed, err := url.Parse(artifact.URI)
	if err != nil {
		return protocol.InvalidInput("invalid artifact URI %q", artifact.URI)
	}

	switch parsed.Scheme {
	case "file":
		return copyFile(parsed.Path, target)
	case "http", "https":
		return s.fetch(ctx, parsed.String(), target)
	default:
		return protocol.InvalidInput("%v: %s", ErrUnsupportedScheme, artifact.URI)
	}
}

func (s *FileSink) fetch(ctx context.Context, uri, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return protocol.NewServiceError("", protocol.ErrProviderError, "failed to build download request", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.NewServiceError("", protocol.ErrTimeout, "download timed out", err)
		}

		return protocol.NewServiceError("", protocol.ErrProviderError, "download failed", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return protocol.NewServiceError("", protocol.ErrRateLimited, "download of "+uri+" rate limited", nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return protocol.NewServiceError("", protocol.ErrProviderError, fmt.Sprintf("download of %s returned status %d", uri, resp.StatusCode), nil)
	default:
		return protocol.InvalidInput("download of %s returned status %d", uri, resp.StatusCode)
	}

	return writeStream(target, resp.Body)
}

func extensionFor(artifact models.Artifact, format string) string {
	if format != "" && format != "json" {
		return "." + format
	}

	if artifact.URI == "" {
		return ".txt"
	}

	if parsed, err := url.Parse(artifact.URI); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" {
			return ext
		}
	}

	return ".bin"
}

func fileArtifact(target, mimeType string, count int) models.Artifact {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}

	return models.Artifact{
		Kind:     models.ArtifactKindFile,
		URI:      (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		MimeType: mimeType,
		Metadata: map[string]string{"artifacts": fmt.Sprint(count)},
	}
}

func writeFile(target string, data []byte) error {
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", target, err)
	}

	return nil
}

func writeStream(target string, r io.Reader) error {
	tmp := target + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)

		return protocol.NewServiceError("", protocol.ErrProviderError, "download interrupted", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", target, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", target, err)
	}

	return nil
}

func copyFile(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return protocol.InvalidInput("cannot read artifact %s: %v", source, err)
	}
	defer file.Close()

	return writeStream(target, file)
}
