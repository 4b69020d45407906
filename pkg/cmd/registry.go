package cmd

import (
	"context"
	"log/slog"

	"github.com/canvasflow/canvasflow/pkg/clients/worker"
	"github.com/canvasflow/canvasflow/pkg/delivery"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/canvasflow/canvasflow/pkg/registry"
)

// NodeConfig configures the collaborators of the built-in node handlers.
type NodeConfig struct {
	WorkerURL   string
	WorkerToken string
	OutputDir   string
}

// NewServiceClient returns the HTTP worker client, or a client rejecting every call when no
// worker URL is configured.
func NewServiceClient(logger *slog.Logger, workerURL, token string) (protocol.ServiceClient, error) {
	if workerURL == "" {
		return protocol.ServiceClientFunc(func(_ context.Context, req protocol.ServiceRequest) (models.Artifact, error) {
			return models.Artifact{}, protocol.NewServiceError(req.Capability, protocol.ErrInvalidInput, "no worker URL configured", nil)
		}), nil
	}

	return worker.NewClient(workerURL, worker.WithToken(token), worker.WithLogger(logger))
}

// NewRegistry registers the built-in node handlers wired to the configured worker and
// output directory.
func NewRegistry(logger *slog.Logger, config NodeConfig) (*registry.Registry, error) {
	services, err := NewServiceClient(logger, config.WorkerURL, config.WorkerToken)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(registry.Dependencies{
		Services: services,
		Sink:     delivery.NewFileSink(config.OutputDir, delivery.WithLogger(logger)),
	})

	return reg, nil
}
