package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/canvasflow/canvasflow/pkg/eventbus"
	"github.com/canvasflow/canvasflow/pkg/otelhelper"
	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/registry"
	"github.com/canvasflow/canvasflow/pkg/services"
	"github.com/canvasflow/canvasflow/pkg/workflow"
)

// EngineConfig collects what every binary needs to execute workflows.
type EngineConfig struct {
	ServiceName  string
	DatabaseURL  string
	EventBus     string
	KafkaBrokers string
	Tracing      bool
	Nodes        NodeConfig
	Retry        workflow.RetryPolicy
}

// Engine bundles the store, the node registry, the event bus and the services built on them.
type Engine struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	EventBus    eventbus.EventBus
	Workflows   *services.Workflows
	Runs        *services.Runs

	shutdownTracer otelhelper.ShutdownFunc
}

// NewEngine opens the configured collaborators. Everything opened so far is released when a
// later step fails.
func NewEngine(ctx context.Context, logger *slog.Logger, config EngineConfig) (*Engine, error) {
	reg, err := NewRegistry(logger, config.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	store, err := NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	bus, err := NewEventBus(logger, config.EventBus, config.KafkaBrokers, config.ServiceName)
	if err != nil {
		_ = store.Close(ctx)

		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	engine := &Engine{
		Persistence: store,
		Registry:    reg,
		EventBus:    bus,
	}

	tracer := otelhelper.NoopTracer()

	if config.Tracing {
		tracer, engine.shutdownTracer, err = otelhelper.NewTracer(ctx, config.ServiceName)
		if err != nil {
			_ = engine.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	executor := workflow.NewExecutor(reg,
		workflow.WithLogger(logger),
		workflow.WithTracer(tracer),
		workflow.WithPublisher(bus),
	)

	engine.Workflows = services.NewWorkflows(store, workflow.NewValidator(nil, reg), logger)
	engine.Runs = services.NewRuns(store, engine.Workflows, executor, logger, services.WithRetryPolicy(config.Retry))

	return engine, nil
}

// Close cancels active runs, waits for their records and releases every collaborator.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.Runs != nil {
		if err := e.Runs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop active runs: %w", err))
		}
	}

	if err := e.EventBus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
	}

	if err := e.Persistence.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
	}

	if e.shutdownTracer != nil {
		if err := e.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}

	return errors.Join(errs...)
}
