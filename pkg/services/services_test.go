package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/persistence/file"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/canvasflow/canvasflow/pkg/workflow"
)

// handlerDispatcher serves every node with the echo handler unless an override is set for its id.
type handlerDispatcher struct {
	mu       sync.Mutex
	handlers map[string]protocol.HandlerFunc
	calls    map[string]int
}

func newHandlerDispatcher() *handlerDispatcher {
	return &handlerDispatcher{
		handlers: make(map[string]protocol.HandlerFunc),
		calls:    make(map[string]int),
	}
}

func (d *handlerDispatcher) on(id string, fn protocol.HandlerFunc) *handlerDispatcher {
	d.handlers[id] = fn

	return d
}

func (d *handlerDispatcher) Dispatch(_ context.Context, node models.Node) (protocol.Handler, error) {
	fn, ok := d.handlers[node.ID]
	if !ok {
		fn = echo
	}

	return protocol.HandlerFunc(func(ctx context.Context, node models.Node, inputs map[string]models.Artifact) (models.Artifact, error) {
		d.mu.Lock()
		d.calls[node.ID]++
		d.mu.Unlock()

		return fn(ctx, node, inputs)
	}), nil
}

func (d *handlerDispatcher) callCount(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls[id]
}

func echo(_ context.Context, node models.Node, _ map[string]models.Artifact) (models.Artifact, error) {
	return models.Artifact{Kind: models.ArtifactKindText, Text: node.ID}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fixture struct {
	store     persistence.Persistence
	workflows *Workflows
	runs      *Runs
}

func newFixture(t *testing.T, dispatcher workflow.Dispatcher) *fixture {
	t.Helper()

	return newFixtureWithStore(t, file.NewPersistence(t.TempDir()), dispatcher)
}

func newFixtureWithStore(t *testing.T, store persistence.Persistence, dispatcher workflow.Dispatcher) *fixture {
	t.Helper()

	logger := discardLogger()
	workflows := NewWorkflows(store, workflow.NewValidator(nil, nil), logger)
	executor := workflow.NewExecutor(dispatcher, workflow.WithLogger(logger))
	runs := NewRuns(store, workflows, executor, logger, WithRetryPolicy(workflow.RetryPolicy{
		Limit:           3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = runs.Shutdown(ctx)
	})

	return &fixture{store: store, workflows: workflows, runs: runs}
}
