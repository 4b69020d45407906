package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const saveTimeout = 30 * time.Second

// Runs starts workflow executions and keeps track of the ones still in flight.
type Runs struct {
	persistence persistence.Persistence
	workflows   *Workflows
	executor    *workflow.Executor
	validate    *validator.Validate
	retry       workflow.RetryPolicy
	logger      *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	workflowID string
	run        *workflow.ActiveRun
	cancel     context.CancelFunc
	done       chan struct{}

	// set before done is closed
	record *models.RunRecord
	err    error
}

type RunsOption func(*Runs)

// WithRetryPolicy sets the backoff used for every run. A request's max_retries
// overrides only the attempt limit.
func WithRetryPolicy(policy workflow.RetryPolicy) RunsOption {
	return func(r *Runs) {
		r.retry = policy
	}
}

// NewRuns creates a new run service.
func NewRuns(
	store persistence.Persistence,
	workflows *Workflows,
	executor *workflow.Executor,
	logger *slog.Logger,
	opts ...RunsOption,
) *Runs {
	r := &Runs{
		persistence: store,
		workflows:   workflows,
		executor:    executor,
		validate:    newRequestValidator(),
		retry:       workflow.DefaultRetryPolicy(),
		logger:      logger.With("module", "run_service"),
		active:      make(map[string]*activeRun),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Execute runs a stored workflow and blocks until it finished. The record is persisted
// even when ctx was cancelled mid-run.
func (r *Runs) Execute(ctx context.Context, req models.ExecutionRequest) (*models.RunRecord, error) {
	graph, opts, err := r.prepare(ctx, "execute_run", req)
	if err != nil {
		return nil, err
	}

	result := r.executor.Run(ctx, graph, opts)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := r.persistence.SaveRunResult(saveCtx, req.WorkflowID, result.Record); err != nil {
		return result.Record, fmt.Errorf("failed to save run %s: %w", opts.RunID, err)
	}

	return result.Record, nil
}

// Start begins a run in the background and returns its id. The run does not inherit
// the cancellation of ctx; use Cancel to stop it.
func (r *Runs) Start(ctx context.Context, req models.ExecutionRequest) (string, error) {
	graph, opts, err := r.prepare(ctx, "start_run", req)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	entry := &activeRun{
		workflowID: req.WorkflowID,
		run:        r.executor.Start(runCtx, graph, opts),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	r.mu.Lock()
	r.active[opts.RunID] = entry
	r.mu.Unlock()

	r.wg.Add(1)

	go r.finish(opts.RunID, entry)

	return opts.RunID, nil
}

func (r *Runs) finish(runID string, entry *activeRun) {
	defer r.wg.Done()

	result := entry.run.Wait()
	entry.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	entry.record = result.Record
	if err := r.persistence.SaveRunResult(ctx, entry.workflowID, result.Record); err != nil {
		entry.err = fmt.Errorf("failed to save run %s: %w", runID, err)
		r.logger.Error("Failed to persist run", "run_id", runID, "workflow_id", entry.workflowID, "error", err)
	}

	r.mu.Lock()
	delete(r.active, runID)
	r.mu.Unlock()

	close(entry.done)
}

// Cancel raises the cancellation signal of an active run.
func (r *Runs) Cancel(ctx context.Context, runID string) error {
	if entry, ok := r.lookup(runID); ok {
		entry.cancel()
		r.logger.InfoContext(ctx, "Run cancellation requested", "run_id", runID, "workflow_id", entry.workflowID)

		return nil
	}

	if _, err := r.persistence.RunByID(ctx, runID); err != nil {
		return err
	}

	return &ServiceError{
		Op:      "cancel_run",
		Code:    CodeConflict,
		Message: fmt.Sprintf("run %s already finished", runID),
		Err:     ErrRunNotActive,
	}
}

// Get returns the live snapshot of an active run, or the persisted record otherwise.
func (r *Runs) Get(ctx context.Context, runID string) (*models.RunRecord, error) {
	if entry, ok := r.lookup(runID); ok {
		return entry.run.Snapshot(), nil
	}

	return r.persistence.RunByID(ctx, runID)
}

// Wait blocks until the run finished or ctx is done.
func (r *Runs) Wait(ctx context.Context, runID string) (*models.RunRecord, error) {
	entry, ok := r.lookup(runID)
	if !ok {
		return r.persistence.RunByID(ctx, runID)
	}

	select {
	case <-entry.done:
		return entry.record, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListByWorkflow returns the active runs of a workflow followed by its persisted runs,
// most recent first.
func (r *Runs) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	persisted, err := r.persistence.RunsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	live := make([]*models.RunRecord, 0, len(r.active))
	for _, entry := range r.active {
		if entry.workflowID == workflowID {
			live = append(live, entry.run.Snapshot())
		}
	}
	r.mu.Unlock()

	seen := make(map[string]bool, len(live))
	records := make([]*models.RunRecord, 0, len(live)+len(persisted))

	for _, record := range live {
		seen[record.RunID] = true
		records = append(records, record)
	}

	for _, record := range persisted {
		if !seen[record.RunID] {
			records = append(records, record)
		}
	}

	return records, nil
}

// ActiveCount returns the number of runs still executing.
func (r *Runs) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.active)
}

// Shutdown cancels every active run and waits until their records are persisted.
func (r *Runs) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, entry := range r.active {
		entry.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runs) lookup(runID string) (*activeRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.active[runID]

	return entry, ok
}

// prepare validates the request and the workflow graph. Nothing is persisted when it fails.
func (r *Runs) prepare(
	ctx context.Context,
	op string,
	req models.ExecutionRequest,
) (*workflow.ValidatedGraph, workflow.RunOptions, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, workflow.RunOptions{}, NewValidationError(op, describeStructError(err), errors.Join(ErrInvalidRequest, err))
	}

	graph, err := r.workflows.Validate(ctx, req.WorkflowID)
	if err != nil {
		return nil, workflow.RunOptions{}, err
	}

	return graph, r.runOptions(req), nil
}

func (r *Runs) runOptions(req models.ExecutionRequest) workflow.RunOptions {
	retry := r.retry
	if req.MaxRetries > 0 {
		retry.Limit = req.MaxRetries
	}

	return workflow.RunOptions{
		RunID:            uuid.NewString(),
		ConcurrencyLimit: req.ConcurrencyLimit,
		NodeTimeout:      time.Duration(req.PerNodeTimeoutMs) * time.Millisecond,
		Retry:            retry,
	}
}
