package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/canvasflow/canvasflow/pkg/eventbus"
	"github.com/canvasflow/canvasflow/pkg/events"
	"github.com/canvasflow/canvasflow/pkg/log"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/otelhelper"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Run defaults.
const (
	DefaultConcurrencyLimit = 4
	DefaultNodeTimeout      = 60 * time.Second
)

// Dispatcher resolves the handler for a node.
type Dispatcher interface {
	Dispatch(ctx context.Context, node models.Node) (protocol.Handler, error)
}

// RunOptions configures one run. Zero values select the defaults.
type RunOptions struct {
	RunID            string
	ConcurrencyLimit int
	NodeTimeout      time.Duration
	Retry            RetryPolicy
}

func (o RunOptions) normalized() RunOptions {
	q := o
	if q.RunID == "" {
		q.RunID = uuid.NewString()
	}

	if q.ConcurrencyLimit <= 0 {
		q.ConcurrencyLimit = DefaultConcurrencyLimit
	}

	if q.NodeTimeout <= 0 {
		q.NodeTimeout = DefaultNodeTimeout
	}

	q.Retry = q.Retry.normalized()

	return q
}

// RunResult is the final trace of a run.
type RunResult struct {
	Record *models.RunRecord
}

// Outcome returns the run outcome.
func (r *RunResult) Outcome() models.RunOutcome {
	return r.Record.Outcome
}

// Node returns the final state of a node.
func (r *RunResult) Node(id string) models.NodeState {
	return r.Record.Nodes[id]
}

// Executor schedules the nodes of validated graphs onto their handlers.
type Executor struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
	publisher  eventbus.EventPublisher
}

type ExecutorOption func(*Executor)

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithPublisher emits every node transition and the run start and completion as events.
func WithPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

func NewExecutor(dispatcher Dispatcher, opts ...ExecutorOption) *Executor {
	e := &Executor{
		dispatcher: dispatcher,
		logger:     slog.Default(),
		tracer:     otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "executor")

	return e
}

// Run executes the graph and blocks until every node is terminal.
func (e *Executor) Run(ctx context.Context, graph *ValidatedGraph, opts RunOptions) *RunResult {
	return e.Start(ctx, graph, opts).Wait()
}

// Start begins executing the graph in the background. Cancelling ctx cancels the run.
func (e *Executor) Start(ctx context.Context, graph *ValidatedGraph, opts RunOptions) *ActiveRun {
	opts = opts.normalized()

	s := &scheduler{
		executor: e,
		graph:    graph,
		opts:     opts,
		ec:       NewExecutionContext(graph.Workflow().ID, opts.RunID, graph.Order()),
		logger:   e.logger.With("workflow_id", graph.Workflow().ID, "run_id", opts.RunID),
	}

	run := &ActiveRun{
		ec:   s.ec,
		done: make(chan struct{}),
	}

	go func() {
		defer close(run.done)

		run.result = s.run(ctx)
	}()

	return run
}

// ActiveRun is a handle on a run started with Start.
type ActiveRun struct {
	ec     *ExecutionContext
	done   chan struct{}
	result *RunResult
}

// ID returns the run id.
func (r *ActiveRun) ID() string {
	return r.ec.RunID()
}

// Snapshot returns the live per-node state.
func (r *ActiveRun) Snapshot() *models.RunRecord {
	select {
	case <-r.done:
		return r.result.Record
	default:
		return r.ec.Snapshot()
	}
}

// Done is closed once the run finished.
func (r *ActiveRun) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finished and returns its result.
func (r *ActiveRun) Wait() *RunResult {
	<-r.done

	return r.result
}

type attemptResult struct {
	nodeID   string
	attempt  int
	output   models.Artifact
	err      error
	fatal    bool // never retried
	duration time.Duration
}

// scheduler owns the state of a single run. Only its loop goroutine mutates the ExecutionContext.
type scheduler struct {
	executor *Executor
	graph    *ValidatedGraph
	opts     RunOptions
	ec       *ExecutionContext
	logger   *slog.Logger

	remaining map[string]int
	ready     []string
	inflight  int
	waiting   map[string]*time.Timer
	backoffs  map[string]*backoff.ExponentialBackOff
	cancelled bool

	results chan attemptResult
	retries chan string
}

func (s *scheduler) run(ctx context.Context) *RunResult {
	workflow := s.graph.Workflow()
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, s.executor.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.RunIDKey, s.opts.RunID),
	)
	defer span.End()

	s.logger.InfoContext(ctx, "Starting run",
		"nodes", s.graph.Graph().Len(),
		"concurrency_limit", s.opts.ConcurrencyLimit,
		"node_timeout", s.opts.NodeTimeout,
		"retry_limit", s.opts.Retry.Limit)

	s.publish(ctx, &events.RunStarted{
		BaseEvent:    s.baseEvent(events.RunStartedEvent),
		WorkflowName: workflow.Name,
		NodeCount:    s.graph.Graph().Len(),
	})

	order := s.graph.Order()
	n := len(order)

	s.remaining = make(map[string]int, n)
	s.waiting = make(map[string]*time.Timer)
	s.backoffs = make(map[string]*backoff.ExponentialBackOff)
	s.results = make(chan attemptResult, n)
	s.retries = make(chan string, n)

	for _, id := range order {
		s.remaining[id] = len(s.graph.Graph().Predecessors(id))
		if s.remaining[id] == 0 {
			s.enqueue(id)
		}
	}

	var group errgroup.Group
	group.SetLimit(s.opts.ConcurrencyLimit)

	done := ctx.Done()

	for {
		if !s.cancelled && ctx.Err() != nil {
			done = nil

			s.cancel(ctx)
		}

		for !s.cancelled && len(s.ready) > 0 && s.inflight < s.opts.ConcurrencyLimit {
			id := s.ready[0]
			s.ready = s.ready[1:]
			s.dispatch(ctx, &group, id)
		}

		if s.inflight == 0 && len(s.ready) == 0 && len(s.waiting) == 0 {
			break
		}

		select {
		case res := <-s.results:
			s.inflight--
			s.complete(ctx, res)
		case id := <-s.retries:
			if _, ok := s.waiting[id]; ok {
				delete(s.waiting, id)
				s.enqueue(id)
			}
		case <-done:
			done = nil

			s.cancel(ctx)
		}
	}

	_ = group.Wait()

	record := s.ec.Snapshot()
	finished := time.Now().UTC()
	record.FinishedAt = &finished
	record.Cancelled = s.cancelled
	record.Outcome = outcomeOf(s.graph.Graph(), record)

	span.SetAttributes(attribute.String(otelhelper.RunOutcomeKey, string(record.Outcome)))

	statuses := make(map[string]models.NodeStatus, len(record.Nodes))
	for id, state := range record.Nodes {
		statuses[id] = state.Status
	}

	s.logger.InfoContext(ctx, "Run finished",
		"outcome", record.Outcome,
		"cancelled", record.Cancelled,
		"duration", time.Since(started))

	// ctx may be cancelled; the completion event must still go out.
	s.publish(context.WithoutCancel(ctx), &events.RunCompleted{
		BaseEvent:  s.baseEvent(events.RunCompletedEvent),
		Outcome:    record.Outcome,
		Cancelled:  record.Cancelled,
		DurationMs: time.Since(started).Milliseconds(),
		Statuses:   statuses,
	})

	return &RunResult{Record: record}
}

// enqueue inserts id into the ready list, which stays sorted by topological position.
func (s *scheduler) enqueue(id string) {
	pos := s.graph.position(id)
	i, _ := slices.BinarySearchFunc(s.ready, pos, func(candidate string, target int) int {
		return s.graph.position(candidate) - target
	})
	s.ready = slices.Insert(s.ready, i, id)
}

func (s *scheduler) dispatch(ctx context.Context, group *errgroup.Group, id string) {
	if err := s.ec.markRunning(id); err != nil {
		s.logger.ErrorContext(ctx, "Cannot start node", "node_id", id, "error", err)

		return
	}

	state, _ := s.ec.State(id)
	node, _ := s.graph.Graph().Node(id)
	inputs := s.ec.Outputs(s.graph.Graph().Predecessors(id))

	s.logger.DebugContext(ctx, "Dispatching node", "node_id", id, "node_type", node.Type, "attempt", state.Attempts)

	s.publish(ctx, &events.NodeStarted{
		BaseEvent: s.baseEvent(events.NodeStartedEvent),
		NodeID:    id,
		NodeType:  node.Type,
		Attempt:   state.Attempts,
	})

	s.inflight++

	group.Go(func() error {
		s.results <- s.executor.attempt(ctx, s.opts, node, inputs, state.Attempts)

		return nil
	})
}

func (e *Executor) attempt(ctx context.Context, opts RunOptions, node models.Node, inputs map[string]models.Artifact, attempt int) (res attemptResult) {
	res = attemptResult{nodeID: node.ID, attempt: attempt}
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.RunIDKey, opts.RunID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.Int(otelhelper.NodeAttemptKey, attempt),
	)

	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("handler for node %s panicked: %v", node.ID, r)
			res.fatal = true
		}

		res.duration = time.Since(started)

		if res.err != nil {
			otelhelper.SetError(span, res.err, attribute.String(otelhelper.ErrorKindKey, string(Classify(res.err))))
		}

		span.End()
	}()

	handler, err := e.dispatcher.Dispatch(ctx, node)
	if err != nil {
		res.err = err
		res.fatal = true

		return res
	}

	nodeLogger := e.logger.With("run_id", opts.RunID, "node_id", node.ID, "attempt", attempt)
	nodeCtx, cancel := context.WithTimeout(log.WithLogger(protocol.WithRunID(ctx, opts.RunID), nodeLogger), opts.NodeTimeout)
	defer cancel()

	output, err := handler.Execute(nodeCtx, node, inputs)
	if err != nil {
		if ctx.Err() == nil && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("node %s exceeded %s: %w: %w", node.ID, opts.NodeTimeout, context.DeadlineExceeded, err)
		}

		res.err = err

		return res
	}

	res.output = output

	return res
}

func (s *scheduler) complete(ctx context.Context, res attemptResult) {
	id := res.nodeID

	if res.err == nil {
		if err := s.ec.markSucceeded(id, res.output); err != nil {
			s.logger.ErrorContext(ctx, "Cannot record node success", "node_id", id, "error", err)

			return
		}

		state, _ := s.ec.State(id)

		s.logger.InfoContext(ctx, "Node succeeded", "node_id", id, "attempt", res.attempt, "duration", res.duration)
		s.publish(ctx, &events.NodeSucceeded{
			BaseEvent:  s.baseEvent(events.NodeSucceededEvent),
			NodeID:     id,
			Attempt:    res.attempt,
			Output:     *state.Output,
			DurationMs: res.duration.Milliseconds(),
		})

		for _, successor := range s.graph.Graph().Successors(id) {
			s.remaining[successor]--

			if s.remaining[successor] == 0 && !s.cancelled {
				if state, _ := s.ec.State(successor); state.Status == models.NodeStatusPending {
					s.enqueue(successor)
				}
			}
		}

		return
	}

	cause := res.err
	if s.cancelled || ctx.Err() != nil {
		cause = fmt.Errorf("%w: %v", ErrRunCancelled, res.err)
	}

	kind := Classify(cause)

	if !res.fatal && kind.IsRetryable() && s.opts.Retry.allows(res.attempt) {
		if err := s.ec.markRetrying(id, cause); err != nil {
			s.logger.ErrorContext(ctx, "Cannot record node retry", "node_id", id, "error", err)

			return
		}

		delay := s.backoffFor(id).NextBackOff()
		s.waiting[id] = time.AfterFunc(delay, func() {
			s.retries <- id
		})

		s.logger.WarnContext(ctx, "Node attempt failed, retrying",
			"node_id", id, "attempt", res.attempt, "error_kind", kind, "delay", delay, "error", cause)
		s.publish(ctx, &events.NodeRetrying{
			BaseEvent: s.baseEvent(events.NodeRetryingEvent),
			NodeID:    id,
			Attempt:   res.attempt,
			Error:     *nodeError(cause),
			DelayMs:   delay.Milliseconds(),
		})

		return
	}

	if err := s.ec.markFailed(id, cause); err != nil {
		s.logger.ErrorContext(ctx, "Cannot record node failure", "node_id", id, "error", err)

		return
	}

	s.logger.ErrorContext(ctx, "Node failed", "node_id", id, "attempt", res.attempt, "error_kind", kind, "error", cause)
	s.publish(ctx, &events.NodeFailed{
		BaseEvent: s.baseEvent(events.NodeFailedEvent),
		NodeID:    id,
		Attempt:   res.attempt,
		Error:     *nodeError(cause),
	})

	s.skipDescendants(ctx, id)
}

func (s *scheduler) backoffFor(id string) *backoff.ExponentialBackOff {
	b, ok := s.backoffs[id]
	if !ok {
		b = s.opts.Retry.newBackOff()
		s.backoffs[id] = b
	}

	return b
}

// skipDescendants marks every pending node downstream of a failed node as skipped.
func (s *scheduler) skipDescendants(ctx context.Context, failed string) {
	queue := s.graph.Graph().Successors(failed)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if state, _ := s.ec.State(id); state.Status != models.NodeStatusPending {
			continue
		}

		s.skip(ctx, id, fmt.Sprintf("upstream node %s failed", failed))

		queue = append(queue, s.graph.Graph().Successors(id)...)
	}
}

// cancel skips every node that has not started or is waiting for another attempt.
// In-flight attempts observe the cancelled context and are collected by the loop.
func (s *scheduler) cancel(ctx context.Context) {
	s.cancelled = true
	s.ready = nil

	for id, timer := range s.waiting {
		timer.Stop()
		delete(s.waiting, id)
	}

	s.logger.WarnContext(ctx, "Run cancelled", "in_flight", s.inflight)

	for _, id := range s.graph.Order() {
		state, _ := s.ec.State(id)
		if state.Status == models.NodeStatusPending || state.Status == models.NodeStatusRetrying {
			s.skip(ctx, id, "run cancelled")
		}
	}
}

func (s *scheduler) skip(ctx context.Context, id, reason string) {
	if err := s.ec.markSkipped(id); err != nil {
		s.logger.ErrorContext(ctx, "Cannot skip node", "node_id", id, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Node skipped", "node_id", id, "reason", reason)
	s.publish(ctx, &events.NodeSkipped{
		BaseEvent: s.baseEvent(events.NodeSkippedEvent),
		NodeID:    id,
		Reason:    reason,
	})
}

func (s *scheduler) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.NewBaseEvent(eventType, s.graph.Workflow().ID, s.opts.RunID)
}

func (s *scheduler) publish(ctx context.Context, event eventbus.Event) {
	if s.executor.publisher == nil {
		return
	}

	if err := s.executor.publisher.Publish(ctx, s.opts.RunID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// outcomeOf is succeeded when every node succeeded, failed when no output node succeeded
// and partial otherwise.
func outcomeOf(graph *Graph, record *models.RunRecord) models.RunOutcome {
	all := true
	anyOutput := false

	for _, node := range graph.Nodes() {
		succeeded := record.Nodes[node.ID].Status == models.NodeStatusSucceeded
		all = all && succeeded

		if succeeded && node.Type.IsOutput() {
			anyOutput = true
		}
	}

	switch {
	case all:
		return models.RunOutcomeSucceeded
	case anyOutput:
		return models.RunOutcomePartial
	default:
		return models.RunOutcomeFailed
	}
}
