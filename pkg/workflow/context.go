package workflow

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
)

// ErrInvalidTransition is returned when a node state change is not allowed by the node state machine.
var ErrInvalidTransition = errors.New("invalid node state transition")

// ExecutionContext holds the per-node state of one run. Only the executor's scheduling loop
// mutates it; readers take snapshots.
type ExecutionContext struct {
	mu         sync.RWMutex
	workflowID string
	runID      string
	startedAt  time.Time
	nodes      map[string]*models.NodeState
	now        func() time.Time
}

// NewExecutionContext creates a context with every node pending.
func NewExecutionContext(workflowID, runID string, nodeIDs []string) *ExecutionContext {
	ec := &ExecutionContext{
		workflowID: workflowID,
		runID:      runID,
		nodes:      make(map[string]*models.NodeState, len(nodeIDs)),
		now:        func() time.Time { return time.Now().UTC() },
	}

	ec.startedAt = ec.now()

	for _, id := range nodeIDs {
		ec.nodes[id] = &models.NodeState{Status: models.NodeStatusPending}
	}

	return ec
}

// RunID returns the id of the run.
func (ec *ExecutionContext) RunID() string {
	return ec.runID
}

// State returns a copy of the node's state.
func (ec *ExecutionContext) State(id string) (models.NodeState, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	state, ok := ec.nodes[id]
	if !ok {
		return models.NodeState{}, false
	}

	return *state, true
}

// Outputs returns the artifacts of the given nodes. Nodes without an output are omitted.
func (ec *ExecutionContext) Outputs(ids []string) map[string]models.Artifact {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	outputs := make(map[string]models.Artifact, len(ids))

	for _, id := range ids {
		if state, ok := ec.nodes[id]; ok && state.Output != nil {
			outputs[id] = *state.Output
		}
	}

	return outputs
}

// Snapshot returns the run as it stands. The record has no outcome until the run finishes.
func (ec *ExecutionContext) Snapshot() *models.RunRecord {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	nodes := make(map[string]models.NodeState, len(ec.nodes))
	for id, state := range ec.nodes {
		nodes[id] = *state
	}

	return &models.RunRecord{
		WorkflowID: ec.workflowID,
		RunID:      ec.runID,
		StartedAt:  ec.startedAt,
		Nodes:      nodes,
	}
}

func (ec *ExecutionContext) statuses() map[string]models.NodeStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make(map[string]models.NodeStatus, len(ec.nodes))
	for id, state := range ec.nodes {
		out[id] = state.Status
	}

	return out
}

func (ec *ExecutionContext) transition(id string, allowed []models.NodeStatus, apply func(*models.NodeState)) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	state, ok := ec.nodes[id]
	if !ok {
		return fmt.Errorf("%w: unknown node %s", ErrInvalidTransition, id)
	}

	for _, from := range allowed {
		if state.Status == from {
			apply(state)

			return nil
		}
	}

	return fmt.Errorf("%w: node %s is %s", ErrInvalidTransition, id, state.Status)
}

func (ec *ExecutionContext) markRunning(id string) error {
	return ec.transition(id, []models.NodeStatus{models.NodeStatusPending, models.NodeStatusRetrying}, func(s *models.NodeState) {
		now := ec.now()
		if s.StartedAt == nil {
			s.StartedAt = &now
		}

		s.Status = models.NodeStatusRunning
		s.Attempts++
	})
}

func (ec *ExecutionContext) markSucceeded(id string, output models.Artifact) error {
	return ec.transition(id, []models.NodeStatus{models.NodeStatusRunning}, func(s *models.NodeState) {
		now := ec.now()
		if output.NodeID == "" {
			output.NodeID = id
		}

		output.Metadata = maps.Clone(output.Metadata)
		s.Status = models.NodeStatusSucceeded
		s.Output = &output
		s.Error = nil
		s.FinishedAt = &now
	})
}

func (ec *ExecutionContext) markRetrying(id string, cause error) error {
	return ec.transition(id, []models.NodeStatus{models.NodeStatusRunning}, func(s *models.NodeState) {
		s.Status = models.NodeStatusRetrying
		s.Error = nodeError(cause)
	})
}

func (ec *ExecutionContext) markFailed(id string, cause error) error {
	return ec.transition(id, []models.NodeStatus{models.NodeStatusRunning}, func(s *models.NodeState) {
		now := ec.now()
		s.Status = models.NodeStatusFailed
		s.Error = nodeError(cause)
		s.FinishedAt = &now
	})
}

// markSkipped applies to nodes that never started or were waiting for another attempt.
func (ec *ExecutionContext) markSkipped(id string) error {
	return ec.transition(id, []models.NodeStatus{models.NodeStatusPending, models.NodeStatusRetrying}, func(s *models.NodeState) {
		now := ec.now()
		s.Status = models.NodeStatusSkipped
		s.FinishedAt = &now
	})
}
