package models

import "time"

// NodeStatus defines the possible states of a node within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusRetrying  NodeStatus = "retrying"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// Terminal reports whether no further transition can leave the status.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusSucceeded || s == NodeStatusFailed || s == NodeStatusSkipped
}

// RunOutcome summarizes a finished run.
type RunOutcome string

const (
	RunOutcomeSucceeded RunOutcome = "succeeded" // every node succeeded
	RunOutcomePartial   RunOutcome = "partial"   // at least one output node succeeded
	RunOutcomeFailed    RunOutcome = "failed"    // no output node succeeded
)

// NodeError is the recorded failure of a node.
type NodeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NodeState is the per-run execution state of one node.
type NodeState struct {
	Status     NodeStatus `json:"status"`
	Output     *Artifact  `json:"output,omitempty"`
	Error      *NodeError `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunRecord is the persisted trace of one execution of a workflow.
type RunRecord struct {
	WorkflowID string               `json:"workflow_id"`
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Outcome    RunOutcome           `json:"outcome,omitempty"`
	Cancelled  bool                 `json:"cancelled,omitempty"`
	Nodes      map[string]NodeState `json:"nodes"`
}

// Finished reports whether the run has reached a terminal outcome.
func (r *RunRecord) Finished() bool {
	return r.FinishedAt != nil
}

// ExecutionRequest asks the engine to run a stored workflow.
// Zero values select the engine defaults.
type ExecutionRequest struct {
	WorkflowID       string `json:"workflow_id"                   validate:"required"`
	ConcurrencyLimit int    `json:"concurrency_limit,omitempty"   validate:"gte=0,lte=256"`
	PerNodeTimeoutMs int64  `json:"per_node_timeout_ms,omitempty" validate:"gte=0"`
	MaxRetries       int    `json:"max_retries,omitempty"         validate:"gte=0,lte=100"`
}
