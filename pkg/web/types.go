// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/workflow"
)

// WorkflowRequest is the body of workflow create and replace requests.
type WorkflowRequest struct {
	ID    string        `json:"id,omitempty"`
	Name  string        `json:"name"         validate:"required,min=1,max=200"`
	Nodes []models.Node `json:"nodes"        validate:"dive"`
	Edges []models.Edge `json:"edges"        validate:"dive"`
}

func (r WorkflowRequest) toModel() *models.Workflow {
	return &models.Workflow{
		ID:    r.ID,
		Name:  r.Name,
		Nodes: r.Nodes,
		Edges: r.Edges,
	}
}

// RunRequest is the body of a run request. Zero values select the engine defaults.
type RunRequest struct {
	ConcurrencyLimit int   `json:"concurrency_limit,omitempty"   validate:"gte=0,lte=256"`
	PerNodeTimeoutMs int64 `json:"per_node_timeout_ms,omitempty" validate:"gte=0"`
	MaxRetries       int   `json:"max_retries,omitempty"         validate:"gte=0,lte=100"`
}

func (r RunRequest) toModel(workflowID string) models.ExecutionRequest {
	return models.ExecutionRequest{
		WorkflowID:       workflowID,
		ConcurrencyLimit: r.ConcurrencyLimit,
		PerNodeTimeoutMs: r.PerNodeTimeoutMs,
		MaxRetries:       r.MaxRetries,
	}
}

// RunAcceptedResponse acknowledges a run started in the background.
type RunAcceptedResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
}

// ValidationResponse reports a workflow that can be executed.
type ValidationResponse struct {
	Valid bool     `json:"valid"`
	Order []string `json:"order"`
}

// NodeTypeResponse describes a registered node handler.
type NodeTypeResponse struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
}

// RunListResponse lists the runs of a workflow, most recent first.
type RunListResponse struct {
	WorkflowID string              `json:"workflow_id"`
	Runs       []*models.RunRecord `json:"runs"`
}

// violationProblem is an RFC 7807 document extended with the validator's findings.
type violationProblem struct {
	Type       string               `json:"type"`
	Title      string               `json:"title"`
	Status     int                  `json:"status"`
	Detail     string               `json:"detail,omitempty"`
	Instance   string               `json:"instance,omitempty"`
	Violations []workflow.Violation `json:"violations"`
}
