// Package persistence provides the storage abstraction for workflows and run records.
package persistence

import (
	"context"

	"github.com/canvasflow/canvasflow/pkg/models"
)

// Persistence stores workflow documents and the records of their runs. Implementations
// serialize writes per workflow id.
type Persistence interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	// SaveWorkflow assigns CreatedAt on first save and refreshes UpdatedAt.
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	// WorkflowByID fails with ErrWorkflowNotFound when no workflow has the id.
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	// DeleteWorkflow removes the workflow and its run records.
	DeleteWorkflow(ctx context.Context, id string) error

	// SaveRunResult stores or replaces a run record of an existing workflow.
	SaveRunResult(ctx context.Context, workflowID string, run *models.RunRecord) error
	RunByID(ctx context.Context, runID string) (*models.RunRecord, error)
	// RunsByWorkflow returns the runs of a workflow, most recent first.
	RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
