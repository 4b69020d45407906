package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Workflows manages stored workflow documents.
type Workflows struct {
	persistence persistence.Persistence
	graphs      *workflow.Validator
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewWorkflows creates a new workflow service. Graph validation uses the given validator.
func NewWorkflows(store persistence.Persistence, graphs *workflow.Validator, logger *slog.Logger) *Workflows {
	return &Workflows{
		persistence: store,
		graphs:      graphs,
		validate:    newRequestValidator(),
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflows) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new workflow, assigning an id when the document has none.
// The graph itself is not validated; invalid drafts can be stored and fixed later.
func (w *Workflows) Create(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	if wf == nil {
		return nil, NewValidationError("create_workflow", "", ErrWorkflowNil)
	}

	doc := wf.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	if err := w.checkDocument("create_workflow", doc); err != nil {
		return nil, err
	}

	_, err := w.persistence.WorkflowByID(ctx, doc.ID)

	switch {
	case err == nil:
		return nil, &ServiceError{
			Op:      "create_workflow",
			Code:    CodeConflict,
			Message: fmt.Sprintf("workflow %s already exists", doc.ID),
			Err:     ErrWorkflowExists,
		}
	case !errors.Is(err, persistence.ErrWorkflowNotFound):
		return nil, fmt.Errorf("failed to check workflow %s: %w", doc.ID, err)
	}

	if err := w.persistence.SaveWorkflow(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", doc.ID, "nodes", len(doc.Nodes))

	return doc, nil
}

// Update replaces the document of an existing workflow.
func (w *Workflows) Update(ctx context.Context, id string, wf *models.Workflow) (*models.Workflow, error) {
	if wf == nil {
		return nil, NewValidationError("update_workflow", "", ErrWorkflowNil)
	}

	existing, err := w.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	doc := wf.Clone()
	doc.ID = existing.ID
	doc.CreatedAt = existing.CreatedAt

	if err := w.checkDocument("update_workflow", doc); err != nil {
		return nil, err
	}

	if err := w.persistence.SaveWorkflow(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", id, err)
	}

	w.logger.InfoContext(ctx, "Workflow updated", "workflow_id", doc.ID, "nodes", len(doc.Nodes))

	return doc, nil
}

// FetchByID returns a stored workflow.
func (w *Workflows) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowByID(ctx, id)
}

// List returns every stored workflow.
func (w *Workflows) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Delete removes a workflow together with its run records.
func (w *Workflows) Delete(ctx context.Context, id string) error {
	if err := w.persistence.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id)

	return nil
}

// Validate checks whether the stored workflow could be executed. Every violation is
// reported at once through a *workflow.ValidationError.
func (w *Workflows) Validate(ctx context.Context, id string) (*workflow.ValidatedGraph, error) {
	wf, err := w.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return w.ValidateDocument(wf)
}

// ValidateDocument checks an unsaved workflow document.
func (w *Workflows) ValidateDocument(wf *models.Workflow) (*workflow.ValidatedGraph, error) {
	if wf == nil {
		return nil, NewValidationError("validate_workflow", "", ErrWorkflowNil)
	}

	validated, err := w.graphs.Validate(wf)
	if err != nil {
		return nil, newInvalidWorkflowError("validate_workflow", err)
	}

	return validated, nil
}

func (w *Workflows) checkDocument(op string, wf *models.Workflow) error {
	if err := w.validate.Struct(wf); err != nil {
		return NewValidationError(op, describeStructError(err), errors.Join(ErrInvalidRequest, err))
	}

	return nil
}

func newRequestValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// describeStructError renders validator field errors as one readable line.
func describeStructError(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))

			continue
		}

		messages = append(messages, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
	}

	return strings.Join(messages, "; ")
}
