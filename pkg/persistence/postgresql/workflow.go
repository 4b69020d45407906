package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
)

// Workflows returns all workflows, most recently created first.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT document
		FROM workflows
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer p.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		var document []byte

		err := rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflow, err := decodeWorkflow(document)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// WorkflowByID returns a workflow by its ID.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	var document []byte

	err := p.db.QueryRowContext(ctx, "SELECT document FROM workflows WHERE id = $1", id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	workflow, err := decodeWorkflow(document)
	if err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	return workflow, nil
}

// SaveWorkflow upserts a workflow, keeping the created_at of an existing row.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, persistence.ErrInvalidID)
	}

	err := p.withWorkflowLock(ctx, workflow.ID, func(tx *sql.Tx) error {
		now := p.now()

		var createdAt sql.NullTime

		err := tx.QueryRowContext(ctx, "SELECT created_at FROM workflows WHERE id = $1", workflow.ID).Scan(&createdAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read existing workflow: %w", err)
		}

		switch {
		case createdAt.Valid:
			workflow.CreatedAt = createdAt.Time.UTC()
		case workflow.CreatedAt.IsZero():
			workflow.CreatedAt = now
		}

		workflow.UpdatedAt = now

		document, err := json.Marshal(workflow)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflows (id, name, document, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				document = EXCLUDED.document,
				updated_at = EXCLUDED.updated_at
		`,
			workflow.ID,
			workflow.Name,
			document,
			workflow.CreatedAt,
			workflow.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save workflow: %w", err)
		}

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow removes a workflow; its runs are removed by the foreign key cascade.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	err := p.withWorkflowLock(ctx, id, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete workflow: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if affected == 0 {
			return persistence.ErrWorkflowNotFound
		}

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}

func decodeWorkflow(document []byte) (*models.Workflow, error) {
	var workflow models.Workflow

	err := json.Unmarshal(document, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return &workflow, nil
}
