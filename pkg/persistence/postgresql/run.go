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

// SaveRunResult upserts a run record while holding the workflow's lock.
func (p *Persistence) SaveRunResult(ctx context.Context, workflowID string, run *models.RunRecord) error {
	if run.RunID == "" {
		return persistence.NewRunError("SaveRunResult", run.RunID, persistence.ErrInvalidID)
	}

	err := p.withWorkflowLock(ctx, workflowID, func(tx *sql.Tx) error {
		var exists bool

		err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)", workflowID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check workflow: %w", err)
		}

		if !exists {
			return persistence.NewWorkflowError("SaveRunResult", workflowID, persistence.ErrWorkflowNotFound)
		}

		run.WorkflowID = workflowID

		record, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run record: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_runs (run_id, workflow_id, outcome, cancelled, started_at, finished_at, record)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id) DO UPDATE SET
				outcome = EXCLUDED.outcome,
				cancelled = EXCLUDED.cancelled,
				started_at = EXCLUDED.started_at,
				finished_at = EXCLUDED.finished_at,
				record = EXCLUDED.record
		`,
			run.RunID,
			workflowID,
			sql.NullString{String: string(run.Outcome), Valid: run.Outcome != ""},
			run.Cancelled,
			run.StartedAt,
			run.FinishedAt,
			record,
		)
		if err != nil {
			return fmt.Errorf("failed to save run record: %w", err)
		}

		return nil
	})
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return err
		}

		return persistence.NewRunError("SaveRunResult", run.RunID, err)
	}

	return nil
}

// RunByID returns a run record by its ID.
func (p *Persistence) RunByID(ctx context.Context, runID string) (*models.RunRecord, error) {
	var record []byte

	err := p.db.QueryRowContext(ctx, "SELECT record FROM workflow_runs WHERE run_id = $1", runID).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	run, err := decodeRun(record)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	return run, nil
}

// RunsByWorkflow returns the runs of a workflow, most recent first.
func (p *Persistence) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	var exists bool

	err := p.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)", workflowID).Scan(&exists)
	if err != nil {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
	}

	if !exists {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, persistence.ErrWorkflowNotFound)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT record
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC, run_id
	`, workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
	}
	defer p.closeRows(ctx, rows)

	runs := make([]*models.RunRecord, 0)

	for rows.Next() {
		var record []byte

		err := rows.Scan(&record)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}

		run, err := decodeRun(record)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}

	return runs, nil
}

func decodeRun(record []byte) (*models.RunRecord, error) {
	var run models.RunRecord

	err := json.Unmarshal(record, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}

	return &run, nil
}
