// Package file provides file-based persistence of workflows and run records.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	runsDir      = "runs"
)

// Persistence stores one JSON document per workflow under <root>/workflows and one per run
// under <root>/runs/<workflow id>.
type Persistence struct {
	root  string
	locks persistence.KeyedMutex
	now   func() time.Time
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{
		root: strings.TrimPrefix(root, "file://"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks that the root directory exists or can be created.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0o750); err != nil {
		return fmt.Errorf("file persistence root %s unavailable: %w", fp.root, err)
	}

	return nil
}

// Workflows returns every stored workflow, most recently created first.
func (fp *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(fp.root, workflowsDir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(files))

	for _, file := range files {
		workflow, err := fp.WorkflowByID(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return workflows, nil
}

// WorkflowByID retrieves a workflow by its ID from the file system.
func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	if err := checkID(id); err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	var workflow models.Workflow
	if err := readJSON(fp.workflowPath(id), &workflow); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	return &workflow, nil
}

// SaveWorkflow writes a workflow, keeping the CreatedAt of an existing document.
func (fp *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if err := checkID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	unlock := fp.locks.Lock(workflow.ID)
	defer unlock()

	now := fp.now()

	existing, err := fp.WorkflowByID(ctx, workflow.ID)

	switch {
	case err == nil:
		workflow.CreatedAt = existing.CreatedAt
	case persistence.IsWorkflowNotFound(err):
		if workflow.CreatedAt.IsZero() {
			workflow.CreatedAt = now
		}
	default:
		return err
	}

	workflow.UpdatedAt = now

	if err := writeJSON(fp.workflowPath(workflow.ID), workflow); err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow removes a workflow and its runs.
func (fp *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	unlock := fp.locks.Lock(id)
	defer unlock()

	if err := os.Remove(fp.workflowPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	if err := os.RemoveAll(filepath.Join(fp.root, runsDir, id)); err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, fmt.Errorf("failed to remove runs: %w", err))
	}

	return nil
}

// SaveRunResult writes a run record next to the other runs of its workflow.
func (fp *Persistence) SaveRunResult(_ context.Context, workflowID string, run *models.RunRecord) error {
	if err := checkID(workflowID); err != nil {
		return persistence.NewWorkflowError("SaveRunResult", workflowID, err)
	}

	if err := checkID(run.RunID); err != nil {
		return persistence.NewRunError("SaveRunResult", run.RunID, err)
	}

	unlock := fp.locks.Lock(workflowID)
	defer unlock()

	if _, err := os.Stat(fp.workflowPath(workflowID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewWorkflowError("SaveRunResult", workflowID, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewWorkflowError("SaveRunResult", workflowID, err)
	}

	run.WorkflowID = workflowID

	if err := writeJSON(fp.runPath(workflowID, run.RunID), run); err != nil {
		return persistence.NewRunError("SaveRunResult", run.RunID, err)
	}

	return nil
}

// RunByID searches every workflow's runs for runID.
func (fp *Persistence) RunByID(_ context.Context, runID string) (*models.RunRecord, error) {
	if err := checkID(runID); err != nil {
		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	matches, err := filepath.Glob(filepath.Join(fp.root, runsDir, "*", runID+".json"))
	if err != nil {
		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	for _, match := range matches {
		var run models.RunRecord

		err := readJSON(match, &run)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, persistence.NewRunError("RunByID", runID, err)
		}

		return &run, nil
	}

	return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
}

// RunsByWorkflow returns the runs of a workflow, most recent first.
func (fp *Persistence) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	if _, err := fp.WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	dir := filepath.Join(fp.root, runsDir, workflowID)

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
	}

	runs := make([]*models.RunRecord, 0, len(files))

	for _, file := range files {
		var run models.RunRecord

		err := readJSON(filepath.Join(dir, file), &run)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
		}

		runs = append(runs, &run)
	}

	sortRuns(runs)

	return runs, nil
}

func (fp *Persistence) workflowPath(id string) string {
	return filepath.Join(fp.root, workflowsDir, id+".json")
}

func (fp *Persistence) runPath(workflowID, runID string) string {
	return filepath.Join(fp.root, runsDir, workflowID, runID+".json")
}

func sortRuns(runs []*models.RunRecord) {
	slices.SortFunc(runs, func(a, b *models.RunRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}

		return strings.Compare(a.RunID, b.RunID)
	})
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", persistence.ErrInvalidID, id)
	}

	return nil
}

func readJSON(path string, v any) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return nil
}

// writeJSON replaces path atomically so readers never observe a partial document.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to move into place: %w", err)
	}

	return nil
}
