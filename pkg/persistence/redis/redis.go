// Package redis provides Redis persistence of workflows and run records.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "canvasflow:"
	maxTxAttempts   = 10
	workflowsSetKey = keyPrefix + "workflows"
)

// Persistence stores JSON documents in Redis. Writes use WATCH/MULTI transactions on the
// workflow key and are retried when a concurrent writer touched it.
type Persistence struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewPersistence connects to a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client: client,
		logger: logger.With("module", "redis"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func workflowKey(id string) string     { return keyPrefix + "workflow:" + id }
func workflowRunsKey(id string) string { return keyPrefix + "workflow:" + id + ":runs" }
func runKey(id string) string          { return keyPrefix + "run:" + id }

func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Workflows returns all workflows, most recently created first.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := p.client.SMembers(ctx, workflowsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))
	if len(ids) == 0 {
		return workflows, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = workflowKey(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	for _, value := range values {
		document, ok := value.(string)
		if !ok {
			continue
		}

		var workflow models.Workflow

		err := json.Unmarshal([]byte(document), &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return workflows, nil
}

// WorkflowByID returns a workflow by its ID.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := getWorkflow(ctx, p.client, id)
	if err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	return workflow, nil
}

// SaveWorkflow writes the workflow, keeping the CreatedAt of an existing document.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, persistence.ErrInvalidID)
	}

	key := workflowKey(workflow.ID)

	err := p.transact(ctx, func(tx *redis.Tx) error {
		now := p.now()

		existing, err := getWorkflow(ctx, tx, workflow.ID)

		switch {
		case err == nil:
			workflow.CreatedAt = existing.CreatedAt
		case errors.Is(err, persistence.ErrWorkflowNotFound):
			if workflow.CreatedAt.IsZero() {
				workflow.CreatedAt = now
			}
		default:
			return err
		}

		workflow.UpdatedAt = now

		document, err := json.Marshal(workflow)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, document, 0)
			pipe.SAdd(ctx, workflowsSetKey, workflow.ID)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow removes the workflow, its run index and its run records.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	key := workflowKey(id)
	runsKey := workflowRunsKey(id)

	err := p.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check workflow: %w", err)
		}

		if exists == 0 {
			return persistence.ErrWorkflowNotFound
		}

		runIDs, err := tx.ZRange(ctx, runsKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		keys := []string{key, runsKey}
		for _, runID := range runIDs {
			keys = append(keys, runKey(runID))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.SRem(ctx, workflowsSetKey, id)

			return nil
		})

		return err
	}, key, runsKey)
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}

// SaveRunResult stores a run record and indexes it by start time under its workflow.
func (p *Persistence) SaveRunResult(ctx context.Context, workflowID string, run *models.RunRecord) error {
	if run.RunID == "" {
		return persistence.NewRunError("SaveRunResult", run.RunID, persistence.ErrInvalidID)
	}

	key := workflowKey(workflowID)

	err := p.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check workflow: %w", err)
		}

		if exists == 0 {
			return persistence.NewWorkflowError("SaveRunResult", workflowID, persistence.ErrWorkflowNotFound)
		}

		run.WorkflowID = workflowID

		record, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, runKey(run.RunID), record, 0)
			pipe.ZAdd(ctx, workflowRunsKey(workflowID), redis.Z{
				Score:  float64(run.StartedAt.UnixMilli()),
				Member: run.RunID,
			})

			return nil
		})

		return err
	}, key)
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
	record, err := p.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	var run models.RunRecord

	err = json.Unmarshal(record, &run)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", runID, fmt.Errorf("failed to unmarshal run record: %w", err))
	}

	return &run, nil
}

// RunsByWorkflow returns the runs of a workflow, most recent first.
func (p *Persistence) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	exists, err := p.client.Exists(ctx, workflowKey(workflowID)).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
	}

	if exists == 0 {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, persistence.ErrWorkflowNotFound)
	}

	runIDs, err := p.client.ZRevRange(ctx, workflowRunsKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
	}

	runs := make([]*models.RunRecord, 0, len(runIDs))
	if len(runIDs) == 0 {
		return runs, nil
	}

	keys := make([]string, len(runIDs))
	for i, runID := range runIDs {
		keys[i] = runKey(runID)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
	}

	for _, value := range values {
		record, ok := value.(string)
		if !ok {
			continue
		}

		var run models.RunRecord

		err := json.Unmarshal([]byte(record), &run)
		if err != nil {
			return nil, persistence.NewWorkflowError("RunsByWorkflow", workflowID, err)
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

// transact runs fn under WATCH on keys, retrying when another client modified them first.
func (p *Persistence) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := p.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		p.logger.DebugContext(ctx, "Retrying redis transaction", "keys", keys, "attempt", attempt)
	}

	return persistence.ErrConflict
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getWorkflow(ctx context.Context, client getter, id string) (*models.Workflow, error) {
	document, err := client.Get(ctx, workflowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(document, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return &workflow, nil
}
