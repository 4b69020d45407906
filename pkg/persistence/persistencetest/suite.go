// Package persistencetest holds the behavior every persistence.Persistence implementation shares.
package persistencetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run exercises store behavior against the implementation returned by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, store persistence.Persistence)
	}{
		{"health check", testHealthCheck},
		{"workflow not found", testWorkflowNotFound},
		{"save and load workflow", testSaveAndLoadWorkflow},
		{"list workflows", testListWorkflows},
		{"run records", testRunRecords},
		{"run of unknown workflow", testRunOfUnknownWorkflow},
		{"delete removes runs", testDeleteRemovesRuns},
		{"concurrent run writes", testConcurrentRunWrites},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testHealthCheck(t *testing.T, store persistence.Persistence) {
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func testWorkflowNotFound(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	workflow, err := store.WorkflowByID(ctx, "missing")
	assert.Nil(t, workflow)
	assert.True(t, persistence.IsWorkflowNotFound(err), "got %v", err)

	err = store.DeleteWorkflow(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err), "got %v", err)

	_, err = store.RunsByWorkflow(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err), "got %v", err)
}

func testSaveAndLoadWorkflow(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.CreateTestWorkflow()

	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.False(t, workflow.CreatedAt.IsZero())
	assert.False(t, workflow.UpdatedAt.Before(workflow.CreatedAt))

	loaded, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, workflow.Nodes, loaded.Nodes)
	assert.Equal(t, workflow.Edges, loaded.Edges)
	assert.WithinDuration(t, workflow.CreatedAt, loaded.CreatedAt, time.Millisecond)

	createdAt := loaded.CreatedAt
	previousUpdate := loaded.UpdatedAt

	time.Sleep(5 * time.Millisecond)

	loaded.Name = "Renamed"
	loaded.CreatedAt = time.Time{}
	require.NoError(t, store.SaveWorkflow(ctx, loaded))

	reloaded, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, "Renamed", reloaded.Name)
	assert.WithinDuration(t, createdAt, reloaded.CreatedAt, time.Millisecond)
	assert.True(t, reloaded.UpdatedAt.After(previousUpdate))
}

func testListWorkflows(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	workflows, err := store.Workflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, workflows)

	first := testutil.CreateTestWorkflow(testutil.WithName("first"))
	second := testutil.CreateTestWorkflow(testutil.WithName("second"))

	require.NoError(t, store.SaveWorkflow(ctx, first))
	require.NoError(t, store.SaveWorkflow(ctx, second))

	workflows, err = store.Workflows(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(workflows))
	for _, w := range workflows {
		ids = append(ids, w.ID)
	}

	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
}

func testRunRecords(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := testutil.CreateTestRunRecord(workflow, testutil.WithStartedAt(base.Add(-time.Hour)))
	newer := testutil.CreateTestRunRecord(workflow,
		testutil.WithStartedAt(base),
		testutil.WithFailedNode("image", "rate_limited"))

	require.NoError(t, store.SaveRunResult(ctx, workflow.ID, older))
	require.NoError(t, store.SaveRunResult(ctx, workflow.ID, newer))

	loaded, err := store.RunByID(ctx, newer.RunID)
	require.NoError(t, err)

	assert.Equal(t, workflow.ID, loaded.WorkflowID)
	assert.Equal(t, models.RunOutcomeFailed, loaded.Outcome)
	assert.Equal(t, newer.Nodes, loaded.Nodes)
	assert.WithinDuration(t, newer.StartedAt, loaded.StartedAt, time.Millisecond)

	runs, err := store.RunsByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].RunID)
	assert.Equal(t, older.RunID, runs[1].RunID)

	older.Outcome = models.RunOutcomePartial
	require.NoError(t, store.SaveRunResult(ctx, workflow.ID, older))

	runs, err = store.RunsByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunOutcomePartial, runs[1].Outcome)

	_, err = store.RunByID(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err), "got %v", err)
}

func testRunOfUnknownWorkflow(t *testing.T, store persistence.Persistence) {
	workflow := testutil.CreateTestWorkflow()

	err := store.SaveRunResult(context.Background(), workflow.ID, testutil.CreateTestRunRecord(workflow))
	assert.True(t, persistence.IsWorkflowNotFound(err), "got %v", err)
}

func testDeleteRemovesRuns(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	run := testutil.CreateTestRunRecord(workflow)
	require.NoError(t, store.SaveRunResult(ctx, workflow.ID, run))

	require.NoError(t, store.DeleteWorkflow(ctx, workflow.ID))

	_, err := store.WorkflowByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err), "got %v", err)

	_, err = store.RunByID(ctx, run.RunID)
	assert.True(t, persistence.IsRunNotFound(err), "got %v", err)
}

func testConcurrentRunWrites(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	const writers = 16

	var wg sync.WaitGroup

	errs := make(chan error, writers)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			run := testutil.CreateTestRunRecord(workflow, func(r *models.RunRecord) {
				r.RunID = fmt.Sprintf("run-%02d", i)
			})
			errs <- store.SaveRunResult(ctx, workflow.ID, run)
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	runs, err := store.RunsByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, runs, writers)
}
