package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canvasflow/canvasflow/pkg/delivery"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/persistence/file"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"github.com/canvasflow/canvasflow/pkg/registry"
	"github.com/canvasflow/canvasflow/pkg/services"
	"github.com/canvasflow/canvasflow/pkg/testutil"
	"github.com/canvasflow/canvasflow/pkg/web"
	"github.com/canvasflow/canvasflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app  *fiber.App
	runs *services.Runs

	// release unblocks image generation; nil means images render immediately.
	release chan struct{}
}

func setupTestApp(t *testing.T, blockImages bool) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := file.NewPersistence(t.TempDir())

	srv := &testServer{}
	if blockImages {
		srv.release = make(chan struct{})
	}

	client := protocol.ServiceClientFunc(func(ctx context.Context, req protocol.ServiceRequest) (models.Artifact, error) {
		if srv.release != nil && req.Capability == protocol.CapabilityImage {
			select {
			case <-srv.release:
			case <-ctx.Done():
				return models.Artifact{}, ctx.Err()
			}
		}

		return models.Artifact{URI: "https://cdn.example.com/" + req.NodeID + ".png"}, nil
	})

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(registry.Dependencies{
		Services: client,
		Sink:     delivery.NewFileSink(t.TempDir(), delivery.WithLogger(logger)),
	})

	workflowService := services.NewWorkflows(store, workflow.NewValidator(nil, reg), logger)
	executor := workflow.NewExecutor(reg, workflow.WithLogger(logger))
	srv.runs = services.NewRuns(store, workflowService, executor, logger, services.WithRetryPolicy(workflow.RetryPolicy{
		Limit:           3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.runs.Shutdown(ctx)
	})

	handlers := web.NewAPIHandlers(workflowService, srv.runs, validator.New(validator.WithRequiredStructEnabled()), reg)

	srv.app = fiber.New()
	handlers.Mount(srv.app)

	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func (s *testServer) createWorkflow(t *testing.T, wf *models.Workflow) *models.Workflow {
	t.Helper()

	status, body := s.do(t, http.MethodPost, "/workflows", web.WorkflowRequest{
		ID:    wf.ID,
		Name:  wf.Name,
		Nodes: wf.Nodes,
		Edges: wf.Edges,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))

	return &created
}

func TestAPIHandlers_WorkflowCRUD(t *testing.T) {
	srv := setupTestApp(t, false)

	status, body := srv.do(t, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"workflows":[],"total_count":0}`, string(body))

	created := srv.createWorkflow(t, testutil.CreateTestWorkflow(testutil.WithID("")))
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.Nodes, 3)

	status, body = srv.do(t, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.Workflow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.Name, fetched.Name)

	status, body = srv.do(t, http.MethodPut, "/workflows/"+created.ID, web.WorkflowRequest{
		Name:  "Renamed",
		Nodes: created.Nodes,
		Edges: created.Edges,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var updated models.Workflow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, created.ID, updated.ID)

	status, _ = srv.do(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = srv.do(t, http.MethodGet, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestAPIHandlers_CreateWorkflowRejects(t *testing.T) {
	srv := setupTestApp(t, false)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{
			name:   "missing name",
			body:   web.WorkflowRequest{Nodes: testutil.CreateTestWorkflow().Nodes},
			status: http.StatusBadRequest,
		},
		{
			name:   "node without type",
			body:   web.WorkflowRequest{Name: "x", Nodes: []models.Node{{ID: "a"}}},
			status: http.StatusBadRequest,
		},
		{
			name:   "not json",
			body:   "just a string",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.do(t, http.MethodPost, "/workflows", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, string(body), "validation_error")
		})
	}

	wf := srv.createWorkflow(t, testutil.CreateTestWorkflow(testutil.WithID("wf-dup")))

	status, body := srv.do(t, http.MethodPost, "/workflows", web.WorkflowRequest{ID: wf.ID, Name: wf.Name})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "conflict")
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	srv := setupTestApp(t, false)

	valid := srv.createWorkflow(t, testutil.CreateTestWorkflow())

	status, body := srv.do(t, http.MethodPost, "/workflows/"+valid.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"valid":true,"order":["idea","image","save"]}`, string(body))

	cyclic := srv.createWorkflow(t, testutil.CreateTestWorkflow(testutil.WithEdge("image", "idea")))

	status, body = srv.do(t, http.MethodPost, "/workflows/"+cyclic.ID+"/validate", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	var problem struct {
		Type       string               `json:"type"`
		Status     int                  `json:"status"`
		Violations []workflow.Violation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "invalid_workflow", problem.Type)
	assert.Equal(t, http.StatusUnprocessableEntity, problem.Status)

	codes := make([]string, 0, len(problem.Violations))
	for _, v := range problem.Violations {
		codes = append(codes, v.Code)
	}

	assert.Contains(t, codes, workflow.ViolationCycle)

	status, _ = srv.do(t, http.MethodPost, "/workflows/missing/validate", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_RunLifecycle(t *testing.T) {
	srv := setupTestApp(t, false)

	wf := srv.createWorkflow(t, testutil.CreateTestWorkflow())

	status, body := srv.do(t, http.MethodPost, "/workflows/"+wf.ID+"/runs", web.RunRequest{ConcurrencyLimit: 2, MaxRetries: 1})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var accepted web.RunAcceptedResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	require.NotEmpty(t, accepted.RunID)
	assert.Equal(t, wf.ID, accepted.WorkflowID)

	record, err := srv.runs.Wait(t.Context(), accepted.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomeSucceeded, record.Outcome)

	status, body = srv.do(t, http.MethodGet, "/runs/"+accepted.RunID, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.RunRecord
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, models.RunOutcomeSucceeded, fetched.Outcome)
	assert.Equal(t, "https://cdn.example.com/image.png", fetched.Nodes["image"].Output.URI)
	assert.Equal(t, models.ArtifactKindFile, fetched.Nodes["save"].Output.Kind)

	status, body = srv.do(t, http.MethodGet, "/workflows/"+wf.ID+"/runs", nil)
	require.Equal(t, http.StatusOK, status)

	var list web.RunListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, accepted.RunID, list.Runs[0].RunID)

	status, body = srv.do(t, http.MethodPost, "/runs/"+accepted.RunID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "conflict")
}

func TestAPIHandlers_CancelRun(t *testing.T) {
	srv := setupTestApp(t, true)

	wf := srv.createWorkflow(t, testutil.CreateTestWorkflow())

	status, body := srv.do(t, http.MethodPost, "/workflows/"+wf.ID+"/runs", nil)
	require.Equal(t, http.StatusAccepted, status, string(body))

	var accepted web.RunAcceptedResponse
	require.NoError(t, json.Unmarshal(body, &accepted))

	require.Eventually(t, func() bool {
		status, body := srv.do(t, http.MethodGet, "/runs/"+accepted.RunID, nil)
		if status != http.StatusOK {
			return false
		}

		var live models.RunRecord
		if err := json.Unmarshal(body, &live); err != nil {
			return false
		}

		return live.Nodes["image"].Status == models.NodeStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	status, _ = srv.do(t, http.MethodPost, "/runs/"+accepted.RunID+"/cancel", nil)
	require.Equal(t, http.StatusAccepted, status)

	record, err := srv.runs.Wait(t.Context(), accepted.RunID)
	require.NoError(t, err)
	assert.True(t, record.Cancelled)
	assert.Equal(t, models.NodeStatusSkipped, record.Nodes["save"].Status)
	assert.Equal(t, models.RunOutcomeFailed, record.Outcome)
}

func TestAPIHandlers_RunRejects(t *testing.T) {
	srv := setupTestApp(t, false)

	status, body := srv.do(t, http.MethodPost, "/workflows/missing/runs", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_not_found")

	wf := srv.createWorkflow(t, testutil.CreateTestWorkflow())

	status, _ = srv.do(t, http.MethodPost, "/workflows/"+wf.ID+"/runs", web.RunRequest{ConcurrencyLimit: -1})
	assert.Equal(t, http.StatusBadRequest, status)

	broken := srv.createWorkflow(t, testutil.CreateTestWorkflow(testutil.WithEdge("save", "image")))

	status, body = srv.do(t, http.MethodPost, "/workflows/"+broken.ID+"/runs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(body), "violations")

	status, body = srv.do(t, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "run_not_found")

	status, _ = srv.do(t, http.MethodPost, "/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_NodeTypesAndHealth(t *testing.T) {
	srv := setupTestApp(t, false)

	status, body := srv.do(t, http.MethodGet, "/node-types", nil)
	require.Equal(t, http.StatusOK, status)

	var nodeTypes struct {
		NodeTypes []web.NodeTypeResponse `json:"node_types"`
	}
	require.NoError(t, json.Unmarshal(body, &nodeTypes))
	require.Len(t, nodeTypes.NodeTypes, len(models.NodeTypes()))
	assert.Equal(t, models.NodeTypeInputMedia, nodeTypes.NodeTypes[0].Type)
	assert.NotEmpty(t, nodeTypes.NodeTypes[0].Schema)

	status, body = srv.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}
