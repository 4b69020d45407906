// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestWorkflow creates a valid input_text -> process_ai_image -> output_save workflow
// that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:   uuid.NewString(),
		Name: "Test Workflow",
		Nodes: []models.Node{
			{
				ID:   "idea",
				Type: models.NodeTypeInputText,
				Data: models.NodeData{Label: "Idea", Prompt: "a lighthouse at dusk"},
			},
			{
				ID:       "image",
				Type:     models.NodeTypeProcessAIImage,
				Position: models.Position{X: 240},
				Data:     models.NodeData{Label: "Render", Model: "test-image", AspectRatio: "16:9"},
			},
			{
				ID:       "save",
				Type:     models.NodeTypeOutputSave,
				Position: models.Position{X: 480},
				Data:     models.NodeData{Label: "Save", Format: "json"},
			},
		},
		Edges: []models.Edge{
			{ID: "idea-image", Source: "idea", Target: "image"},
			{ID: "image-save", Source: "image", Target: "save"},
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithID sets the workflow id.
func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithName sets the workflow name.
func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithEdge appends an edge between two node ids.
func WithEdge(source, target string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Edges = append(w.Edges, models.Edge{ID: source + "-" + target, Source: source, Target: target})
	}
}

// CreateTestRunRecord creates a finished, successful run record for every node of workflow.
func CreateTestRunRecord(workflow *models.Workflow, overrides ...func(*models.RunRecord)) *models.RunRecord {
	startedAt := time.Now().UTC().Truncate(time.Millisecond)
	finishedAt := startedAt.Add(2 * time.Second)

	run := &models.RunRecord{
		WorkflowID: workflow.ID,
		RunID:      uuid.NewString(),
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
		Outcome:    models.RunOutcomeSucceeded,
		Nodes:      make(map[string]models.NodeState, len(workflow.Nodes)),
	}

	for _, node := range workflow.Nodes {
		run.Nodes[node.ID] = models.NodeState{
			Status:   models.NodeStatusSucceeded,
			Attempts: 1,
			Output:   &models.Artifact{NodeID: node.ID, Kind: models.ArtifactKindText, Text: node.ID},
		}
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithStartedAt moves the run start and finish times to startedAt.
func WithStartedAt(startedAt time.Time) func(*models.RunRecord) {
	return func(r *models.RunRecord) {
		finishedAt := startedAt.Add(2 * time.Second)
		r.StartedAt = startedAt
		r.FinishedAt = &finishedAt
	}
}

// WithFailedNode marks a node failed and the run failed.
func WithFailedNode(nodeID, kind string) func(*models.RunRecord) {
	return func(r *models.RunRecord) {
		r.Nodes[nodeID] = models.NodeState{
			Status:   models.NodeStatusFailed,
			Attempts: 3,
			Error:    &models.NodeError{Kind: kind, Message: nodeID + " failed"},
		}
		r.Outcome = models.RunOutcomeFailed
	}
}
