// Package events defines event types and structures for run lifecycle notifications.
package events

import (
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every run and node lifecycle event.
const Topic = "canvasflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeSucceededEvent EventType = "node.succeeded"
	NodeRetryingEvent  EventType = "node.retrying"
	NodeFailedEvent    EventType = "node.failed"
	NodeSkippedEvent   EventType = "node.skipped"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
}

type RunStarted struct {
	BaseEvent

	WorkflowName string `json:"workflow_name,omitempty"`
	NodeCount    int    `json:"node_count"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	Outcome    models.RunOutcome            `json:"outcome"`
	Cancelled  bool                         `json:"cancelled,omitempty"`
	DurationMs int64                        `json:"duration_ms"`
	Statuses   map[string]models.NodeStatus `json:"statuses"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type NodeStarted struct {
	BaseEvent

	NodeID   string          `json:"node_id"`
	NodeType models.NodeType `json:"node_type"`
	Attempt  int             `json:"attempt"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeSucceeded struct {
	BaseEvent

	NodeID     string          `json:"node_id"`
	Attempt    int             `json:"attempt"`
	Output     models.Artifact `json:"output"`
	DurationMs int64           `json:"duration_ms"`
}

func (e NodeSucceeded) GetType() EventType {
	return NodeSucceededEvent
}

type NodeRetrying struct {
	BaseEvent

	NodeID  string           `json:"node_id"`
	Attempt int              `json:"attempt"`
	Error   models.NodeError `json:"error"`
	DelayMs int64            `json:"delay_ms"`
}

func (e NodeRetrying) GetType() EventType {
	return NodeRetryingEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID  string           `json:"node_id"`
	Attempt int              `json:"attempt"`
	Error   models.NodeError `json:"error"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// NodeSkipped is emitted for nodes that never ran, either because an ancestor failed or
// because the run was cancelled.
type NodeSkipped struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

func (e NodeSkipped) GetType() EventType {
	return NodeSkippedEvent
}

func NewBaseEvent(eventType EventType, workflowID, runID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}
