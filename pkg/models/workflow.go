// Package models defines the core domain models for node-graph content-generation workflows.
package models

import "time"

// Workflow is a pipeline document: typed nodes connected by directed edges.
// A stored workflow may be structurally invalid; it is only rejected when validated for execution.
type Workflow struct {
	ID        string    `json:"id"        yaml:"id"        validate:"required"`
	Name      string    `json:"name"      yaml:"name"      validate:"required,min=1"`
	Nodes     []Node    `json:"nodes"     yaml:"nodes"     validate:"dive"`
	Edges     []Edge    `json:"edges"     yaml:"edges"     validate:"dive"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Edge connects the output of a source node to a target node.
type Edge struct {
	ID     string `json:"id"              yaml:"id"              validate:"required"`
	Source string `json:"source"          yaml:"source"          validate:"required"`
	Target string `json:"target"          yaml:"target"          validate:"required"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// NodeByID returns the first node with the given id.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return Node{}, false
}

// Clone returns a deep copy of the workflow document.
func (w *Workflow) Clone() *Workflow {
	clone := *w
	clone.Nodes = append([]Node(nil), w.Nodes...)
	clone.Edges = append([]Edge(nil), w.Edges...)

	return &clone
}
