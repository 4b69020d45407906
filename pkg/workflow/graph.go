// Package workflow provides graph construction, validation and execution of content-generation workflows.
package workflow

import (
	"fmt"
	"slices"

	"github.com/canvasflow/canvasflow/pkg/models"
)

// Graph is an adjacency index over a workflow: nodes are addressed by id, never by reference,
// so queries stay cheap and repeatable. A Graph is immutable once built.
type Graph struct {
	workflowID string
	nodes      map[string]models.Node
	order      []string // node ids in document order
	edges      []models.Edge
	outgoing   map[string][]string
	incoming   map[string][]string
}

// BuildGraph indexes the workflow. It fails with *MalformedGraphError listing every
// duplicate id, dangling edge endpoint and self-loop found.
func BuildGraph(workflow *models.Workflow) (*Graph, error) {
	g := &Graph{
		workflowID: workflow.ID,
		nodes:      make(map[string]models.Node, len(workflow.Nodes)),
		order:      make([]string, 0, len(workflow.Nodes)),
		edges:      make([]models.Edge, 0, len(workflow.Edges)),
		outgoing:   make(map[string][]string, len(workflow.Nodes)),
		incoming:   make(map[string][]string, len(workflow.Nodes)),
	}

	var problems []string

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			problems = append(problems, "node with empty id")

			continue
		}

		if _, exists := g.nodes[node.ID]; exists {
			problems = append(problems, fmt.Sprintf("duplicate node id '%s'", node.ID))

			continue
		}

		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	edgeIDs := make(map[string]struct{}, len(workflow.Edges))

	for _, edge := range workflow.Edges {
		if _, exists := edgeIDs[edge.ID]; exists && edge.ID != "" {
			problems = append(problems, fmt.Sprintf("duplicate edge id '%s'", edge.ID))

			continue
		}

		edgeIDs[edge.ID] = struct{}{}

		valid := true

		if _, ok := g.nodes[edge.Source]; !ok {
			problems = append(problems, fmt.Sprintf("edge '%s' references unknown source node '%s'", edge.ID, edge.Source))
			valid = false
		}

		if _, ok := g.nodes[edge.Target]; !ok {
			problems = append(problems, fmt.Sprintf("edge '%s' references unknown target node '%s'", edge.ID, edge.Target))
			valid = false
		}

		if valid && edge.Source == edge.Target {
			problems = append(problems, fmt.Sprintf("edge '%s' is a self-loop on node '%s'", edge.ID, edge.Source))
			valid = false
		}

		if !valid {
			continue
		}

		g.edges = append(g.edges, edge)

		if !slices.Contains(g.outgoing[edge.Source], edge.Target) {
			g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge.Target)
			g.incoming[edge.Target] = append(g.incoming[edge.Target], edge.Source)
		}
	}

	if len(problems) > 0 {
		return nil, &MalformedGraphError{Problems: problems}
	}

	return g, nil
}

// WorkflowID returns the id of the workflow the graph was built from.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (models.Node, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// Nodes returns the nodes in document order.
func (g *Graph) Nodes() []models.Node {
	nodes := make([]models.Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}

	return nodes
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []models.Edge {
	return slices.Clone(g.edges)
}

// Predecessors returns the distinct source nodes of edges into id, in edge insertion order.
func (g *Graph) Predecessors(id string) []string {
	return slices.Clone(g.incoming[id])
}

// Successors returns the distinct target nodes of edges out of id, in edge insertion order.
func (g *Graph) Successors(id string) []string {
	return slices.Clone(g.outgoing[id])
}

// TopologicalOrder returns node ids such that every predecessor precedes its successors.
// Nodes without an ordering constraint between them are ordered by ascending id, so the
// result is identical across calls and runs. It fails with *CycleDetectedError when the
// graph is not a DAG.
func (g *Graph) TopologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.incoming[id])
	}

	ready := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = insertSorted(ready, id)
		}
	}

	order := make([]string, 0, len(g.order))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, successor := range g.outgoing[id] {
			indegree[successor]--
			if indegree[successor] == 0 {
				ready = insertSorted(ready, successor)
			}
		}
	}

	if len(order) < len(g.order) {
		return nil, &CycleDetectedError{NodeIDs: g.cyclicNodes(indegree)}
	}

	return order, nil
}

func insertSorted(ids []string, id string) []string {
	i, _ := slices.BinarySearch(ids, id)

	return slices.Insert(ids, i, id)
}

// cyclicNodes returns the nodes of the residual graph that belong to a strongly connected
// component with more than one node. Nodes that are merely downstream of a cycle are excluded.
func (g *Graph) cyclicNodes(indegree map[string]int) []string {
	residual := make(map[string]bool)
	for id, degree := range indegree {
		if degree > 0 {
			residual[id] = true
		}
	}

	var (
		index   int
		stack   []string
		onStack = make(map[string]bool)
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		cyclic  []string
	)

	var strongConnect func(id string)
	strongConnect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, next := range g.outgoing[id] {
			if !residual[next] {
				continue
			}

			if _, visited := indices[next]; !visited {
				strongConnect(next)
				lowlink[id] = min(lowlink[id], lowlink[next])
			} else if onStack[next] {
				lowlink[id] = min(lowlink[id], indices[next])
			}
		}

		if lowlink[id] != indices[id] {
			return
		}

		var component []string

		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component = append(component, top)

			if top == id {
				break
			}
		}

		if len(component) > 1 {
			cyclic = append(cyclic, component...)
		}
	}

	for _, id := range g.order {
		if _, visited := indices[id]; residual[id] && !visited {
			strongConnect(id)
		}
	}

	slices.Sort(cyclic)

	return cyclic
}
