package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaSource reports the node types that can be dispatched and the JSON schema of their data.
type SchemaSource interface {
	NodeSchema(nodeType models.NodeType) (map[string]any, bool)
}

// ValidatedGraph is a graph that passed every structural and type check. It carries a cached
// topological order and can only be obtained from a Validator.
type ValidatedGraph struct {
	workflow *models.Workflow
	graph    *Graph
	order    []string
	index    map[string]int
}

// Workflow returns the validated workflow.
func (v *ValidatedGraph) Workflow() *models.Workflow {
	return v.workflow
}

// Graph returns the underlying graph.
func (v *ValidatedGraph) Graph() *Graph {
	return v.graph
}

// Order returns the topological order computed during validation.
func (v *ValidatedGraph) Order() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)

	return out
}

func (v *ValidatedGraph) position(id string) int {
	return v.index[id]
}

// Validator checks workflows before execution. It performs no I/O.
type Validator struct {
	table   *CompatibilityTable
	schemas SchemaSource
}

// NewValidator creates a validator. A nil table selects DefaultCompatibilityTable; with a nil
// schema source only the built-in node types are accepted and node data is not checked.
func NewValidator(table *CompatibilityTable, schemas SchemaSource) *Validator {
	if table == nil {
		table = DefaultCompatibilityTable()
	}

	return &Validator{
		table:   table,
		schemas: schemas,
	}
}

// Validate returns a ValidatedGraph, or a *ValidationError that lists every violation found.
func (v *Validator) Validate(workflow *models.Workflow) (*ValidatedGraph, error) {
	if workflow == nil {
		return nil, fmt.Errorf("%w: workflow is nil", ErrValidation)
	}

	verr := &ValidationError{WorkflowID: workflow.ID}

	v.checkNodes(workflow, verr)

	graph, err := BuildGraph(workflow)
	if err != nil {
		var malformed *MalformedGraphError
		if errors.As(err, &malformed) {
			for _, problem := range malformed.Problems {
				verr.add(Violation{Code: ViolationMalformed, Message: problem})
			}
		}

		verr.causes = append(verr.causes, err)

		return nil, verr
	}

	order, err := graph.TopologicalOrder()
	if err != nil {
		var cycle *CycleDetectedError
		if errors.As(err, &cycle) {
			verr.add(Violation{
				Code:    ViolationCycle,
				Message: fmt.Sprintf("cycle through nodes %s", strings.Join(cycle.NodeIDs, ", ")),
			})
		}

		verr.causes = append(verr.causes, err)
	}

	v.checkEdges(graph, verr)

	if len(verr.Violations) > 0 {
		return nil, verr
	}

	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	return &ValidatedGraph{
		workflow: workflow,
		graph:    graph,
		order:    order,
		index:    index,
	}, nil
}

func (v *Validator) checkNodes(workflow *models.Workflow, verr *ValidationError) {
	var hasInput, hasOutput bool

	for _, node := range workflow.Nodes {
		hasInput = hasInput || node.Type.IsInput()
		hasOutput = hasOutput || node.Type.IsOutput()

		schema, known := v.lookup(node.Type)
		if !known {
			verr.add(Violation{
				Code:    ViolationUnknownNodeType,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node '%s' has unknown type '%s'", node.ID, node.Type),
			})
			verr.causes = append(verr.causes, &UnknownNodeTypeError{NodeID: node.ID, Type: node.Type})

			continue
		}

		if schema == nil {
			continue
		}

		for _, problem := range validateNodeData(node, schema) {
			verr.add(Violation{
				Code:    ViolationNodeConfig,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node '%s': %s", node.ID, problem),
			})
		}
	}

	if !hasInput {
		verr.add(Violation{Code: ViolationMissingInput, Message: "workflow has no input node"})
	}

	if !hasOutput {
		verr.add(Violation{Code: ViolationMissingOutput, Message: "workflow has no output node"})
	}
}

func (v *Validator) checkEdges(graph *Graph, verr *ValidationError) {
	for _, edge := range graph.Edges() {
		source, _ := graph.Node(edge.Source)
		target, _ := graph.Node(edge.Target)

		if !v.known(source.Type) || !v.known(target.Type) {
			continue
		}

		if v.table.Compatible(source.Type, target.Type) {
			continue
		}

		verr.add(Violation{
			Code:   ViolationIncompatible,
			EdgeID: edge.ID,
			Message: fmt.Sprintf("edge '%s': %s node '%s' cannot feed %s node '%s'",
				edge.ID, source.Type, source.ID, target.Type, target.ID),
		})
	}
}

func (v *Validator) lookup(nodeType models.NodeType) (map[string]any, bool) {
	if v.schemas == nil {
		return nil, nodeType.Known()
	}

	return v.schemas.NodeSchema(nodeType)
}

func (v *Validator) known(nodeType models.NodeType) bool {
	_, ok := v.lookup(nodeType)

	return ok
}

// validateNodeData checks node.Data against the handler's JSON schema.
func validateNodeData(node models.Node, schema map[string]any) []string {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(node.Data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return []string{fmt.Sprintf("invalid schema for type %s: %v", node.Type, err)}
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return problems
}

func (e *ValidationError) add(v Violation) {
	e.Violations = append(e.Violations, v)
}
