package graph

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// DAG represents a directed acyclic graph built from a Graph artifact
type DAG struct {
	// graph is the underlying graph structure from dominikbraun/graph
	graph graph.Graph[string, string]

	// nodeMap provides quick lookup of nodes by ID
	nodeMap map[string]*Node

	// index records the declaration position of each node, used to break ties
	index map[string]int

	// order contains the topologically sorted node IDs
	order []string
}

// BuildDAG converts a Graph artifact into a DAG.
// It validates the graph structure, detects cycles, and computes a stable
// topological order in which ties are broken by position in g.Nodes.
func BuildDAG(g *Graph) (*DAG, error) {
	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	// Validate the graph first
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	// Create a directed graph with cycle prevention
	dg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	nodeMap := make(map[string]*Node, len(g.Nodes))
	index := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		node := &g.Nodes[i]
		nodeMap[node.ID] = node
		index[node.ID] = i
		if err := dg.AddVertex(node.ID); err != nil {
			return nil, fmt.Errorf("failed to add vertex %s: %w", node.ID, err)
		}
	}

	// Edges are added in declaration order so the reported cycle is reproducible.
	// AddEdge(source, target) means source -> target: if node B depends on
	// node A we add A -> B (A must be applied before B).
	for i := range g.Nodes {
		node := &g.Nodes[i]
		for _, depID := range node.DependsOn {
			err := dg.AddEdge(depID, node.ID)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, &CyclicDependencyError{Cycle: cyclePath(dg, depID, node.ID)}
			default:
				return nil, fmt.Errorf("failed to add edge %s -> %s: %w", depID, node.ID, err)
			}
		}
	}

	order, err := declarationOrder(dg, g.Nodes, index)
	if err != nil {
		return nil, fmt.Errorf("failed to compute topological sort: %w", err)
	}

	return &DAG{
		graph:   dg,
		nodeMap: nodeMap,
		index:   index,
		order:   order,
	}, nil
}

// declarationOrder sorts the graph topologically, always emitting the ready
// node declared first in nodes
func declarationOrder(dg graph.Graph[string, string], nodes []Node, index map[string]int) ([]string, error) {
	adjacency, err := dg.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(nodes))
	for _, targets := range adjacency {
		for target := range targets {
			inDegree[target]++
		}
	}

	ready := &readyQueue{index: index}
	for i := range nodes {
		if inDegree[nodes[i].ID] == 0 {
			heap.Push(ready, nodes[i].ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for target := range adjacency[id] {
			inDegree[target]--
			if inDegree[target] == 0 {
				heap.Push(ready, target)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("graph has a cycle")
	}
	return order, nil
}

// readyQueue is a min-heap of node IDs keyed by declaration position
type readyQueue struct {
	ids   []string
	index map[string]int
}

func (q *readyQueue) Len() int           { return len(q.ids) }
func (q *readyQueue) Less(i, j int) bool { return q.index[q.ids[i]] < q.index[q.ids[j]] }
func (q *readyQueue) Swap(i, j int)      { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *readyQueue) Push(x any)         { q.ids = append(q.ids, x.(string)) }

func (q *readyQueue) Pop() any {
	n := len(q.ids)
	id := q.ids[n-1]
	q.ids = q.ids[:n-1]
	return id
}

// cyclePath reconstructs the loop closed by the rejected edge from -> to.
// The edge was rejected because to already reaches from.
func cyclePath(dg graph.Graph[string, string], from, to string) []string {
	if from == to {
		return []string{from, from}
	}
	path, err := graph.ShortestPath(dg, to, from)
	if err != nil || len(path) == 0 {
		return []string{from, to, from}
	}
	return append([]string{from}, path...)
}

// GetNode retrieves a node by ID
func (d *DAG) GetNode(id string) (*Node, bool) {
	node, found := d.nodeMap[id]
	return node, found
}

// GetOrder returns the topologically sorted node IDs
// Nodes earlier in the list have no dependencies on nodes later in the list
func (d *DAG) GetOrder() []string {
	return d.order
}

// GetDependencies returns the IDs of nodes that the given node depends on
func (d *DAG) GetDependencies(id string) ([]string, error) {
	node, found := d.nodeMap[id]
	if !found {
		return nil, fmt.Errorf("node %s not found", id)
	}
	return node.DependsOn, nil
}

// GetDependents returns the IDs of nodes that depend on the given node, in apply order
func (d *DAG) GetDependents(id string) ([]string, error) {
	if _, found := d.nodeMap[id]; !found {
		return nil, fmt.Errorf("node %s not found", id)
	}

	var dependents []string
	for _, nodeID := range d.order {
		for _, depID := range d.nodeMap[nodeID].DependsOn {
			if depID == id {
				dependents = append(dependents, nodeID)
				break
			}
		}
	}
	return dependents, nil
}

// Size returns the number of nodes in the DAG
func (d *DAG) Size() int {
	return len(d.nodeMap)
}

// HasCycles checks if the graph has any cycles
// This should always return false if BuildDAG succeeded, but is provided for completeness
func (d *DAG) HasCycles() bool {
	_, err := graph.TopologicalSort(d.graph)
	return err != nil
}

// GetRootNodes returns nodes that have no dependencies, in apply order
func (d *DAG) GetRootNodes() []string {
	var roots []string
	for _, id := range d.order {
		if len(d.nodeMap[id].DependsOn) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetLeafNodes returns nodes that no other nodes depend on, in apply order
func (d *DAG) GetLeafNodes() []string {
	// Build a set of all nodes that are dependencies
	hasDependents := make(map[string]bool)
	for _, node := range d.nodeMap {
		for _, depID := range node.DependsOn {
			hasDependents[depID] = true
		}
	}

	// Nodes not in the set are leaves
	var leaves []string
	for _, id := range d.order {
		if !hasDependents[id] {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Sorted returns the graph's nodes rearranged into apply order
func (d *DAG) Sorted() []Node {
	nodes := make([]Node, 0, len(d.order))
	for _, id := range d.order {
		nodes = append(nodes, *d.nodeMap[id])
	}
	return nodes
}
