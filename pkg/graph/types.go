package graph

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// FormatVersion is the version of the rendered graph document
const FormatVersion = "v1"

// Graph is a rendered topology: infrastructure objects in apply order
type Graph struct {
	// Metadata contains information about the graph
	Metadata GraphMetadata `json:"metadata"`

	// Nodes contains all objects, ordered so every node follows its dependencies
	Nodes []Node `json:"nodes"`
}

// GraphMetadata contains metadata about the graph
type GraphMetadata struct {
	// Name is the topology name
	Name string `json:"name"`

	// Namespace is the namespace every namespaced object is rendered into
	Namespace string `json:"namespace,omitempty"`

	// Version is the version of the graph format
	Version string `json:"version"`

	// Overlays lists the overlays merged into the topology, in application order
	Overlays []string `json:"overlays,omitempty"`

	// RenderHash is a hash of the rendered nodes for change detection
	RenderHash string `json:"renderHash,omitempty"`
}

// Layer is the coarse ordering class of an object
type Layer string

const (
	// LayerIdentity holds service accounts and their permissions
	LayerIdentity Layer = "Identity"

	// LayerConfig holds configuration data
	LayerConfig Layer = "Config"

	// LayerStorage holds persistent volume claims
	LayerStorage Layer = "Storage"

	// LayerWorkload holds deployments and jobs
	LayerWorkload Layer = "Workload"

	// LayerNetwork holds service endpoints
	LayerNetwork Layer = "Network"
)

// Rank returns the position of the layer in apply order
func (l Layer) Rank() int {
	switch l {
	case LayerIdentity:
		return 0
	case LayerConfig:
		return 1
	case LayerStorage:
		return 2
	case LayerWorkload:
		return 3
	case LayerNetwork:
		return 4
	default:
		return 5
	}
}

// Node is a single infrastructure object in the graph
type Node struct {
	// ID is a unique identifier for this node within the graph ("<kind>/<name>")
	ID string `json:"id"`

	// Layer is the ordering class of the object
	Layer Layer `json:"layer"`

	// Entity is the topology entity the object was rendered from
	Entity string `json:"entity"`

	// Object is the Kubernetes resource to apply
	Object unstructured.Unstructured `json:"object"`

	// ApplyPolicy defines how this resource should be applied
	ApplyPolicy ApplyPolicy `json:"applyPolicy"`

	// DependsOn lists the IDs of nodes that must be applied before this node
	DependsOn []string `json:"dependsOn,omitempty"`

	// ReadyWhen defines the conditions for this resource to be considered ready
	ReadyWhen []ReadinessPredicate `json:"readyWhen,omitempty"`
}

// ApplyPolicy tells the external applier how a resource should be applied
type ApplyPolicy struct {
	// Mode determines the apply behavior
	// - "Apply": Use Server-Side Apply (default)
	// - "Create": Only create if it doesn't exist
	// - "Adopt": Adopt existing resource
	Mode ApplyMode `json:"mode,omitempty"`

	// ConflictPolicy determines how to handle field manager conflicts
	// - "Error": Fail on conflicts (default)
	// - "Force": Force ownership of conflicting fields
	ConflictPolicy ConflictPolicy `json:"conflictPolicy,omitempty"`

	// FieldManager is the name to use for field management
	// Defaults to "topoc"
	FieldManager string `json:"fieldManager,omitempty"`
}

// DefaultFieldManager is the field manager recorded on rendered apply policies
const DefaultFieldManager = "topoc"

// ApplyMode defines the apply behavior
type ApplyMode string

const (
	// ApplyModeApply uses Server-Side Apply
	ApplyModeApply ApplyMode = "Apply"

	// ApplyModeCreate only creates if the resource doesn't exist
	ApplyModeCreate ApplyMode = "Create"

	// ApplyModeAdopt adopts an existing resource
	ApplyModeAdopt ApplyMode = "Adopt"
)

// ConflictPolicy defines how to handle field manager conflicts
type ConflictPolicy string

const (
	// ConflictPolicyError fails on conflicts
	ConflictPolicyError ConflictPolicy = "Error"

	// ConflictPolicyForce forces ownership of conflicting fields
	ConflictPolicyForce ConflictPolicy = "Force"
)

// ReadinessPredicate defines a condition that must be met for a resource to be ready
type ReadinessPredicate struct {
	// Type is the type of predicate
	Type PredicateType `json:"type"`

	// ConditionType is the condition type to check (for ConditionMatch predicates)
	ConditionType string `json:"conditionType,omitempty"`

	// ConditionStatus is the expected status (for ConditionMatch predicates)
	ConditionStatus string `json:"conditionStatus,omitempty"`

	// Timeout is the maximum time to wait for this predicate (in seconds)
	Timeout int `json:"timeout,omitempty"`
}

// PredicateType defines the type of readiness predicate
type PredicateType string

const (
	// PredicateTypeConditionMatch checks for a specific condition
	PredicateTypeConditionMatch PredicateType = "ConditionMatch"

	// PredicateTypeDeploymentAvailable checks if a Deployment is available
	PredicateTypeDeploymentAvailable PredicateType = "DeploymentAvailable"

	// PredicateTypeExists checks if the resource exists
	PredicateTypeExists PredicateType = "Exists"
)

// CyclicDependencyError is returned when the objects of a topology depend on each other in a loop
type CyclicDependencyError struct {
	// Cycle lists node IDs along the loop; the first and last entries are equal
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	msg := "dependency cycle detected"
	for i, id := range e.Cycle {
		if i == 0 {
			msg += ": " + id
			continue
		}
		msg += " -> " + id
	}
	return msg
}

// Entity returns the first node ID on the cycle
func (e *CyclicDependencyError) Entity() string {
	if len(e.Cycle) == 0 {
		return ""
	}
	return e.Cycle[0]
}

// Node returns the node with the given ID
func (g *Graph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// IDs returns node IDs in graph order
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// Objects returns the rendered objects in apply order
func (g *Graph) Objects() []*unstructured.Unstructured {
	objs := make([]*unstructured.Unstructured, 0, len(g.Nodes))
	for i := range g.Nodes {
		objs = append(objs, &g.Nodes[i].Object)
	}
	return objs
}

// ComputeHash computes a hash of the graph for drift detection
// This hashes the nodes (excluding metadata) to detect changes
func (g *Graph) ComputeHash() string {
	// We only hash the nodes, not the metadata
	// This way we can detect if the actual resources changed
	type hashableGraph struct {
		Nodes []Node `json:"nodes"`
	}

	data, err := json.Marshal(hashableGraph{Nodes: g.Nodes})
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%x", xxhash.Sum64(data))
}

// SetHash computes and sets the RenderHash field
func (g *Graph) SetHash() {
	g.Metadata.RenderHash = g.ComputeHash()
}

// HasChanged returns true if the graph has changed since the last hash
func (g *Graph) HasChanged(previousHash string) bool {
	if previousHash == "" {
		return true // No previous hash means this is new
	}
	return g.ComputeHash() != previousHash
}
