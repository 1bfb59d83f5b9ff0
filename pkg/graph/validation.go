package graph

import (
	"errors"
	"fmt"
)

// kindLayers maps the kinds the renderer emits to the layer they belong in.
// Kinds not listed may sit in any layer.
var kindLayers = map[string]Layer{
	"ServiceAccount":        LayerIdentity,
	"Role":                  LayerIdentity,
	"RoleBinding":           LayerIdentity,
	"ConfigMap":             LayerConfig,
	"PersistentVolumeClaim": LayerStorage,
	"Deployment":            LayerWorkload,
	"Job":                   LayerWorkload,
	"Service":               LayerNetwork,
}

// Validate checks the structure of the graph and reports every problem found
func (g *Graph) Validate() error {
	var errs []error
	if g.Metadata.Name == "" {
		errs = append(errs, fmt.Errorf("graph metadata.name is required"))
	}
	if g.Metadata.Version == "" {
		errs = append(errs, fmt.Errorf("graph metadata.version is required"))
	}

	layers := make(map[string]Layer, len(g.Nodes))
	for _, node := range g.Nodes {
		if node.ID == "" {
			errs = append(errs, fmt.Errorf("node ID is required"))
			continue
		}
		if _, dup := layers[node.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate node ID: %s", node.ID))
			continue
		}
		layers[node.ID] = node.Layer
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		if err := node.validate(g.Metadata.Namespace, layers); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.ID, err))
		}
	}
	return errors.Join(errs...)
}

// validate checks a node against the graph it belongs to. layers holds the
// layer of every node ID in the graph.
func (n *Node) validate(namespace string, layers map[string]Layer) error {
	if n.Layer.Rank() > LayerNetwork.Rank() {
		return fmt.Errorf("invalid layer: %q", n.Layer)
	}

	kind := n.Object.GetKind()
	switch {
	case kind == "":
		return fmt.Errorf("object kind is required")
	case n.Object.GetAPIVersion() == "":
		return fmt.Errorf("object apiVersion is required")
	case n.Object.GetName() == "":
		return fmt.Errorf("object name is required")
	}
	if want, ok := kindLayers[kind]; ok && n.Layer != want {
		return fmt.Errorf("%s belongs in layer %s, not %s", kind, want, n.Layer)
	}
	if ns := n.Object.GetNamespace(); namespace != "" && ns != "" && ns != namespace {
		return fmt.Errorf("object namespace %q differs from graph namespace %q", ns, namespace)
	}

	if err := n.ApplyPolicy.Validate(); err != nil {
		return fmt.Errorf("applyPolicy: %w", err)
	}

	// A node may depend on its own layer or an earlier one, never a later one
	for _, depID := range n.DependsOn {
		depLayer, ok := layers[depID]
		if !ok {
			return fmt.Errorf("dependency %s does not exist", depID)
		}
		if depLayer.Rank() > n.Layer.Rank() {
			return fmt.Errorf("dependency %s is in later layer %s", depID, depLayer)
		}
	}

	for i, pred := range n.ReadyWhen {
		if err := pred.Validate(); err != nil {
			return fmt.Errorf("readyWhen[%d]: %w", i, err)
		}
		if pred.Type == PredicateTypeDeploymentAvailable && kind != "Deployment" {
			return fmt.Errorf("readyWhen[%d]: %s predicate on a %s", i, pred.Type, kind)
		}
	}
	return nil
}

// Validate fills in defaults and checks the mode and conflict policy
func (ap *ApplyPolicy) Validate() error {
	if ap.Mode == "" {
		ap.Mode = ApplyModeApply
	}
	if ap.ConflictPolicy == "" {
		ap.ConflictPolicy = ConflictPolicyError
	}
	if ap.FieldManager == "" {
		ap.FieldManager = DefaultFieldManager
	}

	switch ap.Mode {
	case ApplyModeApply, ApplyModeCreate, ApplyModeAdopt:
	default:
		return fmt.Errorf("invalid apply mode: %s", ap.Mode)
	}
	switch ap.ConflictPolicy {
	case ConflictPolicyError, ConflictPolicyForce:
	default:
		return fmt.Errorf("invalid conflict policy: %s", ap.ConflictPolicy)
	}
	return nil
}

// Validate checks that a predicate carries the fields its type needs
func (rp *ReadinessPredicate) Validate() error {
	switch rp.Type {
	case PredicateTypeConditionMatch:
		if rp.ConditionType == "" || rp.ConditionStatus == "" {
			return fmt.Errorf("%s predicate needs conditionType and conditionStatus", rp.Type)
		}
	case PredicateTypeDeploymentAvailable, PredicateTypeExists:
	default:
		return fmt.Errorf("invalid predicate type: %s", rp.Type)
	}
	if rp.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %d", rp.Timeout)
	}
	return nil
}
