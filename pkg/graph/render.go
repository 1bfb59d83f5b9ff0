package graph

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime"

	"github.com/chazu/topoc/pkg/topology"
)

// NodeID returns the graph identifier of an object of the given kind and name
func NodeID(kind, name string) string {
	return strings.ToLower(kind) + "/" + name
}

// Render turns a merged, validated topology into an ordered graph of
// infrastructure objects. Nodes are sorted so every node follows the nodes
// it depends on; ties keep layer order and then declaration order.
func Render(spec *topology.Spec) (*Graph, error) {
	if spec == nil {
		return nil, fmt.Errorf("topology cannot be nil")
	}

	r := &renderer{
		spec:      spec,
		build:     &objectBuilder{spec: spec},
		workloads: make(map[string]string, len(spec.Services)),
	}
	for i := range spec.Services {
		svc := &spec.Services[i]
		r.workloads[svc.Name] = NodeID(string(svc.EffectiveKind()), svc.Name)
	}

	if err := r.identity(); err != nil {
		return nil, err
	}
	if err := r.config(); err != nil {
		return nil, err
	}
	if err := r.storage(); err != nil {
		return nil, err
	}
	if err := r.workload(); err != nil {
		return nil, err
	}
	if err := r.network(); err != nil {
		return nil, err
	}

	g := &Graph{
		Metadata: GraphMetadata{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Version:   FormatVersion,
		},
		Nodes: r.nodes,
	}

	dag, err := BuildDAG(g)
	if err != nil {
		return nil, err
	}
	g.Nodes = dag.Sorted()
	g.SetHash()

	return g, nil
}

type renderer struct {
	spec  *topology.Spec
	build *objectBuilder
	nodes []Node

	// workloads maps service names to their workload node IDs
	workloads map[string]string
}

func (r *renderer) add(layer Layer, entity string, obj runtime.Object, mode ApplyMode, deps []string, ready ...ReadinessPredicate) error {
	u, err := toUnstructured(obj)
	if err != nil {
		return fmt.Errorf("%s: %w", entity, err)
	}
	r.nodes = append(r.nodes, Node{
		ID:     NodeID(u.GetKind(), u.GetName()),
		Layer:  layer,
		Entity: entity,
		Object: u,
		ApplyPolicy: ApplyPolicy{
			Mode:           mode,
			ConflictPolicy: ConflictPolicyError,
			FieldManager:   DefaultFieldManager,
		},
		DependsOn: deps,
		ReadyWhen: ready,
	})
	return nil
}

func (r *renderer) identity() error {
	for i := range r.spec.ServiceAccounts {
		sa := &r.spec.ServiceAccounts[i]
		saID := NodeID("ServiceAccount", sa.Name)
		if err := r.add(LayerIdentity, sa.Name, r.build.serviceAccount(sa), ApplyModeApply, nil); err != nil {
			return err
		}
		if len(sa.Rules) == 0 {
			continue
		}
		roleID := NodeID("Role", sa.Name)
		if err := r.add(LayerIdentity, sa.Name, r.build.role(sa), ApplyModeApply, nil); err != nil {
			return err
		}
		if err := r.add(LayerIdentity, sa.Name, r.build.roleBinding(sa), ApplyModeApply, []string{roleID, saID}); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) config() error {
	for i := range r.spec.ConfigMaps {
		cm := &r.spec.ConfigMaps[i]
		if err := r.add(LayerConfig, cm.Name, r.build.configMap(cm), ApplyModeApply, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) storage() error {
	for i := range r.spec.Storage {
		claim := &r.spec.Storage[i]
		pvc, err := r.build.claim(claim)
		if err != nil {
			return err
		}
		// Claims are never updated in place; resizing is left to the operator
		if err := r.add(LayerStorage, claim.Name, pvc, ApplyModeCreate, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) workload() error {
	for i := range r.spec.Services {
		svc := &r.spec.Services[i]
		deps, err := r.workloadDeps(svc)
		if err != nil {
			return err
		}

		if svc.EffectiveKind() == topology.WorkloadKindJob {
			job, err := r.build.job(svc)
			if err != nil {
				return err
			}
			err = r.add(LayerWorkload, svc.Name, job, ApplyModeCreate, deps, ReadinessPredicate{
				Type:            PredicateTypeConditionMatch,
				ConditionType:   "Complete",
				ConditionStatus: "True",
			})
			if err != nil {
				return err
			}
			continue
		}

		deploy, err := r.build.deployment(svc)
		if err != nil {
			return err
		}
		err = r.add(LayerWorkload, svc.Name, deploy, ApplyModeApply, deps, ReadinessPredicate{
			Type: PredicateTypeDeploymentAvailable,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// workloadDeps lists the nodes a workload needs in place before it starts
func (r *renderer) workloadDeps(svc *topology.Service) ([]string, error) {
	var deps []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}

	if svc.ServiceAccount != "" {
		add(NodeID("ServiceAccount", svc.ServiceAccount))
		if sa, ok := r.spec.ServiceAccount(svc.ServiceAccount); ok && len(sa.Rules) > 0 {
			add(NodeID("RoleBinding", svc.ServiceAccount))
		}
	}
	for _, e := range svc.Env {
		if e.ConfigMapRef != nil {
			add(NodeID("ConfigMap", e.ConfigMapRef.Name))
		}
	}
	for _, m := range svc.Mounts {
		add(NodeID("PersistentVolumeClaim", m.Claim))
	}
	for _, name := range svc.DependsOn {
		id, ok := r.workloads[name]
		if !ok {
			return nil, fmt.Errorf("service %s: depends on unknown service %q", svc.Name, name)
		}
		add(id)
	}
	return deps, nil
}

func (r *renderer) network() error {
	for i := range r.spec.Services {
		svc := &r.spec.Services[i]
		if len(svc.Ports) == 0 {
			continue
		}
		deps := []string{r.workloads[svc.Name]}
		if err := r.add(LayerNetwork, svc.Name, r.build.endpoint(svc), ApplyModeApply, deps, ReadinessPredicate{
			Type: PredicateTypeExists,
		}); err != nil {
			return err
		}
	}
	return nil
}
