// Package overlay applies environment-specific overrides onto a base topology.
package overlay

import (
	"fmt"

	"github.com/chazu/topoc/pkg/topology"
)

// UnknownServiceError is returned when an overlay overrides a service absent from the base
type UnknownServiceError struct {
	Overlay string
	Service string
}

func (e *UnknownServiceError) Error() string {
	if e.Overlay == "" {
		return fmt.Sprintf("unknown service %q", e.Service)
	}
	return fmt.Sprintf("overlay %s: unknown service %q", e.Overlay, e.Service)
}

// UnknownEntityError is returned when an overlay overrides a storage claim or
// config map absent from the base
type UnknownEntityError struct {
	Overlay string
	Kind    string
	Name    string
}

func (e *UnknownEntityError) Error() string {
	if e.Overlay == "" {
		return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("overlay %s: unknown %s %q", e.Overlay, e.Kind, e.Name)
}

// Merge applies ov onto a copy of base and returns the resolved spec.
// Neither input is modified. Overrides are applied in sorted key order, so
// identical inputs always produce an identical result.
func Merge(base *topology.Spec, ov *topology.Overlay) (*topology.Spec, error) {
	if base == nil {
		return nil, fmt.Errorf("base topology cannot be nil")
	}

	out := base.DeepCopy()
	if ov.IsEmpty() {
		return out, nil
	}

	// Resolve every key before changing anything so a failed merge has no partial effect
	for _, name := range ov.ServiceKeys() {
		if _, ok := out.Service(name); !ok {
			return nil, &UnknownServiceError{Overlay: ov.Name, Service: name}
		}
	}
	for _, name := range ov.StorageKeys() {
		if _, ok := out.StorageClaim(name); !ok {
			return nil, &UnknownEntityError{Overlay: ov.Name, Kind: "storage claim", Name: name}
		}
	}
	for _, name := range ov.ConfigMapKeys() {
		if _, ok := out.ConfigMap(name); !ok {
			return nil, &UnknownEntityError{Overlay: ov.Name, Kind: "config map", Name: name}
		}
	}

	if ov.Namespace != "" {
		out.Namespace = ov.Namespace
	}

	for _, name := range ov.ServiceKeys() {
		svc, _ := out.Service(name)
		applyService(svc, ov.Services[name])
	}

	for _, name := range ov.StorageKeys() {
		claim, _ := out.StorageClaim(name)
		override := ov.Storage[name]
		if override.Size != nil {
			claim.Size = *override.Size
		}
		if override.StorageClass != nil {
			claim.StorageClass = *override.StorageClass
		}
	}

	for _, name := range ov.ConfigMapKeys() {
		cm, _ := out.ConfigMap(name)
		cm.Data = mergeStringMap(cm.Data, ov.ConfigMaps[name].Data)
	}

	return out, nil
}

// MergeAll applies overlays left to right
func MergeAll(base *topology.Spec, overlays ...*topology.Overlay) (*topology.Spec, error) {
	current := base
	for _, ov := range overlays {
		merged, err := Merge(current, ov)
		if err != nil {
			return nil, err
		}
		current = merged
	}
	if current == base {
		// No overlays: still hand back a copy so callers never alias the base
		return base.DeepCopy(), nil
	}
	return current, nil
}

// applyService writes the override onto svc, which must already be a private copy
func applyService(svc *topology.Service, o topology.ServiceOverride) {
	if o.Replicas != nil {
		r := *o.Replicas
		svc.Replicas = &r
	}
	if o.Image != nil {
		svc.Image = *o.Image
	}
	if o.Resources != nil {
		svc.Resources.Requests = mergeStringMap(svc.Resources.Requests, o.Resources.Requests)
		svc.Resources.Limits = mergeStringMap(svc.Resources.Limits, o.Resources.Limits)
	}
	for _, env := range o.Env {
		svc.Env = setEnv(svc.Env, env.DeepCopy())
	}
}

// setEnv replaces the binding with the same name or appends it
func setEnv(env []topology.EnvVar, binding topology.EnvVar) []topology.EnvVar {
	for i := range env {
		if env[i].Name == binding.Name {
			env[i] = binding
			return env
		}
	}
	return append(env, binding)
}

// mergeStringMap returns base with every key of override set.
// base is returned untouched when override is empty, preserving nil.
func mergeStringMap(base, override map[string]string) map[string]string {
	if len(override) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]string, len(override))
	}
	for k, v := range override {
		base[k] = v
	}
	return base
}
