package topology

import "sort"

// Overlay is a named set of field-level overrides applied atop a base Spec.
// Overlays are transient inputs; merging never mutates them.
type Overlay struct {
	Name string `json:"name"`

	// Namespace replaces the base namespace when set
	Namespace string `json:"namespace,omitempty"`

	// Services maps a base service name to its overrides
	Services map[string]ServiceOverride `json:"services,omitempty"`

	// Storage maps a base claim name to its overrides
	Storage map[string]StorageOverride `json:"storage,omitempty"`

	// ConfigMaps maps a base config map name to data overrides
	ConfigMaps map[string]ConfigMapOverride `json:"configMaps,omitempty"`
}

// ServiceOverride holds the fields an overlay may change on a Service.
// Nil fields are left unchanged.
type ServiceOverride struct {
	Replicas  *int32     `json:"replicas,omitempty"`
	Image     *string    `json:"image,omitempty"`
	Resources *Resources `json:"resources,omitempty"`

	// Env replaces bindings by name; new names are appended in overlay order
	Env []EnvVar `json:"env,omitempty"`
}

// StorageOverride holds the fields an overlay may change on a StorageClaim
type StorageOverride struct {
	Size         *string `json:"size,omitempty"`
	StorageClass *string `json:"storageClass,omitempty"`
}

// ConfigMapOverride sets individual keys of a ConfigMap
type ConfigMapOverride struct {
	Data map[string]string `json:"data,omitempty"`
}

// IsEmpty reports whether the overlay changes nothing
func (o *Overlay) IsEmpty() bool {
	return o == nil ||
		(o.Namespace == "" && len(o.Services) == 0 && len(o.Storage) == 0 && len(o.ConfigMaps) == 0)
}

// ServiceKeys returns overridden service names in sorted order
func (o *Overlay) ServiceKeys() []string {
	return sortedKeys(o.Services)
}

// StorageKeys returns overridden claim names in sorted order
func (o *Overlay) StorageKeys() []string {
	return sortedKeys(o.Storage)
}

// ConfigMapKeys returns overridden config map names in sorted order
func (o *Overlay) ConfigMapKeys() []string {
	return sortedKeys(o.ConfigMaps)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
