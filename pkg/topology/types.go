package topology

// Spec is a complete topology declaration.
// The order of every list is significant: it is the declaration order used
// to break ties when rendering.
type Spec struct {
	// Name identifies the topology; it becomes the part-of label on every object
	Name string `json:"name"`

	// Namespace is the target namespace for all rendered objects
	Namespace string `json:"namespace,omitempty"`

	// Labels are added to every rendered object
	Labels map[string]string `json:"labels,omitempty"`

	Services        []Service        `json:"services,omitempty"`
	Storage         []StorageClaim   `json:"storage,omitempty"`
	Secrets         []SecretRef      `json:"secrets,omitempty"`
	ConfigMaps      []ConfigMap      `json:"configMaps,omitempty"`
	ServiceAccounts []ServiceAccount `json:"serviceAccounts,omitempty"`
}

// WorkloadKind selects the workload object rendered for a Service
type WorkloadKind string

const (
	// WorkloadKindDeployment renders a long-running apps/v1 Deployment
	WorkloadKindDeployment WorkloadKind = "Deployment"

	// WorkloadKindJob renders a run-to-completion batch/v1 Job
	WorkloadKindJob WorkloadKind = "Job"
)

// Service is a single containerized workload
type Service struct {
	// Name is unique within a topology
	Name string `json:"name"`

	// Image is the container image reference
	Image string `json:"image"`

	// Kind defaults to Deployment
	Kind WorkloadKind `json:"kind,omitempty"`

	// Replicas defaults to 1 when nil
	Replicas *int32 `json:"replicas,omitempty"`

	Command []string `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	Resources Resources `json:"resources,omitempty"`

	// Env is rendered in declaration order
	Env []EnvVar `json:"env,omitempty"`

	Mounts []Mount `json:"mounts,omitempty"`
	Ports  []Port  `json:"ports,omitempty"`

	// Expose selects the endpoint type; a Service with ports and no Expose gets a ClusterIP endpoint
	Expose *Expose `json:"expose,omitempty"`

	// ServiceAccount names a declared ServiceAccount
	ServiceAccount string `json:"serviceAccount,omitempty"`

	// DependsOn names services whose workloads must be created first
	DependsOn []string `json:"dependsOn,omitempty"`
}

// Resources holds compute requests and limits keyed by resource name (cpu, memory, ...)
// Values are Kubernetes quantity strings such as "500m" or "1Gi".
type Resources struct {
	Requests map[string]string `json:"requests,omitempty"`
	Limits   map[string]string `json:"limits,omitempty"`
}

// IsZero reports whether no requests or limits are declared
func (r Resources) IsZero() bool {
	return len(r.Requests) == 0 && len(r.Limits) == 0
}

// EnvVar binds an environment variable to exactly one source
type EnvVar struct {
	Name string `json:"name"`

	// Value is a literal value
	Value *string `json:"value,omitempty"`

	// SecretRef reads the value from a declared SecretRef key
	SecretRef *KeyRef `json:"secretRef,omitempty"`

	// ConfigMapRef reads the value from a declared ConfigMap key
	ConfigMapRef *KeyRef `json:"configMapRef,omitempty"`
}

// KeyRef points at a key inside a named secret or config map
type KeyRef struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Sources returns how many value sources the binding declares
func (e EnvVar) Sources() int {
	n := 0
	if e.Value != nil {
		n++
	}
	if e.SecretRef != nil {
		n++
	}
	if e.ConfigMapRef != nil {
		n++
	}
	return n
}

// Mount attaches a StorageClaim to a Service
type Mount struct {
	// Claim names a declared StorageClaim
	Claim string `json:"claim"`

	// Path is the mount path inside the container
	Path string `json:"path"`

	ReadOnly bool `json:"readOnly,omitempty"`
}

// Port is a container port, optionally exposed through the Service endpoint
type Port struct {
	Name string `json:"name,omitempty"`
	Port int32  `json:"port"`

	// TargetPort defaults to Port
	TargetPort int32 `json:"targetPort,omitempty"`

	// Protocol defaults to TCP
	Protocol string `json:"protocol,omitempty"`
}

// EndpointType is the kind of network endpoint rendered for a Service
type EndpointType string

const (
	EndpointClusterIP    EndpointType = "ClusterIP"
	EndpointNodePort     EndpointType = "NodePort"
	EndpointLoadBalancer EndpointType = "LoadBalancer"
	EndpointHeadless     EndpointType = "Headless"
)

// Expose configures the network endpoint for a Service
type Expose struct {
	Type EndpointType `json:"type,omitempty"`
}

// AccessMode is the storage access mode of a claim
type AccessMode string

const (
	AccessReadWriteOnce    AccessMode = "ReadWriteOnce"
	AccessReadOnlyMany     AccessMode = "ReadOnlyMany"
	AccessReadWriteMany    AccessMode = "ReadWriteMany"
	AccessReadWriteOncePod AccessMode = "ReadWriteOncePod"
)

// StorageClaim is a persistent volume claim that services mount
type StorageClaim struct {
	Name string `json:"name"`

	// Size is a quantity string such as "10Gi"
	Size string `json:"size"`

	// AccessMode defaults to ReadWriteOnce
	AccessMode AccessMode `json:"accessMode,omitempty"`

	StorageClass string `json:"storageClass,omitempty"`
}

// SecretRef declares a secret that exists out of band and the keys it must carry.
// Secrets are validation targets only; they are never rendered.
type SecretRef struct {
	Name string   `json:"name"`
	Keys []string `json:"keys,omitempty"`
}

// HasKey reports whether key is declared on the secret
func (s SecretRef) HasKey(key string) bool {
	for _, k := range s.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// ConfigMap is rendered configuration data
type ConfigMap struct {
	Name string            `json:"name"`
	Data map[string]string `json:"data,omitempty"`
}

// ServiceAccount is a workload identity with optional namespaced permissions
type ServiceAccount struct {
	Name  string       `json:"name"`
	Rules []PolicyRule `json:"rules,omitempty"`
}

// PolicyRule grants verbs on resources within API groups
type PolicyRule struct {
	APIGroups []string `json:"apiGroups,omitempty"`
	Resources []string `json:"resources"`
	Verbs     []string `json:"verbs"`
}

// EffectiveKind returns the workload kind, applying the default
func (s *Service) EffectiveKind() WorkloadKind {
	if s.Kind == "" {
		return WorkloadKindDeployment
	}
	return s.Kind
}

// EffectiveReplicas returns the replica count, applying the default
func (s *Service) EffectiveReplicas() int32 {
	if s.Replicas == nil {
		return 1
	}
	return *s.Replicas
}

// EffectiveAccessMode returns the access mode, applying the default
func (c *StorageClaim) EffectiveAccessMode() AccessMode {
	if c.AccessMode == "" {
		return AccessReadWriteOnce
	}
	return c.AccessMode
}

// Service returns the service with the given name
func (s *Spec) Service(name string) (*Service, bool) {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i], true
		}
	}
	return nil, false
}

// StorageClaim returns the claim with the given name
func (s *Spec) StorageClaim(name string) (*StorageClaim, bool) {
	for i := range s.Storage {
		if s.Storage[i].Name == name {
			return &s.Storage[i], true
		}
	}
	return nil, false
}

// Secret returns the secret with the given name
func (s *Spec) Secret(name string) (*SecretRef, bool) {
	for i := range s.Secrets {
		if s.Secrets[i].Name == name {
			return &s.Secrets[i], true
		}
	}
	return nil, false
}

// ConfigMap returns the config map with the given name
func (s *Spec) ConfigMap(name string) (*ConfigMap, bool) {
	for i := range s.ConfigMaps {
		if s.ConfigMaps[i].Name == name {
			return &s.ConfigMaps[i], true
		}
	}
	return nil, false
}

// ServiceAccount returns the service account with the given name
func (s *Spec) ServiceAccount(name string) (*ServiceAccount, bool) {
	for i := range s.ServiceAccounts {
		if s.ServiceAccounts[i].Name == name {
			return &s.ServiceAccounts[i], true
		}
	}
	return nil, false
}

// ServiceNames returns service names in declaration order
func (s *Spec) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	return names
}
