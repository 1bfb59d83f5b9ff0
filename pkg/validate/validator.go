// Package validate checks a resolved topology for consistency. Every check
// runs on every entity, so a caller receives all problems in one pass.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/chazu/topoc/pkg/topology"
)

// DefaultMaxReplicas is the replica count above which a warning is raised
const DefaultMaxReplicas = 50

// Validator checks topologies. The zero value is not usable; use New.
type Validator struct {
	maxReplicas int32
}

// Option configures a Validator
type Option func(*Validator)

// WithMaxReplicas sets the soft replica maximum; 0 disables the warning
func WithMaxReplicas(n int32) Option {
	return func(v *Validator) {
		v.maxReplicas = n
	}
}

// New creates a validator
func New(opts ...Option) *Validator {
	v := &Validator{maxReplicas: DefaultMaxReplicas}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks spec with default options
func Validate(spec *topology.Spec) Issues {
	return New().Validate(spec)
}

// Validate returns every issue found in spec. Checks run in a fixed order:
// storage references, secret and config references, numeric values,
// structural checks, then warnings.
func (v *Validator) Validate(spec *topology.Spec) Issues {
	if spec == nil {
		return Issues{{
			Code:     CodeInvalidName,
			Severity: SeverityError,
			Path:     "topology",
			Message:  "topology is nil",
		}}
	}

	c := &collector{}
	v.checkStorageRefs(c, spec)
	v.checkValueRefs(c, spec)
	v.checkQuantities(c, spec)
	v.checkStructure(c, spec)
	v.checkWarnings(c, spec)
	return c.issues
}

type collector struct {
	issues Issues
}

func (c *collector) add(code Code, sev Severity, entity, path, format string, args ...interface{}) {
	c.issues = append(c.issues, Issue{
		Code:     code,
		Severity: sev,
		Entity:   entity,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (c *collector) errorf(code Code, entity, path, format string, args ...interface{}) {
	c.add(code, SeverityError, entity, path, format, args...)
}

func (c *collector) warnf(code Code, entity, path, format string, args ...interface{}) {
	c.add(code, SeverityWarning, entity, path, format, args...)
}

func servicePath(svc *topology.Service) string {
	return fmt.Sprintf("services[%s]", svc.Name)
}

// checkStorageRefs verifies every mount names a declared claim
func (v *Validator) checkStorageRefs(c *collector, spec *topology.Spec) {
	for i := range spec.Services {
		svc := &spec.Services[i]
		for j, m := range svc.Mounts {
			if _, ok := spec.StorageClaim(m.Claim); !ok {
				c.errorf(CodeUnresolvedStorage, svc.Name,
					fmt.Sprintf("%s.mounts[%d].claim", servicePath(svc), j),
					"storage claim %q is not declared", m.Claim)
			}
		}
	}
}

// checkValueRefs verifies secret- and config-backed env bindings
func (v *Validator) checkValueRefs(c *collector, spec *topology.Spec) {
	for i := range spec.Services {
		svc := &spec.Services[i]
		for j, env := range svc.Env {
			path := fmt.Sprintf("%s.env[%s]", servicePath(svc), env.Name)
			if env.Name == "" {
				path = fmt.Sprintf("%s.env[%d]", servicePath(svc), j)
			}

			if ref := env.SecretRef; ref != nil {
				sec, ok := spec.Secret(ref.Name)
				switch {
				case !ok:
					c.errorf(CodeUnresolvedSecret, svc.Name, path+".secretRef",
						"secret %q is not declared", ref.Name)
				case !sec.HasKey(ref.Key):
					c.errorf(CodeUnresolvedSecretKey, svc.Name, path+".secretRef",
						"secret %q does not declare key %q", ref.Name, ref.Key)
				}
			}

			if ref := env.ConfigMapRef; ref != nil {
				cm, ok := spec.ConfigMap(ref.Name)
				switch {
				case !ok:
					c.errorf(CodeUnresolvedConfigMap, svc.Name, path+".configMapRef",
						"config map %q is not declared", ref.Name)
				default:
					if _, found := cm.Data[ref.Key]; !found {
						c.errorf(CodeUnresolvedConfigKey, svc.Name, path+".configMapRef",
							"config map %q does not define key %q", ref.Name, ref.Key)
					}
				}
			}
		}
	}
}

// checkQuantities verifies replica counts and resource values are non-negative
func (v *Validator) checkQuantities(c *collector, spec *topology.Spec) {
	for i := range spec.Services {
		svc := &spec.Services[i]
		if svc.Replicas != nil && *svc.Replicas < 0 {
			c.errorf(CodeNegativeReplicas, svc.Name, servicePath(svc)+".replicas",
				"replicas must be non-negative, got %d", *svc.Replicas)
		}
		checkResourceMap(c, svc, "requests", svc.Resources.Requests)
		checkResourceMap(c, svc, "limits", svc.Resources.Limits)
	}

	for _, claim := range spec.Storage {
		path := fmt.Sprintf("storage[%s].size", claim.Name)
		q, err := resource.ParseQuantity(claim.Size)
		switch {
		case err != nil:
			c.errorf(CodeInvalidQuantity, claim.Name, path, "invalid size %q: %v", claim.Size, err)
		case q.Sign() <= 0:
			c.errorf(CodeNegativeQuantity, claim.Name, path, "size must be positive, got %s", claim.Size)
		}
	}
}

func checkResourceMap(c *collector, svc *topology.Service, field string, values map[string]string) {
	for _, name := range sortedKeys(values) {
		raw := values[name]
		path := fmt.Sprintf("%s.resources.%s[%s]", servicePath(svc), field, name)
		q, err := resource.ParseQuantity(raw)
		if err != nil {
			c.errorf(CodeInvalidQuantity, svc.Name, path, "invalid quantity %q: %v", raw, err)
			continue
		}
		if q.Sign() < 0 {
			c.errorf(CodeNegativeQuantity, svc.Name, path, "quantity must be non-negative, got %s", raw)
		}
	}
}

// checkPortNames requires every port of a multi-port service to carry a
// unique name
func checkPortNames(c *collector, svc *topology.Service) {
	seen := make(map[string]bool, len(svc.Ports))
	for j, p := range svc.Ports {
		portPath := fmt.Sprintf("%s.ports[%d].name", servicePath(svc), j)
		switch {
		case p.Name == "":
			c.errorf(CodeInvalidPort, svc.Name, portPath, "port %d needs a name when a service has several ports", p.Port)
		case seen[p.Name]:
			c.errorf(CodeInvalidPort, svc.Name, portPath, "port name %q is used more than once", p.Name)
		}
		seen[p.Name] = true
	}
}

// checkStructure covers names, images, kinds, dependencies and ports
func (v *Validator) checkStructure(c *collector, spec *topology.Spec) {
	checkNames(c, "services", serviceNames(spec))
	checkNames(c, "storage", claimNames(spec))
	checkNames(c, "secrets", secretNames(spec))
	checkNames(c, "configMaps", configMapNames(spec))
	checkNames(c, "serviceAccounts", accountNames(spec))

	for i := range spec.Services {
		svc := &spec.Services[i]
		path := servicePath(svc)

		if strings.TrimSpace(svc.Image) == "" {
			c.errorf(CodeMissingImage, svc.Name, path+".image", "image is required")
		}

		switch svc.EffectiveKind() {
		case topology.WorkloadKindDeployment, topology.WorkloadKindJob:
		default:
			c.errorf(CodeUnknownKind, svc.Name, path+".kind", "unknown workload kind %q", svc.Kind)
		}

		for j, dep := range svc.DependsOn {
			if _, ok := spec.Service(dep); !ok {
				c.errorf(CodeUnknownDependency, svc.Name, fmt.Sprintf("%s.dependsOn[%d]", path, j),
					"service %q is not declared", dep)
			}
		}

		if svc.ServiceAccount != "" {
			if _, ok := spec.ServiceAccount(svc.ServiceAccount); !ok {
				c.errorf(CodeUnknownAccount, svc.Name, path+".serviceAccount",
					"service account %q is not declared", svc.ServiceAccount)
			}
		}

		for j, env := range svc.Env {
			envPath := fmt.Sprintf("%s.env[%d]", path, j)
			if env.Name == "" {
				c.errorf(CodeInvalidEnv, svc.Name, envPath, "env binding name is required")
			}
			if n := env.Sources(); n != 1 {
				c.errorf(CodeInvalidEnv, svc.Name, envPath,
					"env binding %q must have exactly one of value, secretRef, configMapRef (has %d)", env.Name, n)
			}
		}

		for j, p := range svc.Ports {
			portPath := fmt.Sprintf("%s.ports[%d]", path, j)
			if p.Port < 1 || p.Port > 65535 {
				c.errorf(CodeInvalidPort, svc.Name, portPath, "port must be between 1 and 65535, got %d", p.Port)
			}
			if p.TargetPort != 0 && (p.TargetPort < 1 || p.TargetPort > 65535) {
				c.errorf(CodeInvalidPort, svc.Name, portPath+".targetPort",
					"targetPort must be between 1 and 65535, got %d", p.TargetPort)
			}
		}
		if len(svc.Ports) > 1 {
			checkPortNames(c, svc)
		}

		if svc.Expose != nil {
			switch svc.Expose.Type {
			case "", topology.EndpointClusterIP, topology.EndpointNodePort,
				topology.EndpointLoadBalancer, topology.EndpointHeadless:
			default:
				c.errorf(CodeInvalidEndpoint, svc.Name, path+".expose.type", "unknown endpoint type %q", svc.Expose.Type)
			}
			if len(svc.Ports) == 0 {
				c.errorf(CodeInvalidEndpoint, svc.Name, path+".expose", "exposed service declares no ports")
			}
		}
	}

	for _, claim := range spec.Storage {
		switch claim.EffectiveAccessMode() {
		case topology.AccessReadWriteOnce, topology.AccessReadOnlyMany,
			topology.AccessReadWriteMany, topology.AccessReadWriteOncePod:
		default:
			c.errorf(CodeInvalidAccessMode, claim.Name, fmt.Sprintf("storage[%s].accessMode", claim.Name),
				"unknown access mode %q", claim.AccessMode)
		}
	}
}

// checkNames reports empty, invalid and duplicate names in one collection
func checkNames(c *collector, collection string, names []string) {
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		path := fmt.Sprintf("%s[%d].name", collection, i)
		if name == "" {
			c.errorf(CodeInvalidName, "", path, "name is required")
			continue
		}
		if errs := validation.IsDNS1123Label(name); len(errs) > 0 {
			c.errorf(CodeInvalidName, name, path, "invalid name %q: %s", name, strings.Join(errs, ", "))
		}
		if seen[name] {
			c.errorf(CodeDuplicateName, name, path, "duplicate name %q in %s", name, collection)
		}
		seen[name] = true
	}
}

// checkWarnings reports non-blocking findings
func (v *Validator) checkWarnings(c *collector, spec *topology.Spec) {
	mounted := make(map[string]bool)
	for _, svc := range spec.Services {
		for _, m := range svc.Mounts {
			mounted[m.Claim] = true
		}
	}
	for _, claim := range spec.Storage {
		if !mounted[claim.Name] {
			c.warnf(CodeUnusedStorage, claim.Name, fmt.Sprintf("storage[%s]", claim.Name),
				"storage claim %q is not mounted by any service", claim.Name)
		}
	}

	for i := range spec.Services {
		svc := &spec.Services[i]
		replicas := svc.EffectiveReplicas()
		if svc.EffectiveKind() == topology.WorkloadKindJob && replicas > 1 {
			c.warnf(CodeJobReplicas, svc.Name, servicePath(svc)+".replicas",
				"job %q runs %d parallel pods", svc.Name, replicas)
		}
		if v.maxReplicas > 0 && replicas > v.maxReplicas {
			c.warnf(CodeHighReplicas, svc.Name, servicePath(svc)+".replicas",
				"replicas (%d) is higher than recommended maximum (%d)", replicas, v.maxReplicas)
		}
	}
}

func serviceNames(spec *topology.Spec) []string {
	return spec.ServiceNames()
}

func claimNames(spec *topology.Spec) []string {
	names := make([]string, 0, len(spec.Storage))
	for _, c := range spec.Storage {
		names = append(names, c.Name)
	}
	return names
}

func secretNames(spec *topology.Spec) []string {
	names := make([]string, 0, len(spec.Secrets))
	for _, s := range spec.Secrets {
		names = append(names, s.Name)
	}
	return names
}

func configMapNames(spec *topology.Spec) []string {
	names := make([]string, 0, len(spec.ConfigMaps))
	for _, cm := range spec.ConfigMaps {
		names = append(names, cm.Name)
	}
	return names
}

func accountNames(spec *topology.Spec) []string {
	names := make([]string, 0, len(spec.ServiceAccounts))
	for _, sa := range spec.ServiceAccounts {
		names = append(names, sa.Name)
	}
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
