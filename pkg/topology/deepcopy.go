package topology

// DeepCopy returns an independent copy of the spec.
// nil and empty collections are preserved as-is so a copy compares deep-equal to its source.
func (s *Spec) DeepCopy() *Spec {
	if s == nil {
		return nil
	}
	out := &Spec{
		Name:      s.Name,
		Namespace: s.Namespace,
		Labels:    copyStringMap(s.Labels),
	}
	if s.Services != nil {
		out.Services = make([]Service, len(s.Services))
		for i := range s.Services {
			s.Services[i].DeepCopyInto(&out.Services[i])
		}
	}
	if s.Storage != nil {
		out.Storage = make([]StorageClaim, len(s.Storage))
		copy(out.Storage, s.Storage)
	}
	if s.Secrets != nil {
		out.Secrets = make([]SecretRef, len(s.Secrets))
		for i, sec := range s.Secrets {
			out.Secrets[i] = SecretRef{Name: sec.Name, Keys: copyStrings(sec.Keys)}
		}
	}
	if s.ConfigMaps != nil {
		out.ConfigMaps = make([]ConfigMap, len(s.ConfigMaps))
		for i, cm := range s.ConfigMaps {
			out.ConfigMaps[i] = ConfigMap{Name: cm.Name, Data: copyStringMap(cm.Data)}
		}
	}
	if s.ServiceAccounts != nil {
		out.ServiceAccounts = make([]ServiceAccount, len(s.ServiceAccounts))
		for i, sa := range s.ServiceAccounts {
			out.ServiceAccounts[i] = ServiceAccount{Name: sa.Name}
			if sa.Rules != nil {
				out.ServiceAccounts[i].Rules = make([]PolicyRule, len(sa.Rules))
				for j, r := range sa.Rules {
					out.ServiceAccounts[i].Rules[j] = PolicyRule{
						APIGroups: copyStrings(r.APIGroups),
						Resources: copyStrings(r.Resources),
						Verbs:     copyStrings(r.Verbs),
					}
				}
			}
		}
	}
	return out
}

// DeepCopyInto copies the service into out
func (s *Service) DeepCopyInto(out *Service) {
	*out = *s
	if s.Replicas != nil {
		r := *s.Replicas
		out.Replicas = &r
	}
	out.Command = copyStrings(s.Command)
	out.Args = copyStrings(s.Args)
	out.Resources = s.Resources.DeepCopy()
	if s.Env != nil {
		out.Env = make([]EnvVar, len(s.Env))
		for i := range s.Env {
			out.Env[i] = s.Env[i].DeepCopy()
		}
	}
	if s.Mounts != nil {
		out.Mounts = make([]Mount, len(s.Mounts))
		copy(out.Mounts, s.Mounts)
	}
	if s.Ports != nil {
		out.Ports = make([]Port, len(s.Ports))
		copy(out.Ports, s.Ports)
	}
	if s.Expose != nil {
		e := *s.Expose
		out.Expose = &e
	}
	out.DependsOn = copyStrings(s.DependsOn)
}

// DeepCopy returns an independent copy of the resources
func (r Resources) DeepCopy() Resources {
	return Resources{
		Requests: copyStringMap(r.Requests),
		Limits:   copyStringMap(r.Limits),
	}
}

// DeepCopy returns an independent copy of the binding
func (e EnvVar) DeepCopy() EnvVar {
	out := EnvVar{Name: e.Name}
	if e.Value != nil {
		v := *e.Value
		out.Value = &v
	}
	if e.SecretRef != nil {
		ref := *e.SecretRef
		out.SecretRef = &ref
	}
	if e.ConfigMapRef != nil {
		ref := *e.ConfigMapRef
		out.ConfigMapRef = &ref
	}
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
