package graph

import (
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/chazu/topoc/pkg/topology"
)

const (
	// LabelName identifies the service an object belongs to
	LabelName = "app.kubernetes.io/name"

	// LabelPartOf identifies the topology an object belongs to
	LabelPartOf = "app.kubernetes.io/part-of"

	// LabelManagedBy marks objects rendered by this tool
	LabelManagedBy = "app.kubernetes.io/managed-by"

	// ManagedByValue is the value of LabelManagedBy
	ManagedByValue = "topoc"

	// DefaultJobBackoffLimit is the retry budget of rendered Jobs
	DefaultJobBackoffLimit = 4
)

// objectBuilder builds typed Kubernetes objects for one topology
type objectBuilder struct {
	spec *topology.Spec
}

func (b *objectBuilder) meta(name string, extra map[string]string) metav1.ObjectMeta {
	labels := make(map[string]string, len(b.spec.Labels)+len(extra)+2)
	for k, v := range b.spec.Labels {
		labels[k] = v
	}
	for k, v := range extra {
		labels[k] = v
	}
	labels[LabelPartOf] = b.spec.Name
	labels[LabelManagedBy] = ManagedByValue

	return metav1.ObjectMeta{
		Name:      name,
		Namespace: b.spec.Namespace,
		Labels:    labels,
	}
}

// selector returns the pod selector of a service
func (b *objectBuilder) selector(svc *topology.Service) map[string]string {
	return map[string]string{
		LabelName:   svc.Name,
		LabelPartOf: b.spec.Name,
	}
}

func (b *objectBuilder) serviceAccount(sa *topology.ServiceAccount) *corev1.ServiceAccount {
	return &corev1.ServiceAccount{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ServiceAccount"},
		ObjectMeta: b.meta(sa.Name, nil),
	}
}

func (b *objectBuilder) role(sa *topology.ServiceAccount) *rbacv1.Role {
	rules := make([]rbacv1.PolicyRule, 0, len(sa.Rules))
	for _, r := range sa.Rules {
		groups := r.APIGroups
		if len(groups) == 0 {
			groups = []string{""}
		}
		rules = append(rules, rbacv1.PolicyRule{
			APIGroups: groups,
			Resources: r.Resources,
			Verbs:     r.Verbs,
		})
	}
	return &rbacv1.Role{
		TypeMeta:   metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: "Role"},
		ObjectMeta: b.meta(sa.Name, nil),
		Rules:      rules,
	}
}

func (b *objectBuilder) roleBinding(sa *topology.ServiceAccount) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		TypeMeta:   metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: "RoleBinding"},
		ObjectMeta: b.meta(sa.Name, nil),
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     sa.Name,
		},
		Subjects: []rbacv1.Subject{
			{
				Kind:      rbacv1.ServiceAccountKind,
				Name:      sa.Name,
				Namespace: b.spec.Namespace,
			},
		},
	}
}

func (b *objectBuilder) configMap(cm *topology.ConfigMap) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: b.meta(cm.Name, nil),
		Data:       cm.Data,
	}
}

func (b *objectBuilder) claim(c *topology.StorageClaim) (*corev1.PersistentVolumeClaim, error) {
	size, err := resource.ParseQuantity(c.Size)
	if err != nil {
		return nil, fmt.Errorf("storage claim %s: invalid size %q: %w", c.Name, c.Size, err)
	}
	pvc := &corev1.PersistentVolumeClaim{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: b.meta(c.Name, nil),
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{
				corev1.PersistentVolumeAccessMode(c.EffectiveAccessMode()),
			},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: size},
			},
		},
	}
	if c.StorageClass != "" {
		pvc.Spec.StorageClassName = ptr.To(c.StorageClass)
	}
	return pvc, nil
}

func (b *objectBuilder) podTemplate(svc *topology.Service) (corev1.PodTemplateSpec, error) {
	resources, err := resourceRequirements(svc.Resources)
	if err != nil {
		return corev1.PodTemplateSpec{}, fmt.Errorf("service %s: %w", svc.Name, err)
	}

	container := corev1.Container{
		Name:      svc.Name,
		Image:     svc.Image,
		Command:   svc.Command,
		Args:      svc.Args,
		Env:       envVars(svc.Env),
		Resources: resources,
	}
	for _, p := range svc.Ports {
		container.Ports = append(container.Ports, corev1.ContainerPort{
			Name:          p.Name,
			ContainerPort: targetPort(p),
			Protocol:      protocol(p),
		})
	}

	var volumes []corev1.Volume
	seen := make(map[string]bool)
	for _, m := range svc.Mounts {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      m.Claim,
			MountPath: m.Path,
			ReadOnly:  m.ReadOnly,
		})
		if seen[m.Claim] {
			continue
		}
		seen[m.Claim] = true
		volumes = append(volumes, corev1.Volume{
			Name: m.Claim,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: m.Claim},
			},
		})
	}

	podSpec := corev1.PodSpec{
		ServiceAccountName: svc.ServiceAccount,
		Containers:         []corev1.Container{container},
		Volumes:            volumes,
	}
	if svc.EffectiveKind() == topology.WorkloadKindJob {
		podSpec.RestartPolicy = corev1.RestartPolicyOnFailure
	}

	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: b.meta(svc.Name, b.selector(svc)).Labels},
		Spec:       podSpec,
	}, nil
}

func (b *objectBuilder) deployment(svc *topology.Service) (*appsv1.Deployment, error) {
	tmpl, err := b.podTemplate(svc)
	if err != nil {
		return nil, err
	}
	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: appsv1.SchemeGroupVersion.String(), Kind: "Deployment"},
		ObjectMeta: b.meta(svc.Name, b.selector(svc)),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(svc.EffectiveReplicas()),
			Selector: &metav1.LabelSelector{MatchLabels: b.selector(svc)},
			Template: tmpl,
		},
	}, nil
}

func (b *objectBuilder) job(svc *topology.Service) (*batchv1.Job, error) {
	tmpl, err := b.podTemplate(svc)
	if err != nil {
		return nil, err
	}
	replicas := svc.EffectiveReplicas()
	return &batchv1.Job{
		TypeMeta:   metav1.TypeMeta{APIVersion: batchv1.SchemeGroupVersion.String(), Kind: "Job"},
		ObjectMeta: b.meta(svc.Name, b.selector(svc)),
		Spec: batchv1.JobSpec{
			Parallelism:  ptr.To(replicas),
			Completions:  ptr.To(replicas),
			BackoffLimit: ptr.To[int32](DefaultJobBackoffLimit),
			Template:     tmpl,
		},
	}, nil
}

func (b *objectBuilder) endpoint(svc *topology.Service) *corev1.Service {
	ports := make([]corev1.ServicePort, 0, len(svc.Ports))
	for _, p := range svc.Ports {
		ports = append(ports, corev1.ServicePort{
			Name:       p.Name,
			Port:       p.Port,
			TargetPort: intstr.FromInt32(targetPort(p)),
			Protocol:   protocol(p),
		})
	}

	spec := corev1.ServiceSpec{
		Selector: b.selector(svc),
		Ports:    ports,
		Type:     corev1.ServiceTypeClusterIP,
	}
	if svc.Expose != nil {
		switch svc.Expose.Type {
		case topology.EndpointNodePort:
			spec.Type = corev1.ServiceTypeNodePort
		case topology.EndpointLoadBalancer:
			spec.Type = corev1.ServiceTypeLoadBalancer
		case topology.EndpointHeadless:
			spec.ClusterIP = corev1.ClusterIPNone
		}
	}

	return &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: b.meta(svc.Name, b.selector(svc)),
		Spec:       spec,
	}
}

func envVars(env []topology.EnvVar) []corev1.EnvVar {
	if len(env) == 0 {
		return nil
	}
	out := make([]corev1.EnvVar, 0, len(env))
	for _, e := range env {
		v := corev1.EnvVar{Name: e.Name}
		switch {
		case e.Value != nil:
			v.Value = *e.Value
		case e.SecretRef != nil:
			v.ValueFrom = &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: e.SecretRef.Name},
					Key:                  e.SecretRef.Key,
				},
			}
		case e.ConfigMapRef != nil:
			v.ValueFrom = &corev1.EnvVarSource{
				ConfigMapKeyRef: &corev1.ConfigMapKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: e.ConfigMapRef.Name},
					Key:                  e.ConfigMapRef.Key,
				},
			}
		}
		out = append(out, v)
	}
	return out
}

func resourceRequirements(r topology.Resources) (corev1.ResourceRequirements, error) {
	requests, err := resourceList(r.Requests)
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("requests: %w", err)
	}
	limits, err := resourceList(r.Limits)
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("limits: %w", err)
	}
	return corev1.ResourceRequirements{Requests: requests, Limits: limits}, nil
}

func resourceList(values map[string]string) (corev1.ResourceList, error) {
	if len(values) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make(corev1.ResourceList, len(values))
	for _, name := range names {
		q, err := resource.ParseQuantity(values[name])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid quantity %q: %w", name, values[name], err)
		}
		list[corev1.ResourceName(name)] = q
	}
	return list, nil
}

func targetPort(p topology.Port) int32 {
	if p.TargetPort != 0 {
		return p.TargetPort
	}
	return p.Port
}

func protocol(p topology.Port) corev1.Protocol {
	if p.Protocol == "" {
		return corev1.ProtocolTCP
	}
	return corev1.Protocol(p.Protocol)
}

// toUnstructured converts a typed object and strips fields the API server owns
func toUnstructured(obj runtime.Object) (unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return unstructured.Unstructured{}, fmt.Errorf("failed to convert %T: %w", obj, err)
	}
	u := unstructured.Unstructured{Object: content}
	unstructured.RemoveNestedField(u.Object, "status")
	unstructured.RemoveNestedField(u.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(u.Object, "spec", "template", "metadata", "creationTimestamp")
	return u, nil
}
