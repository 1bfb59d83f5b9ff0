package overlay

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/utils/ptr"

	"github.com/chazu/topoc/pkg/topology"
)

func baseSpec() *topology.Spec {
	return &topology.Spec{
		Name:      "airflow",
		Namespace: "airflow",
		Services: []topology.Service{
			{
				Name:     "webserver",
				Image:    "apache/airflow:2.9.3",
				Replicas: ptr.To[int32](1),
				Ports:    []topology.Port{{Name: "http", Port: 8080}},
			},
			{
				Name:     "worker",
				Image:    "apache/airflow:2.9.3",
				Replicas: ptr.To[int32](1),
				Resources: topology.Resources{
					Requests: map[string]string{"cpu": "500m", "memory": "1Gi"},
				},
				Env: []topology.EnvVar{
					{Name: "AIRFLOW__CORE__EXECUTOR", Value: ptr.To("CeleryExecutor")},
					{Name: "AIRFLOW__CELERY__WORKER_CONCURRENCY", Value: ptr.To("8")},
				},
				Mounts: []topology.Mount{{Claim: "logs", Path: "/opt/airflow/logs"}},
			},
		},
		Storage:    []topology.StorageClaim{{Name: "logs", Size: "5Gi"}},
		ConfigMaps: []topology.ConfigMap{{Name: "airflow-config", Data: map[string]string{"parallelism": "32"}}},
	}
}

func TestMergeReplicaOverride(t *testing.T) {
	base := baseSpec()
	ov := &topology.Overlay{
		Name: "prod",
		Services: map[string]topology.ServiceOverride{
			"worker": {Replicas: ptr.To[int32](5)},
		},
	}

	merged, err := Merge(base, ov)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	worker, _ := merged.Service("worker")
	if worker.EffectiveReplicas() != 5 {
		t.Errorf("expected worker replicas 5, got %d", worker.EffectiveReplicas())
	}

	// Every other field is unchanged
	want := baseSpec()
	want.Services[1].Replicas = ptr.To[int32](5)
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("unexpected merge result (-want +got):\n%s", diff)
	}

	// Base is not mutated
	if diff := cmp.Diff(baseSpec(), base); diff != "" {
		t.Errorf("base was mutated (-want +got):\n%s", diff)
	}
}

func TestMergeUnknownService(t *testing.T) {
	ov := &topology.Overlay{
		Name: "prod",
		Services: map[string]topology.ServiceOverride{
			"cache": {Replicas: ptr.To[int32](2)},
		},
	}

	_, err := Merge(baseSpec(), ov)
	if err == nil {
		t.Fatal("expected error for unknown service")
	}

	var unknown *UnknownServiceError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownServiceError, got %T: %v", err, err)
	}
	if unknown.Service != "cache" {
		t.Errorf("expected service cache, got %s", unknown.Service)
	}
	if unknown.Overlay != "prod" {
		t.Errorf("expected overlay prod, got %s", unknown.Overlay)
	}
}

func TestMergeUnknownServiceHasNoPartialEffect(t *testing.T) {
	base := baseSpec()
	ov := &topology.Overlay{
		Name: "prod",
		Services: map[string]topology.ServiceOverride{
			"webserver": {Replicas: ptr.To[int32](3)},
			"zookeeper": {Replicas: ptr.To[int32](3)},
		},
	}

	if _, err := Merge(base, ov); err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff(baseSpec(), base); diff != "" {
		t.Errorf("base was mutated (-want +got):\n%s", diff)
	}
}

func TestMergeEmptyOverlayIsIdentity(t *testing.T) {
	tests := []struct {
		name string
		ov   *topology.Overlay
	}{
		{name: "nil overlay", ov: nil},
		{name: "zero overlay", ov: &topology.Overlay{}},
		{name: "named overlay without overrides", ov: &topology.Overlay{Name: "dev"}},
		{name: "empty maps", ov: &topology.Overlay{Services: map[string]topology.ServiceOverride{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := baseSpec()
			merged, err := Merge(base, tt.ov)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(base, merged); diff != "" {
				t.Errorf("merge with empty overlay changed spec (-want +got):\n%s", diff)
			}
			if merged == base {
				t.Error("expected a copy, got the base pointer")
			}
		})
	}
}

func TestMergeKeepsServiceSet(t *testing.T) {
	ov := &topology.Overlay{
		Services: map[string]topology.ServiceOverride{
			"webserver": {Image: ptr.To("apache/airflow:2.10.0")},
			"worker":    {Image: ptr.To("apache/airflow:2.10.0")},
		},
	}

	merged, err := Merge(baseSpec(), ov)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(baseSpec().ServiceNames(), merged.ServiceNames()); diff != "" {
		t.Errorf("service set changed (-want +got):\n%s", diff)
	}
	for _, svc := range merged.Services {
		if svc.Image != "apache/airflow:2.10.0" {
			t.Errorf("service %s: expected image override, got %s", svc.Name, svc.Image)
		}
	}
}

func TestMergeResourcesAndEnv(t *testing.T) {
	ov := &topology.Overlay{
		Services: map[string]topology.ServiceOverride{
			"worker": {
				Resources: &topology.Resources{
					Requests: map[string]string{"cpu": "2"},
					Limits:   map[string]string{"memory": "4Gi"},
				},
				Env: []topology.EnvVar{
					{Name: "AIRFLOW__CELERY__WORKER_CONCURRENCY", Value: ptr.To("16")},
					{Name: "AIRFLOW__LOGGING__LOGGING_LEVEL", Value: ptr.To("WARNING")},
				},
			},
		},
	}

	merged, err := Merge(baseSpec(), ov)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	worker, _ := merged.Service("worker")

	wantResources := topology.Resources{
		Requests: map[string]string{"cpu": "2", "memory": "1Gi"},
		Limits:   map[string]string{"memory": "4Gi"},
	}
	if diff := cmp.Diff(wantResources, worker.Resources); diff != "" {
		t.Errorf("unexpected resources (-want +got):\n%s", diff)
	}

	wantEnv := []topology.EnvVar{
		{Name: "AIRFLOW__CORE__EXECUTOR", Value: ptr.To("CeleryExecutor")},
		{Name: "AIRFLOW__CELERY__WORKER_CONCURRENCY", Value: ptr.To("16")},
		{Name: "AIRFLOW__LOGGING__LOGGING_LEVEL", Value: ptr.To("WARNING")},
	}
	if diff := cmp.Diff(wantEnv, worker.Env); diff != "" {
		t.Errorf("unexpected env (-want +got):\n%s", diff)
	}
}

func TestMergeStorageAndConfigMaps(t *testing.T) {
	ov := &topology.Overlay{
		Namespace: "airflow-prod",
		Storage: map[string]topology.StorageOverride{
			"logs": {Size: ptr.To("50Gi"), StorageClass: ptr.To("gp3")},
		},
		ConfigMaps: map[string]topology.ConfigMapOverride{
			"airflow-config": {Data: map[string]string{"parallelism": "128", "dag_concurrency": "64"}},
		},
	}

	merged, err := Merge(baseSpec(), ov)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Namespace != "airflow-prod" {
		t.Errorf("expected namespace override, got %s", merged.Namespace)
	}
	claim, _ := merged.StorageClaim("logs")
	if claim.Size != "50Gi" || claim.StorageClass != "gp3" {
		t.Errorf("unexpected claim after merge: %+v", claim)
	}
	cm, _ := merged.ConfigMap("airflow-config")
	if diff := cmp.Diff(map[string]string{"parallelism": "128", "dag_concurrency": "64"}, cm.Data); diff != "" {
		t.Errorf("unexpected config data (-want +got):\n%s", diff)
	}
}

func TestMergeUnknownEntity(t *testing.T) {
	tests := []struct {
		name     string
		ov       *topology.Overlay
		wantKind string
	}{
		{
			name:     "storage",
			ov:       &topology.Overlay{Storage: map[string]topology.StorageOverride{"dags": {Size: ptr.To("1Gi")}}},
			wantKind: "storage claim",
		},
		{
			name:     "config map",
			ov:       &topology.Overlay{ConfigMaps: map[string]topology.ConfigMapOverride{"extra": {}}},
			wantKind: "config map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(baseSpec(), tt.ov)
			var unknown *UnknownEntityError
			if !errors.As(err, &unknown) {
				t.Fatalf("expected UnknownEntityError, got %v", err)
			}
			if unknown.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, unknown.Kind)
			}
		})
	}
}

func TestMergeDeterministic(t *testing.T) {
	ov := &topology.Overlay{
		Services: map[string]topology.ServiceOverride{
			"worker": {Env: []topology.EnvVar{
				{Name: "B", Value: ptr.To("2")},
				{Name: "A", Value: ptr.To("1")},
			}},
			"webserver": {Replicas: ptr.To[int32](2)},
		},
	}

	first, err := Merge(baseSpec(), ov)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Merge(baseSpec(), ov)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("merge is not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestMergeAll(t *testing.T) {
	staging := &topology.Overlay{
		Name:     "staging",
		Services: map[string]topology.ServiceOverride{"worker": {Replicas: ptr.To[int32](3)}},
	}
	prod := &topology.Overlay{
		Name:     "prod",
		Services: map[string]topology.ServiceOverride{"worker": {Replicas: ptr.To[int32](5)}},
	}

	merged, err := MergeAll(baseSpec(), staging, prod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	worker, _ := merged.Service("worker")
	if worker.EffectiveReplicas() != 5 {
		t.Errorf("expected last overlay to win, got %d", worker.EffectiveReplicas())
	}

	base := baseSpec()
	none, err := MergeAll(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none == base {
		t.Error("expected a copy when no overlays are given")
	}

	_, err = MergeAll(baseSpec(), staging, &topology.Overlay{
		Name:     "broken",
		Services: map[string]topology.ServiceOverride{"cache": {}},
	})
	var unknown *UnknownServiceError
	if !errors.As(err, &unknown) || unknown.Overlay != "broken" {
		t.Errorf("expected UnknownServiceError from overlay broken, got %v", err)
	}
}

func TestMergeNilBase(t *testing.T) {
	if _, err := Merge(nil, &topology.Overlay{}); err == nil {
		t.Error("expected error for nil base")
	}
}
