package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/topoc/pkg/topology"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	loader, err := NewLoader(NewRegistry(RegistryOptions{CacheDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return loader
}

func TestLoaderEmbeddedTopology(t *testing.T) {
	loader := newTestLoader(t)

	spec, fr, err := loader.Topology(context.Background(), "embedded://airflow/base.cue")
	if err != nil {
		t.Fatalf("Topology() error = %v", err)
	}
	if fr.Source != "embedded://airflow/base.cue" {
		t.Errorf("Source = %q", fr.Source)
	}
	if spec.Name != "airflow" || spec.Namespace != "airflow" {
		t.Errorf("unexpected identity %s/%s", spec.Namespace, spec.Name)
	}

	worker, ok := spec.Service("worker")
	if !ok {
		t.Fatal("expected worker service")
	}
	if worker.EffectiveReplicas() != 1 {
		t.Errorf("worker replicas = %d, want 1", worker.EffectiveReplicas())
	}
	if worker.Kind != topology.WorkloadKindDeployment {
		t.Errorf("worker kind = %q, want schema default Deployment", worker.Kind)
	}

	migrate, _ := spec.Service("migrate")
	if migrate.Kind != topology.WorkloadKindJob {
		t.Errorf("migrate kind = %q, want Job", migrate.Kind)
	}

	postgres, _ := spec.Service("postgres")
	if postgres.Ports[0].Protocol != "TCP" {
		t.Errorf("port protocol = %q, want schema default TCP", postgres.Ports[0].Protocol)
	}
	if postgres.Env[1].SecretRef == nil || postgres.Env[1].SecretRef.Key != "password" {
		t.Errorf("unexpected env binding %+v", postgres.Env[1])
	}

	data, _ := spec.StorageClaim("postgres-data")
	if data.AccessMode != topology.AccessReadWriteOnce {
		t.Errorf("access mode = %q, want schema default", data.AccessMode)
	}

	// Declaration order is preserved
	want := []string{"postgres", "redis", "migrate", "webserver", "scheduler", "worker"}
	got := spec.ServiceNames()
	if len(got) != len(want) {
		t.Fatalf("services = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("service %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLoaderOverlays(t *testing.T) {
	loader := newTestLoader(t)

	prod, _, err := loader.Overlay(context.Background(), "embedded://airflow/prod.cue")
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if prod.Name != "prod" {
		t.Errorf("Name = %q", prod.Name)
	}
	if r := prod.Services["worker"].Replicas; r == nil || *r != 5 {
		t.Errorf("worker replicas override = %v, want 5", r)
	}
	if s := prod.Storage["postgres-data"].StorageClass; s == nil || *s != "ssd" {
		t.Errorf("storage class override = %v", s)
	}

	staging, fr, err := loader.Overlay(context.Background(), "embedded://airflow/staging.yaml")
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if fr.Format != FormatYAML {
		t.Errorf("Format = %s", fr.Format)
	}
	if img := staging.Services["worker"].Image; img == nil || *img != "apache/airflow:2.10.0" {
		t.Errorf("worker image override = %v", img)
	}
}

func TestLoaderJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	doc := `{"name": "web", "services": [{"name": "nginx", "image": "nginx:1.27", "replicas": 2}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	spec, _, err := newTestLoader(t).Topology(context.Background(), path)
	if err != nil {
		t.Fatalf("Topology() error = %v", err)
	}
	if spec.Namespace != "default" {
		t.Errorf("Namespace = %q, want schema default", spec.Namespace)
	}
	if len(spec.Services) != 1 || spec.Services[0].EffectiveReplicas() != 2 {
		t.Errorf("unexpected services %+v", spec.Services)
	}
}

func TestLoaderErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{name: "unknown field", ref: `inline:name: "x", replicaz: 3`},
		{name: "wrong type", ref: `inline:name: 42`},
		{name: "incomplete", ref: `inline:namespace: "x"`},
		{name: "syntax error", ref: `inline:name: {`},
		{name: "unknown service field", ref: `inline:name: "x", services: [{name: "a", image: "b", volumes: []}]`},
	}

	loader := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loader.Topology(context.Background(), tt.ref)
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected LoadError, got %v", err)
			}
			if loadErr.Source != InlineType || loadErr.Detail == "" {
				t.Errorf("unexpected error %+v", loadErr)
			}
		})
	}

	if _, _, err := loader.Topology(context.Background(), "missing.cue"); err == nil {
		t.Error("expected fetch error")
	}
}

func TestLoaderCache(t *testing.T) {
	loader := newTestLoader(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := loader.Topology(ctx, "embedded://airflow/base.cue"); err != nil {
			t.Fatalf("Topology() error = %v", err)
		}
	}
	if loader.CachedDocuments() != 1 {
		t.Errorf("CachedDocuments() = %d, want 1", loader.CachedDocuments())
	}

	// Decoded values are independent copies
	a, _, _ := loader.Topology(ctx, "embedded://airflow/base.cue")
	b, _, _ := loader.Topology(ctx, "embedded://airflow/base.cue")
	a.Services[0].Name = "changed"
	if b.Services[0].Name == "changed" {
		t.Error("cached documents must decode into independent values")
	}
}

func TestLoaderCacheKeepsFormatsApart(t *testing.T) {
	loader := newTestLoader(t)
	ctx := context.Background()
	content := []byte("name: dev\n")
	sum := "sha256:same"

	var ov topology.Overlay
	yamlDoc := &FetchResult{Content: content, Format: FormatYAML, Digest: sum, Source: "dev.yaml"}
	if err := loader.Decode(ctx, yamlDoc, overlayDef, &ov); err != nil {
		t.Fatalf("Decode(yaml) error = %v", err)
	}
	if ov.Name != "dev" {
		t.Errorf("Name = %q, want dev", ov.Name)
	}

	// The same bytes as CUE reference an undefined field
	cueDoc := &FetchResult{Content: content, Format: FormatCUE, Digest: sum, Source: "dev.cue"}
	if err := loader.Decode(ctx, cueDoc, overlayDef, &topology.Overlay{}); err == nil {
		t.Error("expected CUE decode to fail instead of reusing the YAML document")
	}
}
