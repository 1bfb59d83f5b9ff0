package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"

	"github.com/chazu/topoc/pkg/graph"
	"github.com/chazu/topoc/pkg/inventory"
	"github.com/chazu/topoc/pkg/topology"
	"github.com/chazu/topoc/pkg/validate"
)

func webSpec() *topology.Spec {
	return &topology.Spec{
		Name:      "web",
		Namespace: "default",
		Services: []topology.Service{
			{
				Name:     "nginx",
				Image:    "nginx:1.27",
				Replicas: ptr.To[int32](2),
				Mounts:   []topology.Mount{{Claim: "cache", Path: "/var/cache/nginx"}},
				Ports:    []topology.Port{{Name: "http", Port: 80}},
				Expose:   &topology.Expose{Type: topology.EndpointClusterIP},
				Env: []topology.EnvVar{
					{Name: "WORKERS", ConfigMapRef: &topology.KeyRef{Name: "nginx", Key: "workers"}},
				},
			},
		},
		Storage:    []topology.StorageClaim{{Name: "cache", Size: "1Gi"}},
		ConfigMaps: []topology.ConfigMap{{Name: "nginx", Data: map[string]string{"workers": "32", "debug": "true"}}},
	}
}

func renderWeb(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Render(webSpec())
	require.NoError(t, err)
	return g
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatYAML},
		{in: "yaml", want: FormatYAML},
		{in: "YML", want: FormatYAML},
		{in: "json", want: FormatJSON},
		{in: "toml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestWriteManifests(t *testing.T) {
	g := renderWeb(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g, FormatYAML))

	dec := yaml.NewDecoder(&buf)
	var kinds []string
	for {
		var doc map[string]interface{}
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, doc["kind"].(string))
	}
	assert.Equal(t, []string{"ConfigMap", "PersistentVolumeClaim", "Deployment", "Service"}, kinds)
}

func TestWriteManifestsStable(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteManifests(&a, renderWeb(t)))
	require.NoError(t, WriteManifests(&b, renderWeb(t)))
	assert.Equal(t, a.String(), b.String())
	assert.Contains(t, a.String(), "\n---\n")
	assert.True(t, strings.HasPrefix(a.String(), "apiVersion: v1\n"), a.String())
}

func TestWriteGraph(t *testing.T) {
	g := renderWeb(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g, FormatJSON))

	var decoded graph.Graph
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, g.IDs(), decoded.IDs())
	assert.Equal(t, g.Metadata.RenderHash, decoded.Metadata.RenderHash)
	assert.Equal(t, g.ComputeHash(), decoded.ComputeHash())

	assert.Error(t, Write(&buf, g, "toml"))
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, webSpec()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "name: web\nnamespace: default\n"), out)
	assert.Contains(t, out, "replicas: 2")
	// Strings that look like other scalars stay strings
	assert.Contains(t, out, `workers: "32"`)
	assert.Contains(t, out, `debug: "true"`)

	var back topology.Spec
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "web", back.Name)
}

func TestWriteIssues(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	issues := validate.Issues{
		{
			Code:     validate.CodeNegativeReplicas,
			Severity: validate.SeverityError,
			Entity:   "worker",
			Path:     "services[worker].replicas",
			Message:  "replicas must be non-negative, got -1",
		},
		{
			Code:     validate.CodeUnusedStorage,
			Severity: validate.SeverityWarning,
			Entity:   "logs",
			Path:     "storage[logs]",
			Message:  "storage claim is not mounted by any service",
		},
	}

	var buf bytes.Buffer
	WriteIssues(&buf, issues)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "error worker services[worker].replicas: replicas must be non-negative, got -1 (NegativeReplicas)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "warning logs storage[logs]:"), lines[1])
	assert.Equal(t, "1 error, 1 warning", lines[2])

	buf.Reset()
	WriteIssues(&buf, issues.Warnings())
	assert.Contains(t, buf.String(), "valid with 1 warning")

	buf.Reset()
	WriteIssues(&buf, nil)
	assert.Equal(t, "valid\n", buf.String())
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b", Indent("a\nb\n", "  "))
}

func TestWriteDiff(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	WriteDiff(&buf, &inventory.Result{
		Added:     []string{"configmap/api"},
		Removed:   []string{"service/api"},
		Changed:   []string{"deployment/api"},
		Unchanged: []string{"persistentvolumeclaim/uploads", "serviceaccount/api"},
	})
	assert.Equal(t, "+ configmap/api\n- service/api\n~ deployment/api\n1 added, 1 removed, 1 changed, 2 unchanged\n", buf.String())
}
