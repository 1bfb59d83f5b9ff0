package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// DefaultConfigMapKey is the data key read when a reference names none
	DefaultConfigMapKey = "topology.cue"
)

// ClientFunc builds a Kubernetes client on first use
type ClientFunc func() (client.Client, error)

// ConfigMapFetcher reads documents stored in Kubernetes ConfigMaps
type ConfigMapFetcher struct {
	newClient ClientFunc
	namespace string

	once      sync.Once
	client    client.Client
	clientErr error
}

// NewConfigMapFetcher creates a ConfigMap fetcher. namespace is used for
// references that do not name one.
func NewConfigMapFetcher(newClient ClientFunc, namespace string) *ConfigMapFetcher {
	if namespace == "" {
		namespace = corev1.NamespaceDefault
	}
	return &ConfigMapFetcher{
		newClient: newClient,
		namespace: namespace,
	}
}

// Type returns the fetcher type
func (f *ConfigMapFetcher) Type() string {
	return ConfigMapType
}

// Fetch retrieves a document from a ConfigMap
// ref format: [namespace/]name[?key=topology.cue]
func (f *ConfigMapFetcher) Fetch(ctx context.Context, ref string) (*FetchResult, error) {
	namespace, name, key, err := f.parseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid ConfigMap reference: %w", err)
	}

	f.once.Do(func() {
		f.client, f.clientErr = f.newClient()
	})
	if f.clientErr != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", f.clientErr)
	}

	cm := &corev1.ConfigMap{}
	if err := f.client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, cm); err != nil {
		return nil, fmt.Errorf("failed to get ConfigMap %s/%s: %w", namespace, name, err)
	}

	key, content, err := selectKey(cm, key)
	if err != nil {
		return nil, fmt.Errorf("ConfigMap %s/%s: %w", namespace, name, err)
	}

	return &FetchResult{
		Content: content,
		Format:  FormatFromPath(key),
		Digest:  digest.FromBytes(content).String(),
		Source:  fmt.Sprintf("configmap://%s/%s?key=%s@%s", namespace, name, key, cm.ResourceVersion),
	}, nil
}

// parseRef supports "name", "namespace/name" and an optional "?key=" query
func (f *ConfigMapFetcher) parseRef(ref string) (namespace, name, key string, err error) {
	p, rawQuery, _ := strings.Cut(ref, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", "", "", err
	}
	key = query.Get("key")

	parts := strings.Split(p, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return f.namespace, parts[0], key, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], key, nil
	default:
		return "", "", "", fmt.Errorf("expected [namespace/]name, got %q", p)
	}
}

// selectKey picks the data key to read. Without an explicit key it uses
// DefaultConfigMapKey, or the only key when there is exactly one.
func selectKey(cm *corev1.ConfigMap, key string) (string, []byte, error) {
	if len(cm.Data) == 0 {
		return "", nil, fmt.Errorf("ConfigMap has no data")
	}
	if key != "" {
		content, ok := cm.Data[key]
		if !ok {
			return "", nil, fmt.Errorf("key %q not found", key)
		}
		return key, []byte(content), nil
	}
	if content, ok := cm.Data[DefaultConfigMapKey]; ok {
		return DefaultConfigMapKey, []byte(content), nil
	}
	if len(cm.Data) == 1 {
		for k, content := range cm.Data {
			return k, []byte(content), nil
		}
	}

	keys := make([]string, 0, len(cm.Data))
	for k := range cm.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "", nil, fmt.Errorf("ambiguous document: set ?key= to one of %v", keys)
}
