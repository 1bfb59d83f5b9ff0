package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/chazu/topoc/pkg/graph"
)

// Version is the inventory document version
const Version = "v1"

// Item is one rendered object
type Item struct {
	// ID is the node ID from the graph
	ID string `json:"id"`

	// GVK is the GroupVersionKind of the object
	GVK schema.GroupVersionKind `json:"gvk"`

	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`

	Layer graph.Layer `json:"layer"`

	// Hash is the content hash of the object
	Hash string `json:"hash"`
}

// Inventory is the set of objects produced by one render
type Inventory struct {
	Version string `json:"version"`

	// Topology is the rendered topology name
	Topology string `json:"topology"`

	// RenderHash is the graph hash the inventory was taken from
	RenderHash string `json:"renderHash,omitempty"`

	// Items contains all objects keyed by ID
	Items map[string]Item `json:"items"`
}

// New returns an empty inventory
func New(topology string) *Inventory {
	return &Inventory{
		Version:  Version,
		Topology: topology,
		Items:    make(map[string]Item),
	}
}

// FromGraph takes the inventory of a rendered graph
func FromGraph(g *graph.Graph) *Inventory {
	inv := New(g.Metadata.Name)
	inv.RenderHash = g.Metadata.RenderHash
	for i := range g.Nodes {
		node := &g.Nodes[i]
		inv.Items[node.ID] = Item{
			ID:        node.ID,
			GVK:       node.Object.GroupVersionKind(),
			Namespace: node.Object.GetNamespace(),
			Name:      node.Object.GetName(),
			Layer:     node.Layer,
			Hash:      ComputeHash(&node.Object),
		}
	}
	return inv
}

// IDs returns all item IDs, sorted
func (inv *Inventory) IDs() []string {
	ids := make([]string, 0, len(inv.Items))
	for id := range inv.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns an item by ID
func (inv *Inventory) Get(id string) (Item, bool) {
	item, ok := inv.Items[id]
	return item, ok
}

// ComputeHash computes a content hash for an object. Server-populated
// metadata is ignored so a live object hashes like its rendered form.
func ComputeHash(obj *unstructured.Unstructured) string {
	if obj == nil {
		return ""
	}

	objCopy := obj.DeepCopy()
	unstructured.RemoveNestedField(objCopy.Object, "metadata", "resourceVersion")
	unstructured.RemoveNestedField(objCopy.Object, "metadata", "generation")
	unstructured.RemoveNestedField(objCopy.Object, "metadata", "uid")
	unstructured.RemoveNestedField(objCopy.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(objCopy.Object, "metadata", "managedFields")
	unstructured.RemoveNestedField(objCopy.Object, "status")

	// encoding/json sorts map keys, so equal objects marshal identically
	data, err := json.Marshal(objCopy.Object)
	if err != nil {
		return ""
	}
	return digest.FromBytes(data).Encoded()[:16]
}

// Write encodes the inventory as indented JSON
func (inv *Inventory) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(inv); err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}
	return nil
}

// Read decodes an inventory
func Read(r io.Reader) (*Inventory, error) {
	var inv Inventory
	if err := json.NewDecoder(r).Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to decode inventory: %w", err)
	}
	if inv.Version != "" && inv.Version != Version {
		return nil, fmt.Errorf("unsupported inventory version %q", inv.Version)
	}
	if inv.Items == nil {
		inv.Items = make(map[string]Item)
	}
	return &inv, nil
}

// Load reads an inventory file
func Load(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inv, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// Save writes an inventory file, replacing it atomically
func (inv *Inventory) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".inventory-*")
	if err != nil {
		return fmt.Errorf("failed to create inventory file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := inv.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	return nil
}
