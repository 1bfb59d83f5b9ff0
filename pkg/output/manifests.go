package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chazu/topoc/pkg/graph"
)

// Format selects how a rendered graph is written
type Format string

const (
	// FormatYAML writes the objects as a multi-document manifest stream
	FormatYAML Format = "yaml"

	// FormatJSON writes the full graph document, including apply policies
	FormatJSON Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatYAML, "yml", "":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want yaml or json)", s)
	}
}

// Write writes g in the given format
func Write(w io.Writer, g *graph.Graph, format Format) error {
	switch format {
	case FormatJSON:
		return WriteGraph(w, g)
	case FormatYAML:
		return WriteManifests(w, g)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteManifests writes every object in apply order, separated by "---"
func WriteManifests(w io.Writer, g *graph.Graph) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, obj := range g.Objects() {
		if err := enc.Encode(obj.Object); err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", obj.GetKind(), obj.GetName(), err)
		}
	}
	return enc.Close()
}

// WriteGraph writes the graph document as indented JSON
func WriteGraph(w io.Writer, g *graph.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return nil
}

// WriteYAML writes any JSON-tagged value as block-style YAML. Field order
// follows the JSON encoding, so struct fields keep their declaration order.
func WriteYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to convert value: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to write YAML: %w", err)
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles JSON input carries
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
