// Package cue provides the embedded topology schema and example documents.
package cue

import "embed"

// FS contains the schema package and the example topologies.
//
//go:embed schema/*.cue examples/*/*.cue examples/*/*.yaml
var FS embed.FS

// SchemaFile is the path of the topology schema within FS.
const SchemaFile = "schema/topology.cue"

// ExamplesDir is the root directory of the example documents within FS.
const ExamplesDir = "examples"
