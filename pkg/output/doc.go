// Package output writes rendered graphs, merged topologies and validation
// reports.
package output
