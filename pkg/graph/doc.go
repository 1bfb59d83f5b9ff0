// Package graph renders a topology into a graph of Kubernetes objects.
// It includes the Graph artifact representation, the object builders for
// each layer, and DAG building for dependency ordering and queries.
package graph
