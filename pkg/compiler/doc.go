// Package compiler runs the topology pipeline: load the base and overlay
// documents, merge, validate and render.
package compiler
