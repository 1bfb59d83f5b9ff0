// Package source resolves topology and overlay document references, fetches
// their content, and decodes it through the embedded CUE schema.
package source
