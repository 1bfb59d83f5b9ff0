package source

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	topocue "github.com/chazu/topoc/cue"
)

// EmbeddedFetcher serves the example documents compiled into the binary
type EmbeddedFetcher struct {
	fsys fs.FS
	root string
}

// NewEmbeddedFetcher creates a fetcher over the bundled examples
func NewEmbeddedFetcher() *EmbeddedFetcher {
	return NewEmbeddedFetcherWithFS(topocue.FS, topocue.ExamplesDir)
}

// NewEmbeddedFetcherWithFS creates an embedded fetcher over root in fsys
func NewEmbeddedFetcherWithFS(fsys fs.FS, root string) *EmbeddedFetcher {
	return &EmbeddedFetcher{fsys: fsys, root: root}
}

// Type returns the fetcher type
func (f *EmbeddedFetcher) Type() string {
	return EmbeddedType
}

// Fetch reads an embedded document such as "airflow/base.cue"
func (f *EmbeddedFetcher) Fetch(_ context.Context, ref string) (*FetchResult, error) {
	if ref == "" {
		return nil, fmt.Errorf("embedded document reference is empty")
	}
	clean := path.Clean(ref)
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return nil, fmt.Errorf("embedded document reference %q escapes the examples directory", ref)
	}

	content, err := fs.ReadFile(f.fsys, path.Join(f.root, clean))
	if err != nil {
		return nil, fmt.Errorf("embedded document %s not found: %w", ref, err)
	}

	return &FetchResult{
		Content: content,
		Format:  FormatFromPath(clean),
		Digest:  fmt.Sprintf("embedded:%s:%x", clean, xxhash.Sum64(content)),
		Source:  "embedded://" + clean,
	}, nil
}

// List returns references to every embedded document, sorted
func (f *EmbeddedFetcher) List() ([]string, error) {
	var refs []string
	err := fs.WalkDir(f.fsys, f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(p, f.root+"/")
		refs = append(refs, "embedded://"+rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded documents: %w", err)
	}
	sort.Strings(refs)
	return refs, nil
}
