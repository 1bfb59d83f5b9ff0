package source

import (
	"context"
	"fmt"
	"os"

	"github.com/opencontainers/go-digest"
)

// FileFetcher reads documents from the local filesystem
type FileFetcher struct{}

// NewFileFetcher creates a new file fetcher
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Type returns the fetcher type
func (f *FileFetcher) Type() string {
	return FileType
}

// Fetch reads the file at path
func (f *FileFetcher) Fetch(_ context.Context, path string) (*FetchResult, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &FetchResult{
		Content: content,
		Format:  FormatFromPath(path),
		Digest:  digest.FromBytes(content).String(),
		Source:  path,
	}, nil
}
