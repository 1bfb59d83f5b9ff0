package source

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// InlineFetcher handles CUE content passed directly as the reference
type InlineFetcher struct{}

// NewInlineFetcher creates a new inline fetcher
func NewInlineFetcher() *InlineFetcher {
	return &InlineFetcher{}
}

// Type returns the fetcher type
func (f *InlineFetcher) Type() string {
	return InlineType
}

// Fetch returns the inline content directly
// The ref parameter IS the CUE content itself
func (f *InlineFetcher) Fetch(_ context.Context, ref string) (*FetchResult, error) {
	if ref == "" {
		return nil, fmt.Errorf("inline content is empty")
	}

	content := []byte(ref)
	return &FetchResult{
		Content: content,
		Format:  FormatCUE,
		Digest:  fmt.Sprintf("inline:%x", xxhash.Sum64(content)),
		Source:  InlineType,
	}, nil
}
