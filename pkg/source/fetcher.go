package source

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/chazu/topoc/pkg/metrics"
)

// Format is the encoding of a fetched document
type Format string

const (
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath derives the document format from a file extension.
// Unknown extensions are read as CUE, which is a superset of JSON.
func FormatFromPath(p string) Format {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatCUE
	}
}

// FetchResult contains the result of fetching a document
type FetchResult struct {
	// Content is the raw document
	Content []byte

	// Format is the encoding of Content
	Format Format

	// Digest is a content-addressable identifier for the document
	// For files and config maps: sha256 of the content
	// For git: commit SHA
	// For inline and embedded: xxhash of the content
	Digest string

	// Source describes where the document was fetched from
	Source string
}

// Fetcher retrieves documents from one kind of source
type Fetcher interface {
	// Fetch retrieves the document named by ref, with the scheme already stripped
	Fetch(ctx context.Context, ref string) (*FetchResult, error)

	// Type returns the type of fetcher (for logging and metrics)
	Type() string
}

const (
	FileType      = "file"
	InlineType    = "inline"
	EmbeddedType  = "embedded"
	GitType       = "git"
	ConfigMapType = "configmap"
)

// ParseRef splits a document reference into its fetcher type and the
// fetcher-specific remainder.
func ParseRef(ref string) (fetcherType, rest string, err error) {
	switch {
	case ref == "":
		return "", "", fmt.Errorf("document reference is empty")
	case strings.HasPrefix(ref, "inline:"):
		return InlineType, strings.TrimPrefix(ref, "inline:"), nil
	case strings.HasPrefix(ref, "embedded://"):
		return EmbeddedType, strings.TrimPrefix(ref, "embedded://"), nil
	case strings.HasPrefix(ref, "git+"):
		return GitType, strings.TrimPrefix(ref, "git+"), nil
	case strings.HasPrefix(ref, "configmap://"):
		return ConfigMapType, strings.TrimPrefix(ref, "configmap://"), nil
	case strings.HasPrefix(ref, "file://"):
		return FileType, strings.TrimPrefix(ref, "file://"), nil
	case strings.Contains(ref, "://"):
		return "", "", fmt.Errorf("unsupported document reference %q", ref)
	default:
		return FileType, ref, nil
	}
}

// RegistryOptions configures the fetchers of a Registry
type RegistryOptions struct {
	// CacheDir is the disk cache directory for remote documents
	CacheDir string

	// CacheMaxEntries bounds the disk cache; zero uses DefaultMaxEntries
	CacheMaxEntries int

	// CacheTTL expires disk cache entries; zero uses DefaultTTL
	CacheTTL time.Duration

	// GitAuth authenticates git clones; nil clones anonymously
	GitAuth transport.AuthMethod

	// NewClient builds the Kubernetes client used by the config map fetcher.
	// It is only called when a config map reference is fetched.
	NewClient ClientFunc

	// Namespace is used for config map references without a namespace
	Namespace string
}

// Registry dispatches references to the fetcher for their scheme
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry creates a registry with all supported fetchers
func NewRegistry(opts RegistryOptions) *Registry {
	diskCache := NewDiskCache(opts.CacheDir, opts.CacheMaxEntries, opts.CacheTTL)

	r := &Registry{fetchers: make(map[string]Fetcher)}
	r.Register(NewFileFetcher())
	r.Register(NewInlineFetcher())
	r.Register(NewEmbeddedFetcher())
	r.Register(NewGitFetcher(diskCache, opts.GitAuth))
	if opts.NewClient != nil {
		r.Register(NewConfigMapFetcher(opts.NewClient, opts.Namespace))
	}
	return r
}

// Register adds or replaces the fetcher for its type
func (r *Registry) Register(f Fetcher) {
	r.fetchers[f.Type()] = f
}

// GetFetcher returns the fetcher for the given type
func (r *Registry) GetFetcher(fetcherType string) (Fetcher, error) {
	fetcher, ok := r.fetchers[fetcherType]
	if !ok {
		return nil, fmt.Errorf("unsupported fetcher type: %s", fetcherType)
	}
	return fetcher, nil
}

// Fetch resolves ref and fetches it with the matching fetcher
func (r *Registry) Fetch(ctx context.Context, ref string) (*FetchResult, error) {
	fetcherType, rest, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	fetcher, err := r.GetFetcher(fetcherType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := fetcher.Fetch(ctx, rest)
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordFetch(fetcherType, status, time.Since(start).Seconds())
	return result, err
}
