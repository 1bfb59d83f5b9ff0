package source

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	cueyaml "cuelang.org/go/encoding/yaml"
	"sigs.k8s.io/controller-runtime/pkg/log"

	topocue "github.com/chazu/topoc/cue"
	"github.com/chazu/topoc/pkg/topology"
)

const (
	topologyDef = "#Topology"
	overlayDef  = "#Overlay"
)

// LoadError reports a document that could not be compiled, did not match the
// schema, or was incomplete
type LoadError struct {
	Source string
	Detail string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Detail)
}

// Loader fetches documents and decodes them through the embedded schema.
// It is safe for concurrent use; CUE evaluation is serialized internally.
type Loader struct {
	registry *Registry

	// mu guards ctx and every value derived from it
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
	cache  *Cache[cue.Value]
}

// NewLoader creates a loader backed by registry
func NewLoader(registry *Registry) (*Loader, error) {
	data, err := topocue.FS.ReadFile(topocue.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schema: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(data, cue.Filename(topocue.SchemaFile))
	if schema.Err() != nil {
		return nil, fmt.Errorf("failed to compile embedded schema: %w", schema.Err())
	}

	return &Loader{
		registry: registry,
		ctx:      ctx,
		schema:   schema,
		cache:    NewCache[cue.Value](),
	}, nil
}

// Topology fetches and decodes a base topology document
func (l *Loader) Topology(ctx context.Context, ref string) (*topology.Spec, *FetchResult, error) {
	fr, err := l.registry.Fetch(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	spec := &topology.Spec{}
	if err := l.Decode(ctx, fr, topologyDef, spec); err != nil {
		return nil, fr, err
	}
	return spec, fr, nil
}

// Overlay fetches and decodes an overlay document
func (l *Loader) Overlay(ctx context.Context, ref string) (*topology.Overlay, *FetchResult, error) {
	fr, err := l.registry.Fetch(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	ov := &topology.Overlay{}
	if err := l.Decode(ctx, fr, overlayDef, ov); err != nil {
		return nil, fr, err
	}
	return ov, fr, nil
}

// Decode unifies fetched content with the schema definition def and decodes
// the result into out
func (l *Loader) Decode(ctx context.Context, fr *FetchResult, def string, out interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := def + "@" + string(fr.Format) + "@" + fr.Digest
	value, found := l.cache.Get(key)
	if !found {
		compiled, err := l.compile(fr)
		if err != nil {
			return err
		}
		value = l.schema.LookupPath(cue.ParsePath(def)).Unify(compiled)
		if err := value.Validate(cue.Concrete(true)); err != nil {
			return &LoadError{Source: fr.Source, Detail: details(err)}
		}
		l.cache.Set(key, value)
	} else {
		log.FromContext(ctx).V(1).Info("using cached document", "source", fr.Source, "digest", fr.Digest)
	}

	if err := value.Decode(out); err != nil {
		return &LoadError{Source: fr.Source, Detail: details(err)}
	}
	return nil
}

// compile must be called with the lock held
func (l *Loader) compile(fr *FetchResult) (cue.Value, error) {
	var value cue.Value
	switch fr.Format {
	case FormatJSON:
		expr, err := cuejson.Extract(fr.Source, fr.Content)
		if err != nil {
			return cue.Value{}, &LoadError{Source: fr.Source, Detail: details(err)}
		}
		value = l.ctx.BuildExpr(expr)
	case FormatYAML:
		file, err := cueyaml.Extract(fr.Source, fr.Content)
		if err != nil {
			return cue.Value{}, &LoadError{Source: fr.Source, Detail: details(err)}
		}
		value = l.ctx.BuildFile(file)
	default:
		value = l.ctx.CompileBytes(fr.Content, cue.Filename(fr.Source))
	}
	if value.Err() != nil {
		return cue.Value{}, &LoadError{Source: fr.Source, Detail: details(value.Err())}
	}
	return value, nil
}

// CachedDocuments returns the number of compiled documents held in memory
func (l *Loader) CachedDocuments() int {
	return l.cache.Size()
}

func details(err error) string {
	return strings.TrimSpace(cueerrors.Details(err, nil))
}
