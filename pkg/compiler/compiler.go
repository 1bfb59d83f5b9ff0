package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/topoc/pkg/graph"
	"github.com/chazu/topoc/pkg/metrics"
	"github.com/chazu/topoc/pkg/overlay"
	"github.com/chazu/topoc/pkg/source"
	"github.com/chazu/topoc/pkg/topology"
	"github.com/chazu/topoc/pkg/validate"
)

// DefaultConcurrency bounds concurrent overlay fetches
const DefaultConcurrency = 4

// Request names the documents to compile
type Request struct {
	// Base is the reference of the base topology
	Base string

	// Overlays are applied left to right
	Overlays []string
}

// Source records where a document came from
type Source struct {
	Ref    string `json:"ref"`
	Source string `json:"source"`
	Digest string `json:"digest"`
}

// Result is the outcome of a compilation
type Result struct {
	// Spec is the merged topology
	Spec *topology.Spec

	// Issues are all validation findings, errors and warnings
	Issues validate.Issues

	// Graph is nil when validation reported errors
	Graph *graph.Graph

	// Sources lists the base followed by the overlays, in request order
	Sources []Source
}

// Loader decodes topology and overlay documents
type Loader interface {
	Topology(ctx context.Context, ref string) (*topology.Spec, *source.FetchResult, error)
	Overlay(ctx context.Context, ref string) (*topology.Overlay, *source.FetchResult, error)
}

// Compiler turns document references into rendered graphs
type Compiler struct {
	loader      Loader
	validator   *validate.Validator
	concurrency int
}

// Option configures a Compiler
type Option func(*Compiler)

// WithConcurrency bounds concurrent overlay fetches
func WithConcurrency(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithValidator replaces the default validator
func WithValidator(v *validate.Validator) Option {
	return func(c *Compiler) {
		c.validator = v
	}
}

// New creates a compiler reading documents through loader
func New(loader Loader, opts ...Option) *Compiler {
	c := &Compiler{
		loader:      loader,
		validator:   validate.New(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Merge loads the request's documents and returns the merged topology
func (c *Compiler) Merge(ctx context.Context, req Request) (*topology.Spec, []Source, error) {
	logger := log.FromContext(ctx).WithValues("base", req.Base)
	if req.Base == "" {
		return nil, nil, fmt.Errorf("a base topology is required")
	}

	start := time.Now()
	base, overlays, sources, err := c.load(ctx, req)
	if err != nil {
		return nil, sources, err
	}
	metrics.RecordStage("load", time.Since(start).Seconds())
	logger.V(1).Info("loaded documents", "overlays", len(overlays))

	start = time.Now()
	merged, err := overlay.MergeAll(base, overlays...)
	if err != nil {
		return nil, sources, err
	}
	metrics.RecordStage("merge", time.Since(start).Seconds())
	return merged, sources, nil
}

// Compile loads, merges, validates and renders. When validation reports
// errors the result carries the issues and no graph, and the returned error
// is a *validate.Error.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	logger := log.FromContext(ctx).WithValues("base", req.Base)

	merged, sources, err := c.Merge(ctx, req)
	if err != nil {
		metrics.RecordCompile("error")
		return nil, err
	}
	res := &Result{Spec: merged, Sources: sources}

	start := time.Now()
	res.Issues = c.validator.Validate(merged)
	metrics.RecordStage("validate", time.Since(start).Seconds())
	for _, issue := range res.Issues {
		metrics.RecordIssue(string(issue.Severity), string(issue.Code))
	}
	if res.Issues.HasErrors() {
		logger.Info("validation failed", "errors", len(res.Issues.Errors()), "warnings", len(res.Issues.Warnings()))
		metrics.RecordCompile("invalid")
		return res, res.Issues.Err()
	}

	start = time.Now()
	g, err := graph.Render(merged)
	if err != nil {
		metrics.RecordCompile("error")
		return res, err
	}
	metrics.RecordStage("render", time.Since(start).Seconds())

	for _, s := range sources[1:] {
		g.Metadata.Overlays = append(g.Metadata.Overlays, s.Ref)
	}
	g.SetHash()
	res.Graph = g

	recordLayers(g)
	metrics.RecordCompile("success")
	logger.Info("compiled topology", "topology", merged.Name, "objects", len(g.Nodes),
		"warnings", len(res.Issues.Warnings()), "hash", g.Metadata.RenderHash)
	return res, nil
}

// load fetches the base and then every overlay concurrently. Overlays keep
// request order regardless of completion order, and the first failing
// overlay in request order is reported.
func (c *Compiler) load(ctx context.Context, req Request) (*topology.Spec, []*topology.Overlay, []Source, error) {
	base, fr, err := c.loader.Topology(ctx, req.Base)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load base %s: %w", req.Base, err)
	}
	sources := make([]Source, 1+len(req.Overlays))
	sources[0] = Source{Ref: req.Base, Source: fr.Source, Digest: fr.Digest}

	overlays := make([]*topology.Overlay, len(req.Overlays))
	errs := make([]error, len(req.Overlays))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(c.concurrency)
	for i, ref := range req.Overlays {
		p.Go(func(ctx context.Context) error {
			ov, fr, err := c.loader.Overlay(ctx, ref)
			if err != nil {
				errs[i] = fmt.Errorf("failed to load overlay %s: %w", ref, err)
				return errs[i]
			}
			overlays[i] = ov
			sources[i+1] = Source{Ref: ref, Source: fr.Source, Digest: fr.Digest}
			return nil
		})
	}
	// Errors are collected per index to report them in request order
	_ = p.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, sources[:1], err
		}
	}
	return base, overlays, sources, nil
}

func recordLayers(g *graph.Graph) {
	counts := map[graph.Layer]int{}
	for _, n := range g.Nodes {
		counts[n.Layer]++
	}
	for _, layer := range []graph.Layer{
		graph.LayerIdentity, graph.LayerConfig, graph.LayerStorage, graph.LayerWorkload, graph.LayerNetwork,
	} {
		metrics.SetObjectsRendered(g.Metadata.Name, string(layer), counts[layer])
	}
}
