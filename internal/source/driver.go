// Package source defines the Source Driver contract: the pluggable bundle of
// source-specific endpoints, row selectors, and field extractors that the
// source-agnostic pipeline framework consumes.
package source

import (
	"context"

	"golang.org/x/net/html"

	"github.com/trailblazeapp/ride-ingest/internal/cache"
	"github.com/trailblazeapp/ride-ingest/internal/fetcher"
	"github.com/trailblazeapp/ride-ingest/internal/model"
)

// Driver bundles everything the pipeline needs from one source: how to fetch
// its payload, how to recognise a calendar row in cleaned HTML, and how to
// pull field values out of one row. The surrounding pipeline is otherwise
// entirely source-agnostic.
type Driver interface {
	// Source identifies this driver's enum value in CanonicalEvent.Source.
	Source() model.Source

	// Name is the registry key used on the CLI (e.g. "aerc").
	Name() string

	// FetchPayload retrieves the raw, possibly JSON-wrapped payload for one
	// run, using f for HTTP calls and c for any source-specific caching of
	// fetched payloads (e.g. AERC's calendar HTML, keyed by season ids).
	FetchPayload(ctx context.Context, f *fetcher.Fetcher, c *cache.Cache) ([]byte, error)

	// IsRow reports whether a node is a calendar-row container.
	IsRow(n *html.Node) bool

	// ExtractRow pulls this source's field set out of one row node.
	ExtractRow(n *html.Node) model.RawRow
}

// Registry maps a source name to its Driver. The CLI entrypoint registers
// each known driver once at startup; lookups are by name thereafter.
type Registry struct {
	drivers map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

func (r *Registry) Register(d Driver) {
	r.drivers[d.Name()] = d
}

func (r *Registry) Get(name string) (Driver, bool) {
	d, ok := r.drivers[name]
	return d, ok
}

// All returns every registered driver, for a zero-argument "run all sources"
// CLI invocation).
func (r *Registry) All() []Driver {
	out := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, d)
	}
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	return out
}
