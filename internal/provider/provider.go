// Package provider defines the interface for anime sources and their
// implementations.
package provider

import (
	"context"
	"log/slog"

	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/media"
	"anistream/internal/render"
	"anistream/internal/retry"
)

// Provider is the interface that every source adapter implements.
type Provider interface {
	// Descriptor returns the static description of the source.
	Descriptor() media.SourceDescriptor

	// Episodes lists the episodes of a title. Malformed rows are skipped, so
	// the list may be partial or empty; a page without the expected
	// structure fails with media.ErrParse.
	Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error)

	// Servers lists the playback servers of an episode. Tokens are unique.
	// A listing that parses but has no servers fails with media.ErrNoServers.
	Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error)

	// Resolve turns one server into playable media.
	Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error)
}

// Searcher is implemented by sources that can search their catalogue.
type Searcher interface {
	Search(ctx context.Context, query string) ([]media.SearchResult, error)
}

// Deps are the shared services adapters are built from. Zero fields are
// filled with defaults by the constructors, except Renderer: adapters that
// need it fail their renders without one.
type Deps struct {
	Client   *httputil.Client
	Engine   *extract.Engine
	Renderer render.Renderer
	Retry    *retry.Controller
	Logger   *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Client == nil {
		d.Client = httputil.NewClient(httputil.DefaultClientConfig())
	}
	if d.Engine == nil {
		d.Engine = extract.Default(d.Client, d.Logger)
	}
	if d.Retry == nil {
		d.Retry = retry.New(retry.DefaultPolicy(), d.Logger)
	}
	return d
}
