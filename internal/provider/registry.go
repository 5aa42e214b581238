package provider

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"

	"anistream/internal/media"
)

// Registry maps source ids to adapters. It is immutable after construction.
type Registry struct {
	providers map[string]Provider
	ids       []string
}

// NewRegistry indexes providers by their descriptor id. Duplicate or empty
// ids are an error.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		id := p.Descriptor().ID
		if id == "" {
			return nil, fmt.Errorf("provider %q has no id", p.Descriptor().Name)
		}
		if _, dup := r.providers[id]; dup {
			return nil, fmt.Errorf("duplicate source id %q", id)
		}
		r.providers[id] = p
		r.ids = append(r.ids, id)
	}
	slices.Sort(r.ids)
	return r, nil
}

// Adapter returns the provider registered under id.
func (r *Registry) Adapter(id string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// Lookup is Adapter with an error wrapping media.ErrUnknownSource that
// suggests close ids.
func (r *Registry) Lookup(id string) (Provider, error) {
	if p, ok := r.Adapter(id); ok {
		return p, nil
	}
	if s := r.Suggest(id); len(s) > 0 {
		return nil, fmt.Errorf("%q: %w (did you mean %s?)", id, media.ErrUnknownSource, strings.Join(s, ", "))
	}
	return nil, fmt.Errorf("%q: %w", id, media.ErrUnknownSource)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

// List returns every descriptor ordered by id.
func (r *Registry) List() []media.SourceDescriptor {
	out := make([]media.SourceDescriptor, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.providers[id].Descriptor())
	}
	return out
}

// Suggest returns up to three registered ids that fuzzily match id.
func (r *Registry) Suggest(id string) []string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil
	}
	matches := fuzzy.Find(id, r.ids)
	var out []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
