package provider

import (
	"anistream/internal/config"
)

// Builtin returns every compiled-in adapter. origins overrides the origin of
// sources by id.
func Builtin(deps Deps, origins map[string]string) []Provider {
	deps = deps.withDefaults()
	o := func(id string) string { return origins[id] }
	return []Provider{
		NewAnimeWorld(deps, o("animeworld")),
		NewGoGoAnime(deps, o("gogoanime")),
		NewHiAnime(deps, o("hianime")),
		NewKuramanime(deps, o("kuramanime")),
		NewAnime3rb(deps, o("anime3rb")),
		NewAnimeFire(deps, o("animefire")),
		NewAnimeSrbija(deps, o("animesrbija")),
		NewAniWorld(deps, o("aniworld")),
		NewTokyoInsider(deps, o("tokyoinsider")),
		NewAniVibe(deps, o("anivibe")),
		NewAnimeUnity(deps, o("animeunity")),
		NewAnimeFLV(deps, o("animeflv")),
		NewAnimeBalkan(deps, o("animebalkan")),
		NewAniBunker(deps, o("anibunker")),
		NewAnilibria(deps, o("anilibria")),
	}
}

// FromConfig builds the registry for cfg: the built-in adapters, the
// configured generic sources and, when the episode TTL is positive, episode
// caching.
func FromConfig(deps Deps, cfg *config.Config) (*Registry, error) {
	deps = deps.withDefaults()
	providers := Builtin(deps, cfg.Origins)
	for _, g := range cfg.Generic {
		providers = append(providers, NewGeneric(deps, g))
	}
	for i, p := range providers {
		providers[i] = CachedEpisodes(p, cfg.Cache.EpisodesTTL.Duration)
	}
	return NewRegistry(providers...)
}
