package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/media"
)

func seasonPage(rows string) string {
	return `<table class="seasonEpisodesList"><tbody>` + rows + `</tbody></table>`
}

func TestAniWorld(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/ajax/search": `[
			{"title":"<em>Frieren</em>: Beyond Journey's End","link":"\/anime\/stream\/frieren"},
			{"title":"Staffel 1","link":"\/anime\/stream\/frieren\/staffel-1"},
			{"title":"News","link":"\/news\/1"}
		]`,
		"/anime/stream/frieren": `<div id="stream"><ul>
			<li><a href="/anime/stream/frieren/staffel-1">1</a></li>
			<li><a href="/anime/stream/frieren/staffel-2">2</a></li>
			<li><a href="/anime/stream/frieren/staffel-1/episode-1">1</a></li>
		</ul></div>`,
		"/anime/stream/frieren/staffel-1": seasonPage(`
			<tr><td><meta itemprop="episodeNumber" content="1"><a href="/anime/stream/frieren/staffel-1/episode-1">Folge 1</a></td>
				<td class="seasonEpisodeTitle"><a><strong>Das Ende der Reise</strong></a></td></tr>
			<tr><td><a href="/anime/stream/frieren/staffel-1/episode-2">Folge 2</a></td>
				<td class="seasonEpisodeTitle"><a><strong>Magie</strong></a></td></tr>`),
		"/anime/stream/frieren/staffel-2": seasonPage(`
			<tr><td><meta itemprop="episodeNumber" content="1"><a href="/anime/stream/frieren/staffel-2/episode-1">Folge 1</a></td></tr>`),
		"/anime/stream/frieren/staffel-1/episode-1": `<div class="hosterSiteVideo"><ul>
			<li data-lang-key="1" data-link-target="/redirect/111"><h4>VOE</h4></li>
			<li data-lang-key="3" data-link-target="/redirect/222"><h4>Vidoza</h4></li>
			<li data-lang-key="2" data-link-target="https://elsewhere.example/x"><h4>Other</h4></li>
		</ul></div>`,
		"/redirect/111": "redirect:{{embed}}/e/aw1",
		"/redirect/222": "redirect:{{origin}}/home",
		"/home":         `<p>home</p>`,
		"/e/aw1":        `file: "https://cdn.example/aw1.m3u8"`,
	})
	a := NewAniWorld(testDeps(), f.URL)
	ctx := context.Background()

	results, err := a.Search(ctx, "frieren")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "frieren", results[0].Ref)
	assert.Equal(t, "Frieren: Beyond Journey's End", results[0].Title)
	assert.Equal(t, "frieren", f.form("/ajax/search").Get("keyword"))

	eps, err := a.Episodes(ctx, "frieren")
	require.NoError(t, err)
	require.Len(t, eps, 3)
	assert.Equal(t, "S1E1 Das Ende der Reise", eps[0].Title)
	assert.Equal(t, "S1E2 Magie", eps[1].Title)
	assert.Equal(t, 2.0, eps[1].Number)
	assert.Equal(t, "anime/stream/frieren/staffel-2/episode-1", eps[2].Token)
	assert.Equal(t, "S2E1", eps[2].Title)

	servers, err := a.Servers(ctx, eps[0])
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, media.ServerCandidate{Name: "VOE", Token: "/redirect/111", Audio: media.AudioDub}, servers[0])
	assert.Equal(t, media.AudioSub, servers[1].Audio)

	rm, err := a.Resolve(ctx, eps[0], servers[0])
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/aw1.m3u8", rm.URL)
	assert.Equal(t, media.KindHLS, rm.Kind)

	_, err = a.Resolve(ctx, eps[0], servers[1])
	assert.True(t, errors.Is(err, media.ErrPatternNotFound))
}

func TestAniWorldNotASeriesPage(t *testing.T) {
	f := newFixture(t, map[string]string{"/anime/stream/frieren": `<p>404</p>`})
	a := NewAniWorld(testDeps(), f.URL)

	_, err := a.Episodes(context.Background(), "frieren")
	assert.True(t, errors.Is(err, media.ErrParse))
}

func TestAniWorldSeasonsUnreachable(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/anime/stream/frieren": `<div id="stream"><ul>
			<li><a href="/anime/stream/frieren/staffel-1">1</a></li>
			<li><a href="/anime/stream/frieren/staffel-2">2</a></li>
		</ul></div>`,
	})
	a := NewAniWorld(testDeps(), f.URL)

	eps, err := a.Episodes(context.Background(), "frieren")
	assert.Empty(t, eps)
	assert.True(t, errors.Is(err, media.ErrNetwork), "err = %v", err)
}

func TestAniWorldSeasonsCancelled(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/anime/stream/frieren": `<div id="stream"><ul>
			<li><a href="/anime/stream/frieren/staffel-1">1</a></li>
		</ul></div>`,
		"/anime/stream/frieren/staffel-1": seasonPage(""),
	})
	a := NewAniWorld(testDeps(), f.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Episodes(ctx, "frieren")
	assert.Error(t, err)
}
