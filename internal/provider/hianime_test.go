package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/media"
)

func ajaxBody(t *testing.T, html string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"status": true, "html": html})
	require.NoError(t, err)
	return string(b)
}

func TestHiAnime(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/search": `<div class="flw-item"><h3 class="film-name"><a href="/frieren-18542?ref=search">Frieren</a></h3></div>
			<div class="flw-item"><h3 class="film-name"><a href="/">No title</a></h3></div>`,
		"/ajax/v2/episode/list/18542": ajaxBody(t, `<div class="ss-list">
			<a class="ep-item" data-id="2002" data-number="2" title="Second"></a>
			<a class="ep-item" data-id="2001" data-number="1" title="First"></a>
			<a class="ep-item" data-id="bad" data-number="3"></a>
		</div>`),
		"/ajax/v2/episode/servers": ajaxBody(t, `
			<div class="server-item" data-id="1001" data-type="sub"><a>HD-1</a></div>
			<div class="server-item" data-id="1002" data-type="dub"><a>HD-2</a></div>
			<div class="server-item" data-id="1001" data-type="sub"><a>HD-1 again</a></div>`),
		"/ajax/v2/episode/sources": `{"type":"iframe","link":"{{embed}}/e/1"}`,
		"/e/1":                     `<script>jwplayer().setup({file: "{{origin}}/hls/master.m3u8"})</script>`,
	})
	h := NewHiAnime(testDeps(), f.URL)
	ctx := context.Background()

	results, err := h.Search(ctx, "frieren")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "frieren-18542", results[0].Ref)
	assert.Equal(t, "Frieren", results[0].Title)

	eps, err := h.Episodes(ctx, "frieren-18542")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "frieren-18542?ep=2001", eps[0].Token)
	assert.Equal(t, 1.0, eps[0].Number)
	assert.Equal(t, "hianime", eps[0].Source)
	assert.Equal(t, "XMLHttpRequest", f.header("/ajax/v2/episode/list/18542").Get("X-Requested-With"))
	assert.Equal(t, f.URL+"/watch/frieren-18542", f.header("/ajax/v2/episode/list/18542").Get("Referer"))

	servers, err := h.Servers(ctx, eps[0])
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, media.ServerCandidate{Name: "HD-1", Token: "1001", Audio: media.AudioSub}, servers[0])
	assert.Equal(t, media.AudioDub, servers[1].Audio)

	rm, err := h.Resolve(ctx, eps[0], servers[0])
	require.NoError(t, err)
	assert.Equal(t, f.URL+"/hls/master.m3u8", rm.URL)
	assert.Equal(t, media.KindHLS, rm.Kind)
	assert.Equal(t, "HD-1", rm.Server)
	assert.Equal(t, media.AudioSub, rm.Audio)
	assert.Equal(t, f.embedURL()+"/", rm.Headers["Referer"])
	assert.Equal(t, f.URL+"/", f.header("/e/1").Get("Referer"))
}

func TestHiAnimeErrors(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/ajax/v2/episode/list/1": `{"status":true}`,
		"/ajax/v2/episode/list/2": ajaxBody(t, `<p>maintenance</p>`),
		"/ajax/v2/episode/sources": `{"type":"iframe","link":""}`,
	})
	h := NewHiAnime(testDeps(), f.URL)
	ctx := context.Background()

	_, err := h.Episodes(ctx, "show-1")
	assert.True(t, errors.Is(err, media.ErrParse))

	_, err = h.Episodes(ctx, "show-2")
	assert.True(t, errors.Is(err, media.ErrParse))

	_, err = h.Episodes(ctx, "no-id")
	assert.True(t, errors.Is(err, media.ErrParse))

	_, err = h.Episodes(ctx, "../etc/passwd")
	assert.Error(t, err)

	_, err = h.Resolve(ctx, ep("hianime", "show-1?ep=5"), media.ServerCandidate{Name: "HD-1", Token: "7"})
	assert.True(t, errors.Is(err, media.ErrPatternNotFound))

	_, err = h.Servers(ctx, ep("hianime", "show-1?ep=x"))
	assert.Error(t, err)
}
