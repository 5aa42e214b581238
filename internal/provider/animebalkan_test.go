package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/render"
)

func TestAnimeBalkan(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/frieren/": lister,
		"/e/m1":     `file: "https://cdn.example/m1.mp4"`,
	})
	f.set("/frieren-episode-1/", `<div class="player-embed" id="pembed"></div>`+mirrors(f))
	deps := testDeps()
	deps.Renderer = render.Static{
		f.URL + "/frieren-episode-1/": `<div class="player-embed">
			<iframe src="https://ads.example/x"></iframe>
			<video src="/media/b.mp4"></video>
		</div>`,
	}
	a := NewAnimeBalkan(deps, f.URL)
	ctx := context.Background()

	eps, err := a.Episodes(ctx, "frieren")
	require.NoError(t, err)
	require.Len(t, eps, 2)

	servers, err := a.Servers(ctx, eps[0])
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, playerToken, servers[0].Token)

	rm, err := a.Resolve(ctx, eps[0], servers[0])
	require.NoError(t, err)
	assert.Equal(t, f.URL+"/media/b.mp4", rm.URL)

	rm, err = a.Resolve(ctx, eps[0], servers[1])
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/m1.mp4", rm.URL)
}
