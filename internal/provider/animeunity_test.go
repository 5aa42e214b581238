package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/media"
)

func TestAnimeUnity(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/anime/4123-sousou-no-frieren": `<video-player episodes='[
			{"id":502,"number":"2"},
			{"id":"bad","number":"3"},
			{"id":501,"number":"1"}
		]'></video-player>`,
		"/embed-url/501": "{{embed}}/e/vix501\n",
		"/e/vix501":      `file: "https://cdn.example/vix/playlist.m3u8"`,
		"/anime/broken":  `<p>no player</p>`,
	})
	a := NewAnimeUnity(testDeps(), f.URL)
	ctx := context.Background()

	eps, err := a.Episodes(ctx, "anime/4123-sousou-no-frieren")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "501", eps[0].Token)
	assert.Equal(t, 2.0, eps[1].Number)

	servers, err := a.Servers(ctx, eps[0])
	require.NoError(t, err)
	assert.Equal(t, []media.ServerCandidate{{Name: "VixCloud", Token: "501", Audio: media.AudioSub}}, servers)

	rm, err := a.Resolve(ctx, eps[0], servers[0])
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/vix/playlist.m3u8", rm.URL)
	assert.Equal(t, media.KindHLS, rm.Kind)

	_, err = a.Episodes(ctx, "anime/broken")
	assert.True(t, errors.Is(err, media.ErrParse))

	_, err = a.Servers(ctx, ep("animeunity", "abc"))
	assert.Error(t, err)
}
