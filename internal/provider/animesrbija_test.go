package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/media"
)

func TestAnimeSrbija(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/anime/frieren": `<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"data":{"anime":{
			"title":"Frieren",
			"episodes":[{"slug":"frieren-epizoda-2","number":2},{"slug":"frieren-epizoda-1","number":1,"title":"Kraj putovanja"}]
		}}}}}</script>`,
		"/epizoda/frieren-epizoda-1": `<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"data":{"episode":{
			"player2":"{{embed}}/e/sr2",
			"player1":"!{{embed}}/e/sr1",
			"player3":"",
			"number":1
		}}}}}</script>`,
		"/e/sr1":        `file: "https://cdn.example/sr1.mp4"`,
		"/anime/empty":  `<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{}}}</script>`,
		"/anime/static": `<p>no data</p>`,
	})
	a := NewAnimeSrbija(testDeps(), f.URL)
	ctx := context.Background()

	eps, err := a.Episodes(ctx, "frieren")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "Kraj putovanja", eps[0].Title)
	assert.Equal(t, "Frieren 2", eps[1].Title)

	servers, err := a.Servers(ctx, eps[0])
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, f.embedURL()+"/e/sr1", servers[0].Token)
	assert.Equal(t, "localhost", servers[0].Name)

	rm, err := a.Resolve(ctx, eps[0], servers[0])
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/sr1.mp4", rm.URL)

	_, err = a.Episodes(ctx, "empty")
	assert.True(t, errors.Is(err, media.ErrParse))
	_, err = a.Episodes(ctx, "static")
	assert.True(t, errors.Is(err, media.ErrParse))
}
