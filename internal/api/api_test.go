package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/logging"
	"anistream/internal/media"
	"anistream/internal/pipeline"
	"anistream/internal/provider"
)

type stubSource struct {
	id      string
	servers []media.ServerCandidate
}

func (s *stubSource) Descriptor() media.SourceDescriptor {
	return media.SourceDescriptor{ID: s.id, Name: "Stub " + s.id, Origin: "https://" + s.id + ".example", Language: "en"}
}

func (s *stubSource) Episodes(_ context.Context, ref string) ([]media.EpisodeRef, error) {
	return []media.EpisodeRef{
		{Source: s.id, Token: ref + "/1", Number: 1, Title: "Episode 1"},
		{Source: s.id, Token: ref + "/2", Number: 2, Title: "Episode 2"},
	}, nil
}

func (s *stubSource) Servers(context.Context, media.EpisodeRef) ([]media.ServerCandidate, error) {
	if len(s.servers) == 0 {
		return nil, media.ErrNoServers
	}
	return s.servers, nil
}

func (s *stubSource) Resolve(_ context.Context, _ media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if server.Name == "broken" {
		return media.ResolvedMedia{}, media.ErrUnsupportedHost
	}
	return media.ResolvedMedia{
		URL:       "https://cdn.example/" + server.Token + ".mp4",
		Kind:      media.KindFile,
		Audio:     server.Audio,
		Subtitles: []media.SubtitleTrack{{Label: "English", URL: "https://cdn.example/en.vtt"}},
	}, nil
}

// searchableSource adds Search to stubSource.
type searchableSource struct {
	stubSource
}

func (s *searchableSource) Search(_ context.Context, query string) ([]media.SearchResult, error) {
	return []media.SearchResult{{Source: s.id, Ref: "frieren-123", Title: "Frieren " + query, Year: "2023"}}, nil
}

func newServer(t *testing.T) *Server {
	t.Helper()
	reg, err := provider.NewRegistry(
		&searchableSource{stubSource{id: "alpha", servers: []media.ServerCandidate{
			{Name: "HD-1", Token: "a1", Audio: media.AudioSub},
			{Name: "broken", Token: "a2", Audio: media.AudioSub},
		}}},
		&stubSource{id: "beta", servers: []media.ServerCandidate{{Name: "broken", Token: "b1"}}},
		&stubSource{id: "gamma"},
	)
	require.NoError(t, err)
	pl := pipeline.New(reg, nil, pipeline.Options{Logger: logging.Discard()})
	return New(reg, pl, Options{Logger: logging.Discard()})
}

func get(t *testing.T, s *Server, target string, v any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if v != nil {
		require.NoError(t, json.Unmarshal(body, v), string(body))
	}
	return resp.StatusCode
}

func TestListSources(t *testing.T) {
	s := newServer(t)

	var out []sourceJSON
	require.Equal(t, http.StatusOK, get(t, s, "/api/sources", &out))
	require.Len(t, out, 3)
	assert.Equal(t, "alpha", out[0].ID)
	assert.True(t, out[0].Searchable)
	assert.Equal(t, "https://alpha.example", out[0].Origin)
	assert.Equal(t, "beta", out[1].ID)
	assert.False(t, out[1].Searchable)
}

func TestSearch(t *testing.T) {
	s := newServer(t)

	var out []searchResultJSON
	require.Equal(t, http.StatusOK, get(t, s, "/api/sources/alpha/search?q=beyond", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "frieren-123", out[0].Ref)
	assert.Equal(t, "Frieren beyond", out[0].Title)

	var e errorJSON
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/sources/alpha/search", &e))
	assert.Contains(t, e.Detail, "missing query parameter q")

	assert.Equal(t, http.StatusNotImplemented, get(t, s, "/api/sources/beta/search?q=x", &e))
	assert.Contains(t, e.Error, "does not support search")

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/sources/alph/search?q=x", &e))
	assert.Contains(t, e.Detail, "did you mean alpha")
}

func TestEpisodes(t *testing.T) {
	s := newServer(t)

	var out []episodeJSON
	require.Equal(t, http.StatusOK, get(t, s, "/api/sources/beta/episodes?ref=show-9", &out))
	require.Len(t, out, 2)
	assert.Equal(t, "show-9/2", out[1].Token)
	assert.Equal(t, 2.0, out[1].Number)

	var e errorJSON
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/sources/beta/episodes", &e))
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/sources/beta/episodes?ref=../etc", &e))
}

func TestResolve(t *testing.T) {
	s := newServer(t)

	var out Playback
	require.Equal(t, http.StatusOK, get(t, s, "/api/sources/alpha/resolve?token=frieren-123/1&number=1&audio=sub", &out))
	require.Len(t, out.Media, 1)
	assert.Equal(t, "HD-1", out.Media[0].Server)
	assert.Equal(t, "https://cdn.example/a1.mp4", out.Media[0].URL)
	assert.Equal(t, media.KindFile, out.Media[0].Kind)
	assert.Nil(t, out.ChosenQuality)
	assert.Equal(t, map[string]string{"English": "https://cdn.example/en.vtt"}, out.Subtitles)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "broken", out.Failures[0].Server)
}

func TestResolveErrors(t *testing.T) {
	s := newServer(t)

	var e errorJSON
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/sources/alpha/resolve", &e))
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/sources/alpha/resolve?token=x&number=one", &e))

	assert.Equal(t, http.StatusBadGateway, get(t, s, "/api/sources/beta/resolve?token=x", &e))
	assert.Equal(t, pipeline.Message(media.ErrUnsupportedHost), e.Error)

	assert.Equal(t, http.StatusBadGateway, get(t, s, "/api/sources/gamma/resolve?token=x", &e))
	assert.Equal(t, pipeline.Message(media.ErrNoServers), e.Error)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusRequestTimeout, statusOf(context.Canceled))
	assert.Equal(t, http.StatusGatewayTimeout, statusOf(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadGateway, statusOf(media.ErrNetwork))
	assert.Equal(t, http.StatusNotFound, statusOf(media.ErrUnknownSource))
}
