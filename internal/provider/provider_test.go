package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/config"
	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/logging"
	"anistream/internal/media"
	"anistream/internal/render"
	"anistream/internal/retry"
)

// fixture serves canned bodies by request URI, falling back to the path.
// "{{origin}}" in a body is the server URL and "{{embed}}" the same server
// under the host name "localhost", which the test engine treats as an embed
// host. A body "redirect:<url>" answers with a redirect.
type fixture struct {
	*httptest.Server

	mu      sync.Mutex
	routes  map[string]string
	headers map[string]http.Header
	forms   map[string]url.Values
}

func newFixture(t *testing.T, routes map[string]string) *fixture {
	t.Helper()
	f := &fixture{
		routes:  map[string]string{},
		headers: map[string]http.Header{},
		forms:   map[string]url.Values{},
	}
	for k, v := range routes {
		f.routes[k] = v
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fixture) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	key := r.URL.RequestURI()
	body, ok := f.routes[key]
	if !ok {
		key = r.URL.Path
		body, ok = f.routes[key]
	}
	f.headers[key] = r.Header.Clone()
	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		f.forms[key] = r.PostForm
	}
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	body = strings.ReplaceAll(body, "{{origin}}", f.URL)
	body = strings.ReplaceAll(body, "{{embed}}", f.embedURL())
	if target, found := strings.CutPrefix(body, "redirect:"); found {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	fmt.Fprint(w, body)
}

func (f *fixture) set(route, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = body
}

func (f *fixture) header(route string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[route]
}

func (f *fixture) form(route string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[route]
}

func (f *fixture) embedURL() string {
	return strings.Replace(f.URL, "127.0.0.1", "localhost", 1)
}

// fixtureEmbed is an engine entry for embed pages served by a fixture.
var fixtureEmbed = extract.Entry{
	Name:            "fixture-embed",
	Hosts:           []string{"localhost"},
	Rules:           []extract.Rule{{Name: "file", Pattern: regexp.MustCompile(`file:\s*"([^"]+)"`)}},
	RefererRequired: true,
}

func testDeps() Deps {
	client := httputil.NewClient(httputil.ClientConfig{Timeout: 5 * time.Second, AllowHTTP: true})
	logger := logging.Discard()
	return Deps{
		Client: client,
		Engine: extract.NewEngine(client, logger, append(extract.DefaultTable(), fixtureEmbed)...),
		Retry:  retry.New(retry.Policy{MaxAttempts: 3}, logger),
		Logger: logger,
	}
}

func ep(source, token string) media.EpisodeRef {
	return media.EpisodeRef{Source: source, Token: token, Number: 1}
}

func TestRegistry(t *testing.T) {
	deps := testDeps()
	reg, err := NewRegistry(NewHiAnime(deps, ""), NewAnimeFLV(deps, ""), NewAniWorld(deps, ""))
	require.NoError(t, err)

	p, ok := reg.Adapter("hianime")
	require.True(t, ok)
	assert.Equal(t, "HiAnime", p.Descriptor().Name)

	_, ok = reg.Adapter("nope")
	assert.False(t, ok)

	ids := []string{}
	for _, d := range reg.List() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"animeflv", "aniworld", "hianime"}, ids)
	assert.Equal(t, ids, reg.IDs())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	deps := testDeps()
	_, err := NewRegistry(NewHiAnime(deps, ""), NewHiAnime(deps, "https://mirror.example"))
	assert.Error(t, err)
}

func TestRegistryLookupSuggests(t *testing.T) {
	reg, err := NewRegistry(Builtin(testDeps(), nil)...)
	require.NoError(t, err)

	assert.Contains(t, reg.Suggest("hianim"), "hianime")

	_, err = reg.Lookup("hianim")
	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrUnknownSource))
	assert.Contains(t, err.Error(), "did you mean")

	_, err = reg.Lookup("zzzz")
	assert.True(t, errors.Is(err, media.ErrUnknownSource))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Origins = map[string]string{"hianime": "https://hianime.example"}
	cfg.Generic = []config.GenericSource{{
		ID:       "myjson",
		Origin:   "https://json.example",
		Episodes: "/episodes/{ref}",
		Servers:  "/servers/{token}",
		Source:   "/source/{token}/{server}",
	}}

	reg, err := FromConfig(testDeps(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"anibunker", "anilibria", "anime3rb", "animebalkan", "animefire", "animeflv",
		"animesrbija", "animeunity", "animeworld", "anivibe", "aniworld", "gogoanime",
		"hianime", "kuramanime", "myjson", "tokyoinsider",
	}, reg.IDs())

	p, _ := reg.Adapter("hianime")
	assert.Equal(t, "https://hianime.example", p.Descriptor().Origin)
	_, searchable := p.(Searcher)
	assert.True(t, searchable)

	p, _ = reg.Adapter("kuramanime")
	_, searchable = p.(Searcher)
	assert.False(t, searchable)
	assert.True(t, p.Descriptor().UsesRenderer)
}

type countingProvider struct {
	Provider
	calls int
}

func (c *countingProvider) Episodes(context.Context, string) ([]media.EpisodeRef, error) {
	c.calls++
	return []media.EpisodeRef{{Source: "x", Token: "1", Number: 1}}, nil
}

func TestCachedEpisodes(t *testing.T) {
	inner := &countingProvider{Provider: NewTokyoInsider(testDeps(), "")}
	p := CachedEpisodes(inner, time.Minute)

	first, err := p.Episodes(context.Background(), "anime/F/Frieren")
	require.NoError(t, err)
	first[0].Token = "mutated"

	second, err := p.Episodes(context.Background(), "anime/F/Frieren")
	require.NoError(t, err)
	assert.Equal(t, "1", second[0].Token)
	assert.Equal(t, 1, inner.calls)

	_, err = p.Episodes(context.Background(), "anime/O/Other")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	assert.Same(t, inner, CachedEpisodes(inner, 0))
}

func TestEpisodeNumber(t *testing.T) {
	assert.Equal(t, 12.0, episodeNumber("Episode 12"))
	assert.Equal(t, 6.5, episodeNumber("EP 6.5 special"))
	assert.Equal(t, 0.0, episodeNumber("none"))
}

func TestFinishServers(t *testing.T) {
	_, err := finishServers(ep("x", "1"), []media.ServerCandidate{{Name: "empty"}})
	assert.True(t, errors.Is(err, media.ErrNoServers))

	got, err := finishServers(ep("x", "1"), []media.ServerCandidate{
		{Name: "a", Token: "1"}, {Name: "b", Token: "2"}, {Name: "a again", Token: "1"},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSortVariants(t *testing.T) {
	got := sortVariants([]media.QualityVariant{
		{Label: "480p", Rank: 480, URL: "a"},
		{Label: "1080p", Rank: 1080, URL: "b"},
		{Label: "1080P", Rank: 1080, URL: "c"},
		{Label: "", Rank: 0, URL: "d"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "1080p", got[0].Label)
	assert.Equal(t, "480p", got[1].Label)
}

func TestRenderUntilWithoutRenderer(t *testing.T) {
	k := NewKuramanime(testDeps(), "https://kura.example")
	_, err := renderUntil(context.Background(), &k.site, "https://kura.example/x", func(string) (string, error) {
		return "", nil
	})
	assert.True(t, errors.Is(err, errNoRenderer))
}

func TestRenderUntilRetriesPatternNotFound(t *testing.T) {
	calls := 0
	deps := testDeps()
	deps.Renderer = render.Func(func(ctx context.Context, url string) (string, error) {
		calls++
		return fmt.Sprintf("<p>%d</p>", calls), nil
	})
	k := NewKuramanime(deps, "https://kura.example")

	_, err := renderUntil(context.Background(), &k.site, "https://kura.example/x", func(html string) (string, error) {
		return "", media.ErrPatternNotFound
	})
	assert.True(t, errors.Is(err, media.ErrExtractionExhausted))
	assert.Equal(t, 3, calls)
}
