package provider

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/media"
)

var errNoRenderer = errors.New("no rendering surrogate configured")

// site carries what every adapter shares: its descriptor and the services
// it fetches and extracts with.
type site struct {
	desc media.SourceDescriptor
	Deps
}

func newSite(desc media.SourceDescriptor, origin string, deps Deps) site {
	if origin != "" {
		desc.Origin = strings.TrimRight(origin, "/")
	}
	deps = deps.withDefaults()
	deps.Logger = deps.Logger.With("source", desc.ID)
	return site{desc: desc, Deps: deps}
}

// Descriptor implements Provider.
func (s *site) Descriptor() media.SourceDescriptor {
	return s.desc
}

// abs resolves ref against the site origin.
func (s *site) abs(ref string) string {
	return httputil.Resolve(s.desc.Origin+"/", ref)
}

func (s *site) headers(extra map[string]string) map[string]string {
	h := make(map[string]string, len(s.desc.Headers)+len(extra))
	maps.Copy(h, s.desc.Headers)
	maps.Copy(h, extra)
	return h
}

func (s *site) get(ctx context.Context, url string, extra map[string]string) (*httputil.Response, error) {
	return s.Client.Get(ctx, url, s.headers(extra))
}

// document fetches a URL and parses it into a goquery Document.
func (s *site) document(ctx context.Context, url string, extra map[string]string) (*goquery.Document, error) {
	resp, err := s.get(ctx, url, extra)
	if err != nil {
		return nil, err
	}
	return parseHTML(resp.Body)
}

func (s *site) getJSON(ctx context.Context, url string, extra map[string]string, v any) error {
	return s.Client.GetJSON(ctx, url, s.headers(extra), v)
}

func (s *site) postForm(ctx context.Context, url string, form, extra map[string]string) (*httputil.Response, error) {
	return s.Client.PostForm(ctx, url, form, s.headers(extra))
}

// embed resolves a link that must be an embed page known to the extraction
// engine.
func (s *site) embed(ctx context.Context, server media.ServerCandidate, link, referer string) (media.ResolvedMedia, error) {
	link = extract.Normalize(link)
	if link == "" {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: empty embed link: %w", server.Name, media.ErrPatternNotFound)
	}
	emb, err := s.Engine.Follow(ctx, link, referer)
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: %w", server.Name, err)
	}
	return fromEmbedded(server, emb), nil
}

// link resolves a link that is either an embed page known to the extraction
// engine or already the media URL.
func (s *site) link(ctx context.Context, server media.ServerCandidate, link, referer string) (media.ResolvedMedia, error) {
	link = extract.Normalize(link)
	if link != "" && s.Engine.Supports(link) {
		return s.embed(ctx, server, link, referer)
	}
	return direct(server, link, referer)
}

func direct(server media.ServerCandidate, link, referer string) (media.ResolvedMedia, error) {
	if link == "" {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: empty media link: %w", server.Name, media.ErrPatternNotFound)
	}
	rm := media.ResolvedMedia{
		Server: server.Name,
		URL:    link,
		Kind:   media.KindFromURL(link),
		Audio:  server.Audio,
	}
	if referer != "" {
		rm.Headers = map[string]string{"Referer": referer}
	}
	return rm, nil
}

func fromEmbedded(server media.ServerCandidate, emb extract.Embedded) media.ResolvedMedia {
	return media.ResolvedMedia{
		Server:    server.Name,
		URL:       emb.URL,
		Kind:      emb.Kind,
		Audio:     server.Audio,
		Subtitles: emb.Subtitles,
		Headers:   emb.Headers,
		Variants:  emb.Variants,
	}
}

// renderUntil renders url until find succeeds, under the retry controller.
// find reports media.ErrPatternNotFound while the content it needs has not
// been inserted yet.
func renderUntil[T any](ctx context.Context, s *site, url string, find func(html string) (T, error)) (T, error) {
	var out T
	if s.Renderer == nil {
		return out, fmt.Errorf("rendering %s: %w", url, errNoRenderer)
	}
	err := s.Retry.Do(ctx, "render "+url, func(ctx context.Context, attempt int) error {
		html, err := s.Renderer.Render(ctx, url)
		if err != nil {
			return err
		}
		media.ReportStage(ctx, media.StageExtracting)
		v, err := find(html)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding JSON: %w: %w", media.ErrParse, err)
	}
	return nil
}

func parseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w: %w", media.ErrParse, err)
	}
	return doc, nil
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// episodeNumber returns the first number in text, or 0.
func episodeNumber(text string) float64 {
	m := numberRe.FindString(text)
	if m == "" {
		return 0
	}
	n, _ := strconv.ParseFloat(m, 64)
	return n
}

// uniqueEpisodes drops duplicate tokens and fills in the source id.
func uniqueEpisodes(source string, eps []media.EpisodeRef) []media.EpisodeRef {
	eps = lo.UniqBy(eps, func(ep media.EpisodeRef) string { return ep.Token })
	for i := range eps {
		eps[i].Source = source
	}
	return eps
}

// finishEpisodes is uniqueEpisodes ordered by episode number.
func finishEpisodes(source string, eps []media.EpisodeRef) []media.EpisodeRef {
	eps = uniqueEpisodes(source, eps)
	slices.SortStableFunc(eps, func(a, b media.EpisodeRef) int { return cmp.Compare(a.Number, b.Number) })
	return eps
}

// finishServers drops duplicate and empty tokens and reports an empty list
// as media.ErrNoServers.
func finishServers(ep media.EpisodeRef, servers []media.ServerCandidate) ([]media.ServerCandidate, error) {
	servers = lo.Filter(servers, func(s media.ServerCandidate, _ int) bool { return s.Token != "" })
	servers = lo.UniqBy(servers, func(s media.ServerCandidate) string { return s.Token })
	if len(servers) == 0 {
		return nil, fmt.Errorf("%s episode %s: %w", ep.Source, media.FormatNumber(ep.Number), media.ErrNoServers)
	}
	return servers, nil
}

// sortVariants orders variants best first and drops duplicate labels.
func sortVariants(vs []media.QualityVariant) []media.QualityVariant {
	vs = lo.Filter(vs, func(v media.QualityVariant, _ int) bool { return v.URL != "" && v.Label != "" })
	vs = lo.UniqBy(vs, func(v media.QualityVariant) string { return strings.ToLower(v.Label) })
	slices.SortStableFunc(vs, func(a, b media.QualityVariant) int { return cmp.Compare(b.Rank, a.Rank) })
	return vs
}

func validRef(kind, ref string) error {
	if err := httputil.ValidateRef(ref); err != nil {
		return fmt.Errorf("invalid %s: %w", kind, err)
	}
	return nil
}
