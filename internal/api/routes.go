package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"anistream/internal/httputil"
	"anistream/internal/media"
	"anistream/internal/pipeline"
	"anistream/internal/provider"
)

var errInvalidInput = errors.New("invalid input")

func (s *Server) routes() {
	g := s.app.Group("/api")
	g.Get("/sources", s.listSources)
	g.Get("/sources/:id/search", s.search)
	g.Get("/sources/:id/episodes", s.episodes)
	g.Get("/sources/:id/resolve", s.resolve)
}

type sourceJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Origin       string `json:"origin"`
	Language     string `json:"language"`
	UsesRenderer bool   `json:"uses_renderer"`
	Searchable   bool   `json:"searchable"`
}

type searchResultJSON struct {
	Ref   string `json:"ref"`
	Title string `json:"title"`
	Year  string `json:"year,omitempty"`
	URL   string `json:"url,omitempty"`
}

type episodeJSON struct {
	Token  string  `json:"token"`
	Number float64 `json:"number"`
	Title  string  `json:"title"`
}

type variantJSON struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type subtitleJSON struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type mediaJSON struct {
	Server    string            `json:"server"`
	URL       string            `json:"url"`
	Kind      media.Kind        `json:"kind"`
	Audio     media.AudioTag    `json:"audio,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Subtitles []subtitleJSON    `json:"subtitles,omitempty"`
	Variants  []variantJSON     `json:"variants,omitempty"`
}

type failureJSON struct {
	Server string `json:"server"`
	Error  string `json:"error"`
}

// Playback is the JSON form of a pipeline.Playback.
type Playback struct {
	Media         []mediaJSON       `json:"media"`
	ChosenQuality *variantJSON      `json:"chosen_quality,omitempty"`
	Subtitles     map[string]string `json:"subtitles"`
	Failures      []failureJSON     `json:"failures,omitempty"`
}

func (s *Server) source(c *fiber.Ctx) (provider.Provider, error) {
	return s.registry.Lookup(c.Params("id"))
}

func (s *Server) listSources(c *fiber.Ctx) error {
	out := make([]sourceJSON, 0, len(s.registry.IDs()))
	for _, id := range s.registry.IDs() {
		p, _ := s.registry.Adapter(id)
		d := p.Descriptor()
		_, searchable := p.(provider.Searcher)
		out = append(out, sourceJSON{
			ID:           d.ID,
			Name:         d.Name,
			Origin:       d.Origin,
			Language:     d.Language,
			UsesRenderer: d.UsesRenderer,
			Searchable:   searchable,
		})
	}
	return c.JSON(out)
}

func (s *Server) search(c *fiber.Ctx) error {
	p, err := s.source(c)
	if err != nil {
		return err
	}
	searcher, ok := p.(provider.Searcher)
	if !ok {
		return fiber.NewError(fiber.StatusNotImplemented, fmt.Sprintf("source %s does not support search", p.Descriptor().ID))
	}
	q := c.Query("q")
	if q == "" {
		return fmt.Errorf("missing query parameter q: %w", errInvalidInput)
	}

	results, err := searcher.Search(c.UserContext(), q)
	if err != nil {
		return err
	}
	out := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultJSON{Ref: r.Ref, Title: r.Title, Year: r.Year, URL: r.URL})
	}
	return c.JSON(out)
}

func (s *Server) episodes(c *fiber.Ctx) error {
	p, err := s.source(c)
	if err != nil {
		return err
	}
	ref := c.Query("ref")
	if err := httputil.ValidateRef(ref); err != nil {
		return fmt.Errorf("ref: %w: %w", errInvalidInput, err)
	}

	eps, err := p.Episodes(c.UserContext(), ref)
	if err != nil {
		return err
	}
	out := make([]episodeJSON, 0, len(eps))
	for _, ep := range eps {
		out = append(out, episodeJSON{Token: ep.Token, Number: ep.Number, Title: ep.Title})
	}
	return c.JSON(out)
}

func (s *Server) resolve(c *fiber.Ctx) error {
	p, err := s.source(c)
	if err != nil {
		return err
	}
	token := c.Query("token")
	if token == "" {
		return fmt.Errorf("missing query parameter token: %w", errInvalidInput)
	}
	ep := media.EpisodeRef{Source: p.Descriptor().ID, Token: token}
	if n := c.Query("number"); n != "" {
		num, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", n, errInvalidInput)
		}
		ep.Number = num
	}

	pb, err := s.pipeline.Resolve(c.UserContext(), ep.Source, ep, c.Query("quality"), media.ParseAudio(c.Query("audio")))
	if err != nil {
		return err
	}
	return c.JSON(NewPlayback(pb))
}

// NewPlayback converts a pipeline result to its JSON form.
func NewPlayback(pb *pipeline.Playback) Playback {
	out := Playback{Media: make([]mediaJSON, 0, len(pb.Media)), Subtitles: pb.Subtitles}
	for _, m := range pb.Media {
		mj := mediaJSON{Server: m.Server, URL: m.URL, Kind: m.Kind, Audio: m.Audio, Headers: m.Headers}
		for _, s := range m.Subtitles {
			mj.Subtitles = append(mj.Subtitles, subtitleJSON{Label: s.Label, URL: s.URL})
		}
		for _, v := range m.Variants {
			mj.Variants = append(mj.Variants, variantJSON{Label: v.Label, URL: v.URL})
		}
		out.Media = append(out.Media, mj)
	}
	if v, ok := pb.ChosenQuality.Get(); ok {
		out.ChosenQuality = &variantJSON{Label: v.Label, URL: v.URL}
	}
	for _, f := range pb.Failures {
		out.Failures = append(out.Failures, failureJSON{Server: f.Server, Error: f.Err.Error()})
	}
	return out
}
