// Package extract turns embed-host pages into playable media URLs.
//
// Every supported embed host has one Entry in a host-keyed table. An entry
// is a list of declarative rules applied in order to the page, plus an
// optional Resolver for hosts that need more than one request. Adding a new
// embed host means adding a table entry; callers never carry media regexes.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// maxFollowDepth bounds chains of pages whose payload is another page.
const maxFollowDepth = 3

// Rule extracts one payload from a document. Exactly one of Pattern (capture
// group 1 is the payload) or Field (dotted JSON path such as
// "sources.0.file") is set.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Field   string

	Unpack bool           // run packed eval() scripts through Unpack first
	Base64 bool           // payload is base64
	Prefix string         // prepended to the payload
	Append *regexp.Regexp // group 1 of the first match is appended to the payload
	Follow bool           // payload is another page to extract from
}

// Resolver handles hosts whose media URL takes more than one document to find.
type Resolver func(ctx context.Context, e *Engine, embedURL, referer string) (Embedded, error)

// Entry is one row of the host table.
type Entry struct {
	Name  string
	Hosts []string // matched as substrings of the host
	Rules []Rule

	// Resolver, when set, replaces the fetch-and-apply-rules procedure in Follow.
	Resolver Resolver
	// RefererRequired means the media host checks the Referer, so players
	// must send the embed page's origin.
	RefererRequired bool
}

// Embedded is the media found behind an embed URL.
type Embedded struct {
	URL       string
	Kind      media.Kind
	Subtitles []media.SubtitleTrack
	Headers   map[string]string
	Variants  []media.QualityVariant
}

// Engine applies the host table. It is immutable after construction and
// safe for concurrent use.
type Engine struct {
	entries []Entry
	client  *httputil.Client
	logger  *slog.Logger
	megaKey *keyCache
}

// NewEngine returns an engine over entries. client is only needed by Follow.
func NewEngine(client *httputil.Client, logger *slog.Logger, entries ...Entry) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		entries: append([]Entry(nil), entries...),
		client:  client,
		logger:  logger,
		megaKey: &keyCache{},
	}
}

// Default returns an engine loaded with the built-in host table.
func Default(client *httputil.Client, logger *slog.Logger) *Engine {
	return NewEngine(client, logger, DefaultTable()...)
}

// Lookup returns the entry matching host.
func (e *Engine) Lookup(host string) (Entry, bool) {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if host == "" {
		return Entry{}, false
	}
	for _, entry := range e.entries {
		for _, h := range entry.Hosts {
			if strings.Contains(host, h) {
				return entry, true
			}
		}
	}
	return Entry{}, false
}

// Supports reports whether the host of rawURL has an entry.
func (e *Engine) Supports(rawURL string) bool {
	_, ok := e.Lookup(httputil.Host(rawURL))
	return ok
}

// Extract applies the rules registered for host to page and returns the
// first payload found. It performs no I/O. Follow rules are not chased here;
// their payload is returned as is.
func (e *Engine) Extract(page, host string) (string, error) {
	entry, ok := e.Lookup(host)
	if !ok {
		return "", fmt.Errorf("%s: %w", host, media.ErrUnsupportedHost)
	}
	payload, _, err := applyRules(entry, page)
	if err != nil {
		return "", fmt.Errorf("%s: %w", host, err)
	}
	return payload, nil
}

// Follow loads embedURL and extracts its media, chasing Follow rules and
// delegating to the entry's Resolver when it has one.
func (e *Engine) Follow(ctx context.Context, embedURL, referer string) (Embedded, error) {
	return e.follow(ctx, embedURL, referer, 0)
}

func (e *Engine) follow(ctx context.Context, embedURL, referer string, depth int) (Embedded, error) {
	embedURL = Normalize(embedURL)
	host := httputil.Host(embedURL)
	entry, ok := e.Lookup(host)
	if !ok {
		return Embedded{}, fmt.Errorf("%s: %w", host, media.ErrUnsupportedHost)
	}
	if e.client == nil {
		return Embedded{}, fmt.Errorf("following %s: no HTTP client configured", embedURL)
	}

	media.ReportStage(ctx, media.StageFollowingEmbed)
	e.logger.Debug("following embed", "host", host, "entry", entry.Name, "depth", depth)

	if entry.Resolver != nil {
		return entry.Resolver(ctx, e, embedURL, referer)
	}

	headers := map[string]string{}
	if referer != "" {
		headers["Referer"] = referer
	}
	resp, err := e.client.Get(ctx, embedURL, headers)
	if err != nil {
		return Embedded{}, fmt.Errorf("fetching %s embed: %w", entry.Name, err)
	}

	// A redirect may land on another host; the final page decides the rules.
	if finalHost := httputil.Host(resp.URL); finalHost != host {
		if next, ok := e.Lookup(finalHost); ok {
			entry = next
		}
	}

	media.ReportStage(ctx, media.StageExtracting)
	payload, rule, err := applyRules(entry, resp.String())
	if err != nil {
		return Embedded{}, fmt.Errorf("%s: %w", entry.Name, err)
	}

	if rule.Follow {
		if depth+1 >= maxFollowDepth {
			return Embedded{}, fmt.Errorf("%s: redirect chain too deep: %w", entry.Name, media.ErrPatternNotFound)
		}
		return e.follow(ctx, httputil.Resolve(resp.URL, payload), resp.URL, depth+1)
	}

	out := Embedded{
		URL:  httputil.Resolve(resp.URL, payload),
		Kind: media.KindFromURL(payload),
	}
	if entry.RefererRequired {
		out.Headers = map[string]string{"Referer": httputil.Origin(resp.URL) + "/"}
	}
	return out, nil
}

// Client returns the HTTP client used by Follow, for resolvers.
func (e *Engine) Client() *httputil.Client {
	return e.client
}

func applyRules(entry Entry, page string) (string, Rule, error) {
	var unpacked string
	for _, rule := range entry.Rules {
		doc := page
		if rule.Unpack {
			if unpacked == "" {
				unpacked = UnpackAll(page)
			}
			doc = unpacked + "\n" + page
		}
		payload, ok := rule.apply(doc)
		if ok {
			return payload, rule, nil
		}
	}
	return "", Rule{}, media.ErrPatternNotFound
}

func (r Rule) apply(doc string) (string, bool) {
	var payload string
	switch {
	case r.Field != "":
		v, ok := Field(doc, r.Field)
		if !ok {
			return "", false
		}
		payload = v
	case r.Pattern != nil:
		m := r.Pattern.FindStringSubmatch(doc)
		if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
			return "", false
		}
		payload = strings.TrimSpace(m[1])
	default:
		return "", false
	}

	if r.Base64 {
		decoded, err := decodeBase64(payload)
		if err != nil {
			return "", false
		}
		payload = decoded
	}
	if r.Append != nil {
		if m := r.Append.FindStringSubmatch(doc); len(m) > 1 {
			payload += m[1]
		}
	}
	payload = Normalize(r.Prefix + payload)
	return payload, payload != ""
}

// Normalize turns an extracted payload into a usable URL string:
// JSON-escaped slashes and &amp; are undone and protocol-relative URLs get
// https.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, "&amp;", "&")
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	return s
}

// Field evaluates a dotted path over a JSON document and returns the string
// (or number) found there. Numeric segments index arrays.
func Field(doc, path string) (string, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(doc)), &v); err != nil {
		return "", false
	}
	for _, seg := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return "", false
			}
			v = node[i]
		default:
			return "", false
		}
	}
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

func decodeBase64(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), nil
		}
	}
	return "", fmt.Errorf("payload is not base64")
}
