// Package pipeline resolves one episode into playable media: it lists the
// episode's servers, resolves every server concurrently and aggregates the
// results once all of them have finished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"anistream/internal/hls"
	"anistream/internal/httputil"
	"anistream/internal/media"
	"anistream/internal/provider"
	"anistream/internal/quality"
	"anistream/internal/retry"
)

// State is the position of one Resolve call in its lifecycle.
type State string

const (
	StateIdle               State = "idle"
	StateDiscoveringServers State = "discovering-servers"
	StateResolvingServers   State = "resolving-servers"
	StateAggregating        State = "aggregating"
	StateResolved           State = "resolved"
	StateFailed             State = "failed"
)

// ExtractionAttempt tracks one server while it is being resolved. Only the
// task resolving the server mutates it.
type ExtractionAttempt struct {
	Server media.ServerCandidate
	Stage  media.Stage
	Err    error
}

// Event is sent to an Observer on every state change of the run and every
// stage change of an attempt. Attempt is nil for run state changes.
type Event struct {
	RunID   string
	State   State
	Attempt *ExtractionAttempt
}

// Observer receives progress events. Calls are serialized.
type Observer func(Event)

// ServerFailure is a server that could not be resolved.
type ServerFailure struct {
	Server string
	Err    error
}

// Playback is the result of a successful Resolve.
type Playback struct {
	// Media holds every resolved server in listing order.
	Media []media.ResolvedMedia
	// ChosenQuality is the preferred variant of the first media offering
	// variants.
	ChosenQuality mo.Option[media.QualityVariant]
	// Subtitles maps track labels to URLs across all media; the first
	// server offering a label wins.
	Subtitles map[string]string
	// Failures lists the servers that failed. They are warnings only.
	Failures []ServerFailure
}

// Sources looks adapters up by id. *provider.Registry implements it.
type Sources interface {
	Lookup(id string) (provider.Provider, error)
}

// Options configures a Pipeline.
type Options struct {
	// Retry overrides the retry policy of adapters for the duration of a
	// run. A zero MaxAttempts keeps the adapters' own policy.
	Retry    retry.Policy
	Observer Observer
	Logger   *slog.Logger
}

// Pipeline resolves episodes. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	sources Sources
	client  *httputil.Client
	opts    Options
	logger  *slog.Logger
}

// New returns a pipeline over sources. client fetches HLS master playlists
// of media that come without variants.
func New(sources Sources, client *httputil.Client, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = httputil.NewClient(httputil.DefaultClientConfig())
	}
	return &Pipeline{sources: sources, client: client, opts: opts, logger: logger}
}

// run is the state of one Resolve call.
type run struct {
	id       string
	logger   *slog.Logger
	observer Observer
	mu       sync.Mutex // serializes observer calls
}

func (r *run) emit(ev Event) {
	if r.observer == nil {
		return
	}
	ev.RunID = r.id
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer(ev)
}

func (r *run) state(s State) {
	r.logger.Debug("pipeline state", "state", s)
	r.emit(Event{State: s})
}

func (r *run) attempt(a ExtractionAttempt) {
	r.emit(Event{State: StateResolvingServers, Attempt: &a})
}

type outcome struct {
	index int
	media media.ResolvedMedia
	err   error
}

// Resolve lists the servers of ep on the source sourceID, resolves all of
// them concurrently and returns every success. preferredAudio, when set and
// offered by at least one server, restricts the servers tried.
// preferredQuality picks Playback.ChosenQuality.
//
// A failed run returns a *ResolutionError.
func (p *Pipeline) Resolve(ctx context.Context, sourceID string, ep media.EpisodeRef, preferredQuality string, preferredAudio media.AudioTag) (*Playback, error) {
	r := &run{id: uuid.NewString(), observer: p.opts.Observer}
	r.logger = p.logger.With("run", r.id, "source", sourceID, "episode", ep.Number)
	r.state(StateIdle)

	src, err := p.sources.Lookup(sourceID)
	if err != nil {
		r.state(StateFailed)
		return nil, newResolutionError(err, nil)
	}
	if ep.Source == "" {
		ep.Source = src.Descriptor().ID
	}

	r.state(StateDiscoveringServers)
	servers, err := src.Servers(ctx, ep)
	if err != nil {
		r.state(StateFailed)
		r.logger.Warn("listing servers failed", "err", err)
		return nil, newResolutionError(fmt.Errorf("listing servers: %w", err), nil)
	}
	servers = filterAudio(uniqueServers(r.logger, servers), preferredAudio)

	if p.opts.Retry.MaxAttempts > 0 {
		ctx = retry.WithPolicy(ctx, p.opts.Retry)
	}

	r.state(StateResolvingServers)
	outcomes := p.resolveAll(ctx, r, src, ep, servers)

	r.state(StateAggregating)
	return p.aggregate(r, servers, outcomes, preferredQuality)
}

// uniqueServers drops candidates repeating an earlier server token.
func uniqueServers(logger *slog.Logger, servers []media.ServerCandidate) []media.ServerCandidate {
	seen := make(map[string]bool, len(servers))
	return lo.Filter(servers, func(s media.ServerCandidate, _ int) bool {
		if seen[s.Token] {
			logger.Warn("dropping duplicate server", "server", s.Name, "token", s.Token)
			return false
		}
		seen[s.Token] = true
		return true
	})
}

// filterAudio keeps the servers offering audio, or servers whose audio is
// unknown, when any server offers it. Otherwise all servers are kept.
func filterAudio(servers []media.ServerCandidate, audio media.AudioTag) []media.ServerCandidate {
	if audio == "" {
		return servers
	}
	if !lo.ContainsBy(servers, func(s media.ServerCandidate) bool { return s.Audio == audio }) {
		return servers
	}
	return lo.Filter(servers, func(s media.ServerCandidate, _ int) bool {
		return s.Audio == audio || s.Audio == ""
	})
}

// resolveAll runs one task per server and returns once every task has
// finished. Outcomes are in completion order.
func (p *Pipeline) resolveAll(ctx context.Context, r *run, src provider.Provider, ep media.EpisodeRef, servers []media.ServerCandidate) []outcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make([]outcome, 0, len(servers))
	)
	for i, server := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rm, err := p.resolveServer(ctx, r, src, ep, server)
			mu.Lock()
			outcomes = append(outcomes, outcome{index: i, media: rm, err: err})
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

func (p *Pipeline) resolveServer(ctx context.Context, r *run, src provider.Provider, ep media.EpisodeRef, server media.ServerCandidate) (rm media.ResolvedMedia, err error) {
	a := ExtractionAttempt{Server: server, Stage: media.StageFetching}
	r.attempt(a)

	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("server %s: adapter panic: %v", server.Name, v)
		}
		a.Err = err
		a.Stage = media.StageSucceeded
		if err != nil {
			a.Stage = media.StageFailed
			r.logger.Debug("server failed", "server", server.Name, "err", err)
		}
		r.attempt(a)
	}()

	taskCtx := media.WithStageReporter(ctx, func(s media.Stage) {
		if s == a.Stage || s.Terminal() {
			return
		}
		a.Stage = s
		r.attempt(a)
	})

	rm, err = src.Resolve(taskCtx, ep, server)
	if err != nil {
		return rm, err
	}
	if err := ctx.Err(); err != nil {
		return rm, fmt.Errorf("server %s: %w", server.Name, err)
	}
	if rm.URL == "" {
		return rm, fmt.Errorf("server %s: resolved media has no URL: %w", server.Name, media.ErrParse)
	}
	if rm.Server == "" {
		rm.Server = server.Name
	}
	if rm.Kind == media.KindHLS && len(rm.Variants) == 0 {
		rm.Variants = p.variants(taskCtx, r, rm)
	}
	return rm, nil
}

// variants reads the quality variants of an HLS master playlist. Media
// playlists and unreachable manifests yield none; the media stays playable.
func (p *Pipeline) variants(ctx context.Context, r *run, rm media.ResolvedMedia) []media.QualityVariant {
	media.ReportStage(ctx, media.StageExtracting)
	manifest, err := p.client.GetString(ctx, rm.URL, rm.Headers)
	if err != nil {
		r.logger.Debug("fetching manifest failed", "url", rm.URL, "err", err)
		return nil
	}
	if !hls.IsMaster(manifest) {
		return nil
	}
	vs, err := hls.Parse(manifest, rm.URL)
	if err != nil {
		r.logger.Debug("parsing manifest failed", "url", rm.URL, "err", err)
		return nil
	}
	return vs
}

func (p *Pipeline) aggregate(r *run, servers []media.ServerCandidate, outcomes []outcome, preferredQuality string) (*Playback, error) {
	// The first recorded error is the first in completion order.
	var first error
	for _, o := range outcomes {
		if o.err != nil {
			first = o.err
			break
		}
	}

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	succeeded, failed := lo.FilterReject(outcomes, func(o outcome, _ int) bool { return o.err == nil })

	failures := lo.Map(failed, func(o outcome, _ int) ServerFailure {
		return ServerFailure{Server: servers[o.index].Name, Err: o.err}
	})

	if len(succeeded) == 0 {
		r.state(StateFailed)
		if first == nil {
			first = fmt.Errorf("%d servers: %w", len(servers), media.ErrNoStreamingSources)
		}
		r.logger.Warn("no server resolved", "servers", len(servers), "err", first)
		return nil, newResolutionError(first, failures)
	}

	for _, f := range failures {
		r.logger.Warn("server failed", "server", f.Server, "err", f.Err)
	}

	pb := &Playback{
		Media:     lo.Map(succeeded, func(o outcome, _ int) media.ResolvedMedia { return o.media }),
		Subtitles: map[string]string{},
		Failures:  failures,
	}
	for _, m := range pb.Media {
		for _, s := range m.Subtitles {
			if _, seen := pb.Subtitles[s.Label]; !seen && s.URL != "" {
				pb.Subtitles[s.Label] = s.URL
			}
		}
	}
	if m, found := lo.Find(pb.Media, func(m media.ResolvedMedia) bool { return len(m.Variants) > 0 }); found {
		if v, err := quality.Select(m.Variants, preferredQuality); err == nil {
			pb.ChosenQuality = mo.Some(v)
		}
	}

	r.state(StateResolved)
	r.logger.Info("episode resolved", "media", len(pb.Media), "failed", len(failures))
	return pb, nil
}

// ResolutionError is the failure of a whole Resolve call.
type ResolutionError struct {
	// Kind is the media error kind of Cause, or Cause's context error.
	Kind     error
	Cause    error
	Failures []ServerFailure
}

func newResolutionError(cause error, failures []ServerFailure) *ResolutionError {
	kind := media.KindOf(cause)
	switch {
	case kind != nil:
	case errors.Is(cause, context.Canceled):
		kind = context.Canceled
	case errors.Is(cause, context.DeadlineExceeded):
		kind = context.DeadlineExceeded
	}
	return &ResolutionError{Kind: kind, Cause: cause, Failures: failures}
}

func (e *ResolutionError) Error() string {
	if len(e.Failures) > 1 {
		return fmt.Sprintf("resolution failed (%d servers): %v", len(e.Failures), e.Cause)
	}
	return fmt.Sprintf("resolution failed: %v", e.Cause)
}

// Unwrap exposes the kind and the cause to errors.Is and errors.As.
func (e *ResolutionError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Cause}
	}
	return []error{e.Kind, e.Cause}
}

// Message returns a short user-facing explanation of err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The source took too long to answer. Try again later."
	case errors.Is(err, media.ErrUnknownSource):
		return "Unknown source. Run `anistream sources` to list the available ones."
	case errors.Is(err, media.ErrNoServers):
		return "The source lists no servers for this episode. Try another source."
	case errors.Is(err, media.ErrUnsupportedHost):
		return "The episode is only hosted on players anistream cannot read yet. Try another source."
	case errors.Is(err, media.ErrExtractionExhausted):
		return "The player never finished loading. Try again, or raise retry.max_attempts."
	case errors.Is(err, media.ErrPatternNotFound):
		return "The player page changed and no video was found. Try another server or source."
	case errors.Is(err, media.ErrNoStreamingSources):
		return "No streaming source could be resolved for this episode."
	case errors.Is(err, media.ErrNoQualityOptions):
		return "The stream offers no quality options."
	case errors.Is(err, media.ErrParse):
		return "The source's pages have an unexpected layout; it may have changed. Try another source."
	case errors.Is(err, media.ErrNetwork):
		return "Network error. Check your connection or try another source."
	default:
		return err.Error()
	}
}
