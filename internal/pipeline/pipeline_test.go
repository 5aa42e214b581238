package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/httputil"
	"anistream/internal/logging"
	"anistream/internal/media"
	"anistream/internal/provider"
	"anistream/internal/retry"
)

// fakeSource lists servers "s0".."sN-1" and resolves them with resolve.
type fakeSource struct {
	id         string
	servers    []media.ServerCandidate
	serversErr error
	resolve    func(ctx context.Context, server media.ServerCandidate) (media.ResolvedMedia, error)
}

func (f *fakeSource) Descriptor() media.SourceDescriptor {
	return media.SourceDescriptor{ID: f.id, Name: f.id}
}

func (f *fakeSource) Episodes(context.Context, string) ([]media.EpisodeRef, error) {
	return nil, nil
}

func (f *fakeSource) Servers(context.Context, media.EpisodeRef) ([]media.ServerCandidate, error) {
	return f.servers, f.serversErr
}

func (f *fakeSource) Resolve(ctx context.Context, _ media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	return f.resolve(ctx, server)
}

func candidates(n int) []media.ServerCandidate {
	out := make([]media.ServerCandidate, n)
	for i := range out {
		out[i] = media.ServerCandidate{Name: fmt.Sprintf("s%d", i), Token: fmt.Sprint(i), Audio: media.AudioSub}
	}
	return out
}

func ok(server media.ServerCandidate) media.ResolvedMedia {
	return media.ResolvedMedia{Server: server.Name, URL: "https://cdn.example/" + server.Token + ".mp4", Kind: media.KindFile}
}

func newPipeline(t *testing.T, src *fakeSource, opts Options) *Pipeline {
	t.Helper()
	reg, err := provider.NewRegistry(src)
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	client := httputil.NewClient(httputil.ClientConfig{Timeout: 5 * time.Second, AllowHTTP: true, Logger: opts.Logger})
	return New(reg, client, opts)
}

var episode = media.EpisodeRef{Token: "ep-1", Number: 1}

func TestResolveWaitsForEveryServer(t *testing.T) {
	for _, n := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var finished atomic.Int32
			src := &fakeSource{
				id:      "fake",
				servers: candidates(n),
				resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
					time.Sleep(time.Duration(rand.IntN(20)) * time.Millisecond)
					finished.Add(1)
					return ok(s), nil
				},
			}

			var terminal atomic.Int32
			p := newPipeline(t, src, Options{Observer: func(ev Event) {
				if ev.Attempt != nil && ev.Attempt.Stage.Terminal() {
					terminal.Add(1)
				}
			}})

			pb, err := p.Resolve(context.Background(), "fake", episode, "", "")
			assert.Equal(t, int32(n), finished.Load())
			assert.Equal(t, int32(n), terminal.Load())
			if n == 0 {
				require.Error(t, err)
				assert.True(t, errors.Is(err, media.ErrNoStreamingSources))
				return
			}
			require.NoError(t, err)
			require.Len(t, pb.Media, n)
			for i, m := range pb.Media {
				assert.Equal(t, fmt.Sprintf("s%d", i), m.Server, "media keep listing order")
			}
		})
	}
}

func TestResolveAggregatesSuccesses(t *testing.T) {
	const n = 6
	for k := 0; k <= n; k++ {
		t.Run(fmt.Sprintf("%d of %d", k, n), func(t *testing.T) {
			src := &fakeSource{
				id:      "fake",
				servers: candidates(n),
				resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
					i, _ := strconv.Atoi(s.Token)
					if i < k {
						return ok(s), nil
					}
					return media.ResolvedMedia{}, fmt.Errorf("server %s: %w", s.Name, media.ErrPatternNotFound)
				},
			}
			p := newPipeline(t, src, Options{})

			pb, err := p.Resolve(context.Background(), "fake", episode, "", "")
			if k == 0 {
				var rerr *ResolutionError
				require.ErrorAs(t, err, &rerr)
				assert.Equal(t, media.ErrPatternNotFound, rerr.Kind)
				assert.Len(t, rerr.Failures, n)
				assert.Nil(t, pb)
				return
			}
			require.NoError(t, err)
			assert.Len(t, pb.Media, k)
			assert.Len(t, pb.Failures, n-k)
		})
	}
}

func TestResolveDropsDuplicateServers(t *testing.T) {
	var calls atomic.Int32
	src := &fakeSource{
		id: "dupes",
		servers: []media.ServerCandidate{
			{Name: "HD-1", Token: "42", Audio: media.AudioSub},
			{Name: "HD-1 mirror", Token: "42", Audio: media.AudioSub},
			{Name: "HD-2", Token: "43", Audio: media.AudioSub},
		},
		resolve: func(_ context.Context, server media.ServerCandidate) (media.ResolvedMedia, error) {
			calls.Add(1)
			return ok(server), nil
		},
	}

	pb, err := newPipeline(t, src, Options{}).Resolve(context.Background(), "dupes", episode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, pb.Media, 2)
	assert.ElementsMatch(t, []string{"HD-1", "HD-2"}, []string{pb.Media[0].Server, pb.Media[1].Server})
}

func TestResolveIsIdempotent(t *testing.T) {
	src := &fakeSource{
		id:      "fake",
		servers: candidates(8),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			time.Sleep(time.Duration(rand.IntN(10)) * time.Millisecond)
			if s.Token == "3" {
				return media.ResolvedMedia{}, media.ErrUnsupportedHost
			}
			return ok(s), nil
		},
	}
	p := newPipeline(t, src, Options{})

	names := func() []string {
		pb, err := p.Resolve(context.Background(), "fake", episode, "", "")
		require.NoError(t, err)
		out := make([]string, 0, len(pb.Media))
		for _, m := range pb.Media {
			out = append(out, m.Server)
		}
		return out
	}
	first, second := names(), names()
	assert.ElementsMatch(t, first, second)
	assert.Len(t, first, 7)
}

func TestResolveCancellation(t *testing.T) {
	var started sync.WaitGroup
	started.Add(4)
	src := &fakeSource{
		id:      "fake",
		servers: candidates(4),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			started.Done()
			<-ctx.Done()
			return media.ResolvedMedia{}, ctx.Err()
		},
	}

	var mu sync.Mutex
	stages := map[string]media.Stage{}
	p := newPipeline(t, src, Options{Observer: func(ev Event) {
		if ev.Attempt != nil {
			mu.Lock()
			stages[ev.Attempt.Server.Name] = ev.Attempt.Stage
			mu.Unlock()
		}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		started.Wait()
		cancel()
	}()

	_, err := p.Resolve(ctx, "fake", episode, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "Cancelled.", Message(err))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, stages, 4)
	for name, s := range stages {
		assert.Equal(t, media.StageFailed, s, name)
	}
}

func TestResolveServerListFailure(t *testing.T) {
	src := &fakeSource{id: "fake", serversErr: fmt.Errorf("listing: %w", media.ErrNoServers)}
	var states []State
	p := newPipeline(t, src, Options{Observer: func(ev Event) {
		if ev.Attempt == nil {
			states = append(states, ev.State)
		}
	}})

	_, err := p.Resolve(context.Background(), "fake", episode, "", "")
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, media.ErrNoServers, rerr.Kind)
	assert.Equal(t, []State{StateIdle, StateDiscoveringServers, StateFailed}, states)
}

func TestResolveUnknownSource(t *testing.T) {
	p := newPipeline(t, &fakeSource{id: "fake"}, Options{})
	_, err := p.Resolve(context.Background(), "nope", episode, "", "")
	assert.True(t, errors.Is(err, media.ErrUnknownSource))
}

func TestResolveRejectsEmptyURL(t *testing.T) {
	src := &fakeSource{
		id:      "fake",
		servers: candidates(2),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			if s.Token == "0" {
				return media.ResolvedMedia{Server: s.Name}, nil
			}
			return ok(s), nil
		},
	}
	p := newPipeline(t, src, Options{})

	pb, err := p.Resolve(context.Background(), "fake", episode, "", "")
	require.NoError(t, err)
	require.Len(t, pb.Media, 1)
	require.Len(t, pb.Failures, 1)
	assert.Equal(t, "s0", pb.Failures[0].Server)
	assert.True(t, errors.Is(pb.Failures[0].Err, media.ErrParse))
}

func TestResolvePrefersAudio(t *testing.T) {
	servers := []media.ServerCandidate{
		{Name: "sub", Token: "1", Audio: media.AudioSub},
		{Name: "dub", Token: "2", Audio: media.AudioDub},
		{Name: "unknown", Token: "3"},
	}
	src := &fakeSource{
		id:      "fake",
		servers: servers,
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			return ok(s), nil
		},
	}
	p := newPipeline(t, src, Options{})

	pb, err := p.Resolve(context.Background(), "fake", episode, "", media.AudioDub)
	require.NoError(t, err)
	require.Len(t, pb.Media, 2)
	assert.Equal(t, "dub", pb.Media[0].Server)
	assert.Equal(t, "unknown", pb.Media[1].Server)

	pb, err = p.Resolve(context.Background(), "fake", episode, "", media.AudioRaw)
	require.NoError(t, err)
	assert.Len(t, pb.Media, 3, "no raw server, so every server is tried")
}

func TestResolveReadsMasterPlaylist(t *testing.T) {
	var referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer.Store(r.Header.Get("Referer"))
		fmt.Fprint(w, "#EXTM3U\n"+
			"#EXT-X-STREAM-INF:RESOLUTION=1920x1080\nhigh.m3u8\n"+
			"#EXT-X-STREAM-INF:RESOLUTION=1280x720\nmid.m3u8\n"+
			"#EXT-X-STREAM-INF:RESOLUTION=640x360\nlow.m3u8\n")
	}))
	defer srv.Close()

	src := &fakeSource{
		id:      "fake",
		servers: candidates(1),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			return media.ResolvedMedia{
				URL:       srv.URL + "/hls/master.m3u8",
				Kind:      media.KindHLS,
				Headers:   map[string]string{"Referer": "https://embed.example/"},
				Subtitles: []media.SubtitleTrack{{Label: "English", URL: "https://subs.example/en.vtt"}},
			}, nil
		},
	}
	p := newPipeline(t, src, Options{})

	pb, err := p.Resolve(context.Background(), "fake", episode, "800", "")
	require.NoError(t, err)
	require.Len(t, pb.Media, 1)
	assert.Equal(t, "s0", pb.Media[0].Server)
	require.Len(t, pb.Media[0].Variants, 3)
	assert.Equal(t, srv.URL+"/hls/high.m3u8", pb.Media[0].Variants[0].URL)
	assert.Equal(t, "https://embed.example/", referer.Load())

	chosen, present := pb.ChosenQuality.Get()
	require.True(t, present)
	assert.Equal(t, "720p", chosen.Label)
	assert.Equal(t, map[string]string{"English": "https://subs.example/en.vtt"}, pb.Subtitles)
}

func TestResolveWithoutVariants(t *testing.T) {
	src := &fakeSource{
		id:      "fake",
		servers: candidates(1),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			return ok(s), nil
		},
	}
	p := newPipeline(t, src, Options{})

	pb, err := p.Resolve(context.Background(), "fake", episode, "1080", "")
	require.NoError(t, err)
	assert.True(t, pb.ChosenQuality.IsAbsent())
}

func TestResolveAppliesRetryPolicy(t *testing.T) {
	var attempts atomic.Int32
	ctrl := retry.New(retry.DefaultPolicy(), logging.Discard())
	src := &fakeSource{
		id:      "fake",
		servers: candidates(1),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			err := ctrl.Do(ctx, "render", func(ctx context.Context, attempt int) error {
				attempts.Add(1)
				return media.ErrPatternNotFound
			})
			return media.ResolvedMedia{}, err
		},
	}
	p := newPipeline(t, src, Options{Retry: retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}})

	_, err := p.Resolve(context.Background(), "fake", episode, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrExtractionExhausted))
	assert.Equal(t, int32(2), attempts.Load())
	assert.Contains(t, Message(err), "never finished loading")
}

func TestResolveRecoversAdapterPanic(t *testing.T) {
	src := &fakeSource{
		id:      "fake",
		servers: candidates(2),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			if s.Token == "0" {
				panic("boom")
			}
			return ok(s), nil
		},
	}
	p := newPipeline(t, src, Options{})

	pb, err := p.Resolve(context.Background(), "fake", episode, "", "")
	require.NoError(t, err)
	assert.Len(t, pb.Media, 1)
	assert.Contains(t, pb.Failures[0].Err.Error(), "boom")
}

func TestAttemptStages(t *testing.T) {
	src := &fakeSource{
		id:      "fake",
		servers: candidates(1),
		resolve: func(ctx context.Context, s media.ServerCandidate) (media.ResolvedMedia, error) {
			media.ReportStage(ctx, media.StageExtracting)
			media.ReportStage(ctx, media.StageFollowingEmbed)
			media.ReportStage(ctx, media.StageExtracting)
			return ok(s), nil
		},
	}
	var stages []media.Stage
	p := newPipeline(t, src, Options{Observer: func(ev Event) {
		if ev.Attempt != nil {
			stages = append(stages, ev.Attempt.Stage)
		}
	}})

	_, err := p.Resolve(context.Background(), "fake", episode, "", "")
	require.NoError(t, err)
	assert.Equal(t, []media.Stage{
		media.StageFetching, media.StageExtracting, media.StageFollowingEmbed, media.StageExtracting, media.StageSucceeded,
	}, stages)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Contains(t, Message(fmt.Errorf("x: %w", media.ErrNoServers)), "no servers")
	assert.Contains(t, Message(newResolutionError(fmt.Errorf("x: %w", media.ErrUnsupportedHost), nil)), "cannot read")
	assert.Equal(t, "plain", Message(errors.New("plain")))
}
