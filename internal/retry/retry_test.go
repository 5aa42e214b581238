package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/logging"
	"anistream/internal/media"
)

func TestDoStopsOnSuccess(t *testing.T) {
	c := New(Policy{MaxAttempts: 5, Delay: time.Millisecond}, logging.Discard())

	calls := 0
	err := c.Do(context.Background(), "render", func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("player not ready")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsWithSpacing(t *testing.T) {
	delay := 20 * time.Millisecond
	c := New(Policy{MaxAttempts: 4, Delay: delay}, logging.Discard())

	var stamps []time.Time
	err := c.Do(context.Background(), "render", func(ctx context.Context, attempt int) error {
		stamps = append(stamps, time.Now())
		return fmt.Errorf("no video element: %w", media.ErrPatternNotFound)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrExtractionExhausted))
	assert.True(t, errors.Is(err, media.ErrPatternNotFound), "last cause stays reachable")
	require.Len(t, stamps, 4)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), delay)
	}
}

func TestDoUnsupportedHostIsNotRetried(t *testing.T) {
	c := New(DefaultPolicy(), logging.Discard())

	calls := 0
	err := c.Do(context.Background(), "extract", func(ctx context.Context, attempt int) error {
		calls++
		return fmt.Errorf("unknown.example: %w", media.ErrUnsupportedHost)
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, media.ErrUnsupportedHost))
	assert.False(t, errors.Is(err, media.ErrExtractionExhausted))
}

func TestDoHonoursCancellation(t *testing.T) {
	c := New(Policy{MaxAttempts: 10, Delay: time.Hour}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- c.Do(ctx, "render", func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("not yet")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestWithPolicyOverridesDefault(t *testing.T) {
	c := New(DefaultPolicy(), logging.Discard())
	ctx := WithPolicy(context.Background(), Policy{MaxAttempts: 2})

	calls := 0
	err := c.Do(ctx, "render", func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("still loading")
	})

	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, media.ErrExtractionExhausted))
	assert.Equal(t, Policy{MaxAttempts: 10, Delay: time.Second}, c.Policy(context.Background()))
}
