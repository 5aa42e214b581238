// Package retry bounds repeated extraction attempts against flaky pages.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anistream/internal/media"
)

// Policy is the retry budget of one operation.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy allows 10 attempts spaced one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Delay: time.Second}
}

type policyKey struct{}

// WithPolicy overrides the policy used by controllers running under ctx.
func WithPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// Controller runs operations under a Policy.
type Controller struct {
	policy Policy
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// New returns a controller with policy p. A nil logger uses slog.Default.
func New(p Policy, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{policy: p, logger: logger, sleep: sleepCtx}
}

// Policy returns the policy in effect for ctx.
func (c *Controller) Policy(ctx context.Context) Policy {
	p := c.policy
	if override, ok := ctx.Value(policyKey{}).(Policy); ok {
		p = override
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// Permanent reports whether err must not be retried.
func Permanent(err error) bool {
	return errors.Is(err, media.ErrUnsupportedHost) ||
		errors.Is(err, media.ErrParse) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it succeeds, returns a permanent error, ctx ends, or the
// attempt budget runs out. attempt counts from 1. Exhaustion is reported as
// media.ErrExtractionExhausted wrapping the last error.
func (c *Controller) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	p := c.Policy(ctx)

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		if Permanent(last) {
			return fmt.Errorf("%s: %w", op, last)
		}

		c.logger.Debug("attempt failed", "op", op, "attempt", attempt, "max", p.MaxAttempts, "err", last)

		if attempt < p.MaxAttempts {
			if err := c.sleep(ctx, p.Delay); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", op, media.ErrExtractionExhausted, p.MaxAttempts, last)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
