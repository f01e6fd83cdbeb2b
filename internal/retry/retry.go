// Package retry classifies provider failures and drives the per-query-unit
// attempt loop. Rate-limit blocks at the provider last minutes, so their
// backoff grows exponentially; ordinary transient errors (network blips,
// malformed payloads) retry after a short fixed delay. Conflating the two
// either over-throttles benign retries or under-throttles rate-limit storms.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind is the failure classification driving the wait policy.
type Kind int

const (
	KindOrdinary Kind = iota
	KindRateLimit
)

func (k Kind) String() string {
	if k == KindRateLimit {
		return "rate-limit"
	}
	return "ordinary"
}

// rateLimitSignatures are matched case-insensitively against the error text;
// the provider surfaces throttling through HTTP status lines and assorted
// phrasings, never a typed error.
var rateLimitSignatures = []string{
	"429",
	"rate limit",
	"too many requests",
}

// Classify inspects the error text for known rate-limit signatures.
func Classify(err error) Kind {
	if err == nil {
		return KindOrdinary
	}
	text := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(text, sig) {
			return KindRateLimit
		}
	}
	return KindOrdinary
}

// Policy carries the bounds and delay constants of the attempt loop.
type Policy struct {
	MaxAttempts   int
	ErrorDelay    time.Duration
	RateLimitBase time.Duration
}

// Delay computes the wait after a failed attempt. attempt counts from 1 and
// names the attempt that just failed. Only rate-limit failures escalate.
func (p Policy) Delay(kind Kind, attempt int) time.Duration {
	if kind == KindRateLimit {
		if attempt < 1 {
			attempt = 1
		}
		return p.RateLimitBase * time.Duration(1<<(attempt-1))
	}
	return p.ErrorDelay
}

// Controller runs attempt loops under one Policy. The zero value is not
// usable; construct with New.
type Controller struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a controller whose waits block the calling goroutine but abort
// on context cancellation.
func New(policy Policy) *Controller {
	return &Controller{policy: policy, sleep: sleepCtx}
}

// Run executes attempt up to MaxAttempts times. After every failure the
// computed delay is slept and reset is invoked so the caller can discard and
// rebuild its provider session before the next attempt. Returns nil as soon
// as one attempt succeeds, the context error on cancellation, and the last
// attempt error once the budget is exhausted.
func (c *Controller) Run(ctx context.Context, attempt func(context.Context) error, reset func(context.Context) error) error {
	var lastErr error

	for n := 1; n <= c.policy.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		kind := Classify(lastErr)
		if err := c.sleep(ctx, c.policy.Delay(kind, n)); err != nil {
			return err
		}

		if reset != nil {
			if err := reset(ctx); err != nil {
				return fmt.Errorf("reset session: %w", err)
			}
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
