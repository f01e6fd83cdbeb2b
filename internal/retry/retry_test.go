package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want Kind
	}{
		{errors.New("trends explore returned 429 Too Many Requests"), KindRateLimit},
		{errors.New("Rate Limit exceeded"), KindRateLimit},
		{errors.New("TOO MANY REQUESTS"), KindRateLimit},
		{errors.New("dial tcp: connection refused"), KindOrdinary},
		{errors.New("unexpected status 500 Internal Server Error"), KindOrdinary},
		{nil, KindOrdinary},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestPolicyDelay(t *testing.T) {
	t.Parallel()

	p := Policy{ErrorDelay: 15 * time.Second, RateLimitBase: 60 * time.Second}

	if got := p.Delay(KindOrdinary, 1); got != 15*time.Second {
		t.Errorf("ordinary attempt 1: got %v", got)
	}
	if got := p.Delay(KindOrdinary, 3); got != 15*time.Second {
		t.Errorf("ordinary delay must not escalate: got %v", got)
	}
	if got := p.Delay(KindRateLimit, 1); got != 60*time.Second {
		t.Errorf("rate-limit attempt 1: got %v", got)
	}
	if got := p.Delay(KindRateLimit, 2); got != 120*time.Second {
		t.Errorf("rate-limit attempt 2: got %v", got)
	}
	if got := p.Delay(KindRateLimit, 3); got != 240*time.Second {
		t.Errorf("rate-limit attempt 3: got %v", got)
	}
}

func newTestController(policy Policy, slept *[]time.Duration) *Controller {
	c := New(policy)
	c.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c
}

func TestRunExhaustsOnPersistentRateLimit(t *testing.T) {
	t.Parallel()

	base := 60 * time.Second
	var slept []time.Duration
	c := newTestController(Policy{MaxAttempts: 3, ErrorDelay: 15 * time.Second, RateLimitBase: base}, &slept)

	attempts := 0
	resets := 0
	err := c.Run(context.Background(),
		func(context.Context) error {
			attempts++
			return errors.New("429 too many requests")
		},
		func(context.Context) error {
			resets++
			return nil
		},
	)

	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if resets != 3 {
		t.Errorf("resets = %d, want 3", resets)
	}

	want := []time.Duration{base, 2 * base, 4 * base}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestRunOrdinaryFailureUsesFixedDelay(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	c := newTestController(Policy{MaxAttempts: 3, ErrorDelay: 15 * time.Second, RateLimitBase: time.Minute}, &slept)

	err := c.Run(context.Background(),
		func(context.Context) error { return errors.New("connection reset by peer") },
		nil,
	)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}

	for i, d := range slept {
		if d != 15*time.Second {
			t.Errorf("delay %d = %v, want fixed 15s", i, d)
		}
	}
}

func TestRunStopsOnFirstSuccess(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	c := newTestController(Policy{MaxAttempts: 3, ErrorDelay: time.Second, RateLimitBase: time.Second}, &slept)

	attempts := 0
	err := c.Run(context.Background(),
		func(context.Context) error {
			attempts++
			if attempts < 2 {
				return fmt.Errorf("flaky: attempt %d", attempts)
			}
			return nil
		},
		func(context.Context) error { return nil },
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(slept) != 1 {
		t.Errorf("slept %d times, want 1", len(slept))
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	c := New(Policy{MaxAttempts: 3, ErrorDelay: time.Minute, RateLimitBase: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx, func(context.Context) error { return errors.New("never reached") }, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
