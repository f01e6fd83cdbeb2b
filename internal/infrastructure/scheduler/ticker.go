package scheduler

import (
	"context"
	"time"

	"TrendsCollector/internal/ports"
)

// TickerScheduler fires collection runs on a fixed interval for daemon mode.
// Scheduled one-shot invocation (cron/CI) does not use it.
type TickerScheduler struct {
	interval time.Duration
	stop     chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the given run interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &TickerScheduler{interval: interval}
}

// Start runs the job immediately and then on every tick until stopped.
func (t *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	if t.stop != nil {
		return nil
	}

	t.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case trigger := <-ticker.C:
				job(trigger)
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (t *TickerScheduler) Stop(ctx context.Context) error {
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}
