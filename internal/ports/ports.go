package ports

import (
	"context"
	"time"

	"TrendsCollector/internal/domain"
)

// QuerySession is one built provider query for a fixed term set and window.
// Both fetches must run against the same session so the time-series and
// region signals share a normalization basis.
type QuerySession interface {
	FetchTimeSeries(ctx context.Context) ([]domain.SeriesRow, error)
	FetchRegionScores(ctx context.Context) ([]domain.RegionRow, error)
}

// TrendProvider exposes the external trends API. Failures surface as errors
// carrying a human-readable message; the retry controller inspects only that
// text for rate-limit signatures.
type TrendProvider interface {
	BuildQuery(ctx context.Context, terms []string, window domain.CollectionWindow) (QuerySession, error)

	// Reset discards the underlying client/session so no server-side state
	// implicated in a failure is carried into the next attempt.
	Reset(ctx context.Context) error
}

// TrendSink persists collected records. Both upserts are idempotent: keyed
// on (term, date) and (term, region, collection_date) respectively,
// re-submission with the same key overwrites rather than duplicates.
type TrendSink interface {
	UpsertTimeSeries(ctx context.Context, points []domain.TimeSeriesPoint) error
	UpsertRegionScores(ctx context.Context, scores []domain.RegionScore) error
}

// RunNotifier publishes the end-of-run summary to an out-of-band channel.
type RunNotifier interface {
	PublishRunReport(ctx context.Context, report string) error
}

// Scheduler controls when collection runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
