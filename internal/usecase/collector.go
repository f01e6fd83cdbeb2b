package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"TrendsCollector/internal/domain"
	"TrendsCollector/internal/planner"
	"TrendsCollector/internal/ports"
	"TrendsCollector/internal/quality"
	"TrendsCollector/internal/retry"
)

// CollectorDeps wires all collaborators into the collection orchestrator.
type CollectorDeps struct {
	Provider  ports.TrendProvider
	Sink      ports.TrendSink
	Planner   *planner.Planner
	Retry     *retry.Controller
	Validator quality.Validator
	Notifier  ports.RunNotifier
	Logger    *slog.Logger
	Now       func() time.Time
}

// CollectorParams are the per-run settings resolved from configuration.
type CollectorParams struct {
	Terms         []string
	Mode          domain.CollectionMode
	BatchSize     int
	WindowDays    int
	ExclusionDays int
}

// Collector drives one end-to-end collection run: plan units, fetch each one
// under the retry loop, validate, and hand record batches to the sink. Units
// run strictly sequentially; the provider enforces a shared global rate limit
// that concurrent requests would violate immediately.
type Collector struct {
	provider  ports.TrendProvider
	sink      ports.TrendSink
	planner   *planner.Planner
	retry     *retry.Controller
	validator quality.Validator
	notifier  ports.RunNotifier
	logger    *slog.Logger
	now       func() time.Time
	params    CollectorParams
}

// NewCollector constructs the orchestrator.
func NewCollector(deps CollectorDeps, params CollectorParams) *Collector {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		provider:  deps.Provider,
		sink:      deps.Sink,
		planner:   deps.Planner,
		retry:     deps.Retry,
		validator: deps.Validator,
		notifier:  deps.Notifier,
		logger:    logger,
		now:       now,
		params:    params,
	}
}

// Run executes one collection pass. A failing unit never aborts the run;
// the returned error is non-nil only for cancellation or when zero units
// succeeded, so a single noisy term cannot fail a whole scheduled run.
func (c *Collector) Run(ctx context.Context) (domain.RunStats, error) {
	var stats domain.RunStats

	units := planner.Plan(c.params.Terms, c.params.Mode, c.params.BatchSize)
	if len(units) == 0 {
		c.logger.Warn("term catalog is empty, nothing to collect")
		return stats, nil
	}

	window := planner.Window(c.now(), c.params.WindowDays, c.params.ExclusionDays)
	collectionDate := window.End

	c.logger.Info("run started",
		"mode", string(c.params.Mode),
		"units", len(units),
		"window_start", window.Start.Format(time.DateOnly),
		"window_end", window.End.Format(time.DateOnly),
		"cutoff", window.Cutoff.Format(time.DateOnly))

	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		c.logger.Info("fetching unit", "unit", i+1, "of", len(units), "terms", unit.Terms)

		var result planner.UnitResult
		err := c.retry.Run(ctx,
			func(ctx context.Context) error {
				fetched, fetchErr := c.planner.Fetch(ctx, unit, window, collectionDate)
				if fetchErr != nil {
					return fetchErr
				}
				result = fetched
				return nil
			},
			func(ctx context.Context) error {
				return c.provider.Reset(ctx)
			},
		)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.UnitsFailed++
			c.logger.Error("query unit exhausted retries",
				"unit", i+1, "terms", unit.Terms, "error", truncate(err.Error(), 120))
			continue
		}

		// An entirely empty payload counts as a non-retried success (sparse
		// batches are legitimate) but is indistinguishable from a silent
		// provider failure, so it gets its own log line.
		if len(result.Series) == 0 && len(result.Regions) == 0 {
			c.logger.Warn("unit returned no data for any term", "unit", i+1, "terms", unit.Terms)
		}

		c.annotateQuality(unit, result)

		if err := c.store(ctx, result, &stats); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.UnitsFailed++
			c.logger.Error("store unit records",
				"unit", i+1, "terms", unit.Terms, "error", truncate(err.Error(), 120))
			continue
		}

		stats.UnitsSucceeded++
	}

	c.report(ctx, stats, len(units))

	if stats.UnitsSucceeded == 0 {
		return stats, fmt.Errorf("all %d query units failed", len(units))
	}
	return stats, nil
}

// annotateQuality runs the per-term diagnostics and logs findings. Issues
// never block storage: some terms genuinely have sparse global interest.
func (c *Collector) annotateQuality(unit domain.QueryUnit, result planner.UnitResult) {
	for _, term := range unit.Terms {
		report := c.validator.Validate(seriesFor(result.Series, term), regionsFor(result.Regions, term))
		for _, issue := range report.Issues {
			c.logger.Warn("data quality issue", "term", term, "issue", issue)
		}
	}
}

// store hands the unit's record batches to the sink. Zero-valued series
// points carry no signal (the provider uses 0 for "insufficient data") and
// are dropped here, after validation has already seen them.
func (c *Collector) store(ctx context.Context, result planner.UnitResult, stats *domain.RunStats) error {
	points := dropZeroPoints(result.Series)

	if len(points) > 0 {
		if err := c.sink.UpsertTimeSeries(ctx, points); err != nil {
			return fmt.Errorf("upsert time series: %w", err)
		}
		stats.SeriesPoints += len(points)
	}

	if len(result.Regions) > 0 {
		if err := c.sink.UpsertRegionScores(ctx, result.Regions); err != nil {
			return fmt.Errorf("upsert region scores: %w", err)
		}
		stats.RegionScores += len(result.Regions)
	}

	return nil
}

func (c *Collector) report(ctx context.Context, stats domain.RunStats, units int) {
	c.logger.Info("run completed",
		"succeeded", stats.UnitsSucceeded,
		"failed", stats.UnitsFailed,
		"series_points", stats.SeriesPoints,
		"region_scores", stats.RegionScores,
		"records", stats.RecordsWritten())

	if stats.UnitsFailed > 0 && stats.UnitsSucceeded > 0 {
		c.logger.Warn("run finished with partial success",
			"succeeded", stats.UnitsSucceeded, "failed", stats.UnitsFailed)
	}

	if c.notifier == nil {
		return
	}
	if err := c.notifier.PublishRunReport(ctx, buildRunReport(stats, units)); err != nil {
		c.logger.Error("publish run report", "error", err)
	}
}

func buildRunReport(stats domain.RunStats, units int) string {
	return fmt.Sprintf("Trends collection: %d/%d units succeeded, %d failed\nTime-series points: %d\nRegion scores: %d\nTotal records: %d",
		stats.UnitsSucceeded, units, stats.UnitsFailed,
		stats.SeriesPoints, stats.RegionScores, stats.RecordsWritten())
}

func seriesFor(points []domain.TimeSeriesPoint, term string) []domain.TimeSeriesPoint {
	var out []domain.TimeSeriesPoint
	for _, p := range points {
		if p.Term == term {
			out = append(out, p)
		}
	}
	return out
}

func regionsFor(scores []domain.RegionScore, term string) []domain.RegionScore {
	var out []domain.RegionScore
	for _, s := range scores {
		if s.Term == term {
			out = append(out, s)
		}
	}
	return out
}

func dropZeroPoints(points []domain.TimeSeriesPoint) []domain.TimeSeriesPoint {
	out := make([]domain.TimeSeriesPoint, 0, len(points))
	for _, p := range points {
		if p.InterestValue > 0 {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
