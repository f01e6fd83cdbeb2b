package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"TrendsCollector/internal/domain"
	"TrendsCollector/internal/planner"
	"TrendsCollector/internal/ports"
	"TrendsCollector/internal/quality"
	"TrendsCollector/internal/retry"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

// stubProvider serves canned rows per term and can fail whole units.
type stubProvider struct {
	series   map[string][]domain.SeriesRow
	regions  map[string][]domain.RegionRow
	failTerm string
	failWith error

	resets int
}

func (p *stubProvider) BuildQuery(_ context.Context, terms []string, _ domain.CollectionWindow) (ports.QuerySession, error) {
	for _, term := range terms {
		if term == p.failTerm && p.failWith != nil {
			return nil, p.failWith
		}
	}
	return &stubSession{provider: p, terms: terms}, nil
}

func (p *stubProvider) Reset(context.Context) error {
	p.resets++
	return nil
}

type stubSession struct {
	provider *stubProvider
	terms    []string
}

func (s *stubSession) FetchTimeSeries(context.Context) ([]domain.SeriesRow, error) {
	var rows []domain.SeriesRow
	for _, term := range s.terms {
		rows = append(rows, s.provider.series[term]...)
	}
	return rows, nil
}

func (s *stubSession) FetchRegionScores(context.Context) ([]domain.RegionRow, error) {
	var rows []domain.RegionRow
	for _, term := range s.terms {
		rows = append(rows, s.provider.regions[term]...)
	}
	return rows, nil
}

// memorySink stores records keyed the way the real sink's conflict clauses
// key them, so re-submission overwrites.
type memorySink struct {
	points map[string]domain.TimeSeriesPoint
	scores map[string]domain.RegionScore
	fail   bool
}

func newMemorySink() *memorySink {
	return &memorySink{
		points: map[string]domain.TimeSeriesPoint{},
		scores: map[string]domain.RegionScore{},
	}
}

func (s *memorySink) UpsertTimeSeries(_ context.Context, points []domain.TimeSeriesPoint) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	for _, p := range points {
		s.points[p.Term+"|"+p.Date.Format(time.DateOnly)] = p
	}
	return nil
}

func (s *memorySink) UpsertRegionScores(_ context.Context, scores []domain.RegionScore) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	for _, sc := range scores {
		s.scores[sc.Term+"|"+sc.Region+"|"+sc.CollectionDate.Format(time.DateOnly)] = sc
	}
	return nil
}

func newTestCollector(provider ports.TrendProvider, sink ports.TrendSink, params CollectorParams) *Collector {
	pl := planner.New(provider, nil, nil)
	pl.Jitter = nil

	controller := retry.New(retry.Policy{
		MaxAttempts:   3,
		ErrorDelay:    time.Millisecond,
		RateLimitBase: time.Millisecond,
	})

	return NewCollector(CollectorDeps{
		Provider:  provider,
		Sink:      sink,
		Planner:   pl,
		Retry:     controller,
		Validator: quality.NewValidator(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return day(10) },
	}, params)
}

func seriesRows(term string, values map[int]int) []domain.SeriesRow {
	var rows []domain.SeriesRow
	for d, v := range values {
		rows = append(rows, domain.SeriesRow{Date: day(d), Values: map[string]int{term: v}})
	}
	return rows
}

func TestRunIndependentModeEndToEnd(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		series: map[string][]domain.SeriesRow{
			"covid": seriesRows("covid", map[int]int{1: 10, 2: 100}),
			"ebola": seriesRows("ebola", map[int]int{1: 100, 2: 5}),
		},
		regions: map[string][]domain.RegionRow{},
	}
	sink := newMemorySink()

	collector := newTestCollector(provider, sink, CollectorParams{
		Terms:         []string{"covid", "ebola"},
		Mode:          domain.ModeIndependent,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	stats, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.UnitsSucceeded != 2 || stats.UnitsFailed != 0 {
		t.Errorf("stats = %+v, want 2 succeeded / 0 failed", stats)
	}
	if stats.SeriesPoints != 4 {
		t.Errorf("series points written = %d, want 4", stats.SeriesPoints)
	}
	if len(sink.points) != 4 {
		t.Errorf("sink holds %d points, want 4", len(sink.points))
	}

	got := sink.points["covid|2024-01-02"]
	if got.InterestValue != 100 {
		t.Errorf("covid 2024-01-02 = %d, want 100", got.InterestValue)
	}
}

func TestRunRateLimitedUnitExhaustsOthersSucceed(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		series: map[string][]domain.SeriesRow{
			"covid":   seriesRows("covid", map[int]int{1: 10}),
			"measles": seriesRows("measles", map[int]int{1: 30}),
			"polio":   seriesRows("polio", map[int]int{1: 7}),
		},
		regions:  map[string][]domain.RegionRow{},
		failTerm: "measles",
		failWith: errors.New("trends explore returned 429 Too Many Requests"),
	}
	sink := newMemorySink()

	collector := newTestCollector(provider, sink, CollectorParams{
		Terms:         []string{"covid", "measles", "polio"},
		Mode:          domain.ModeBatch,
		BatchSize:     1,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	stats, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("partial success must not be an error, got %v", err)
	}

	if stats.UnitsSucceeded != 2 {
		t.Errorf("succeeded = %d, want 2", stats.UnitsSucceeded)
	}
	if stats.UnitsFailed != 1 {
		t.Errorf("failed = %d, want 1", stats.UnitsFailed)
	}
	if provider.resets != 3 {
		t.Errorf("session resets = %d, want one per failed attempt (3)", provider.resets)
	}
	if _, ok := sink.points["measles|2024-01-01"]; ok {
		t.Error("exhausted unit must not write records")
	}
}

func TestRunHardFailureWhenNothingSucceeds(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		failTerm: "covid",
		failWith: errors.New("upstream gone"),
	}

	collector := newTestCollector(provider, newMemorySink(), CollectorParams{
		Terms:         []string{"covid"},
		Mode:          domain.ModeIndependent,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	stats, err := collector.Run(context.Background())
	if err == nil {
		t.Fatal("expected hard failure when zero units succeed")
	}
	if stats.UnitsSucceeded != 0 || stats.UnitsFailed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunEmptyPayloadCountsAsSuccess(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		series:  map[string][]domain.SeriesRow{},
		regions: map[string][]domain.RegionRow{},
	}
	sink := newMemorySink()

	collector := newTestCollector(provider, sink, CollectorParams{
		Terms:         []string{"marburg virus"},
		Mode:          domain.ModeIndependent,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	stats, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.UnitsSucceeded != 1 {
		t.Errorf("empty payload should still succeed, stats = %+v", stats)
	}
	if len(sink.points) != 0 || len(sink.scores) != 0 {
		t.Error("nothing should be written for an empty payload")
	}
}

func TestRunSinkFailureCountsUnitFailed(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		series: map[string][]domain.SeriesRow{
			"covid": seriesRows("covid", map[int]int{1: 10}),
		},
		regions: map[string][]domain.RegionRow{},
	}
	sink := newMemorySink()
	sink.fail = true

	collector := newTestCollector(provider, sink, CollectorParams{
		Terms:         []string{"covid"},
		Mode:          domain.ModeIndependent,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	_, err := collector.Run(context.Background())
	if err == nil {
		t.Fatal("expected hard failure: the only unit could not be stored")
	}
}

func TestRunDropsZeroValuedPointsAfterValidation(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		series: map[string][]domain.SeriesRow{
			"covid": seriesRows("covid", map[int]int{1: 0, 2: 12, 3: 0}),
		},
		regions: map[string][]domain.RegionRow{},
	}
	sink := newMemorySink()

	collector := newTestCollector(provider, sink, CollectorParams{
		Terms:         []string{"covid"},
		Mode:          domain.ModeIndependent,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	stats, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.SeriesPoints != 1 {
		t.Errorf("series points = %d, want 1 (zeros dropped)", stats.SeriesPoints)
	}
	if _, ok := sink.points["covid|2024-01-02"]; !ok {
		t.Error("non-zero point missing from sink")
	}
}

func TestRunCancellationAbortsBetweenUnits(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		series: map[string][]domain.SeriesRow{
			"covid": seriesRows("covid", map[int]int{1: 10}),
		},
		regions: map[string][]domain.RegionRow{},
	}

	collector := newTestCollector(provider, newMemorySink(), CollectorParams{
		Terms:         []string{"covid", "ebola"},
		Mode:          domain.ModeIndependent,
		WindowDays:    30,
		ExclusionDays: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := collector.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUpsertOverwritesOnSameKey(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	ctx := context.Background()

	first := domain.TimeSeriesPoint{Term: "covid", Date: day(1), InterestValue: 10}
	second := domain.TimeSeriesPoint{Term: "covid", Date: day(1), InterestValue: 42}

	if err := sink.UpsertTimeSeries(ctx, []domain.TimeSeriesPoint{first}); err != nil {
		t.Fatal(err)
	}
	if err := sink.UpsertTimeSeries(ctx, []domain.TimeSeriesPoint{second}); err != nil {
		t.Fatal(err)
	}

	if len(sink.points) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(sink.points))
	}
	if got := sink.points["covid|2024-01-01"].InterestValue; got != 42 {
		t.Errorf("stored value = %d, want the second write (42)", got)
	}
}

func TestBuildRunReport(t *testing.T) {
	t.Parallel()

	report := buildRunReport(domain.RunStats{
		UnitsSucceeded: 3,
		UnitsFailed:    1,
		SeriesPoints:   120,
		RegionScores:   340,
	}, 4)

	for _, want := range []string{"3/4", "1 failed", "120", "340", fmt.Sprint(460)} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
