// Package planner partitions the tracked-term catalog into query units and
// performs the paired provider fetches for one unit. The partitioning mode
// decides the normalization basis of everything stored downstream: values
// from different units are never directly comparable even though both live
// on a 0-100 scale.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"TrendsCollector/internal/domain"
	"TrendsCollector/internal/ports"
	"TrendsCollector/internal/region"
)

// Plan partitions the catalog into query units. Independent mode yields one
// unit per term; batch mode yields catalog-ordered, non-overlapping chunks of
// up to batchSize terms covering the full catalog.
func Plan(terms []string, mode domain.CollectionMode, batchSize int) []domain.QueryUnit {
	if len(terms) == 0 {
		return nil
	}

	if mode == domain.ModeIndependent {
		units := make([]domain.QueryUnit, 0, len(terms))
		for _, term := range terms {
			units = append(units, domain.QueryUnit{Terms: []string{term}})
		}
		return units
	}

	if batchSize < 1 {
		batchSize = 1
	}
	units := make([]domain.QueryUnit, 0, (len(terms)+batchSize-1)/batchSize)
	for start := 0; start < len(terms); start += batchSize {
		end := start + batchSize
		if end > len(terms) {
			end = len(terms)
		}
		units = append(units, domain.QueryUnit{Terms: terms[start:end]})
	}
	return units
}

// Window computes the collection window once per run: the trailing windowDays
// ending now, with a cutoff excluding the last exclusionDays of partially
// aggregated provider data.
func Window(now time.Time, windowDays, exclusionDays int) domain.CollectionWindow {
	end := now.UTC().Truncate(24 * time.Hour)
	return domain.CollectionWindow{
		Start:  end.AddDate(0, 0, -windowDays),
		End:    end,
		Cutoff: end.AddDate(0, 0, -exclusionDays),
	}
}

// UnitResult is the flattened output of one query unit: cutoff-filtered
// series points (zero values retained for the validator) and normalized,
// snapshot-stamped region scores.
type UnitResult struct {
	Series  []domain.TimeSeriesPoint
	Regions []domain.RegionScore
}

// Planner drives the paired fetches for one query unit against the provider.
type Planner struct {
	provider ports.TrendProvider
	limiter  *rate.Limiter
	logger   *slog.Logger

	// Jitter returns the randomized component of each pacing pause; nil
	// disables it.
	Jitter func() time.Duration
}

// New wires the provider with a pacing limiter. The limiter enforces the
// fixed inter-request delay; a randomized pause is layered on top of it to
// avoid a detectable request pattern. Neither is a correctness requirement.
func New(provider ports.TrendProvider, limiter *rate.Limiter, logger *slog.Logger) *Planner {
	return &Planner{
		provider: provider,
		limiter:  limiter,
		logger:   logger,
		Jitter: func() time.Duration {
			return time.Duration(500+rand.Intn(1000)) * time.Millisecond
		},
	}
}

// Fetch builds one query session for the unit and window, fetches both
// signals through it, drops partial days from the series, and normalizes
// region names. collectionDate stamps every region score of the run so the
// run reads as one snapshot.
func (p *Planner) Fetch(ctx context.Context, unit domain.QueryUnit, window domain.CollectionWindow, collectionDate time.Time) (UnitResult, error) {
	if err := p.pause(ctx); err != nil {
		return UnitResult{}, err
	}

	session, err := p.provider.BuildQuery(ctx, unit.Terms, window)
	if err != nil {
		return UnitResult{}, fmt.Errorf("build query: %w", err)
	}

	seriesRows, err := session.FetchTimeSeries(ctx)
	if err != nil {
		return UnitResult{}, fmt.Errorf("fetch time series: %w", err)
	}

	if err := p.pause(ctx); err != nil {
		return UnitResult{}, err
	}

	regionRows, err := session.FetchRegionScores(ctx)
	if err != nil {
		return UnitResult{}, fmt.Errorf("fetch region scores: %w", err)
	}

	result := UnitResult{
		Series:  flattenSeries(seriesRows, unit.Terms, window.Cutoff),
		Regions: flattenRegions(regionRows, unit.Terms, collectionDate),
	}

	if p.logger != nil {
		p.logger.Debug("unit fetched",
			"terms", unit.Terms,
			"series_points", len(result.Series),
			"region_scores", len(result.Regions))
	}

	return result, nil
}

// pause applies the fixed pacing delay plus a short randomized component.
func (p *Planner) pause(ctx context.Context) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if p.Jitter == nil {
		return ctx.Err()
	}
	d := p.Jitter()
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

// flattenSeries turns provider rows into per-term points, dropping any date
// strictly after the cutoff: the provider has not finished aggregating those
// days, and storing them would corrupt the all-zero heuristic and understate
// values on re-collection. Zero values are kept here so the validator can
// see them.
func flattenSeries(rows []domain.SeriesRow, terms []string, cutoff time.Time) []domain.TimeSeriesPoint {
	points := make([]domain.TimeSeriesPoint, 0, len(rows)*len(terms))
	for _, row := range rows {
		if row.Date.After(cutoff) {
			continue
		}
		for _, term := range terms {
			points = append(points, domain.TimeSeriesPoint{
				Term:          term,
				Date:          row.Date,
				InterestValue: row.Values[term],
			})
		}
	}
	return points
}

// flattenRegions turns provider rows into per-term scores with canonical
// region names. A zero score means the provider had insufficient data for
// that place, not zero interest; those entries carry no signal and are
// dropped before the validator counts regions.
func flattenRegions(rows []domain.RegionRow, terms []string, collectionDate time.Time) []domain.RegionScore {
	scores := make([]domain.RegionScore, 0, len(rows))
	for _, row := range rows {
		name := region.Normalize(row.Region)
		for _, term := range terms {
			value, ok := row.Values[term]
			if !ok || value == 0 {
				continue
			}
			scores = append(scores, domain.RegionScore{
				Term:            term,
				Region:          name,
				RegionCode:      row.Code,
				PopularityScore: value,
				CollectionDate:  collectionDate,
			})
		}
	}
	return scores
}
