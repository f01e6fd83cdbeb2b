package domain

import "time"

// CollectionMode selects how the tracked-term catalog is partitioned into
// provider queries.
type CollectionMode string

const (
	// ModeIndependent queries one term at a time: every stored value is
	// normalized to that term's own peak in the window, so values are not
	// comparable across terms.
	ModeIndependent CollectionMode = "independent"

	// ModeBatch queries terms in catalog-ordered groups that share one
	// normalization basis, matching what the provider's comparison UI shows.
	ModeBatch CollectionMode = "batch"
)

// QueryUnit is one provider request scope: a singleton term or an ordered
// batch. All values fetched through the same unit share the provider's
// internal 0-100 scaling.
type QueryUnit struct {
	Terms []string
}

// CollectionWindow is the time range requested from the provider plus the
// partial-day cutoff: dates strictly after Cutoff are discarded because the
// provider has not finished aggregating them.
type CollectionWindow struct {
	Start  time.Time
	End    time.Time
	Cutoff time.Time
}

// TimeSeriesPoint is one term's interest value on one date. Identified by
// (term, date); re-collection overwrites.
type TimeSeriesPoint struct {
	Term          string
	Date          time.Time
	InterestValue int
}

// RegionScore is one term's popularity in one region for one collection run.
// Identified by (term, region, collection date). CollectionDate is shared by
// every score of a run so the run reads as a single snapshot.
type RegionScore struct {
	Term            string
	Region          string
	RegionCode      string
	PopularityScore int
	CollectionDate  time.Time
}

// SeriesRow is a raw provider time-series row: one date with the value of
// each term in the query unit.
type SeriesRow struct {
	Date   time.Time
	Values map[string]int
}

// RegionRow is a raw provider region row: one place with the value of each
// term in the query unit.
type RegionRow struct {
	Region string
	Code   string
	Values map[string]int
}

// RunStats accumulates the outcome of one orchestrator execution. Discarded
// after reporting, never persisted.
type RunStats struct {
	UnitsSucceeded int
	UnitsFailed    int
	SeriesPoints   int
	RegionScores   int
}

// RecordsWritten is the total record count across both signals.
func (s RunStats) RecordsWritten() int {
	return s.SeriesPoints + s.RegionScores
}
