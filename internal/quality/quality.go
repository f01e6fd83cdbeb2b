// Package quality inspects a fetched result set for a single term and flags
// statistically implausible outputs. Findings are diagnostic annotations:
// the orchestrator logs them but never blocks storage on them, since some
// terms genuinely have sparse global interest.
package quality

import "TrendsCollector/internal/domain"

const (
	IssueAllZero       = "all-zero series"
	IssueTooFewRegions = "too few regions"
)

// DefaultMinRegions is the minimum-plausible number of region entries for a
// term with any real global search interest.
const DefaultMinRegions = 10

// Validator holds the tunable thresholds of the checks.
type Validator struct {
	MinRegions int
}

// NewValidator returns a validator with default thresholds.
func NewValidator() Validator {
	return Validator{MinRegions: DefaultMinRegions}
}

// Report lists every issue found for one term. All rules are evaluated
// independently; none short-circuits another.
type Report struct {
	Issues []string
}

// OK reports whether no issue was found.
func (r Report) OK() bool {
	return len(r.Issues) == 0
}

// Validate checks one term's time series and region scores. A non-empty
// series where every value is zero usually means the provider degraded
// rather than true zero interest; a too-short region list suggests a
// truncated region payload.
func (v Validator) Validate(series []domain.TimeSeriesPoint, regions []domain.RegionScore) Report {
	var report Report

	if len(series) > 0 && allZero(series) {
		report.Issues = append(report.Issues, IssueAllZero)
	}

	min := v.MinRegions
	if min <= 0 {
		min = DefaultMinRegions
	}
	if len(regions) < min {
		report.Issues = append(report.Issues, IssueTooFewRegions)
	}

	return report
}

func allZero(series []domain.TimeSeriesPoint) bool {
	for _, p := range series {
		if p.InterestValue != 0 {
			return false
		}
	}
	return true
}
