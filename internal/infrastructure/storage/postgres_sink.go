package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"TrendsCollector/internal/domain"
	"TrendsCollector/internal/ports"
)

// defaultChunkSize bounds one upsert statement; a tuning parameter for
// payload-size limits, not a correctness boundary.
const defaultChunkSize = 100

// PostgresSink persists collected trend records into Postgres. Both upserts
// are idempotent through their ON CONFLICT keys, so re-collection overwrites
// rather than duplicates.
type PostgresSink struct {
	db        *sql.DB
	builder   sq.StatementBuilderType
	chunkSize int
}

var _ ports.TrendSink = (*PostgresSink)(nil)

// NewPostgresSink wires a sql.DB implementation.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{
		db:        db,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		chunkSize: defaultChunkSize,
	}
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// UpsertTimeSeries writes interest points keyed on (term, date).
func (s *PostgresSink) UpsertTimeSeries(ctx context.Context, points []domain.TimeSeriesPoint) error {
	if s.db == nil || len(points) == 0 {
		return nil
	}

	for _, batch := range chunk(points, s.chunkSize) {
		query, args, err := s.buildSeriesUpsert(batch)
		if err != nil {
			return fmt.Errorf("build series upsert: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert time series batch: %w", err)
		}
	}
	return nil
}

// UpsertRegionScores writes region snapshots keyed on
// (term, region, collection_date).
func (s *PostgresSink) UpsertRegionScores(ctx context.Context, scores []domain.RegionScore) error {
	if s.db == nil || len(scores) == 0 {
		return nil
	}

	for _, batch := range chunk(scores, s.chunkSize) {
		query, args, err := s.buildRegionUpsert(batch)
		if err != nil {
			return fmt.Errorf("build region upsert: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert region scores batch: %w", err)
		}
	}
	return nil
}

// DistinctRegions lists every canonical region name present in storage, for
// the region audit command.
func (s *PostgresSink) DistinctRegions(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, nil
	}

	query, args, err := s.builder.
		Select("DISTINCT region").
		From("trend_region_scores").
		OrderBy("region").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distinct regions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query distinct regions: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return regions, nil
}

func (s *PostgresSink) buildSeriesUpsert(points []domain.TimeSeriesPoint) (string, []interface{}, error) {
	builder := s.builder.
		Insert("trend_time_series").
		Columns("term", "date", "interest_value")

	for _, p := range points {
		builder = builder.Values(p.Term, p.Date, p.InterestValue)
	}

	return builder.Suffix(`ON CONFLICT (term, date) DO UPDATE
              SET interest_value = EXCLUDED.interest_value,
                  updated_at = NOW()`).ToSql()
}

func (s *PostgresSink) buildRegionUpsert(scores []domain.RegionScore) (string, []interface{}, error) {
	builder := s.builder.
		Insert("trend_region_scores").
		Columns("term", "region", "region_code", "popularity_score", "collection_date")

	for _, sc := range scores {
		builder = builder.Values(sc.Term, sc.Region, nullString(sc.RegionCode), sc.PopularityScore, sc.CollectionDate)
	}

	return builder.Suffix(`ON CONFLICT (term, region, collection_date) DO UPDATE
              SET popularity_score = EXCLUDED.popularity_score,
                  region_code = EXCLUDED.region_code,
                  updated_at = NOW()`).ToSql()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
