package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

// Store persists satellite grids, bulk-imported observations, and fused
// results in Postgres. It implements engine.SatelliteSource,
// engine.BulkImportSource, and engine.ResultStore. Grid cells and fused
// payloads are stored as JSONB.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// GridsByTimeRange loads grids for one product whose observation time falls
// in [start, end) and whose bounding box overlaps bbox.
func (s *Store) GridsByTimeRange(ctx context.Context, product string, start, end time.Time, bbox domain.BoundingBox) ([]domain.SatelliteGrid, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, product, pollutant, observation_time, fetch_time,
       bbox_north, bbox_south, bbox_east, bbox_west, quality, cells
FROM satellite_grids
WHERE product = $1
  AND observation_time >= $2 AND observation_time < $3
  AND bbox_south <= $4 AND bbox_north >= $5
  AND bbox_west <= $6 AND bbox_east >= $7
ORDER BY observation_time`,
		product, start, end, bbox.North, bbox.South, bbox.East, bbox.West)
	if err != nil {
		return nil, fmt.Errorf("query satellite grids: %w", err)
	}
	defer rows.Close()

	var grids []domain.SatelliteGrid
	for rows.Next() {
		var (
			g        domain.SatelliteGrid
			cellsRaw []byte
		)
		if err := rows.Scan(&g.ID, &g.Product, &g.Pollutant, &g.ObservationTime, &g.FetchTime,
			&g.BBox.North, &g.BBox.South, &g.BBox.East, &g.BBox.West, &g.Quality, &cellsRaw); err != nil {
			return nil, fmt.Errorf("scan satellite grid: %w", err)
		}
		if err := json.Unmarshal(cellsRaw, &g.Cells); err != nil {
			return nil, fmt.Errorf("decode cells for grid %s: %w", g.ID, err)
		}
		grids = append(grids, g)
	}
	return grids, rows.Err()
}

// SaveGrid upserts one satellite grid, keyed by product and observation time
// so re-fetches replace stale data.
func (s *Store) SaveGrid(ctx context.Context, g domain.SatelliteGrid) error {
	cells, err := json.Marshal(g.Cells)
	if err != nil {
		return fmt.Errorf("encode cells: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO satellite_grids (id, product, pollutant, observation_time, fetch_time,
    bbox_north, bbox_south, bbox_east, bbox_west, quality, cells)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (product, observation_time) DO UPDATE
SET fetch_time = EXCLUDED.fetch_time,
    quality = EXCLUDED.quality,
    cells = EXCLUDED.cells`,
		g.ID, g.Product, g.Pollutant, g.ObservationTime, g.FetchTime,
		g.BBox.North, g.BBox.South, g.BBox.East, g.BBox.West, g.Quality, cells)
	if err != nil {
		return fmt.Errorf("save satellite grid: %w", err)
	}
	return nil
}

// RecordsByTimeRange loads bulk-imported observations in [start, end).
func (s *Store) RecordsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.ImportedObservation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT lat, lon, value, pollutant, observed_at
FROM imported_observations
WHERE observed_at >= $1 AND observed_at < $2
ORDER BY observed_at`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query imported observations: %w", err)
	}
	defer rows.Close()

	var records []domain.ImportedObservation
	for rows.Next() {
		var r domain.ImportedObservation
		if err := rows.Scan(&r.Lat, &r.Lon, &r.Value, &r.Pollutant, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan imported observation: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveImportedRecords inserts a batch of bulk-imported observations.
func (s *Store) SaveImportedRecords(ctx context.Context, records []domain.ImportedObservation) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO imported_observations (lat, lon, value, pollutant, observed_at, imported_at)
VALUES ($1,$2,$3,$4,$5,NOW())`
	for _, r := range records {
		batch.Queue(query, r.Lat, r.Lon, r.Value, r.Pollutant, r.Timestamp)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range records {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("insert imported observation: %w", err)
		}
	}
	return nil
}

// SaveFusedResult persists one fusion run. The full result, points included,
// is stored as the JSONB payload; the scalar columns exist for querying.
func (s *Store) SaveFusedResult(ctx context.Context, result domain.FusedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode fused result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO fused_results (id, pollutant, time_range_start, time_range_end,
    point_count, average_confidence, created_at, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		result.ID, result.Pollutant, result.TimeRangeStart, result.TimeRangeEnd,
		len(result.Points), result.AverageConfidence, result.CreatedAt, payload)
	if err != nil {
		return fmt.Errorf("save fused result: %w", err)
	}
	return nil
}

// LatestFusedResult returns the most recent run for a pollutant, or nil when
// none is stored.
func (s *Store) LatestFusedResult(ctx context.Context, pollutant string) (*domain.FusedResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
SELECT payload
FROM fused_results
WHERE pollutant = $1
ORDER BY created_at DESC
LIMIT 1`, pollutant).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest fused result: %w", err)
	}

	var result domain.FusedResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode fused result: %w", err)
	}
	return &result, nil
}

// FusedResultByID loads one run by its identifier, or nil when absent.
func (s *Store) FusedResultByID(ctx context.Context, id uuid.UUID) (*domain.FusedResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM fused_results WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fused result: %w", err)
	}

	var result domain.FusedResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode fused result: %w", err)
	}
	return &result, nil
}

// DeleteFusedResultsOlderThan removes runs created before the cutoff and
// returns how many were deleted.
func (s *Store) DeleteFusedResultsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fused_results WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete fused results: %w", err)
	}
	return tag.RowsAffected(), nil
}
