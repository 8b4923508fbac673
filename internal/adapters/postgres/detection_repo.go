package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/geodetect/internal/core/domain"
)

// DetectionRepo implements ports.DetectionRepository with pgx.
type DetectionRepo struct {
	db *DB
}

// NewDetectionRepo creates a new DetectionRepo.
func NewDetectionRepo(db *DB) *DetectionRepo {
	return &DetectionRepo{db: db}
}

// Upsert inserts a run or updates its outcome.
func (r *DetectionRepo) Upsert(ctx context.Context, run *domain.DetectionRun) error {
	b := run.BoundingBox
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO detection_runs (id, kind, status, west, south, east, north, prompt,
		                            request, result, feature_count, tile_count, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, result = EXCLUDED.result,
		    feature_count = EXCLUDED.feature_count, error = EXCLUDED.error,
		    completed_at = EXCLUDED.completed_at
	`, run.ID, string(run.Kind), string(run.Status), b.West, b.South, b.East, b.North, run.Prompt,
		nullableJSON(run.Request), nullableJSON(run.Result), run.FeatureCount, run.TileCount,
		run.Error, run.CreatedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert detection run %s: %w", run.ID, err)
	}
	return nil
}

// GetByID returns a run with its request and result.
func (r *DetectionRepo) GetByID(ctx context.Context, id string) (*domain.DetectionRun, error) {
	var (
		run             domain.DetectionRun
		kind, status    string
		request, result []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id::text, kind, status, west, south, east, north, prompt,
		       request, result, feature_count, tile_count, error, created_at, completed_at
		FROM detection_runs WHERE id = $1
	`, id).Scan(
		&run.ID, &kind, &status,
		&run.BoundingBox.West, &run.BoundingBox.South, &run.BoundingBox.East, &run.BoundingBox.North,
		&run.Prompt, &request, &result, &run.FeatureCount, &run.TileCount, &run.Error,
		&run.CreatedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Kind = domain.DetectionKind(kind)
	run.Status = domain.RunStatus(status)
	run.Request = request
	run.Result = result
	return &run, nil
}

// List returns runs newest first without their request and result bodies,
// plus the total number of runs.
func (r *DetectionRepo) List(ctx context.Context, limit, offset int) ([]domain.DetectionRun, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM detection_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, kind, status, west, south, east, north, prompt,
		       feature_count, tile_count, error, created_at, completed_at
		FROM detection_runs
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := make([]domain.DetectionRun, 0, limit)
	for rows.Next() {
		var (
			run          domain.DetectionRun
			kind, status string
		)
		if err := rows.Scan(
			&run.ID, &kind, &status,
			&run.BoundingBox.West, &run.BoundingBox.South, &run.BoundingBox.East, &run.BoundingBox.North,
			&run.Prompt, &run.FeatureCount, &run.TileCount, &run.Error,
			&run.CreatedAt, &run.CompletedAt,
		); err != nil {
			return nil, 0, err
		}
		run.Kind = domain.DetectionKind(kind)
		run.Status = domain.RunStatus(status)
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
