package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QualityScore is the persisted 1:1 quality record for a trajectory
// (spec.md §3). Correctness/Coherence/Completeness are nil when the basic
// gate short-circuited the filter before computing them.
type QualityScore struct {
	TrajectoryID uuid.UUID
	Correctness  *float64
	Coherence    *float64
	Completeness *float64
	Overall      float64
	PassedFilter bool
	ReviewedAt   time.Time
	Reviewer     *string
}

// SaveQualityScore upserts by trajectory_id.
func (s *Store) SaveQualityScore(ctx context.Context, q QualityScore) error {
	reviewedAt := q.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quality_scores (trajectory_id, correctness, coherence, completeness, overall, passed_filter, reviewed_at, reviewer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trajectory_id) DO UPDATE SET
			correctness = EXCLUDED.correctness,
			coherence = EXCLUDED.coherence,
			completeness = EXCLUDED.completeness,
			overall = EXCLUDED.overall,
			passed_filter = EXCLUDED.passed_filter,
			reviewed_at = EXCLUDED.reviewed_at,
			reviewer = EXCLUDED.reviewer
	`, q.TrajectoryID, q.Correctness, q.Coherence, q.Completeness, q.Overall, q.PassedFilter, reviewedAt, q.Reviewer)
	if err != nil {
		return fmt.Errorf("upsert quality score: %w", err)
	}
	return nil
}

// GetQualityScore returns nil, nil when no score exists for id.
func (s *Store) GetQualityScore(ctx context.Context, id uuid.UUID) (*QualityScore, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT trajectory_id, correctness, coherence, completeness, overall, passed_filter, reviewed_at, reviewer
		FROM quality_scores WHERE trajectory_id = $1
	`, id)
	var q QualityScore
	if err := row.Scan(&q.TrajectoryID, &q.Correctness, &q.Coherence, &q.Completeness, &q.Overall, &q.PassedFilter, &q.ReviewedAt, &q.Reviewer); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan quality score: %w", err)
	}
	return &q, nil
}
