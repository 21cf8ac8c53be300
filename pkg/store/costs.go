package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordCost appends a cost record. Rows are never mutated after insert.
func (s *Store) RecordCost(ctx context.Context, model string, inputTokens, outputTokens int, costCents int64, taskID *string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cost_records (id, model, input_tokens, output_tokens, cost_cents, task_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, uuid.New(), model, inputTokens, outputTokens, costCents, taskID)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

// DailyCostCents sums cost_cents recorded since the given time.
func (s *Store) DailyCostCents(ctx context.Context, since time.Time) (int64, error) {
	return s.sumCostSince(ctx, since)
}

// MonthlyCostCents sums cost_cents recorded since the given time.
func (s *Store) MonthlyCostCents(ctx context.Context, since time.Time) (int64, error) {
	return s.sumCostSince(ctx, since)
}

func (s *Store) sumCostSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_cents), 0) FROM cost_records WHERE recorded_at >= $1
	`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cost records: %w", err)
	}
	return total, nil
}
