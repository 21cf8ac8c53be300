package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// SaveTrajectory upserts the trajectory header and replaces its step rows
// inside a single transaction: delete-then-reinsert steps keeps the save
// idempotent regardless of how many times a trajectory is re-persisted
// (e.g. the orchestrator saves once on quality-filter pass, and the caller
// may resave after later re-evaluation), and the single transaction makes
// partial writes impossible.
func (s *Store) SaveTrajectory(ctx context.Context, t *trajectory.Trajectory) error {
	finalResult, err := json.Marshal(t.FinalResult)
	if err != nil {
		return fmt.Errorf("marshal final_result: %w", err)
	}
	tokenUsage, err := json.Marshal(t.TokenUsage)
	if err != nil {
		return fmt.Errorf("marshal token_usage: %w", err)
	}
	var metadata []byte
	if t.Metadata != nil {
		metadata, err = json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO trajectories (id, task_id, model, scaffold_type, total_reward, final_result, duration_seconds, token_usage, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE SET
			task_id = EXCLUDED.task_id,
			model = EXCLUDED.model,
			scaffold_type = EXCLUDED.scaffold_type,
			total_reward = EXCLUDED.total_reward,
			final_result = EXCLUDED.final_result,
			duration_seconds = EXCLUDED.duration_seconds,
			token_usage = EXCLUDED.token_usage,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, t.ID, t.TaskID, t.Model, t.ScaffoldType, t.TotalReward, finalResult, t.DurationSecs, tokenUsage, metadata, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert trajectory: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM trajectory_steps WHERE trajectory_id = $1`, t.ID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}

	for _, step := range t.Steps {
		state, err := json.Marshal(step.State)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		action, err := json.Marshal(step.Action)
		if err != nil {
			return fmt.Errorf("marshal action: %w", err)
		}
		obs, err := json.Marshal(step.Observation)
		if err != nil {
			return fmt.Errorf("marshal observation: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO trajectory_steps (trajectory_id, step_number, state, action, observation, reward, done, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.ID, int32(step.StepNumber), state, action, obs, step.Reward, step.Done, step.Timestamp)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", step.StepNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTrajectory reassembles a trajectory header and its steps, sorted by
// step_number, from a single id.
func (s *Store) GetTrajectory(ctx context.Context, id uuid.UUID) (*trajectory.Trajectory, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, task_id, model, scaffold_type, total_reward, final_result, duration_seconds, token_usage, metadata, created_at
		FROM trajectories WHERE id = $1
	`, id)

	t := &trajectory.Trajectory{SchemaVersion: trajectory.SchemaVersion}
	var finalResult, tokenUsage, metadata []byte
	if err := row.Scan(&t.ID, &t.TaskID, &t.Model, &t.ScaffoldType, &t.TotalReward, &finalResult, &t.DurationSecs, &tokenUsage, &metadata, &t.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan trajectory: %w", err)
	}
	if err := json.Unmarshal(finalResult, &t.FinalResult); err != nil {
		return nil, fmt.Errorf("unmarshal final_result: %w", err)
	}
	if err := json.Unmarshal(tokenUsage, &t.TokenUsage); err != nil {
		return nil, fmt.Errorf("unmarshal token_usage: %w", err)
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT step_number, state, action, observation, reward, done, timestamp
		FROM trajectory_steps WHERE trajectory_id = $1 ORDER BY step_number ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step trajectory.Step
		var state, action, obs []byte
		var stepNumber int32
		if err := rows.Scan(&stepNumber, &state, &action, &obs, &step.Reward, &step.Done, &step.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.StepNumber = uint32(stepNumber)
		if err := json.Unmarshal(state, &step.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		if err := json.Unmarshal(action, &step.Action); err != nil {
			return nil, fmt.Errorf("unmarshal action: %w", err)
		}
		if err := json.Unmarshal(obs, &step.Observation); err != nil {
			return nil, fmt.Errorf("unmarshal observation: %w", err)
		}
		t.Steps = append(t.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	return t, nil
}

// ListFilter narrows ListTrajectories. Zero values mean "no filter" except
// Limit, which defaults to 100 when zero.
type ListFilter struct {
	TaskID        string
	Model         string
	MinReward     *float64
	PassedQuality *bool
	Limit         int
	Offset        int
}

// ListTrajectories returns trajectory headers (without steps, for listing
// efficiency) matching filter, most recent first.
func (s *Store) ListTrajectories(ctx context.Context, filter ListFilter) ([]*trajectory.Trajectory, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT t.id, t.task_id, t.model, t.scaffold_type, t.total_reward, t.final_result, t.duration_seconds, t.token_usage, t.metadata, t.created_at
		FROM trajectories t`
	args := []any{}
	where := []string{}

	if filter.PassedQuality != nil {
		query += ` JOIN quality_scores q ON q.trajectory_id = t.id`
		args = append(args, *filter.PassedQuality)
		where = append(where, fmt.Sprintf("q.passed_filter = $%d", len(args)))
	}
	if filter.TaskID != "" {
		args = append(args, filter.TaskID)
		where = append(where, fmt.Sprintf("t.task_id = $%d", len(args)))
	}
	if filter.Model != "" {
		args = append(args, filter.Model)
		where = append(where, fmt.Sprintf("t.model = $%d", len(args)))
	}
	if filter.MinReward != nil {
		args = append(args, *filter.MinReward)
		where = append(where, fmt.Sprintf("t.total_reward >= $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trajectories: %w", err)
	}
	defer rows.Close()

	var out []*trajectory.Trajectory
	for rows.Next() {
		t := &trajectory.Trajectory{SchemaVersion: trajectory.SchemaVersion}
		var finalResult, tokenUsage, metadata []byte
		if err := rows.Scan(&t.ID, &t.TaskID, &t.Model, &t.ScaffoldType, &t.TotalReward, &finalResult, &t.DurationSecs, &tokenUsage, &metadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trajectory: %w", err)
		}
		if err := json.Unmarshal(finalResult, &t.FinalResult); err != nil {
			return nil, fmt.Errorf("unmarshal final_result: %w", err)
		}
		if err := json.Unmarshal(tokenUsage, &t.TokenUsage); err != nil {
			return nil, fmt.Errorf("unmarshal token_usage: %w", err)
		}
		if metadata != nil {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTrajectory removes a trajectory and (by FK cascade) its steps and
// quality score; its artifacts are preserved with trajectory_id set NULL.
func (s *Store) DeleteTrajectory(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trajectories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trajectory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
