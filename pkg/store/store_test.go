package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/store"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// storeSuite spins up one Postgres testcontainer for the whole suite and
// truncates tables between tests, mirroring the teacher's shared-container
// test database pattern (one container per package, schema-level isolation
// traded here for simple table truncation since this package owns its own
// fixed schema).
type storeSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	st        *store.Store
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed suite in -short mode")
	}
	suite.Run(t, new(storeSuite))
}

func (s *storeSuite) SetupSuite() {
	ctx := context.Background()
	c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pipeline_test"),
		tcpostgres.WithUsername("pipeline"),
		tcpostgres.WithPassword("pipeline"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(s.T(), err)
	s.container = c

	connStr, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	st, err := store.NewStore(ctx, store.Config{DatabaseURL: connStr, MaxOpenConns: 5, MaxIdleConns: 1})
	require.NoError(s.T(), err)
	s.st = st
}

func (s *storeSuite) TearDownSuite() {
	if s.st != nil {
		s.st.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *storeSuite) SetupTest() {
	pool := s.st.Pool()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE artifacts, quality_scores, cost_records, trajectory_steps, trajectories CASCADE
	`)
	require.NoError(s.T(), err)
}

func (s *storeSuite) pool() *pgxpool.Pool { return s.st.Pool() }

func (s *storeSuite) TestSaveAndGetTrajectoryRoundTrip() {
	ctx := context.Background()
	traj := trajectory.New("task-1", "gpt-4", "external-process")
	collector := trajectory.NewCollector(traj.TaskID, traj.Model, traj.ScaffoldType)
	_, err := collector.RecordStep(
		trajectory.EnvironmentState{WorkingDirectory: "/workspace"},
		trajectory.AgentAction{ToolName: "bash", RawLLMOutput: "echo hi"},
		trajectory.Observation{Success: true, Output: "hi"},
		0.1, false,
	)
	require.NoError(s.T(), err)
	saved, err := collector.Finalize(trajectory.Success(1.0))
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.st.SaveTrajectory(ctx, saved))

	loaded, err := s.st.GetTrajectory(ctx, saved.ID)
	require.NoError(s.T(), err)
	s.Equal(saved.ID, loaded.ID)
	s.Equal(saved.TaskID, loaded.TaskID)
	s.Equal(saved.TotalReward, loaded.TotalReward)
	s.Require().Len(loaded.Steps, 1)
	s.Equal("bash", loaded.Steps[0].Action.ToolName)
	s.Equal(trajectory.ResultSuccess, loaded.FinalResult.Kind)
}

func (s *storeSuite) TestSaveTrajectoryIsIdempotent() {
	ctx := context.Background()
	traj := trajectory.New("task-2", "gpt-4", "external-process")
	collector := trajectory.NewCollector(traj.TaskID, traj.Model, traj.ScaffoldType)
	_, err := collector.RecordStep(trajectory.EnvironmentState{}, trajectory.AgentAction{ToolName: "bash"}, trajectory.Observation{Success: true}, 0.1, true)
	require.NoError(s.T(), err)
	saved, err := collector.Finalize(trajectory.Success(1.0))
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.st.SaveTrajectory(ctx, saved))
	require.NoError(s.T(), s.st.SaveTrajectory(ctx, saved))

	loaded, err := s.st.GetTrajectory(ctx, saved.ID)
	require.NoError(s.T(), err)
	s.Require().Len(loaded.Steps, 1)
}

func (s *storeSuite) TestGetTrajectoryNotFound() {
	_, err := s.st.GetTrajectory(context.Background(), trajectory.New("x", "y", "z").ID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *storeSuite) TestDeleteTrajectoryNotFound() {
	err := s.st.DeleteTrajectory(context.Background(), trajectory.New("x", "y", "z").ID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *storeSuite) TestListTrajectoriesFiltersByTaskID() {
	ctx := context.Background()
	for i, taskID := range []string{"alpha", "alpha", "beta"} {
		c := trajectory.NewCollector(taskID, "gpt-4", "external-process")
		_, err := c.RecordStep(trajectory.EnvironmentState{}, trajectory.AgentAction{ToolName: "bash"}, trajectory.Observation{Success: true}, float64(i), true)
		require.NoError(s.T(), err)
		saved, err := c.Finalize(trajectory.Success(1.0))
		require.NoError(s.T(), err)
		require.NoError(s.T(), s.st.SaveTrajectory(ctx, saved))
	}

	out, err := s.st.ListTrajectories(ctx, store.ListFilter{TaskID: "alpha"})
	require.NoError(s.T(), err)
	s.Len(out, 2)
}

func (s *storeSuite) TestCostTracking() {
	ctx := context.Background()
	taskID := "cost-task"
	require.NoError(s.T(), s.st.RecordCost(ctx, "gpt-4", 100, 50, 15, &taskID))
	require.NoError(s.T(), s.st.RecordCost(ctx, "gpt-4", 200, 50, 25, &taskID))

	total, err := s.st.DailyCostCents(ctx, time.Now().Add(-time.Hour))
	require.NoError(s.T(), err)
	s.Equal(int64(40), total)
}

func (s *storeSuite) TestQualityScoreUpsert() {
	ctx := context.Background()
	c := trajectory.NewCollector("q-task", "gpt-4", "external-process")
	_, err := c.RecordStep(trajectory.EnvironmentState{}, trajectory.AgentAction{ToolName: "bash"}, trajectory.Observation{Success: true}, 0, true)
	require.NoError(s.T(), err)
	saved, err := c.Finalize(trajectory.Success(1.0))
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.st.SaveTrajectory(ctx, saved))

	overall := 0.42
	require.NoError(s.T(), s.st.SaveQualityScore(ctx, store.QualityScore{TrajectoryID: saved.ID, Overall: overall, PassedFilter: false}))

	q, err := s.st.GetQualityScore(ctx, saved.ID)
	require.NoError(s.T(), err)
	s.Require().NotNil(q)
	s.Equal(overall, q.Overall)

	q.Overall = 0.9
	q.PassedFilter = true
	require.NoError(s.T(), s.st.SaveQualityScore(ctx, *q))

	reread, err := s.st.GetQualityScore(ctx, saved.ID)
	require.NoError(s.T(), err)
	s.True(reread.PassedFilter)
}
