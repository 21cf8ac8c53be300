package artifact_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/artifact"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/store"
)

type artifactSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	st        *store.Store
	art       *artifact.Store
}

func TestArtifactSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed suite in -short mode")
	}
	suite.Run(t, new(artifactSuite))
}

func (s *artifactSuite) SetupSuite() {
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

	art, err := artifact.NewStore(st.Pool(), s.T().TempDir())
	require.NoError(s.T(), err)
	s.art = art
}

func (s *artifactSuite) TearDownSuite() {
	if s.st != nil {
		s.st.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *artifactSuite) SetupTest() {
	_, err := s.st.Pool().Exec(context.Background(), `TRUNCATE artifacts CASCADE`)
	require.NoError(s.T(), err)
}

func (s *artifactSuite) TestStoreRetrieveRoundTrip() {
	ctx := context.Background()
	id, err := s.art.StoreBytes(ctx, nil, artifact.TypeLog, []byte("hello world"))
	require.NoError(s.T(), err)

	data, err := s.art.Retrieve(ctx, id)
	require.NoError(s.T(), err)
	s.Equal("hello world", string(data))
}

func (s *artifactSuite) TestDedupSharesOneFile() {
	ctx := context.Background()
	id1, err := s.art.StoreBytes(ctx, nil, artifact.TypeLog, []byte("same-bytes"))
	require.NoError(s.T(), err)
	id2, err := s.art.StoreBytes(ctx, nil, artifact.TypeLog, []byte("same-bytes"))
	require.NoError(s.T(), err)
	s.NotEqual(id1, id2)

	// Both rows still resolve to readable content.
	d1, err := s.art.Retrieve(ctx, id1)
	require.NoError(s.T(), err)
	d2, err := s.art.Retrieve(ctx, id2)
	require.NoError(s.T(), err)
	s.Equal(d1, d2)

	// Deleting the first leaves the file present for the second.
	require.NoError(s.T(), s.art.Delete(ctx, id1))
	_, err = s.art.Retrieve(ctx, id2)
	require.NoError(s.T(), err)

	// Deleting the last reference removes the file.
	require.NoError(s.T(), s.art.Delete(ctx, id2))
	_, err = s.art.Retrieve(ctx, id2)
	s.Error(err)
}

func (s *artifactSuite) TestRetrieveNotFound() {
	_, err := s.art.Retrieve(context.Background(), uuid.New())
	s.ErrorIs(err, artifact.ErrNotFound)
}

func (s *artifactSuite) TestTotalStorageSize() {
	ctx := context.Background()
	_, err := s.art.StoreBytes(ctx, nil, artifact.TypeLog, []byte("12345"))
	require.NoError(s.T(), err)
	_, err = s.art.StoreBytes(ctx, nil, artifact.TypeBinary, []byte("1234567890"))
	require.NoError(s.T(), err)

	total, err := s.art.TotalStorageSize(ctx)
	require.NoError(s.T(), err)
	s.Equal(int64(15), total)
}

func (s *artifactSuite) TestCleanupOrphans() {
	ctx := context.Background()
	id, err := s.art.StoreBytes(ctx, nil, artifact.TypeLog, []byte("keep-me"))
	require.NoError(s.T(), err)

	// Simulate an orphaned file by deleting only the DB row directly.
	_, err = s.st.Pool().Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	require.NoError(s.T(), err)

	removed, err := s.art.CleanupOrphans(ctx)
	require.NoError(s.T(), err)
	s.Equal(1, removed)
}
