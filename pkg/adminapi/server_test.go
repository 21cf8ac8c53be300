package adminapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/adminapi"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/orchestrator"
)

type fakeStats struct {
	snap orchestrator.Snapshot
}

func (f fakeStats) Stats() orchestrator.Snapshot { return f.snap }

func TestHealthReturnsOK(t *testing.T) {
	r := adminapi.NewRouter(fakeStats{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStatsReportsSnapshot(t *testing.T) {
	r := adminapi.NewRouter(fakeStats{snap: orchestrator.Snapshot{
		TotalExecuted: 5,
		SuccessCount:  3,
		FailureCount:  2,
	}})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_executed":5`)
	assert.Contains(t, rec.Body.String(), `"success_count":3`)
}
