// Package adminapi exposes a small gin HTTP surface over the Orchestrator:
// liveness and a running-stats snapshot. Task submission is deliberately
// not exposed here — it stays programmatic, driven by cmd/pipeline or a
// batch-runner caller, per spec.md §4.9.
package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/orchestrator"
)

// StatsProvider is the narrow dependency this package needs from the
// Orchestrator, kept as an interface so handler tests don't need a real
// Runner/Store/ArtifactStore wired up behind it.
type StatsProvider interface {
	Stats() orchestrator.Snapshot
}

// NewRouter builds the admin HTTP surface. Callers own starting/stopping
// the resulting *gin.Engine's underlying http.Server.
func NewRouter(stats StatsProvider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handleHealth)
	r.GET("/stats", handleStats(stats))

	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleStats(stats StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := stats.Stats()
		c.JSON(http.StatusOK, gin.H{
			"total_executed":    snap.TotalExecuted,
			"success_count":     snap.SuccessCount,
			"failure_count":     snap.FailureCount,
			"quality_filtered":  snap.QualityFiltered,
			"avg_duration_secs": snap.AvgDurationSecs,
			"total_cost_cents":  snap.TotalCostCents,
		})
	}
}
