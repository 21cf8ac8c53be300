package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxConcurrentTasks)
	assert.Equal(t, "python:3.11-slim", cfg.DockerImage)
	assert.Equal(t, "gpt-4", cfg.DefaultModel)
	assert.True(t, cfg.EnableDedup)
	assert.Equal(t, 100.0, cfg.DailyBudget)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("PIPELINE_MAX_CONCURRENT_TASKS", "8")
	t.Setenv("PIPELINE_ENABLE_DEDUP", "no")
	t.Setenv("PIPELINE_FALLBACK_MODELS", "gpt-3.5, claude-3 ,")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxConcurrentTasks)
	assert.False(t, cfg.EnableDedup)
	assert.Equal(t, []string{"gpt-3.5", "claude-3"}, cfg.FallbackModels)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := config.Load()
	assert.ErrorContains(t, err, "database_url")
}

func TestLoadRejectsBudgetInversion(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("PIPELINE_DAILY_BUDGET", "500")
	t.Setenv("PIPELINE_MONTHLY_BUDGET", "100")
	_, err := config.Load()
	assert.ErrorContains(t, err, "daily_budget")
}

func TestLoadRejectsBadBoolean(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("PIPELINE_ENABLE_DEDUP", "maybe")
	_, err := config.Load()
	assert.Error(t, err)
}
