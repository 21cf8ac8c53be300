// Package config loads and validates the pipeline's environment-variable
// configuration (spec.md §6). It deliberately does not parse CLI flags or
// wire telemetry — those remain the surrounding product's concern per
// spec.md §1's Non-goals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully loaded, validated pipeline configuration.
type Config struct {
	MaxConcurrentTasks int
	TaskTimeout        time.Duration
	MaxStepsPerTask     int

	DockerImage      string
	DockerMemoryMB   uint64
	DockerCPUCores   float64

	DefaultModel    string
	FallbackModels  []string
	Temperature     float64

	MinQualityScore     float64
	EnableDedup         bool
	SimilarityThreshold float64

	ArtifactPath    string
	TrajectoryPath  string

	DailyBudget   float64
	MonthlyBudget float64

	DatabaseURL string
}

// Load reads every PIPELINE_* / DATABASE_URL environment variable, applies
// Defaults() for anything unset, and validates the result — the single
// entry point callers (cmd/pipeline/main.go) use at startup.
func Load() (*Config, error) {
	d := Defaults()

	maxConcurrent, err := envInt("PIPELINE_MAX_CONCURRENT_TASKS", d.MaxConcurrentTasks)
	if err != nil {
		return nil, err
	}
	taskTimeoutSecs, err := envInt("PIPELINE_TASK_TIMEOUT_SECS", int(d.TaskTimeout.Seconds()))
	if err != nil {
		return nil, err
	}
	maxSteps, err := envInt("PIPELINE_MAX_STEPS", d.MaxStepsPerTask)
	if err != nil {
		return nil, err
	}
	memMB, err := envUint("PIPELINE_DOCKER_MEMORY_MB", d.DockerMemoryMB)
	if err != nil {
		return nil, err
	}
	cpuCores, err := envFloat("PIPELINE_DOCKER_CPU_CORES", d.DockerCPUCores)
	if err != nil {
		return nil, err
	}
	temperature, err := envFloat("PIPELINE_TEMPERATURE", d.Temperature)
	if err != nil {
		return nil, err
	}
	minQuality, err := envFloat("PIPELINE_MIN_QUALITY_SCORE", d.MinQualityScore)
	if err != nil {
		return nil, err
	}
	enableDedup, err := envBool("PIPELINE_ENABLE_DEDUP", d.EnableDedup)
	if err != nil {
		return nil, err
	}
	similarityThreshold, err := envFloat("PIPELINE_SIMILARITY_THRESHOLD", d.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	dailyBudget, err := envFloat("PIPELINE_DAILY_BUDGET", d.DailyBudget)
	if err != nil {
		return nil, err
	}
	monthlyBudget, err := envFloat("PIPELINE_MONTHLY_BUDGET", d.MonthlyBudget)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MaxConcurrentTasks:  maxConcurrent,
		TaskTimeout:         time.Duration(taskTimeoutSecs) * time.Second,
		MaxStepsPerTask:     maxSteps,
		DockerImage:         envString("PIPELINE_DOCKER_IMAGE", d.DockerImage),
		DockerMemoryMB:      memMB,
		DockerCPUCores:      cpuCores,
		DefaultModel:        envString("PIPELINE_DEFAULT_MODEL", d.DefaultModel),
		FallbackModels:      splitCSV(os.Getenv("PIPELINE_FALLBACK_MODELS")),
		Temperature:         temperature,
		MinQualityScore:     minQuality,
		EnableDedup:         enableDedup,
		SimilarityThreshold: similarityThreshold,
		ArtifactPath:        envString("PIPELINE_ARTIFACT_PATH", d.ArtifactPath),
		TrajectoryPath:      envString("PIPELINE_TRAJECTORY_PATH", d.TrajectoryPath),
		DailyBudget:         dailyBudget,
		MonthlyBudget:       monthlyBudget,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
var falsy = map[string]bool{"false": true, "0": true, "no": true, "off": true}

func envBool(key string, def bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def, nil
	}
	if truthy[v] {
		return true, nil
	}
	if falsy[v] {
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q is not a recognized boolean", key, v)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
