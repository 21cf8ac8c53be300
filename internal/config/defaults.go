package config

import "time"

// Defaults returns the spec.md §6 default values, used for any env var left
// unset.
func Defaults() Config {
	return Config{
		MaxConcurrentTasks:  4,
		TaskTimeout:         1800 * time.Second,
		MaxStepsPerTask:     50,
		DockerImage:         "python:3.11-slim",
		DockerMemoryMB:      2048,
		DockerCPUCores:      2.0,
		DefaultModel:        "gpt-4",
		Temperature:         0.7,
		MinQualityScore:     0.6,
		EnableDedup:         true,
		SimilarityThreshold: 0.85,
		ArtifactPath:        "./artifacts",
		TrajectoryPath:      "./trajectories",
		DailyBudget:         100.0,
		MonthlyBudget:       1000.0,
	}
}
