package config

import "fmt"

// Validator validates a loaded Config comprehensively, one validateX method
// per concern, the way the teacher's config.Validator is structured —
// ValidateAll fails fast at the first violated rule.
type Validator struct {
	cfg *Config
}

// NewValidator builds a validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation rule from spec.md §6 in order.
func (v *Validator) ValidateAll() error {
	if err := v.validateConcurrency(); err != nil {
		return err
	}
	if err := v.validateDocker(); err != nil {
		return err
	}
	if err := v.validateModel(); err != nil {
		return err
	}
	if err := v.validateQuality(); err != nil {
		return err
	}
	if err := v.validateStore(); err != nil {
		return err
	}
	if err := v.validateBudget(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateConcurrency() error {
	c := v.cfg
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("max_concurrent_tasks must be > 0, got %d", c.MaxConcurrentTasks)
	}
	if c.MaxStepsPerTask <= 0 {
		return fmt.Errorf("max_steps_per_task must be > 0, got %d", c.MaxStepsPerTask)
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task_timeout must be > 0, got %s", c.TaskTimeout)
	}
	return nil
}

func (v *Validator) validateDocker() error {
	c := v.cfg
	if c.DockerImage == "" {
		return fmt.Errorf("docker_image must not be empty")
	}
	if c.DockerMemoryMB < 256 {
		return fmt.Errorf("docker_memory_mb must be >= 256, got %d", c.DockerMemoryMB)
	}
	if c.DockerCPUCores <= 0 {
		return fmt.Errorf("docker_cpu_cores must be > 0, got %f", c.DockerCPUCores)
	}
	return nil
}

func (v *Validator) validateModel() error {
	c := v.cfg
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %f", c.Temperature)
	}
	return nil
}

func (v *Validator) validateQuality() error {
	c := v.cfg
	if c.MinQualityScore < 0 || c.MinQualityScore > 1 {
		return fmt.Errorf("min_quality_score must be in [0, 1], got %f", c.MinQualityScore)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %f", c.SimilarityThreshold)
	}
	return nil
}

func (v *Validator) validateStore() error {
	if v.cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url must not be empty")
	}
	return nil
}

func (v *Validator) validateBudget() error {
	c := v.cfg
	if c.DailyBudget < 0 {
		return fmt.Errorf("daily_budget must be >= 0, got %f", c.DailyBudget)
	}
	if c.MonthlyBudget < 0 {
		return fmt.Errorf("monthly_budget must be >= 0, got %f", c.MonthlyBudget)
	}
	if c.DailyBudget > c.MonthlyBudget {
		return fmt.Errorf("daily_budget (%f) must not exceed monthly_budget (%f)", c.DailyBudget, c.MonthlyBudget)
	}
	return nil
}
