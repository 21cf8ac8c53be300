package trajectory

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by Collector. Callers use errors.Is.
var (
	ErrAlreadyFinalized = errors.New("trajectory: already finalized")
	ErrStepAfterDone    = errors.New("trajectory: cannot record a step after a done step")
)

// Collector accumulates steps for a single in-flight task execution and
// freezes the result via Finalize. One Collector is owned by exactly one
// Task Runner invocation; it is not safe for concurrent use.
type Collector struct {
	traj      *Trajectory
	startedAt time.Time
	done      bool
}

// NewCollector starts accumulating a new trajectory for taskID/model/scaffoldType.
func NewCollector(taskID, model, scaffoldType string) *Collector {
	return &Collector{
		traj:      New(taskID, model, scaffoldType),
		startedAt: time.Now(),
	}
}

// Trajectory returns the (possibly still in-progress) trajectory under
// construction. Callers must not mutate the returned pointer's Steps slice.
func (c *Collector) Trajectory() *Trajectory { return c.traj }

// StepCount returns the number of steps recorded so far.
func (c *Collector) StepCount() int { return len(c.traj.Steps) }

// RecordStep appends a step to the trajectory, assigning the next
// step_number. Returns ErrStepAfterDone if a prior step already had
// Done==true, and ErrAlreadyFinalized once Finalize has run.
func (c *Collector) RecordStep(state EnvironmentState, action AgentAction, obs Observation, reward float64, done bool) (*Step, error) {
	if c.traj.finalized {
		return nil, ErrAlreadyFinalized
	}
	if c.done {
		return nil, ErrStepAfterDone
	}
	step := Step{
		StepNumber:  uint32(len(c.traj.Steps)),
		State:       state,
		Action:      action,
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Timestamp:   time.Now().UTC(),
	}
	c.traj.Steps = append(c.traj.Steps, step)
	c.traj.TotalReward += reward
	if done {
		c.done = true
	}
	return &c.traj.Steps[len(c.traj.Steps)-1], nil
}

// AddTokens accumulates token usage observed for the most recent LLM call.
func (c *Collector) AddTokens(prompt, completion int) {
	c.traj.TokenUsage.Add(prompt, completion)
}

// Finalize freezes the trajectory with the given terminal result, fixing
// DurationSecs from the collector's start time. It is an error to call
// Finalize more than once.
func (c *Collector) Finalize(result TaskResult) (*Trajectory, error) {
	if c.traj.finalized {
		return nil, ErrAlreadyFinalized
	}
	c.traj.FinalResult = result
	c.traj.DurationSecs = time.Since(c.startedAt).Seconds()
	c.traj.finalized = true
	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("trajectory: invariant violated at finalize: %w", err)
	}
	return c.traj, nil
}

// verify checks the invariants documented on Trajectory before returning the
// frozen result to the caller.
func (c *Collector) verify() error {
	var sum float64
	for i, s := range c.traj.Steps {
		if int(s.StepNumber) != i {
			return fmt.Errorf("step %d has step_number %d, want %d", i, s.StepNumber, i)
		}
		if s.Done && i != len(c.traj.Steps)-1 {
			return fmt.Errorf("step %d is done but is not the last step", i)
		}
		sum += s.Reward
	}
	if diff := sum - c.traj.TotalReward; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("total_reward %.9f does not match sum of steps %.9f", c.traj.TotalReward, sum)
	}
	if c.traj.TokenUsage.Total != c.traj.TokenUsage.Prompt+c.traj.TokenUsage.Completion {
		return fmt.Errorf("token_usage.total %d != prompt+completion %d", c.traj.TokenUsage.Total, c.traj.TokenUsage.Prompt+c.traj.TokenUsage.Completion)
	}
	return nil
}
